package events

import (
	"fmt"
	"path"
	"slices"
)

// Filter selects the events a sink receives. Type patterns use path.Match
// globs such as "user*". Empty fields match every event.
type Filter struct {
	Types        []string `mapstructure:"types"`
	ExcludeTypes []string `mapstructure:"excludeTypes"`
	Actions      []Action `mapstructure:"actions"`
}

var actions = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionRelationship}

// Validate rejects malformed patterns and unknown actions.
func (f *Filter) Validate() error {
	for _, p := range slices.Concat(f.Types, f.ExcludeTypes) {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("events: invalid type pattern %q: %w", p, err)
		}
	}
	for _, a := range f.Actions {
		if !slices.Contains(actions, a) {
			return fmt.Errorf("events: invalid action %q", a)
		}
	}
	return nil
}

// Match reports whether e passes the filter. Exclusions win over inclusions.
func (f *Filter) Match(e Event) bool {
	if f == nil {
		return true
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	if matchAny(f.ExcludeTypes, e.Type) {
		return false
	}
	return len(f.Types) == 0 || matchAny(f.Types, e.Type)
}

func matchAny(patterns []string, typ string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, typ); ok {
			return true
		}
	}
	return false
}
