package transform

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/edgeflare/pgjsonapi/pkg/planner"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Collapse folds hydration rows, aligned with plan.Select, into one record per
// root primary key. Rows repeated by to-many joins contribute each related
// record once. Every included relation is marked loaded on every root, so an
// absent to-one stays nil and an empty to-many stays empty. When order is
// non-nil the records follow it; ids missing from rows are skipped.
func Collapse(plan *planner.Plan, rows [][]any, order []any) ([]*resource.Record, error) {
	type slot struct {
		index int
		field string
	}
	pks := make(map[string]int)
	attrs := make(map[string][]slot)
	for i, c := range plan.Select {
		if c.PK() {
			pks[c.Alias] = i
			continue
		}
		attrs[c.Alias] = append(attrs[c.Alias], slot{index: i, field: c.Field})
	}

	type include struct {
		name   string
		rel    *resource.Relation
		target *resource.Entity
	}
	includes := make([]include, 0, len(plan.Include))
	for _, name := range plan.Include {
		rel, target, err := plan.Relation(name)
		if err != nil {
			return nil, err
		}
		includes = append(includes, include{name: name, rel: rel, target: target})
	}

	fill := func(rec *resource.Record, alias string, row []any) {
		for _, s := range attrs[alias] {
			rec.Attributes[s.field] = Normalize(row[s.index])
		}
	}

	root := plan.Root()
	byID := make(map[string]*resource.Record)
	var records []*resource.Record
	seen := make(map[string]struct{})
	for _, row := range rows {
		if len(row) != len(plan.Select) {
			return nil, fmt.Errorf("hydration row has %d columns, want %d", len(row), len(plan.Select))
		}
		id := Normalize(row[pks[root]])
		key := resource.FormatID(id)
		rec, ok := byID[key]
		if !ok {
			rec = resource.NewRecord(plan.Entity, id)
			fill(rec, root, row)
			for _, inc := range includes {
				loaded := &resource.Loaded{}
				if inc.rel.Cardinality == resource.Many {
					loaded.Many = []*resource.Record{}
				}
				rec.Relations[inc.name] = loaded
			}
			byID[key] = rec
			records = append(records, rec)
		}

		for _, inc := range includes {
			raw := row[pks[inc.name]]
			if raw == nil {
				continue
			}
			relID := Normalize(raw)
			relKey := key + "\x00" + inc.name + "\x00" + resource.FormatID(relID)
			if _, dup := seen[relKey]; dup {
				continue
			}
			seen[relKey] = struct{}{}

			related := resource.NewRecord(inc.target, relID)
			fill(related, inc.name, row)
			loaded := rec.Relations[inc.name]
			if inc.rel.Cardinality == resource.One {
				loaded.One = related
			} else {
				loaded.Many = append(loaded.Many, related)
			}
		}
	}

	if order == nil {
		return records, nil
	}
	ordered := make([]*resource.Record, 0, len(records))
	for _, id := range order {
		if rec, ok := byID[resource.FormatID(Normalize(id))]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered, nil
}

// Normalize converts driver values to their wire form. UUIDs decoded
// without a registered Go type arrive as [16]byte.
func Normalize(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	default:
		return v
	}
}
