package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Action is the kind of change.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionRelationship Action = "relationship"
)

// Event describes one committed change to a resource.
type Event struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Action     Action    `json:"action"`
	Type       string    `json:"type"`
	ResourceID string    `json:"resourceId"`
	// Relationship and Linkage are set for relationship writes; Linkage is
	// the state after the write.
	Relationship string                   `json:"relationship,omitempty"`
	Linkage      *resource.Linkage        `json:"linkage,omitempty"`
	Data         *resource.ResourceObject `json:"data,omitempty"`
}

// New returns an event with a fresh id and the current time.
func New(action Action, typ, id string) Event {
	return Event{
		ID:         uuid.NewString(),
		Time:       time.Now().UTC(),
		Action:     action,
		Type:       typ,
		ResourceID: id,
	}
}

// Subject is a dot-separated routing key, e.g. "users.create".
func (e Event) Subject() string {
	return e.Type + "." + string(e.Action)
}
