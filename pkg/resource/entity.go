package resource

import (
	"fmt"
	"slices"
	"sort"
)

// Attribute is a scalar field of an entity.
type Attribute struct {
	Name     string    `json:"name"`   // wire name, e.g. firstName
	Column   string    `json:"column"` // store column, e.g. first_name
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable"`

	// Format is the store type of string attributes that are not plain
	// text, e.g. uuid or an enum name.
	Format string `json:"format,omitempty"`
}

// Textual reports whether a is stored as a character type.
func (a Attribute) Textual() bool {
	return a.Type == FieldString && a.Format == ""
}

// JoinTable describes the link table of a many-to-many relation.
type JoinTable struct {
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	SourceKey string `json:"sourceKey"` // references the declaring entity's primary key
	TargetKey string `json:"targetKey"` // references the target entity's primary key
}

// Relation describes a relationship from one entity to another.
type Relation struct {
	Name        string      `json:"name"`
	Target      string      `json:"target"`
	Cardinality Cardinality `json:"cardinality"`
	Nullable    bool        `json:"nullable"`
	Owner       Ownership   `json:"owner"`
	// ForeignKey is the column holding the reference: on the declaring table
	// for OwnerSelf, on the target table for OwnerTarget.
	ForeignKey string     `json:"foreignKey,omitempty"`
	JoinTable  *JoinTable `json:"joinTable,omitempty"`
}

// Entity is the schema descriptor of one resource type.
type Entity struct {
	Name       string      `json:"name"`
	Schema     string      `json:"schema"`
	Table      string      `json:"table"`
	PrimaryKey Attribute   `json:"primaryKey"`
	Attributes []Attribute `json:"attributes"`
	Relations  []Relation  `json:"relations"`
}

// Type returns the JSON:API resource type, the kebab-cased entity name.
func (e *Entity) Type() string {
	return Kebab(e.Name)
}

// Attribute looks up a scalar attribute by wire name. The primary key is
// not an attribute.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Relation looks up a relation by name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	for i := range e.Relations {
		if e.Relations[i].Name == name {
			return &e.Relations[i], true
		}
	}
	return nil, false
}

// Column resolves a wire field name (attribute or primary key) to its column.
func (e *Entity) Column(name string) (Attribute, bool) {
	if name == e.PrimaryKey.Name || name == e.PrimaryKey.Column {
		return e.PrimaryKey, true
	}
	return e.Attribute(name)
}

// CheckNames reports every attribute or relationship of a write body that e
// does not declare, as an invalid query with one detail per name.
func (e *Entity) CheckNames(attrs map[string]any, rels map[string]RelationshipData) error {
	var details []ErrorDetail
	for _, name := range sortedKeys(attrs) {
		if _, ok := e.Attribute(name); !ok {
			details = append(details, ErrorDetail{
				Code:    "unknown_field",
				Message: fmt.Sprintf("%s has no attribute %q", e.Type(), name),
				Path:    []string{"data", "attributes", name},
			})
		}
	}
	for _, name := range sortedKeys(rels) {
		if _, ok := e.Relation(name); !ok {
			details = append(details, ErrorDetail{
				Code:    "unknown_relation",
				Message: fmt.Sprintf("%s has no relationship %q", e.Type(), name),
				Path:    []string{"data", "relationships", name},
			})
		}
	}
	if len(details) > 0 {
		return InvalidQuery(details...)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Fields returns the scalar field names and relation names of the entity.
func (e *Entity) Fields() (scalars []string, relations []string) {
	for _, a := range e.Attributes {
		scalars = append(scalars, a.Name)
	}
	for _, r := range e.Relations {
		relations = append(relations, r.Name)
	}
	return scalars, relations
}

// Registry is an immutable set of entity descriptors.
type Registry struct {
	byName map[string]*Entity
	byType map[string]*Entity
	names  []string
}

// NewRegistry validates the entities and indexes them by name and type.
// Every relation target must be present and every entity must have a
// primary key. Relations may not share their declaring entity's name since
// both are used as SQL aliases.
func NewRegistry(entities ...*Entity) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]*Entity, len(entities)),
		byType: make(map[string]*Entity, len(entities)),
	}
	for _, e := range entities {
		if e.PrimaryKey.Column == "" {
			return nil, fmt.Errorf("entity %s: no primary key", e.Name)
		}
		if _, dup := r.byName[e.Name]; dup {
			return nil, fmt.Errorf("entity %s: declared twice", e.Name)
		}
		if other, dup := r.byType[e.Type()]; dup {
			return nil, fmt.Errorf("entity %s: type %q collides with entity %s", e.Name, e.Type(), other.Name)
		}
		r.byName[e.Name] = e
		r.byType[e.Type()] = e
		r.names = append(r.names, e.Name)
	}
	for _, e := range entities {
		for _, rel := range e.Relations {
			if rel.Name == e.Name {
				return nil, fmt.Errorf("entity %s: relation %s shadows the entity alias", e.Name, rel.Name)
			}
			if _, ok := r.byName[rel.Target]; !ok {
				return nil, fmt.Errorf("entity %s: relation %s targets unknown entity %s", e.Name, rel.Name, rel.Target)
			}
			if rel.Owner == OwnerJoinTable && rel.JoinTable == nil {
				return nil, fmt.Errorf("entity %s: relation %s has no join table", e.Name, rel.Name)
			}
			if rel.Owner != OwnerJoinTable && rel.ForeignKey == "" {
				return nil, fmt.Errorf("entity %s: relation %s has no foreign key", e.Name, rel.Name)
			}
		}
	}
	sort.Strings(r.names)
	return r, nil
}

// Registry returns r itself, so a static Registry can stand in wherever a
// provider of the current Registry is expected.
func (r *Registry) Registry() *Registry { return r }

// Entity looks up an entity by name. A miss is a schema contract violation.
func (r *Registry) Entity(name string) (*Entity, error) {
	if e, ok := r.byName[name]; ok {
		return e, nil
	}
	return nil, ContractViolation("unknown entity %q", name)
}

// ByType looks up an entity by its JSON:API type.
func (r *Registry) ByType(typ string) (*Entity, bool) {
	e, ok := r.byType[typ]
	return e, ok
}

// Target resolves the entity a relation points at.
func (r *Registry) Target(rel *Relation) (*Entity, error) {
	return r.Entity(rel.Target)
}

// Relation resolves a relation of e and its target entity.
func (r *Registry) Relation(e *Entity, name string) (*Relation, *Entity, error) {
	rel, ok := e.Relation(name)
	if !ok {
		return nil, nil, ContractViolation("entity %s has no relation %q", e.Name, name)
	}
	target, err := r.Target(rel)
	if err != nil {
		return nil, nil, err
	}
	return rel, target, nil
}

// Entities returns all entities ordered by name.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

// Len returns the number of entities.
func (r *Registry) Len() int { return len(r.names) }

// Names returns the entity names in order.
func (r *Registry) Names() []string { return slices.Clone(r.names) }
