package resource

// Record is a hydrated entity instance. Relations holds only the relations
// whose data was loaded; a missing key means "not loaded", which is distinct
// from a loaded to-one that is absent (Loaded.One == nil) or a loaded to-many
// with no members (len(Loaded.Many) == 0).
type Record struct {
	Entity     *Entity
	ID         any
	Attributes map[string]any
	Relations  map[string]*Loaded
}

// Loaded is the loaded value of one relation.
type Loaded struct {
	One  *Record
	Many []*Record
}

// NewRecord returns an empty record of entity e.
func NewRecord(e *Entity, id any) *Record {
	return &Record{
		Entity:     e,
		ID:         id,
		Attributes: make(map[string]any),
		Relations:  make(map[string]*Loaded),
	}
}

// Loaded returns the loaded value of relation name, or nil.
func (r *Record) Loaded(name string) *Loaded {
	return r.Relations[name]
}

// Records returns the related records regardless of cardinality.
func (l *Loaded) Records() []*Record {
	if l == nil {
		return nil
	}
	if l.One != nil {
		return []*Record{l.One}
	}
	return l.Many
}
