package resource

// Condition is one filter term. With Relation empty, Field names an attribute
// of the root entity, or a relation of the root entity when the condition is
// an eq/ne null check. With Relation set, Field names an attribute of that
// relation's target entity.
type Condition struct {
	Relation string
	Field    string
	Operand  Operand
	// Value is a string for scalar operands and a []string for list operands.
	Value any
}

// IsNull reports whether the condition is an eq/ne test against the null literal.
func (c Condition) IsNull() bool {
	if c.Operand != OpEq && c.Operand != OpNe {
		return false
	}
	s, ok := c.Value.(string)
	return ok && s == NullLiteral
}

// Filter is a conjunction of conditions, compiled in order.
type Filter []Condition

// Target returns the conditions on the root entity.
func (f Filter) Target() []Condition {
	var out []Condition
	for _, c := range f {
		if c.Relation == "" {
			out = append(out, c)
		}
	}
	return out
}

// Related returns the conditions on related entities.
func (f Filter) Related() []Condition {
	var out []Condition
	for _, c := range f {
		if c.Relation != "" {
			out = append(out, c)
		}
	}
	return out
}

// SortField orders by one field of the root entity, or of a relation's target
// when Relation is set.
type SortField struct {
	Relation  string
	Field     string
	Direction Direction
}

// Fields is a sparse fieldset. A nil Target selects every root attribute; a
// relation absent from Relation selects every attribute of that relation.
type Fields struct {
	Target   []string
	Relation map[string][]string
}

// Page selects a window of a collection. Number is 1-based.
type Page struct {
	Number int `validate:"min=1"`
	Size   int `validate:"min=1"`
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Query is a validated read request against one entity type.
type Query struct {
	Filter  Filter
	Sort    []SortField
	Fields  Fields
	Include []string
	Page    Page
	// NoTieBreak drops the implicit primary key tie-break appended after an
	// explicit sort.
	NoTieBreak bool
}

// Includes reports whether relation name is side-loaded.
func (q *Query) Includes(name string) bool {
	for _, inc := range q.Include {
		if inc == name {
			return true
		}
	}
	return false
}
