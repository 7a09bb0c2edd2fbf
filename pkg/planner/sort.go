package planner

import "github.com/edgeflare/pgjsonapi/pkg/resource"

// OrderTerm is one ORDER BY key. Alias is the root entity name or the name
// of a joined relation.
type OrderTerm struct {
	Alias     string
	Column    string
	Type      resource.FieldType
	Direction resource.Direction
}

// compileSort orders by the requested fields. Without any sort the primary
// key ascending is used; with one, the primary key is appended as a final
// tie-break unless the query opts out or already sorts by it.
func (c *Compiler) compileSort(p *Plan, sorts []resource.SortField, noTieBreak bool) error {
	e := p.Entity
	pkSorted := false
	for _, s := range sorts {
		dir := s.Direction
		if dir == "" {
			dir = resource.Asc
		}
		if s.Relation == "" {
			attr, ok := e.Column(s.Field)
			if !ok {
				return resource.ContractViolation("entity %s has no field %q", e.Name, s.Field)
			}
			if attr.Column == e.PrimaryKey.Column {
				pkSorted = true
			}
			p.OrderBy = append(p.OrderBy, OrderTerm{Alias: e.Name, Column: attr.Column, Type: attr.Type, Direction: dir})
			continue
		}
		_, target, err := c.reg.Relation(e, s.Relation)
		if err != nil {
			return err
		}
		attr, ok := target.Column(s.Field)
		if !ok {
			return resource.ContractViolation("entity %s has no field %q", target.Name, s.Field)
		}
		p.join(s.Relation)
		p.OrderBy = append(p.OrderBy, OrderTerm{Alias: s.Relation, Column: attr.Column, Type: attr.Type, Direction: dir})
	}

	if len(sorts) == 0 || (!noTieBreak && !pkSorted) {
		p.OrderBy = append(p.OrderBy, OrderTerm{
			Alias:     e.Name,
			Column:    e.PrimaryKey.Column,
			Type:      e.PrimaryKey.Type,
			Direction: resource.Asc,
		})
	}
	return nil
}

// render returns the ORDER BY expression of t. Relation columns are
// aggregated when the statement groups by the root key, since a to-many
// join yields several values per root row.
func (t OrderTerm) render(root string, grouped bool) string {
	col := column(t.Alias, t.Column)
	if !grouped || t.Alias == root {
		return col + " " + string(t.Direction)
	}
	desc := t.Direction == resource.Desc
	var agg string
	switch t.Type {
	case resource.FieldBoolean:
		agg = "bool_and(" + col + ")"
		if desc {
			agg = "bool_or(" + col + ")"
		}
	case resource.FieldArray, resource.FieldObject:
		agg = "MIN(" + col + "::text)"
		if desc {
			agg = "MAX(" + col + "::text)"
		}
	default:
		agg = "MIN(" + col + ")"
		if desc {
			agg = "MAX(" + col + ")"
		}
	}
	return agg + " " + string(t.Direction)
}
