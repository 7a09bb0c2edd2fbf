package planner

import "github.com/edgeflare/pgjsonapi/pkg/resource"

// Column is one projected column of the hydration statement.
type Column struct {
	// Alias is the root entity name or an included relation name.
	Alias string
	// Column is the store column.
	Column string
	// Field is the wire attribute name; empty for primary keys.
	Field string
}

// Label is the result column name, "alias.column".
func (c Column) Label() string {
	return c.Alias + "." + c.Column
}

// PK reports whether the column is the primary key of its alias.
func (c Column) PK() bool { return c.Field == "" }

// project selects the root primary key, the requested root attributes, and
// for every included relation its primary key and requested attributes.
// Primary keys are always selected so related rows can be keyed. Relation
// names listed in a fieldset never remove the relation from the resource;
// they are accepted and ignored here.
func (c *Compiler) project(p *Plan, fields resource.Fields, include []string) error {
	e := p.Entity
	cols, err := projectEntity(e.Name, e, fields.Target)
	if err != nil {
		return err
	}
	p.Select = append(p.Select, cols...)

	for _, name := range include {
		_, target, err := c.reg.Relation(e, name)
		if err != nil {
			return err
		}
		var wanted []string
		if fields.Relation != nil {
			wanted = fields.Relation[name]
		}
		cols, err := projectEntity(name, target, wanted)
		if err != nil {
			return err
		}
		p.Select = append(p.Select, cols...)
		p.Include = append(p.Include, name)
	}
	return nil
}

func projectEntity(alias string, e *resource.Entity, wanted []string) ([]Column, error) {
	cols := []Column{{Alias: alias, Column: e.PrimaryKey.Column}}
	if wanted == nil {
		for _, a := range e.Attributes {
			cols = append(cols, Column{Alias: alias, Column: a.Column, Field: a.Name})
		}
		return cols, nil
	}
	seen := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		if name == e.PrimaryKey.Name || seen[name] {
			continue
		}
		seen[name] = true
		if _, isRel := e.Relation(name); isRel {
			continue
		}
		a, ok := e.Attribute(name)
		if !ok {
			return nil, resource.ContractViolation("entity %s has no field %q", e.Name, name)
		}
		cols = append(cols, Column{Alias: alias, Column: a.Column, Field: a.Name})
	}
	return cols, nil
}
