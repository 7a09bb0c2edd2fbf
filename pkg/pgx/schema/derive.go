package schema

import (
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Derive turns catalog tables into entity descriptors:
//
//   - a table with a single-column primary key is an entity named by the
//     camelCased table name (schema-qualified when the name repeats);
//   - a single-column foreign key to an entity's primary key is a to-one
//     relation named after the column without its _id suffix, and the
//     referenced entity gets the inverse, named after the referencing
//     entity: to-many, or to-one when the column is unique;
//   - a table whose primary key is exactly two such foreign keys is a join
//     table giving both ends a many-to-many relation;
//   - every other column is an attribute named by its camelCased column.
//
// Tables matching neither shape are ignored. Name clashes fall back to a
// name built from the table and column.
func Derive(tables []Table) []*resource.Entity {
	d := &deriver{
		tables:   make(map[string]*Table, len(tables)),
		entities: make(map[string]*resource.Entity),
		taken:    make(map[*resource.Entity]map[string]bool),
	}
	names := make(map[string]int)
	for i := range tables {
		t := &tables[i]
		d.tables[t.fullName()] = t
		if len(t.PrimaryKeys) == 1 {
			names[t.Name]++
		}
	}

	var order []*resource.Entity
	for i := range tables {
		t := &tables[i]
		if len(t.PrimaryKeys) != 1 {
			continue
		}
		name := resource.Camel(t.Name)
		if names[t.Name] > 1 {
			name = resource.Camel(t.Schema + "_" + t.Name)
		}
		pk, _ := t.Column(t.PrimaryKeys[0])
		e := &resource.Entity{
			Name:   name,
			Schema: t.Schema,
			Table:  t.Name,
			PrimaryKey: resource.Attribute{
				Name:   resource.Camel(pk.Name),
				Column: pk.Name,
				Type:   resource.FieldTypeOf(pk.DataType, pk.UDTName),
				Format: resource.FormatOf(pk.DataType, pk.UDTName),
			},
		}
		d.entities[t.fullName()] = e
		d.taken[e] = map[string]bool{e.PrimaryKey.Name: true}
		order = append(order, e)
	}

	// Attributes and own foreign keys.
	for i := range tables {
		t := &tables[i]
		e, ok := d.entities[t.fullName()]
		if !ok {
			continue
		}
		for _, c := range t.Columns {
			if c.IsPrimaryKey {
				continue
			}
			if _, _, ok := d.reference(t, c.Name); ok {
				continue
			}
			a := resource.Attribute{
				Name:     resource.Camel(c.Name),
				Column:   c.Name,
				Type:     resource.FieldTypeOf(c.DataType, c.UDTName),
				Format:   resource.FormatOf(c.DataType, c.UDTName),
				Nullable: c.IsNullable,
			}
			d.taken[e][a.Name] = true
			e.Attributes = append(e.Attributes, a)
		}
	}
	for i := range tables {
		t := &tables[i]
		e, ok := d.entities[t.fullName()]
		if !ok {
			continue
		}
		for _, c := range t.Columns {
			if c.IsPrimaryKey {
				continue
			}
			if _, target, ok := d.reference(t, c.Name); ok {
				e.Relations = append(e.Relations, resource.Relation{
					Name:        d.claim(e, relationName(c.Name), resource.Camel(c.Name)),
					Target:      target.Name,
					Cardinality: resource.One,
					Nullable:    c.IsNullable,
					Owner:       resource.OwnerSelf,
					ForeignKey:  c.Name,
				})
			}
		}
	}

	// Inverses and join tables.
	for i := range tables {
		t := &tables[i]
		if e, ok := d.entities[t.fullName()]; ok {
			for _, c := range t.Columns {
				if c.IsPrimaryKey {
					continue
				}
				_, target, ok := d.reference(t, c.Name)
				if !ok {
					continue
				}
				card := resource.Many
				if slices.Contains(t.Unique, c.Name) {
					card = resource.One
				}
				target.Relations = append(target.Relations, resource.Relation{
					Name:        d.claim(target, e.Name, resource.Camel(t.Name+"_"+strings.TrimSuffix(c.Name, "_id"))),
					Target:      e.Name,
					Cardinality: card,
					Nullable:    true,
					Owner:       resource.OwnerTarget,
					ForeignKey:  c.Name,
				})
			}
			continue
		}
		d.joinTable(t)
	}
	return order
}

// Build derives the entities of tables and validates them into a Registry.
func Build(tables []Table) (*resource.Registry, error) {
	return resource.NewRegistry(Derive(tables)...)
}

type deriver struct {
	tables   map[string]*Table
	entities map[string]*resource.Entity
	taken    map[*resource.Entity]map[string]bool
}

// reference resolves column of t to the entity whose primary key it
// references.
func (d *deriver) reference(t *Table, column string) (ForeignKey, *resource.Entity, bool) {
	fk, ok := t.ForeignKey(column)
	if !ok {
		return fk, nil, false
	}
	target, ok := d.entities[fk.ReferencedSchema+"."+fk.ReferencedTable]
	if !ok || target.PrimaryKey.Column != fk.ReferencedColumn {
		return fk, nil, false
	}
	return fk, target, true
}

// joinTable adds many-to-many relations when t's primary key is two foreign
// keys to entities.
func (d *deriver) joinTable(t *Table) {
	if len(t.PrimaryKeys) != 2 {
		return
	}
	a, b := t.PrimaryKeys[0], t.PrimaryKeys[1]
	_, left, okA := d.reference(t, a)
	_, right, okB := d.reference(t, b)
	if !okA || !okB {
		return
	}
	link := func(from, to *resource.Entity, source, target string) {
		from.Relations = append(from.Relations, resource.Relation{
			Name:        d.claim(from, to.Name, resource.Camel(t.Name+"_"+strings.TrimSuffix(target, "_id"))),
			Target:      to.Name,
			Cardinality: resource.Many,
			Nullable:    true,
			Owner:       resource.OwnerJoinTable,
			JoinTable:   &resource.JoinTable{Schema: t.Schema, Table: t.Name, SourceKey: source, TargetKey: target},
		})
	}
	link(left, right, a, b)
	link(right, left, b, a)
}

// claim reserves the first free name among preferred, fallback and numbered
// fallbacks. A relation may not take its entity's name.
func (d *deriver) claim(e *resource.Entity, preferred, fallback string) string {
	free := func(n string) bool { return n != "" && n != e.Name && !d.taken[e][n] }
	name := preferred
	if !free(name) {
		name = fallback
		for i := 2; !free(name); i++ {
			name = fallback + strconv.Itoa(i)
		}
	}
	d.taken[e][name] = true
	return name
}

// relationName names the to-one relation backed by column: manager_id -> manager.
func relationName(column string) string {
	if trimmed := strings.TrimSuffix(column, "_id"); trimmed != "" && trimmed != column {
		return resource.Camel(trimmed)
	}
	return resource.Camel(column)
}
