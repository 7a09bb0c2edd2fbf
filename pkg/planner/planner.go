package planner

import (
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Compiler compiles queries against one registry.
type Compiler struct {
	reg *resource.Registry
}

// New returns a Compiler resolving entities and relations through reg.
func New(reg *resource.Registry) *Compiler {
	return &Compiler{reg: reg}
}

// Plan is a compiled query. Every alias referenced by Where or OrderBy is the
// root entity name or appears in Joins; every alias in Select is the root or
// appears in Include.
type Plan struct {
	Entity  *resource.Entity
	Where   []Fragment
	Joins   []string
	OrderBy []OrderTerm
	Select  []Column
	Include []string

	reg    *resource.Registry
	params *params
}

// Compile builds the plan of q against entity e.
func (c *Compiler) Compile(e *resource.Entity, q *resource.Query) (*Plan, error) {
	if q == nil {
		q = &resource.Query{}
	}
	p := &Plan{Entity: e, reg: c.reg, params: newParams()}
	if err := c.compileFilter(p, q.Filter); err != nil {
		return nil, err
	}
	if err := c.compileSort(p, q.Sort, q.NoTieBreak); err != nil {
		return nil, err
	}
	if err := c.project(p, q.Fields, q.Include); err != nil {
		return nil, err
	}
	return p, p.Validate()
}

// Args returns the bound parameters of every statement rendered so far.
// Statements reference a subset of them; pgx ignores the rest.
func (p *Plan) Args() pgx.NamedArgs {
	return p.params.args
}

// Root returns the alias of the root entity.
func (p *Plan) Root() string { return p.Entity.Name }

// join records that rel must be joined for filtering or sorting.
func (p *Plan) join(rel string) {
	if !slices.Contains(p.Joins, rel) {
		p.Joins = append(p.Joins, rel)
	}
}

// WhereID restricts the plan to the root row with primary key id.
func (p *Plan) WhereID(id any) {
	p.Where = append(p.Where, Fragment{
		SQL: column(p.Root(), p.Entity.PrimaryKey.Column) + " = " + p.params.bind(id),
	})
}

// Validate checks that every alias the plan references is declared.
func (p *Plan) Validate() error {
	root := p.Root()
	for _, f := range p.Where {
		if f.Alias != "" && f.Alias != root && !slices.Contains(p.Joins, f.Alias) {
			return resource.ContractViolation("filter references undeclared alias %q", f.Alias)
		}
	}
	for _, t := range p.OrderBy {
		if t.Alias != root && !slices.Contains(p.Joins, t.Alias) {
			return resource.ContractViolation("sort references undeclared alias %q", t.Alias)
		}
	}
	for _, c := range p.Select {
		if c.Alias != root && !slices.Contains(p.Include, c.Alias) {
			return resource.ContractViolation("projection references undeclared alias %q", c.Alias)
		}
	}
	return nil
}

func (p *Plan) pk() string {
	return column(p.Root(), p.Entity.PrimaryKey.Column)
}

// filtered applies the FROM clause, the filter joins and the WHERE fragments.
func (p *Plan) filtered(b sq.SelectBuilder) (sq.SelectBuilder, error) {
	b = b.From(tableAs(table(p.Entity), p.Root()))
	for _, name := range p.Joins {
		var err error
		if b, err = p.leftJoin(b, name, nil); err != nil {
			return b, err
		}
	}
	for _, f := range p.Where {
		b = b.Where(f.SQL)
	}
	return b, nil
}

// leftJoin joins relation name under its own alias. extra conditions are
// ANDed into the ON clause of the target table.
func (p *Plan) leftJoin(b sq.SelectBuilder, name string, extra []string) (sq.SelectBuilder, error) {
	rel, target, err := p.Relation(name)
	if err != nil {
		return b, err
	}
	root := p.Root()
	var on string
	switch rel.Owner {
	case resource.OwnerSelf:
		on = column(name, target.PrimaryKey.Column) + " = " + column(root, rel.ForeignKey)
	case resource.OwnerTarget:
		on = column(name, rel.ForeignKey) + " = " + p.pk()
	case resource.OwnerJoinTable:
		link := linkAlias(name)
		b = b.LeftJoin(fmt.Sprintf("%s ON %s = %s",
			tableAs(joinTable(rel.JoinTable), link),
			column(link, rel.JoinTable.SourceKey), p.pk()))
		on = column(name, target.PrimaryKey.Column) + " = " + column(link, rel.JoinTable.TargetKey)
	default:
		return b, resource.ContractViolation("relation %s.%s has unknown ownership", p.Entity.Name, name)
	}
	if len(extra) > 0 {
		on = and(append([]string{on}, extra...))
	}
	return b.LeftJoin(tableAs(table(target), name) + " ON " + on), nil
}

// CountSQL renders the statement counting distinct root rows matching the
// filter.
func (p *Plan) CountSQL() (string, pgx.NamedArgs, error) {
	expr := "COUNT(*)"
	if len(p.Joins) > 0 {
		expr = "COUNT(DISTINCT " + p.pk() + ")"
	}
	b, err := p.filtered(psql.Select(expr))
	if err != nil {
		return "", nil, err
	}
	sql, _, err := b.ToSql()
	return sql, p.Args(), err
}

// WindowSQL renders the statement selecting the ordered root primary keys of
// one page. A nil page selects every matching key.
func (p *Plan) WindowSQL(page *resource.Page) (string, pgx.NamedArgs, error) {
	b, err := p.filtered(psql.Select(p.pk()))
	if err != nil {
		return "", nil, err
	}
	grouped := len(p.Joins) > 0
	if grouped {
		b = b.GroupBy(p.pk())
	}
	order := make([]string, 0, len(p.OrderBy))
	for _, t := range p.OrderBy {
		order = append(order, t.render(p.Root(), grouped))
	}
	b = b.OrderBy(order...)
	if page != nil && page.Size > 0 {
		b = b.Limit(uint64(page.Size)).Offset(uint64(page.Offset()))
	}
	sql, _, err := b.ToSql()
	return sql, p.Args(), err
}

// HydrateSQL renders the statement loading the projected columns of the
// root rows with the given primary keys and of their included relations.
// Relation filters compiled against a joined alias are repeated in the ON
// clause of that relation, so included data honours the filter. Rows come
// back ordered by root key then related keys; callers restore window order.
func (p *Plan) HydrateSQL(ids []any) (string, pgx.NamedArgs, error) {
	cols := make([]string, 0, len(p.Select))
	for _, c := range p.Select {
		cols = append(cols, column(c.Alias, c.Column)+" AS "+ident(c.Label()))
	}
	b := psql.Select(cols...).From(tableAs(table(p.Entity), p.Root()))
	order := []string{p.pk()}
	for _, name := range p.Include {
		var extra []string
		for _, f := range p.Where {
			if f.Alias == name {
				extra = append(extra, f.SQL)
			}
		}
		var err error
		if b, err = p.leftJoin(b, name, extra); err != nil {
			return "", nil, err
		}
		rel, target, _ := p.Relation(name)
		if rel.Cardinality == resource.Many {
			order = append(order, column(name, target.PrimaryKey.Column))
		}
	}
	if len(ids) == 0 {
		b = b.Where("FALSE")
	} else {
		b = b.Where(p.pk() + " IN (" + strings.Join(p.params.bindList(ids), ", ") + ")")
	}
	sql, _, err := b.OrderBy(order...).ToSql()
	return sql, p.Args(), err
}

// Relation resolves an included or joined relation of the root entity.
func (p *Plan) Relation(name string) (*resource.Relation, *resource.Entity, error) {
	return p.reg.Relation(p.Entity, name)
}
