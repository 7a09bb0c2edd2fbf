package planner

import (
	"fmt"
	"strings"

	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// Fragment is one compiled WHERE predicate. Alias names the relation the
// predicate references through a join; it is empty for predicates on the
// root entity or self-contained subqueries.
type Fragment struct {
	Alias string
	SQL   string
}

// compileFilter turns the filter into WHERE fragments. Conditions on the
// root entity are emitted first, then relation-scoped ones grouped per
// relation in order of first appearance.
func (c *Compiler) compileFilter(p *Plan, filter resource.Filter) error {
	for _, cond := range filter.Target() {
		frag, err := c.targetCondition(p, cond)
		if err != nil {
			return err
		}
		p.Where = append(p.Where, frag)
	}

	related := filter.Related()
	var order []string
	grouped := make(map[string][]resource.Condition)
	for _, cond := range related {
		if _, seen := grouped[cond.Relation]; !seen {
			order = append(order, cond.Relation)
		}
		grouped[cond.Relation] = append(grouped[cond.Relation], cond)
	}
	for _, name := range order {
		if err := c.relatedConditions(p, name, grouped[name]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) targetCondition(p *Plan, cond resource.Condition) (Fragment, error) {
	e := p.Entity
	root := e.Name
	if attr, ok := e.Column(cond.Field); ok {
		sql, err := predicate(p.params, column(root, attr.Column), attr, cond.Operand, cond.Value)
		if err != nil {
			return Fragment{}, err
		}
		return Fragment{SQL: sql}, nil
	}

	rel, target, err := c.reg.Relation(e, cond.Field)
	if err != nil {
		return Fragment{}, resource.ContractViolation("entity %s has no field %q", e.Name, cond.Field)
	}
	if !cond.IsNull() {
		return Fragment{}, resource.ContractViolation("relation %s.%s only supports eq/ne null", e.Name, rel.Name)
	}
	negate := cond.Operand == resource.OpNe

	switch StrategyFor(rel).Null {
	case ForeignKeyCheck:
		return Fragment{SQL: nullCheck(column(root, rel.ForeignKey), negate)}, nil
	default:
		sub, err := existsSubquery(e, rel, target)
		if err != nil {
			return Fragment{}, err
		}
		// eq null means "has no related row".
		if negate {
			return Fragment{SQL: "EXISTS (" + sub + ")"}, nil
		}
		return Fragment{SQL: "NOT EXISTS (" + sub + ")"}, nil
	}
}

// existsSubquery selects the rows linking rel to the current root row.
func existsSubquery(e *resource.Entity, rel *resource.Relation, target *resource.Entity) (string, error) {
	alias := existsAlias(rel.Name)
	rootPK := column(e.Name, e.PrimaryKey.Column)
	b := psql.Select("1")
	switch rel.Owner {
	case resource.OwnerJoinTable:
		b = b.From(tableAs(joinTable(rel.JoinTable), alias)).
			Where(column(alias, rel.JoinTable.SourceKey) + " = " + rootPK)
	default:
		b = b.From(tableAs(table(target), alias)).
			Where(column(alias, rel.ForeignKey) + " = " + rootPK)
	}
	sql, _, err := b.ToSql()
	return sql, err
}

func (c *Compiler) relatedConditions(p *Plan, name string, conds []resource.Condition) error {
	rel, target, err := c.reg.Relation(p.Entity, name)
	if err != nil {
		return err
	}

	switch StrategyFor(rel).Field {
	case CorrelatedInSubquery:
		alias := inAlias(rel.Name)
		preds := make([]string, 0, len(conds))
		for _, cond := range conds {
			attr, ok := target.Column(cond.Field)
			if !ok {
				return resource.ContractViolation("entity %s has no field %q", target.Name, cond.Field)
			}
			pred, err := predicate(p.params, column(alias, attr.Column), attr, cond.Operand, cond.Value)
			if err != nil {
				return err
			}
			preds = append(preds, pred)
		}
		link := linkAlias(rel.Name)
		sub, _, err := psql.Select(column(link, rel.JoinTable.SourceKey)).
			From(tableAs(joinTable(rel.JoinTable), link)).
			Join(fmt.Sprintf("%s ON %s = %s",
				tableAs(table(target), alias),
				column(alias, target.PrimaryKey.Column),
				column(link, rel.JoinTable.TargetKey))).
			Where(and(preds)).
			ToSql()
		if err != nil {
			return err
		}
		p.Where = append(p.Where, Fragment{
			SQL: column(p.Entity.Name, p.Entity.PrimaryKey.Column) + " IN (" + sub + ")",
		})
	default:
		p.join(name)
		for _, cond := range conds {
			attr, ok := target.Column(cond.Field)
			if !ok {
				return resource.ContractViolation("entity %s has no field %q", target.Name, cond.Field)
			}
			pred, err := predicate(p.params, column(rel.Name, attr.Column), attr, cond.Operand, cond.Value)
			if err != nil {
				return err
			}
			p.Where = append(p.Where, Fragment{Alias: rel.Name, SQL: pred})
		}
	}
	return nil
}

// predicate compiles one comparison of col against a raw filter value.
func predicate(ps *params, col string, attr resource.Attribute, op resource.Operand, raw any) (string, error) {
	if s, ok := raw.(string); ok && s == resource.NullLiteral {
		switch op {
		case resource.OpEq:
			return nullCheck(col, false), nil
		case resource.OpNe:
			return nullCheck(col, true), nil
		}
	}

	// Structured values are compared by their text form.
	if attr.Type == resource.FieldArray || attr.Type == resource.FieldObject {
		if op != resource.OpSome {
			col += "::text"
		}
	}

	switch op {
	case resource.OpEq, resource.OpNe, resource.OpGt, resource.OpGte, resource.OpLt, resource.OpLte:
		v, err := coerce(attr, raw)
		if err != nil {
			return "", err
		}
		return col + " " + comparators[op] + " " + ps.bind(v), nil

	case resource.OpLike:
		s, ok := raw.(string)
		if !ok {
			return "", resource.ContractViolation("like on %s needs a single value", attr.Name)
		}
		if !attr.Textual() && !strings.HasSuffix(col, "::text") {
			col += "::text"
		}
		return col + " ILIKE " + ps.bind("%"+escapeLike(s)+"%"), nil

	case resource.OpRegexp:
		s, ok := raw.(string)
		if !ok {
			return "", resource.ContractViolation("regexp on %s needs a single value", attr.Name)
		}
		if !attr.Textual() && !strings.HasSuffix(col, "::text") {
			col += "::text"
		}
		return col + " ~ " + ps.bind(s), nil

	case resource.OpIn, resource.OpNin:
		list, err := coerceList(attr, raw)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			if op == resource.OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		keyword := " IN ("
		if op == resource.OpNin {
			keyword = " NOT IN ("
		}
		return col + keyword + strings.Join(ps.bindList(list), ", ") + ")", nil

	case resource.OpSome:
		if attr.Type != resource.FieldArray {
			return "", resource.ContractViolation("some is only valid on array fields, %s is %s", attr.Name, attr.Type)
		}
		list, ok := raw.([]string)
		if !ok {
			s, isStr := raw.(string)
			if !isStr {
				return "", resource.ContractViolation("some on %s needs a list value", attr.Name)
			}
			list = []string{s}
		}
		return col + "::text[] && " + ps.bind(list) + "::text[]", nil
	}
	return "", resource.ContractViolation("unsupported operand %q", op)
}

var comparators = map[resource.Operand]string{
	resource.OpEq:  "=",
	resource.OpNe:  "<>",
	resource.OpGt:  ">",
	resource.OpGte: ">=",
	resource.OpLt:  "<",
	resource.OpLte: "<=",
}

func nullCheck(col string, negate bool) string {
	if negate {
		return col + " IS NOT NULL"
	}
	return col + " IS NULL"
}

func coerce(attr resource.Attribute, raw any) (any, error) {
	if attr.Type == resource.FieldArray || attr.Type == resource.FieldObject {
		return raw, nil
	}
	v, err := attr.Coerce(raw)
	if err != nil {
		return nil, resource.ContractViolation("field %s: %v", attr.Name, err)
	}
	return v, nil
}

func coerceList(attr resource.Attribute, raw any) ([]any, error) {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case string:
		items = []string{v}
	default:
		return nil, resource.ContractViolation("field %s: list operand needs a list value", attr.Name)
	}
	out := make([]any, 0, len(items))
	for _, s := range items {
		c, err := coerce(attr, s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
