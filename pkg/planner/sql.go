package planner

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

// psql builds PostgreSQL statements. Compiled fragments carry named
// parameters rather than '?' placeholders, so squirrel never rewrites them.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ident quotes a (possibly qualified) identifier.
func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// column returns a quoted alias.column reference.
func column(alias, col string) string {
	return ident(alias, col)
}

// table returns the quoted, schema-qualified table of e.
func table(e *resource.Entity) string {
	if e.Schema == "" {
		return ident(e.Table)
	}
	return ident(e.Schema, e.Table)
}

func joinTable(jt *resource.JoinTable) string {
	if jt.Schema == "" {
		return ident(jt.Table)
	}
	return ident(jt.Schema, jt.Table)
}

// tableAs renders "schema"."table" AS "alias".
func tableAs(qualified, alias string) string {
	return qualified + " AS " + ident(alias)
}

func and(conds []string) string {
	return strings.Join(conds, " AND ")
}

// linkAlias is the alias of the join table of a many-to-many relation.
func linkAlias(rel string) string { return rel + "__link" }

// existsAlias and inAlias name the tables inside correlated subqueries so
// they never collide with the aliases of the outer statement.
func existsAlias(rel string) string { return rel + "__exists" }
func inAlias(rel string) string     { return rel + "__in" }
