// Package planner compiles a validated resource.Query against an entity
// descriptor into a Plan and renders the statements of the pagination-safe
// list pipeline:
//
//	Count:   SELECT COUNT(DISTINCT root.pk) ... joins ... WHERE ...
//	Window:  SELECT root.pk ... joins ... WHERE ... [GROUP BY root.pk] ORDER BY ... LIMIT/OFFSET
//	Hydrate: SELECT projected columns ... LEFT JOIN includes ... WHERE root.pk IN (window ids)
//
// Joins added for relation filters and sorts only ever appear in the Count and
// Window statements, whose result is keyed by the root primary key, so to-many
// joins cannot inflate the total or shift page boundaries. Hydration may
// repeat root rows for to-many includes; callers collapse them by primary key.
//
// Bound values are carried as pgx.NamedArgs under names drawn from a
// per-plan sequence (@p1, @p2, ...), so no two fragments of one plan can
// share a parameter name.
package planner
