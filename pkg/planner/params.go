package planner

import (
	"strconv"

	"github.com/jackc/pgx/v5"
)

// params hands out parameter names for one plan. The sequence only grows.
type params struct {
	args pgx.NamedArgs
	next int
}

func newParams() *params {
	return &params{args: pgx.NamedArgs{}}
}

// bind stores v under a fresh name and returns its placeholder.
func (p *params) bind(v any) string {
	p.next++
	name := "p" + strconv.Itoa(p.next)
	p.args[name] = v
	return "@" + name
}

// bindList binds each value and returns the placeholders.
func (p *params) bindList(vs []any) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, p.bind(v))
	}
	return out
}
