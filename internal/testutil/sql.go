package testutil

import (
	"regexp"
	"strconv"
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/stretchr/testify/require"
)

var namedParam = regexp.MustCompile(`@(p\d+)`)

// Positional rewrites named parameters (@p1, @p2, ...) to $n placeholders
// numbered in order of first appearance, the way pgx does before sending a
// statement, and returns the names in that order.
func Positional(sql string) (string, []string) {
	index := map[string]int{}
	var names []string
	out := namedParam.ReplaceAllStringFunc(sql, func(m string) string {
		name := m[1:]
		n, ok := index[name]
		if !ok {
			names = append(names, name)
			n = len(names)
			index[name] = n
		}
		return "$" + strconv.Itoa(n)
	})
	return out, names
}

// Params returns the distinct parameter names referenced by sql.
func Params(sql string) []string {
	_, names := Positional(sql)
	return names
}

// RequireValidSQL fails the test unless sql parses as PostgreSQL.
func RequireValidSQL(t testing.TB, sql string) {
	t.Helper()
	positional, _ := Positional(sql)
	_, err := pg_query.Parse(positional)
	require.NoError(t, err, "invalid SQL: %s", sql)
}
