package rest

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/pgjsonapi/internal/testutil"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

func parse(t *testing.T, raw string, paging Pagination) (*resource.Query, error) {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	reg := testutil.Registry()
	users, ok := reg.ByType("users")
	require.True(t, ok)
	return ParseQuery(values, reg, users, paging)
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  *resource.Query
	}{
		{
			name:  "empty",
			query: "",
			want:  &resource.Query{},
		},
		{
			name:  "implicit eq",
			query: "filter[firstName]=Ada",
			want: &resource.Query{Filter: resource.Filter{
				{Field: "firstName", Operand: resource.OpEq, Value: "Ada"},
			}},
		},
		{
			name:  "list operand",
			query: "filter[id][in]=1,2,,3",
			want: &resource.Query{Filter: resource.Filter{
				{Field: "id", Operand: resource.OpIn, Value: []string{"1", "2", "3"}},
			}},
		},
		{
			name:  "relation null check and related field",
			query: "filter[manager][eq]=null&filter[comments.text][like]=hello",
			want: &resource.Query{Filter: resource.Filter{
				{Relation: "comments", Field: "text", Operand: resource.OpLike, Value: "hello"},
				{Field: "manager", Operand: resource.OpEq, Value: "null"},
			}},
		},
		{
			name:  "sort",
			query: "sort=-createdAt,manager.login",
			want: &resource.Query{Sort: []resource.SortField{
				{Field: "createdAt", Direction: resource.Desc},
				{Relation: "manager", Field: "login", Direction: resource.Asc},
			}},
		},
		{
			name:  "fields and include",
			query: "fields[users]=login,groups&fields[groups]=label&include=groups,groups,comments",
			want: &resource.Query{
				Fields: resource.Fields{
					Target:   []string{"login", "groups"},
					Relation: map[string][]string{"groups": {"label"}},
				},
				Include: []string{"groups", "comments"},
			},
		},
		{
			name:  "only ids",
			query: "fields[users]=",
			want:  &resource.Query{Fields: resource.Fields{Target: []string{}}},
		},
		{
			name:  "page",
			query: "page[number]=3&page[size]=5",
			want:  &resource.Query{Page: resource.Page{Number: 3, Size: 5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := parse(t, tt.query, Pagination{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestParseQueryPagination(t *testing.T) {
	q, err := parse(t, "", Pagination{DefaultSize: 20, MaxSize: 100})
	require.NoError(t, err)
	assert.Equal(t, resource.Page{Number: 1, Size: 20}, q.Page)

	q, err = parse(t, "page[number]=2", Pagination{MaxSize: 50})
	require.NoError(t, err)
	assert.Equal(t, resource.Page{Number: 2, Size: 50}, q.Page)

	_, err = parse(t, "page[size]=101", Pagination{DefaultSize: 20, MaxSize: 100})
	require.ErrorIs(t, err, resource.ErrInvalidQuery)
	assert.Equal(t, []string{"page", "size"}, resource.Details(err)[0].Path)
}

func TestParseQueryErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		codes []string
	}{
		{"unknown field", "filter[nope]=1", []string{"unknown_field"}},
		{"unknown operand", "filter[login][between]=a", []string{"invalid_operand"}},
		{"relation needs null", "filter[manager]=1", []string{"invalid_filter"}},
		{"unknown relation", "filter[owner.login]=x", []string{"unknown_relation"}},
		{"unknown related field", "filter[manager.nope]=x", []string{"unknown_field"}},
		{"bad number", "filter[id][gt]=abc", []string{"invalid_value"}},
		{"bad list item", "filter[isActive][in]=true,maybe", []string{"invalid_value"}},
		{"some on scalar", "filter[login][some]=a", []string{"invalid_operand"}},
		{"unknown sort", "sort=nope", []string{"unknown_field"}},
		{"empty sort item", "sort=login,", []string{"invalid_sort"}},
		{"unknown fieldset", "fields[nope]=a", []string{"unknown_relation"}},
		{"unknown fieldset member", "fields[users]=nope", []string{"unknown_field"}},
		{"nested include", "include=manager.groups", []string{"unsupported_include"}},
		{"unknown include", "include=nope", []string{"unknown_relation"}},
		{"page not a number", "page[number]=x", []string{"invalid_page"}},
		{"page zero", "page[size]=0", []string{"invalid_page"}},
		{"unknown page member", "page[offset]=1", []string{"invalid_parameter"}},
		{"unknown parameter", "limit=1", []string{"unknown_parameter"}},
		{"malformed key", "filter[login=x", []string{"invalid_parameter"}},
		{"all problems are reported", "filter[nope]=1&sort=nope", []string{"unknown_field", "unknown_field"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.query, Pagination{})
			require.ErrorIs(t, err, resource.ErrInvalidQuery)
			var codes []string
			for _, d := range resource.Details(err) {
				codes = append(codes, d.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestParseKey(t *testing.T) {
	family, segs, ok := parseKey("filter[comments.text][like]")
	require.True(t, ok)
	assert.Equal(t, "filter", family)
	assert.Equal(t, []string{"comments.text", "like"}, segs)

	_, _, ok = parseKey("filter[]")
	assert.False(t, ok)
	_, _, ok = parseKey("filter[a]x")
	assert.False(t, ok)
}

func TestParseQueryUUIDValues(t *testing.T) {
	things := &resource.Entity{
		Name: "things", Schema: "public", Table: "things",
		PrimaryKey: resource.Attribute{Name: "id", Column: "id", Type: resource.FieldString, Format: resource.FormatUUID},
	}
	reg, err := resource.NewRegistry(things)
	require.NoError(t, err)

	tests := []struct {
		query string
		code  string
	}{
		{"filter[id]=x", "invalid_value"},
		{"filter[id][in]=6ba7b810-9dad-11d1-80b4-00c04fd430c8,x", "invalid_value"},
		{"filter[id]=6ba7b810-9dad-11d1-80b4-00c04fd430c8", ""},
		{"filter[id][like]=6ba7", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			_, err = ParseQuery(values, reg, things, Pagination{})
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, resource.ErrInvalidQuery)
			assert.Equal(t, tt.code, resource.Details(err)[0].Code)
		})
	}
}
