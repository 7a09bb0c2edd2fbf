package transform

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/pgjsonapi/internal/testutil"
	"github.com/edgeflare/pgjsonapi/pkg/planner"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

func compile(t *testing.T, q *resource.Query) *planner.Plan {
	t.Helper()
	reg := testutil.Registry()
	users, err := reg.Entity("users")
	require.NoError(t, err)
	p, err := planner.New(reg).Compile(users, q)
	require.NoError(t, err)
	return p
}

func TestCollapse(t *testing.T) {
	p := compile(t, &resource.Query{
		Fields:  resource.Fields{Target: []string{"firstName"}},
		Include: []string{"manager", "groups"},
	})
	// users.id, users.first_name, manager.id + 6 attributes, groups.id, groups.label
	row := func(id int64, name string, manager any, group any, label any) []any {
		r := make([]any, len(p.Select))
		r[0], r[1] = id, name
		for i, c := range p.Select {
			switch c.Label() {
			case "manager.id":
				r[i] = manager
			case "manager.first_name":
				if manager != nil {
					r[i] = "Boss"
				}
			case "groups.id":
				r[i] = group
			case "groups.label":
				r[i] = label
			}
		}
		return r
	}
	rows := [][]any{
		row(1, "Ada", int64(2), int64(5), "admins"),
		row(1, "Ada", int64(2), int64(6), "staff"),
		row(1, "Ada", int64(2), int64(6), "staff"),
		row(2, "Grace", nil, nil, nil),
	}

	recs, err := Collapse(p, rows, []any{int64(2), int64(1), int64(9)})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	grace, ada := recs[0], recs[1]
	assert.Equal(t, int64(2), grace.ID, "window order restored")
	assert.Nil(t, grace.Relations["manager"].One)
	assert.NotNil(t, grace.Relations["groups"].Many)
	assert.Empty(t, grace.Relations["groups"].Many)

	assert.Equal(t, map[string]any{"firstName": "Ada"}, ada.Attributes)
	require.NotNil(t, ada.Relations["manager"].One)
	assert.Equal(t, "Boss", ada.Relations["manager"].One.Attributes["firstName"])
	require.Len(t, ada.Relations["groups"].Many, 2, "duplicate join rows collapse")
	assert.Equal(t, "staff", ada.Relations["groups"].Many[1].Attributes["label"])
	_, loaded := ada.Relations["comments"]
	assert.False(t, loaded)

	_, err = Collapse(p, [][]any{{int64(1)}}, nil)
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, id.String(), Normalize([16]byte(id)))
	assert.Equal(t, id.String(), Normalize(id))
	assert.Equal(t, int64(3), Normalize(int64(3)))
	assert.Nil(t, Normalize(nil))
}

func TestLinks(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{}, "/users/a%2Fb"},
		{Config{BaseURL: "http://localhost:8080"}, "http://localhost:8080/users/a%2Fb"},
		{Config{BaseURL: "http://localhost:8080/", Prefix: "api", Version: "v1"}, "http://localhost:8080/api/v1/users/a%2Fb"},
		{Config{Prefix: "api"}, "/api/users/a%2Fb"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.cfg).SelfLink("users", "a/b"))
		})
	}
	assert.Equal(t, "/users/1/relationships/comments", New(Config{}).RelationshipLink("users", "1", "comments"))
}

func TestManyDocument(t *testing.T) {
	reg := testutil.Registry()
	users, _ := reg.Entity("users")
	groups, _ := reg.Entity("groups")

	group := func(id int64, label string) *resource.Record {
		g := resource.NewRecord(groups, id)
		g.Attributes["label"] = label
		return g
	}
	admins, staff := group(5, "admins"), group(6, "staff")

	ada := resource.NewRecord(users, int64(1))
	ada.Attributes["firstName"] = "Ada"
	grace := resource.NewRecord(users, int64(2))
	grace.Attributes["firstName"] = "Grace"

	ada.Relations["manager"] = &resource.Loaded{One: grace}
	ada.Relations["groups"] = &resource.Loaded{Many: []*resource.Record{admins}}
	grace.Relations["manager"] = &resource.Loaded{}
	grace.Relations["groups"] = &resource.Loaded{Many: []*resource.Record{admins, staff}}

	tr := New(Config{BaseURL: "http://localhost:8080", Prefix: "api", Version: "v1"})
	doc := tr.Many([]*resource.Record{ada, grace}, &resource.Meta{PageNumber: 1, PageSize: 2, TotalItems: 7})

	got, err := json.Marshal(doc)
	require.NoError(t, err)
	want, err := testutil.LoadJSON("testdata/users_document.json")
	require.NoError(t, err)
	var gotMap map[string]any
	require.NoError(t, json.Unmarshal(got, &gotMap))
	assert.Equal(t, want, gotMap)
}

func TestOneDocumentCardinality(t *testing.T) {
	reg := testutil.Registry()
	users, _ := reg.Entity("users")
	u := resource.NewRecord(users, int64(1))
	u.Relations["comments"] = &resource.Loaded{Many: nil}
	u.Relations["profile"] = &resource.Loaded{}

	doc := New(Config{}).One(u)
	obj := doc.One()
	require.NotNil(t, obj)
	assert.Equal(t, map[string]any{}, obj.Attributes)
	assert.Empty(t, doc.Included)

	b, err := json.Marshal(obj.Relationships["comments"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"links":{"self":"/users/1/relationships/comments"},"data":[]}`, string(b))

	b, err = json.Marshal(obj.Relationships["profile"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"links":{"self":"/users/1/relationships/profile"},"data":null}`, string(b))

	b, err = json.Marshal(obj.Relationships["groups"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"links":{"self":"/users/1/relationships/groups"}}`, string(b))
}

func TestRelationshipDocument(t *testing.T) {
	reg := testutil.Registry()
	users, _ := reg.Entity("users")
	comments, _ := reg.Entity("comments")
	rel, _ := users.Relation("comments")

	doc := New(Config{}).Relationship(rel, &resource.Loaded{Many: []*resource.Record{
		resource.NewRecord(comments, int64(3)),
	}})
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[{"type":"comments","id":"3"}]}`, string(b))

	manager, _ := users.Relation("manager")
	b, err = json.Marshal(New(Config{}).Relationship(manager, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":null}`, string(b))
}
