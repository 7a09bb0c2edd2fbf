package service

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/pgjsonapi/internal/testutil"
	"github.com/edgeflare/pgjsonapi/internal/testutil/pgtest"
	"github.com/edgeflare/pgjsonapi/pkg/events"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
	"github.com/edgeflare/pgjsonapi/pkg/transform"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Subject())
	}
	return out
}

// seed inserts u1 (2 comments, manager of u2, in groups g1 and g2),
// u2 (no comments, in g1) and u3 (1 comment, no groups).
func seed(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, `
INSERT INTO users (id, first_name, login, tags) VALUES
	(1, 'Ada', 'ada', '{admin,dev}'),
	(2, 'Bob', 'bob', '{dev}'),
	(3, 'Cyd', 'cyd', '{}');
UPDATE users SET manager_id = 1 WHERE id = 2;
INSERT INTO comments (id, text, created_by) VALUES
	(1, 'first', 1), (2, 'second', 1), (3, 'third', 3);
INSERT INTO groups (id, label) VALUES (1, 'ops'), (2, 'eng');
INSERT INTO users_groups (user_id, group_id) VALUES (1, 1), (1, 2), (2, 1);
SELECT setval('users_id_seq', 10), setval('comments_id_seq', 10), setval('groups_id_seq', 10);`)
	require.NoError(t, err)
}

func setup(t *testing.T) (context.Context, *Service, *recorder) {
	ctx := context.Background()
	pool := pgtest.Fixture(ctx, t)
	seed(ctx, t, pool)
	rec := &recorder{}
	s := New(pool, testutil.Registry(), transform.New(transform.Config{}), WithEmitter(rec))
	return ctx, s, rec
}

func ids(doc *resource.Document) []string {
	var out []string
	for _, o := range doc.Many() {
		out = append(out, o.ID)
	}
	return out
}

func TestGetAllNullRelationFilter(t *testing.T) {
	ctx, s, _ := setup(t)

	doc, err := s.GetAll(ctx, "users", &resource.Query{
		Filter: resource.Filter{{Field: "comments", Operand: resource.OpEq, Value: "null"}},
		Page:   resource.Page{Number: 1, Size: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(doc))
	assert.Equal(t, 1, doc.Meta.TotalItems)

	doc, err = s.GetAll(ctx, "users", &resource.Query{
		Filter: resource.Filter{{Field: "manager", Operand: resource.OpNe, Value: "null"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(doc))
}

func TestGetAllCountsDistinctRoots(t *testing.T) {
	ctx, s, _ := setup(t)

	doc, err := s.GetAll(ctx, "users", &resource.Query{
		Filter: resource.Filter{{Relation: "comments", Field: "text", Operand: resource.OpLike, Value: "i"}},
		Page:   resource.Page{Number: 1, Size: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Meta.TotalItems)
	assert.Equal(t, []string{"1", "3"}, ids(doc))

	doc, err = s.GetAll(ctx, "users", &resource.Query{
		Filter: resource.Filter{{Relation: "groups", Field: "label", Operand: resource.OpIn, Value: []string{"ops", "eng"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Meta.TotalItems)
}

func TestGetAllPagesAreStable(t *testing.T) {
	ctx, s, _ := setup(t)
	sort := []resource.SortField{{Field: "isActive", Direction: resource.Desc}}

	full, err := s.GetAll(ctx, "users", &resource.Query{Sort: sort, Include: []string{"comments"}})
	require.NoError(t, err)

	var paged []string
	for n := 1; n <= 2; n++ {
		doc, err := s.GetAll(ctx, "users", &resource.Query{Sort: sort, Include: []string{"comments"}, Page: resource.Page{Number: n, Size: 2}})
		require.NoError(t, err)
		assert.Equal(t, 3, doc.Meta.TotalItems)
		paged = append(paged, ids(doc)...)
	}
	assert.Equal(t, ids(full), paged)
}

func TestGetAllEmpty(t *testing.T) {
	ctx, s, _ := setup(t)

	doc, err := s.GetAll(ctx, "users", &resource.Query{
		Filter: resource.Filter{{Field: "login", Operand: resource.OpEq, Value: "nobody"}},
		Page:   resource.Page{Number: 1, Size: 5},
	})
	require.NoError(t, err)
	assert.Empty(t, doc.Many())
	assert.Equal(t, &resource.Meta{PageNumber: 1, PageSize: 5}, doc.Meta)
}

func TestGetOneIncludes(t *testing.T) {
	ctx, s, _ := setup(t)

	doc, err := s.GetOne(ctx, "users", "1", &resource.Query{Include: []string{"comments", "groups", "manager", "profile"}})
	require.NoError(t, err)
	obj := doc.One()
	require.NotNil(t, obj)
	assert.Equal(t, "Ada", obj.Attributes["firstName"])
	assert.Len(t, obj.Relationships["comments"].Data.Items, 2)
	assert.Len(t, obj.Relationships["groups"].Data.Items, 2)
	assert.Nil(t, obj.Relationships["manager"].Data.One)
	assert.Nil(t, obj.Relationships["profile"].Data.One)
	assert.Len(t, doc.Included, 4)

	_, err = s.GetOne(ctx, "users", "99", nil)
	assert.ErrorIs(t, err, resource.ErrNotFound)
}

func TestPostOneRoundTrip(t *testing.T) {
	ctx, s, rec := setup(t)

	created, err := s.PostOne(ctx, "users", &resource.PostData{
		Type:       "users",
		Attributes: map[string]any{"firstName": "Dee", "login": "dee"},
		Relationships: map[string]resource.RelationshipData{
			"manager": {Data: resource.ToOne(&resource.ResourceIdentifier{Type: "users", ID: "1"})},
			"groups":  {Data: resource.ToMany([]resource.ResourceIdentifier{{Type: "groups", ID: "2"}})},
		},
	})
	require.NoError(t, err)
	obj := created.One()
	assert.Equal(t, "11", obj.ID)
	assert.Equal(t, "1", obj.Relationships["manager"].Data.One.ID)
	assert.Equal(t, []resource.ResourceIdentifier{{Type: "groups", ID: "2"}}, obj.Relationships["groups"].Data.Items)

	read, err := s.GetOne(ctx, "users", obj.ID, &resource.Query{Include: []string{"manager", "groups"}})
	require.NoError(t, err)
	assert.Equal(t, obj.Attributes, read.One().Attributes)
	assert.Equal(t, obj.Relationships, read.One().Relationships)
	assert.Equal(t, []string{"users.create"}, rec.subjects())
}

func TestPostOneRejectsMissingRelation(t *testing.T) {
	ctx, s, rec := setup(t)

	_, err := s.PostOne(ctx, "users", &resource.PostData{
		Type:       "users",
		Attributes: map[string]any{"firstName": "Eve", "login": "eve"},
		Relationships: map[string]resource.RelationshipData{
			"groups": {Data: resource.ToMany([]resource.ResourceIdentifier{{Type: "groups", ID: "1"}, {Type: "groups", ID: "42"}})},
		},
	})
	require.ErrorIs(t, err, resource.ErrUnprocessableRelation)

	doc, err := s.GetAll(ctx, "users", &resource.Query{Filter: resource.Filter{{Field: "login", Operand: resource.OpEq, Value: "eve"}}})
	require.NoError(t, err)
	assert.Empty(t, doc.Many())
	assert.Empty(t, rec.subjects())
}

func TestPatchOne(t *testing.T) {
	ctx, s, rec := setup(t)

	doc, err := s.PatchOne(ctx, "users", "1", &resource.PatchData{
		Type:       "users",
		ID:         "1",
		Attributes: map[string]any{"lastName": "Lovelace"},
		Relationships: map[string]resource.RelationshipData{
			"comments": {Data: resource.ToMany([]resource.ResourceIdentifier{{Type: "comments", ID: "2"}, {Type: "comments", ID: "3"}})},
		},
	})
	require.NoError(t, err)
	obj := doc.One()
	assert.Equal(t, "Lovelace", obj.Attributes["lastName"])
	assert.Equal(t, []resource.ResourceIdentifier{{Type: "comments", ID: "2"}, {Type: "comments", ID: "3"}}, obj.Relationships["comments"].Data.Items)

	_, err = s.PatchOne(ctx, "users", "99", &resource.PatchData{Type: "users", ID: "99"})
	assert.ErrorIs(t, err, resource.ErrNotFound)
	assert.Equal(t, []string{"users.update"}, rec.subjects())
}

func TestDeleteOne(t *testing.T) {
	ctx, s, rec := setup(t)

	require.NoError(t, s.DeleteOne(ctx, "comments", "3"))
	assert.ErrorIs(t, s.DeleteOne(ctx, "comments", "3"), resource.ErrNotFound)
	assert.Equal(t, []string{"comments.delete"}, rec.subjects())
}

func TestRelationshipWrites(t *testing.T) {
	ctx, s, rec := setup(t)
	group := func(ids ...string) *resource.Linkage {
		items := make([]resource.ResourceIdentifier, 0, len(ids))
		for _, id := range ids {
			items = append(items, resource.ResourceIdentifier{Type: "groups", ID: id})
		}
		return resource.ToMany(items)
	}
	members := func(doc *resource.RelationshipDocument) []string {
		var out []string
		for _, id := range doc.Data.Identifiers() {
			out = append(out, id.ID)
		}
		return out
	}

	doc, err := s.GetRelationship(ctx, "users", "3", "groups")
	require.NoError(t, err)
	assert.Equal(t, []resource.ResourceIdentifier{}, doc.Data.Items)

	doc, err = s.PostRelationship(ctx, "users", "3", "groups", group("1", "2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, members(doc))

	doc, err = s.PostRelationship(ctx, "users", "3", "groups", group("1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, members(doc))

	doc, err = s.PatchRelationship(ctx, "users", "3", "groups", group("2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, members(doc))

	doc, err = s.DeleteRelationship(ctx, "users", "3", "groups", group("2"))
	require.NoError(t, err)
	assert.Empty(t, members(doc))

	// A to-one is cleared only by its current value.
	manager := resource.ToOne(&resource.ResourceIdentifier{Type: "users", ID: "3"})
	doc, err = s.DeleteRelationship(ctx, "users", "2", "manager", manager)
	require.NoError(t, err)
	assert.Equal(t, "1", doc.Data.One.ID)

	doc, err = s.PatchRelationship(ctx, "users", "2", "manager", nil)
	require.NoError(t, err)
	assert.Nil(t, doc.Data.One)

	profile := resource.ToOne(&resource.ResourceIdentifier{Type: "profiles", ID: "1"})
	_, err = s.PatchRelationship(ctx, "users", "2", "profile", profile)
	assert.ErrorIs(t, err, resource.ErrUnprocessableRelation)

	_, err = s.PostRelationship(ctx, "users", "99", "groups", group("1"))
	assert.ErrorIs(t, err, resource.ErrNotFound)

	assert.Len(t, rec.subjects(), 6)
	assert.Equal(t, "relationship", string(rec.events[0].Action))
}
