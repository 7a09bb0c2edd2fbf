package schema

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflare/pgjsonapi/internal/testutil/pgtest"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

func TestCacheLoad(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Fixture(ctx, t)

	c := NewCache(pool, Config{Schemas: []string{"public"}}, nil)
	assert.Nil(t, c.Registry())
	require.NoError(t, c.Load(ctx))

	reg := c.Registry()
	require.NotNil(t, reg)
	users, err := reg.Entity("users")
	require.NoError(t, err)
	groups, ok := users.Relation("groups")
	require.True(t, ok)
	assert.Equal(t, resource.OwnerJoinTable, groups.Owner)
	profiles, ok := users.Relation("profiles")
	require.True(t, ok)
	assert.Equal(t, resource.One, profiles.Cardinality)
	assert.NotEmpty(t, c.Tables())

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/_schema", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var entities []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entities))
	assert.NotEmpty(t, entities)
}

func TestCacheWatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool := pgtest.Fixture(ctx, t)

	c := NewCache(pool, Config{Schemas: []string{"public"}, Channel: "pgjsonapi_test"}, nil)
	require.NoError(t, c.Load(ctx))
	before := c.Registry()

	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS watch_probe (id serial PRIMARY KEY, name text)`)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS watch_probe`) })

	require.Eventually(t, func() bool {
		_, _ = pool.Exec(ctx, `NOTIFY pgjsonapi_test, 'reload schema'`)
		reg := c.Registry()
		if reg == before {
			return false
		}
		_, err := reg.Entity("watchProbe")
		return err == nil
	}, 5*time.Second, 200*time.Millisecond)

	_, err = before.Entity("watchProbe")
	assert.Error(t, err, "previous registry is never mutated")

	cancel()
	assert.NoError(t, <-done)
}
