package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntities() (*Entity, *Entity) {
	users := &Entity{
		Name: "users", Schema: "public", Table: "users",
		PrimaryKey: Attribute{Name: "id", Column: "id", Type: FieldNumber},
		Attributes: []Attribute{{Name: "firstName", Column: "first_name", Type: FieldString}},
		Relations: []Relation{{
			Name: "comments", Target: "comments", Cardinality: Many,
			Owner: OwnerTarget, ForeignKey: "created_by",
		}},
	}
	comments := &Entity{
		Name: "comments", Schema: "public", Table: "comments",
		PrimaryKey: Attribute{Name: "id", Column: "id", Type: FieldNumber},
		Attributes: []Attribute{{Name: "text", Column: "text", Type: FieldString}},
		Relations: []Relation{{
			Name: "createdBy", Target: "users", Cardinality: One, Nullable: true,
			Owner: OwnerSelf, ForeignKey: "created_by",
		}},
	}
	return users, comments
}

func TestRegistry(t *testing.T) {
	users, comments := testEntities()
	reg, err := NewRegistry(users, comments)
	require.NoError(t, err)

	assert.Equal(t, []string{"comments", "users"}, reg.Names())
	assert.Same(t, reg, reg.Registry())

	e, err := reg.Entity("users")
	require.NoError(t, err)
	assert.Equal(t, "users", e.Type())

	_, err = reg.Entity("nope")
	assert.ErrorIs(t, err, ErrSchemaContract)

	rel, target, err := reg.Relation(users, "comments")
	require.NoError(t, err)
	assert.Equal(t, Many, rel.Cardinality)
	assert.Same(t, comments, target)

	_, _, err = reg.Relation(users, "missing")
	assert.ErrorIs(t, err, ErrSchemaContract)

	byType, ok := reg.ByType("comments")
	assert.True(t, ok)
	assert.Same(t, comments, byType)

	scalars, relations := users.Fields()
	assert.Equal(t, []string{"firstName"}, scalars)
	assert.Equal(t, []string{"comments"}, relations)

	pk, ok := users.Column("id")
	assert.True(t, ok)
	assert.Equal(t, "id", pk.Column)
}

func TestRegistryRejectsBrokenDescriptors(t *testing.T) {
	t.Run("unknown relation target", func(t *testing.T) {
		users, _ := testEntities()
		_, err := NewRegistry(users)
		assert.ErrorContains(t, err, "unknown entity comments")
	})

	t.Run("missing primary key", func(t *testing.T) {
		_, err := NewRegistry(&Entity{Name: "logs", Table: "logs"})
		assert.ErrorContains(t, err, "no primary key")
	})

	t.Run("relation shadowing entity alias", func(t *testing.T) {
		users, comments := testEntities()
		users.Relations = append(users.Relations, Relation{
			Name: "users", Target: "users", Cardinality: One, Owner: OwnerSelf, ForeignKey: "parent_id",
		})
		_, err := NewRegistry(users, comments)
		assert.ErrorContains(t, err, "shadows")
	})
}

func TestFilterSplit(t *testing.T) {
	f := Filter{
		{Field: "firstName", Operand: OpEq, Value: "a"},
		{Relation: "comments", Field: "text", Operand: OpLike, Value: "x"},
		{Field: "comments", Operand: OpNe, Value: NullLiteral},
	}
	assert.Len(t, f.Target(), 2)
	assert.Len(t, f.Related(), 1)
	assert.True(t, f[2].IsNull())
	assert.False(t, f[0].IsNull())
}

func TestPageOffset(t *testing.T) {
	assert.Equal(t, 0, Page{Number: 1, Size: 10}.Offset())
	assert.Equal(t, 20, Page{Number: 3, Size: 10}.Offset())
}

func TestCheckNames(t *testing.T) {
	users, _ := testEntities()

	require.NoError(t, users.CheckNames(map[string]any{"firstName": "Ada"}, map[string]RelationshipData{"comments": {}}))

	err := users.CheckNames(
		map[string]any{"zeta": 1, "alpha": 2, "firstName": "Ada"},
		map[string]RelationshipData{"friends": {}},
	)
	require.ErrorIs(t, err, ErrInvalidQuery)
	details := Details(err)
	require.Len(t, details, 3)
	assert.Equal(t, []string{"data", "attributes", "alpha"}, details[0].Path)
	assert.Equal(t, []string{"data", "attributes", "zeta"}, details[1].Path)
	assert.Equal(t, "unknown_relation", details[2].Code)
	assert.Equal(t, []string{"data", "relationships", "friends"}, details[2].Path)
}
