package resource

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationshipCardinalityRendering(t *testing.T) {
	tests := []struct {
		name string
		rel  Relationship
		want string
	}{
		{
			name: "not loaded omits data",
			rel:  Relationship{Links: Links{Self: "/u/1/relationships/comments"}},
			want: `{"links":{"self":"/u/1/relationships/comments"}}`,
		},
		{
			name: "absent to-one is null",
			rel:  Relationship{Links: Links{Self: "/x"}, Data: ToOne(nil)},
			want: `{"links":{"self":"/x"},"data":null}`,
		},
		{
			name: "loaded empty to-many is an empty array",
			rel:  Relationship{Links: Links{Self: "/x"}, Data: ToMany(nil)},
			want: `{"links":{"self":"/x"},"data":[]}`,
		},
		{
			name: "to-one identifier",
			rel:  Relationship{Links: Links{Self: "/x"}, Data: ToOne(&ResourceIdentifier{Type: "users", ID: "1"})},
			want: `{"links":{"self":"/x"},"data":{"type":"users","id":"1"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.rel)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestLinkageUnmarshal(t *testing.T) {
	var body struct {
		Relationships map[string]RelationshipData `json:"relationships"`
	}
	err := json.Unmarshal([]byte(`{"relationships":{
		"manager":{"data":{"type":"users","id":"7"}},
		"groups":{"data":[{"type":"groups","id":"1"},{"type":"groups","id":"2"}]},
		"profile":{"data":null},
		"tags":{"data":[]}
	}}`), &body)
	require.NoError(t, err)

	manager := body.Relationships["manager"].Data
	require.NotNil(t, manager)
	assert.False(t, manager.Many)
	assert.Equal(t, "7", manager.One.ID)

	groups := body.Relationships["groups"].Data
	require.NotNil(t, groups)
	assert.True(t, groups.Many)
	assert.Len(t, groups.Identifiers(), 2)

	profile, ok := body.Relationships["profile"]
	assert.True(t, ok)
	assert.Nil(t, profile.Data)

	tags := body.Relationships["tags"].Data
	require.NotNil(t, tags)
	assert.True(t, tags.Many)
	assert.Empty(t, tags.Identifiers())
}

func TestFormatID(t *testing.T) {
	u := uuid.New()
	assert.Equal(t, u.String(), FormatID([16]byte(u)))
	assert.Equal(t, "12", FormatID(int32(12)))
	assert.Equal(t, "12", FormatID(int64(12)))
	assert.Equal(t, "abc", FormatID("abc"))
	assert.Equal(t, "", FormatID(nil))
}

func TestErrorUnwrap(t *testing.T) {
	err := NotFound("users", 3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "users with id 3")

	var wrapped error = UnprocessableRelation([]string{"relationships", "groups"}, "groups %s missing", "9")
	assert.ErrorIs(t, wrapped, ErrUnprocessableRelation)
	require.Len(t, Details(wrapped), 1)
	assert.Equal(t, []string{"relationships", "groups"}, Details(wrapped)[0].Path)
}
