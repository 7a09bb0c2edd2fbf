package testutil

import "github.com/edgeflare/pgjsonapi/pkg/resource"

// FixtureDDL creates the tables described by Registry. Used by store-backed tests.
const FixtureDDL = `
DROP TABLE IF EXISTS users_groups, profiles, comments, groups, users CASCADE;
CREATE TABLE users (
	id serial PRIMARY KEY,
	first_name text NOT NULL,
	last_name text,
	login text NOT NULL,
	is_active boolean NOT NULL DEFAULT true,
	created_at timestamptz NOT NULL DEFAULT now(),
	tags text[] NOT NULL DEFAULT '{}',
	manager_id integer REFERENCES users(id)
);
CREATE TABLE comments (
	id serial PRIMARY KEY,
	text text NOT NULL,
	kind text NOT NULL DEFAULT 'comment',
	created_by integer REFERENCES users(id)
);
CREATE TABLE groups (
	id serial PRIMARY KEY,
	label text NOT NULL
);
CREATE TABLE users_groups (
	user_id integer NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	group_id integer NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, group_id)
);
CREATE TABLE profiles (
	id serial PRIMARY KEY,
	bio text,
	user_id integer UNIQUE REFERENCES users(id) ON DELETE SET NULL
);
`

func pk() resource.Attribute {
	return resource.Attribute{Name: "id", Column: "id", Type: resource.FieldNumber}
}

// Entities returns fresh descriptors for users, comments, groups and profiles.
// users covers every relation shape: manager (to-one, own foreign key),
// comments (to-many, foreign key on comments), groups (many-to-many through
// users_groups) and profile (to-one, foreign key on profiles).
func Entities() []*resource.Entity {
	users := &resource.Entity{
		Name: "users", Schema: "public", Table: "users",
		PrimaryKey: pk(),
		Attributes: []resource.Attribute{
			{Name: "firstName", Column: "first_name", Type: resource.FieldString},
			{Name: "lastName", Column: "last_name", Type: resource.FieldString, Nullable: true},
			{Name: "login", Column: "login", Type: resource.FieldString},
			{Name: "isActive", Column: "is_active", Type: resource.FieldBoolean},
			{Name: "createdAt", Column: "created_at", Type: resource.FieldDate},
			{Name: "tags", Column: "tags", Type: resource.FieldArray},
		},
		Relations: []resource.Relation{
			{Name: "manager", Target: "users", Cardinality: resource.One, Nullable: true, Owner: resource.OwnerSelf, ForeignKey: "manager_id"},
			{Name: "comments", Target: "comments", Cardinality: resource.Many, Owner: resource.OwnerTarget, ForeignKey: "created_by"},
			{Name: "groups", Target: "groups", Cardinality: resource.Many, Owner: resource.OwnerJoinTable,
				JoinTable: &resource.JoinTable{Schema: "public", Table: "users_groups", SourceKey: "user_id", TargetKey: "group_id"}},
			{Name: "profile", Target: "profiles", Cardinality: resource.One, Nullable: true, Owner: resource.OwnerTarget, ForeignKey: "user_id"},
		},
	}
	comments := &resource.Entity{
		Name: "comments", Schema: "public", Table: "comments",
		PrimaryKey: pk(),
		Attributes: []resource.Attribute{
			{Name: "text", Column: "text", Type: resource.FieldString},
			{Name: "kind", Column: "kind", Type: resource.FieldString},
		},
		Relations: []resource.Relation{
			{Name: "createdBy", Target: "users", Cardinality: resource.One, Nullable: true, Owner: resource.OwnerSelf, ForeignKey: "created_by"},
		},
	}
	groups := &resource.Entity{
		Name: "groups", Schema: "public", Table: "groups",
		PrimaryKey: pk(),
		Attributes: []resource.Attribute{
			{Name: "label", Column: "label", Type: resource.FieldString},
		},
		Relations: []resource.Relation{
			{Name: "users", Target: "users", Cardinality: resource.Many, Owner: resource.OwnerJoinTable,
				JoinTable: &resource.JoinTable{Schema: "public", Table: "users_groups", SourceKey: "group_id", TargetKey: "user_id"}},
		},
	}
	profiles := &resource.Entity{
		Name: "profiles", Schema: "public", Table: "profiles",
		PrimaryKey: pk(),
		Attributes: []resource.Attribute{
			{Name: "bio", Column: "bio", Type: resource.FieldString, Nullable: true},
		},
		Relations: []resource.Relation{
			{Name: "user", Target: "users", Cardinality: resource.One, Nullable: true, Owner: resource.OwnerSelf, ForeignKey: "user_id"},
		},
	}
	return []*resource.Entity{users, comments, groups, profiles}
}

// Registry returns a Registry over Entities. It panics on invalid fixtures.
func Registry() *resource.Registry {
	reg, err := resource.NewRegistry(Entities()...)
	if err != nil {
		panic(err)
	}
	return reg
}
