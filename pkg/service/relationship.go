package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
	"github.com/edgeflare/pgjsonapi/pkg/metrics"
	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
	"github.com/edgeflare/pgjsonapi/pkg/transform"
)

// mode is how a relationship write combines with the current members.
type mode int

const (
	modeAdd mode = iota + 1
	modeReplace
	modeRemove
)

func (m mode) String() string {
	switch m {
	case modeAdd:
		return "postRelationship"
	case modeReplace:
		return "patchRelationship"
	case modeRemove:
		return "deleteRelationship"
	default:
		return "relationship"
	}
}

// change is a validated relationship write: the relation, its target and
// the referenced target keys in request order, coerced to the key type.
type change struct {
	name   string
	rel    *resource.Relation
	target *resource.Entity
	ids    []string
	keys   []any
}

// PostRelationship adds the members in data to relation rel of typ/id. On a
// to-one relation it sets the value.
func (s *Service) PostRelationship(ctx context.Context, typ, id, rel string, data *resource.Linkage) (*resource.RelationshipDocument, error) {
	return s.writeRelationship(ctx, typ, id, rel, data, modeAdd)
}

// PatchRelationship replaces the members of relation rel of typ/id with data.
func (s *Service) PatchRelationship(ctx context.Context, typ, id, rel string, data *resource.Linkage) (*resource.RelationshipDocument, error) {
	return s.writeRelationship(ctx, typ, id, rel, data, modeReplace)
}

// DeleteRelationship removes the members in data from relation rel of
// typ/id. On a to-one relation the value is cleared only if it matches.
func (s *Service) DeleteRelationship(ctx context.Context, typ, id, rel string, data *resource.Linkage) (*resource.RelationshipDocument, error) {
	return s.writeRelationship(ctx, typ, id, rel, data, modeRemove)
}

func (s *Service) writeRelationship(ctx context.Context, typ, id, name string, data *resource.Linkage, m mode) (doc *resource.RelationshipDocument, err error) {
	defer func(start time.Time) { s.observe(m.String(), typ, start, err) }(time.Now())
	reg := s.registry.Registry()
	e, err := entity(reg, typ)
	if err != nil {
		return nil, err
	}
	key, err := rootID(e, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := s.exists(ctx, tx, e, key, id); err != nil {
		return nil, err
	}
	c, err := s.validate(ctx, tx, reg, e, name, data, []string{"data"})
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, tx, reg, e, key, id, c, m); err != nil {
		return nil, err
	}
	doc, err = s.relationship(ctx, tx, reg, e, id, name)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	ev := events.New(events.ActionRelationship, typ, id)
	ev.Relationship = name
	ev.Linkage = doc.Data
	s.emit(ctx, ev)
	return doc, nil
}

// exists fails with NotFound unless the root row is present.
func (s *Service) exists(ctx context.Context, q pg.Querier, e *resource.Entity, key any, id string) error {
	n, err := pg.UpdateRow(ctx, q, table(e), nil, map[string]any{e.PrimaryKey.Column: key})
	if err != nil {
		return err
	}
	if n == 0 {
		return resource.NotFound(e.Type(), id)
	}
	return nil
}

// validate resolves relation name of e and checks data against it: arity
// must match the cardinality, every identifier must carry the target type
// and must reference an existing row. Nothing is written.
func (s *Service) validate(ctx context.Context, q pg.Querier, reg *resource.Registry, e *resource.Entity, name string, data *resource.Linkage, path []string) (*change, error) {
	rel, target, err := reg.Relation(e, name)
	if err != nil {
		return nil, err
	}
	c := &change{name: name, rel: rel, target: target}
	if data == nil {
		if rel.Cardinality == resource.Many {
			return nil, resource.UnprocessableRelation(path, "relation %s is to-many and cannot be null", name)
		}
		if !rel.Nullable {
			return nil, resource.UnprocessableRelation(path, "relation %s cannot be null", name)
		}
		return c, nil
	}
	if data.Many != (rel.Cardinality == resource.Many) {
		return nil, resource.UnprocessableRelation(path, "relation %s is to-%s", name, rel.Cardinality)
	}

	seen := make(map[string]struct{})
	for i, ident := range data.Identifiers() {
		p := path
		if data.Many {
			p = slices.Concat(path, []string{fmt.Sprint(i)})
		}
		if ident.Type != target.Type() {
			return nil, resource.UnprocessableRelation(slices.Concat(p, []string{"type"}), "relation %s expects type %s, got %q", name, target.Type(), ident.Type)
		}
		k, err := target.PrimaryKey.Coerce(ident.ID)
		if err != nil {
			return nil, resource.UnprocessableRelation(slices.Concat(p, []string{"id"}), "%s %q does not exist", target.Type(), ident.ID)
		}
		if _, dup := seen[ident.ID]; dup {
			continue
		}
		seen[ident.ID] = struct{}{}
		c.ids = append(c.ids, ident.ID)
		c.keys = append(c.keys, k)
	}
	if len(c.keys) == 0 {
		return c, nil
	}

	pk := quote(target.PrimaryKey.Column)
	sql, args, err := psql.Select(pk).From(table(target).Sanitize()).Where(sq.Eq{pk: c.keys}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[any])
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, err)
	}
	present := make(map[string]struct{}, len(found))
	for _, v := range found {
		present[resource.FormatID(transform.Normalize(v))] = struct{}{}
	}
	for i, k := range c.keys {
		if _, ok := present[resource.FormatID(k)]; !ok {
			return nil, resource.UnprocessableRelation(path, "%s %q does not exist", target.Type(), c.ids[i])
		}
	}
	return c, nil
}

// apply writes a validated change for root key. Replacing to-many members
// reads the current identifiers and touches only the symmetric difference.
func (s *Service) apply(ctx context.Context, q pg.Querier, reg *resource.Registry, e *resource.Entity, key any, id string, c *change, m mode) error {
	if m == modeReplace && c.rel.Cardinality == resource.Many {
		current, err := s.relationship(ctx, q, reg, e, id, c.name)
		if err != nil {
			return err
		}
		var have []string
		for _, ident := range current.Data.Identifiers() {
			have = append(have, ident.ID)
		}
		added, removed := diff(have, c.ids)
		if len(removed) > 0 {
			keys, err := coerceAll(c.target, removed)
			if err != nil {
				return err
			}
			if err := s.unlink(ctx, q, e, key, c, keys); err != nil {
				return err
			}
		}
		if len(added) > 0 {
			keys, err := coerceAll(c.target, added)
			if err != nil {
				return err
			}
			return s.link(ctx, q, e, key, c, keys)
		}
		return nil
	}

	switch m {
	case modeRemove:
		if len(c.keys) == 0 {
			return nil
		}
		return s.unlink(ctx, q, e, key, c, c.keys)
	default:
		if c.rel.Cardinality == resource.One && len(c.keys) == 0 {
			return s.clear(ctx, q, e, key, c)
		}
		if len(c.keys) == 0 {
			return nil
		}
		return s.link(ctx, q, e, key, c, c.keys)
	}
}

// link attaches keys to root key. A to-one relation is first detached from
// whatever it referenced.
func (s *Service) link(ctx context.Context, q pg.Querier, e *resource.Entity, key any, c *change, keys []any) error {
	rel, target := c.rel, c.target
	switch rel.Owner {
	case resource.OwnerSelf:
		return s.exec(ctx, q, psql.Update(table(e).Sanitize()).
			Set(quote(rel.ForeignKey), keys[0]).
			Where(sq.Eq{quote(e.PrimaryKey.Column): key}))
	case resource.OwnerTarget:
		fk := quote(rel.ForeignKey)
		if rel.Cardinality == resource.One {
			err := s.exec(ctx, q, psql.Update(table(target).Sanitize()).
				Set(fk, nil).
				Where(sq.And{sq.Eq{fk: key}, sq.NotEq{quote(target.PrimaryKey.Column): keys[0]}}))
			if err != nil {
				return err
			}
			keys = keys[:1]
		}
		return s.exec(ctx, q, psql.Update(table(target).Sanitize()).
			Set(fk, key).
			Where(sq.Eq{quote(target.PrimaryKey.Column): keys}))
	case resource.OwnerJoinTable:
		jt := rel.JoinTable
		if rel.Cardinality == resource.One {
			err := s.exec(ctx, q, psql.Delete(joinTable(jt).Sanitize()).
				Where(sq.Eq{quote(jt.SourceKey): key}))
			if err != nil {
				return err
			}
			keys = keys[:1]
		}
		ins := psql.Insert(joinTable(jt).Sanitize()).
			Columns(quote(jt.SourceKey), quote(jt.TargetKey)).
			Suffix("ON CONFLICT DO NOTHING")
		for _, k := range keys {
			ins = ins.Values(key, k)
		}
		return s.exec(ctx, q, ins)
	}
	return resource.ContractViolation("relation %s has unknown ownership", rel.Name)
}

// unlink detaches keys from root key. Rows referencing other roots are
// left alone.
func (s *Service) unlink(ctx context.Context, q pg.Querier, e *resource.Entity, key any, c *change, keys []any) error {
	rel, target := c.rel, c.target
	switch rel.Owner {
	case resource.OwnerSelf:
		fk := quote(rel.ForeignKey)
		return s.exec(ctx, q, psql.Update(table(e).Sanitize()).
			Set(fk, nil).
			Where(sq.Eq{quote(e.PrimaryKey.Column): key, fk: keys}))
	case resource.OwnerTarget:
		fk := quote(rel.ForeignKey)
		return s.exec(ctx, q, psql.Update(table(target).Sanitize()).
			Set(fk, nil).
			Where(sq.Eq{fk: key, quote(target.PrimaryKey.Column): keys}))
	case resource.OwnerJoinTable:
		jt := rel.JoinTable
		return s.exec(ctx, q, psql.Delete(joinTable(jt).Sanitize()).
			Where(sq.Eq{quote(jt.SourceKey): key, quote(jt.TargetKey): keys}))
	}
	return resource.ContractViolation("relation %s has unknown ownership", rel.Name)
}

// clear empties a to-one relation of root key.
func (s *Service) clear(ctx context.Context, q pg.Querier, e *resource.Entity, key any, c *change) error {
	rel, target := c.rel, c.target
	switch rel.Owner {
	case resource.OwnerSelf:
		return s.exec(ctx, q, psql.Update(table(e).Sanitize()).
			Set(quote(rel.ForeignKey), nil).
			Where(sq.Eq{quote(e.PrimaryKey.Column): key}))
	case resource.OwnerTarget:
		fk := quote(rel.ForeignKey)
		return s.exec(ctx, q, psql.Update(table(target).Sanitize()).
			Set(fk, nil).
			Where(sq.Eq{fk: key}))
	case resource.OwnerJoinTable:
		return s.exec(ctx, q, psql.Delete(joinTable(rel.JoinTable).Sanitize()).
			Where(sq.Eq{quote(rel.JoinTable.SourceKey): key}))
	}
	return resource.ContractViolation("relation %s has unknown ownership", rel.Name)
}

func (s *Service) exec(ctx context.Context, q pg.Querier, stmt sq.Sqlizer) error {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return err
	}
	s.logger.Debug("write", zap.String("sql", sql))
	defer metrics.ObserveQuery("write", time.Now())
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func coerceAll(e *resource.Entity, ids []string) ([]any, error) {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		k, err := e.PrimaryKey.Coerce(id)
		if err != nil {
			return nil, resource.NotFound(e.Type(), id)
		}
		out = append(out, k)
	}
	return out, nil
}

func quote(col string) string {
	return pgx.Identifier{col}.Sanitize()
}

func joinTable(jt *resource.JoinTable) pg.Table {
	return pg.Table{Schema: jt.Schema, Name: jt.Table}
}
