package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/edgeflare/pgjsonapi/pkg/events"
	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
	"github.com/edgeflare/pgjsonapi/pkg/transform"
)

// PostOne creates a resource of typ with the attributes and relationships of
// body, in one transaction. Every referenced relationship is resolved before
// the row is inserted. The returned document includes the relationships
// given in body.
func (s *Service) PostOne(ctx context.Context, typ string, body *resource.PostData) (doc *resource.Document, err error) {
	defer func(start time.Time) { s.observe("postOne", typ, start, err) }(time.Now())
	if body == nil {
		return nil, resource.InvalidQuery(resource.ErrorDetail{Code: "missing_data", Message: "request body has no data", Path: []string{"data"}})
	}
	reg := s.registry.Registry()
	e, err := entity(reg, typ)
	if err != nil {
		return nil, err
	}
	if err := checkType(body.Type, typ); err != nil {
		return nil, err
	}
	if err := e.CheckNames(body.Attributes, body.Relationships); err != nil {
		return nil, err
	}
	values, err := columns(e, body.Attributes)
	if err != nil {
		return nil, err
	}
	if body.ID != "" {
		key, err := e.PrimaryKey.Coerce(body.ID)
		if err != nil {
			return nil, resource.InvalidQuery(resource.ErrorDetail{Code: "invalid_id", Message: err.Error(), Path: []string{"data", "id"}})
		}
		values[e.PrimaryKey.Column] = key
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	changes, err := s.validateAll(ctx, tx, reg, e, body.Relationships, values)
	if err != nil {
		return nil, err
	}
	created, err := pg.InsertRow(ctx, tx, table(e), values, e.PrimaryKey.Column)
	if err != nil {
		return nil, err
	}
	key := transform.Normalize(created)
	id := resource.FormatID(key)
	for _, c := range changes {
		if err := s.apply(ctx, tx, reg, e, key, id, c, modeAdd); err != nil {
			return nil, err
		}
	}

	rec, err := s.one(ctx, tx, reg, e, id, &resource.Query{Include: relationNames(body.Relationships)})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	doc = s.tr.One(rec)

	ev := events.New(events.ActionCreate, typ, id)
	ev.Data = doc.One()
	s.emit(ctx, ev)
	return doc, nil
}

// PatchOne updates typ/id with the attributes of body and replaces the
// relationships it names. Attributes and relationships absent from body are
// left unchanged.
func (s *Service) PatchOne(ctx context.Context, typ, id string, body *resource.PatchData) (doc *resource.Document, err error) {
	defer func(start time.Time) { s.observe("patchOne", typ, start, err) }(time.Now())
	if body == nil {
		return nil, resource.InvalidQuery(resource.ErrorDetail{Code: "missing_data", Message: "request body has no data", Path: []string{"data"}})
	}
	reg := s.registry.Registry()
	e, err := entity(reg, typ)
	if err != nil {
		return nil, err
	}
	if err := checkType(body.Type, typ); err != nil {
		return nil, err
	}
	if err := e.CheckNames(body.Attributes, body.Relationships); err != nil {
		return nil, err
	}
	if body.ID != id {
		return nil, resource.InvalidQuery(resource.ErrorDetail{
			Code:    "id_mismatch",
			Message: fmt.Sprintf("body id %q does not match %q", body.ID, id),
			Path:    []string{"data", "id"},
		})
	}
	key, err := rootID(e, id)
	if err != nil {
		return nil, err
	}
	values, err := columns(e, body.Attributes)
	if err != nil {
		return nil, err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	changes, err := s.validateAll(ctx, tx, reg, e, body.Relationships, values)
	if err != nil {
		return nil, err
	}
	n, err := pg.UpdateRow(ctx, tx, table(e), values, map[string]any{e.PrimaryKey.Column: key})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, resource.NotFound(typ, id)
	}
	for _, c := range changes {
		if err := s.apply(ctx, tx, reg, e, key, id, c, modeReplace); err != nil {
			return nil, err
		}
	}

	rec, err := s.one(ctx, tx, reg, e, id, &resource.Query{Include: relationNames(body.Relationships)})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	doc = s.tr.One(rec)

	ev := events.New(events.ActionUpdate, typ, id)
	ev.Data = doc.One()
	s.emit(ctx, ev)
	return doc, nil
}

// DeleteOne deletes typ/id.
func (s *Service) DeleteOne(ctx context.Context, typ, id string) (err error) {
	defer func(start time.Time) { s.observe("deleteOne", typ, start, err) }(time.Now())
	e, err := entity(s.registry.Registry(), typ)
	if err != nil {
		return err
	}
	key, err := rootID(e, id)
	if err != nil {
		return err
	}
	n, err := pg.DeleteRow(ctx, s.conn, table(e), map[string]any{e.PrimaryKey.Column: key})
	if err != nil {
		return err
	}
	if n == 0 {
		return resource.NotFound(typ, id)
	}
	s.emit(ctx, events.New(events.ActionDelete, typ, id))
	return nil
}

// validateAll resolves every relationship of a write body before anything is
// written. To-one relations held by e itself are folded into values; the
// rest are returned to be applied after the row write.
func (s *Service) validateAll(ctx context.Context, tx pg.Querier, reg *resource.Registry, e *resource.Entity, rels map[string]resource.RelationshipData, values map[string]any) ([]*change, error) {
	var changes []*change
	for _, name := range relationNames(rels) {
		c, err := s.validate(ctx, tx, reg, e, name, rels[name].Data, []string{"data", "relationships", name, "data"})
		if err != nil {
			return nil, err
		}
		if c.rel.Owner == resource.OwnerSelf {
			var v any
			if len(c.keys) > 0 {
				v = c.keys[0]
			}
			values[c.rel.ForeignKey] = v
			continue
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// columns maps wire attribute names to store columns.
func columns(e *resource.Entity, attrs map[string]any) (map[string]any, error) {
	values := make(map[string]any, len(attrs))
	for name, v := range attrs {
		a, ok := e.Attribute(name)
		if !ok {
			return nil, resource.ContractViolation("entity %s has no attribute %q", e.Name, name)
		}
		values[a.Column] = v
	}
	return values, nil
}

func checkType(got, want string) error {
	if got == want {
		return nil
	}
	return resource.InvalidQuery(resource.ErrorDetail{
		Code:    "type_mismatch",
		Message: fmt.Sprintf("body type %q does not match %q", got, want),
		Path:    []string{"data", "type"},
	})
}

func relationNames(rels map[string]resource.RelationshipData) []string {
	names := make([]string, 0, len(rels))
	for name := range rels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
