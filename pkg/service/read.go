package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/metrics"
	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/planner"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
	"github.com/edgeflare/pgjsonapi/pkg/transform"
)

// GetAll returns one page of typ matching q, with pagination meta. The total
// counts distinct root resources; a zero total skips the remaining phases.
func (s *Service) GetAll(ctx context.Context, typ string, q *resource.Query) (doc *resource.Document, err error) {
	defer func(start time.Time) { s.observe("getAll", typ, start, err) }(time.Now())
	if q == nil {
		q = &resource.Query{}
	}
	reg := s.registry.Registry()
	e, err := entity(reg, typ)
	if err != nil {
		return nil, err
	}
	plan, err := planner.New(reg).Compile(e, q)
	if err != nil {
		return nil, err
	}

	total, err := s.count(ctx, s.conn, plan)
	if err != nil {
		return nil, err
	}
	meta := &resource.Meta{PageNumber: q.Page.Number, PageSize: q.Page.Size, TotalItems: int(total)}
	if total == 0 {
		return s.tr.Many(nil, meta), nil
	}

	var page *resource.Page
	if q.Page.Size > 0 {
		page = &q.Page
	}
	ids, err := s.window(ctx, s.conn, plan, page)
	if err != nil {
		return nil, err
	}
	recs, err := s.hydrate(ctx, s.conn, plan, ids)
	if err != nil {
		return nil, err
	}
	return s.tr.Many(recs, meta), nil
}

// GetOne returns the resource typ/id. Filters in q still apply, so a
// resource excluded by them is not found.
func (s *Service) GetOne(ctx context.Context, typ, id string, q *resource.Query) (doc *resource.Document, err error) {
	defer func(start time.Time) { s.observe("getOne", typ, start, err) }(time.Now())
	if q == nil {
		q = &resource.Query{}
	}
	reg := s.registry.Registry()
	e, err := entity(reg, typ)
	if err != nil {
		return nil, err
	}
	rec, err := s.one(ctx, s.conn, reg, e, id, q)
	if err != nil {
		return nil, err
	}
	return s.tr.One(rec), nil
}

// GetRelationship returns the identifiers of relation rel of typ/id.
func (s *Service) GetRelationship(ctx context.Context, typ, id, rel string) (doc *resource.RelationshipDocument, err error) {
	defer func(start time.Time) { s.observe("getRelationship", typ, start, err) }(time.Now())
	reg := s.registry.Registry()
	e, err := entity(reg, typ)
	if err != nil {
		return nil, err
	}
	return s.relationship(ctx, s.conn, reg, e, id, rel)
}

func (s *Service) relationship(ctx context.Context, q pg.Querier, reg *resource.Registry, e *resource.Entity, id, name string) (*resource.RelationshipDocument, error) {
	relation, _, err := reg.Relation(e, name)
	if err != nil {
		return nil, err
	}
	rec, err := s.one(ctx, q, reg, e, id, &resource.Query{
		Fields: resource.Fields{
			Target:   []string{},
			Relation: map[string][]string{name: {}},
		},
		Include: []string{name},
	})
	if err != nil {
		return nil, err
	}
	return s.tr.Relationship(relation, rec.Relations[name]), nil
}

// one loads a single hydrated record through the window and hydration
// phases, restricted to the primary key.
func (s *Service) one(ctx context.Context, q pg.Querier, reg *resource.Registry, e *resource.Entity, id string, query *resource.Query) (*resource.Record, error) {
	key, err := rootID(e, id)
	if err != nil {
		return nil, err
	}
	plan, err := planner.New(reg).Compile(e, query)
	if err != nil {
		return nil, err
	}
	plan.WhereID(key)

	ids, err := s.window(ctx, q, plan, nil)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, resource.NotFound(e.Type(), id)
	}
	recs, err := s.hydrate(ctx, q, plan, ids[:1])
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, resource.NotFound(e.Type(), id)
	}
	return recs[0], nil
}

func (s *Service) count(ctx context.Context, q pg.Querier, plan *planner.Plan) (int64, error) {
	sql, args, err := plan.CountSQL()
	if err != nil {
		return 0, err
	}
	s.logger.Debug("count", zap.String("sql", sql))
	defer metrics.ObserveQuery("count", time.Now())

	var total int64
	if err := q.QueryRow(ctx, sql, args).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", plan.Entity.Name, err)
	}
	return total, nil
}

func (s *Service) window(ctx context.Context, q pg.Querier, plan *planner.Plan, page *resource.Page) ([]any, error) {
	sql, args, err := plan.WindowSQL(page)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("window", zap.String("sql", sql))
	defer metrics.ObserveQuery("window", time.Now())

	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", plan.Entity.Name, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[any])
	if err != nil {
		return nil, fmt.Errorf("window %s: %w", plan.Entity.Name, err)
	}
	return ids, nil
}

func (s *Service) hydrate(ctx context.Context, q pg.Querier, plan *planner.Plan, ids []any) ([]*resource.Record, error) {
	sql, args, err := plan.HydrateSQL(ids)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("hydrate", zap.String("sql", sql), zap.Int("ids", len(ids)))
	defer metrics.ObserveQuery("hydrate", time.Now())

	rows, err := q.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("hydrate %s: %w", plan.Entity.Name, err)
	}
	values, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]any, error) {
		return row.Values()
	})
	if err != nil {
		return nil, fmt.Errorf("hydrate %s: %w", plan.Entity.Name, err)
	}
	return transform.Collapse(plan, values, ids)
}
