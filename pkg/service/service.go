// Package service implements the resource operations: reads through the
// three-phase list pipeline (count, id window, hydration) and transactional
// writes that validate every referenced relationship before mutating.
package service

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
	"github.com/edgeflare/pgjsonapi/pkg/metrics"
	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
	"github.com/edgeflare/pgjsonapi/pkg/transform"
)

// RegistryProvider returns the Registry to use for one operation. Both a
// static *resource.Registry and a reloading schema cache satisfy it.
type RegistryProvider interface {
	Registry() *resource.Registry
}

// Emitter receives change events after a write commits.
type Emitter interface {
	Emit(ctx context.Context, e events.Event)
}

// Service runs resource operations against one database.
type Service struct {
	conn     pg.Conn
	registry RegistryProvider
	tr       *transform.Transformer
	logger   *zap.Logger
	emitter  Emitter
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Compiled SQL is logged at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEmitter publishes a change event after every committed write.
func WithEmitter(e Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// New returns a Service.
func New(conn pg.Conn, registry RegistryProvider, tr *transform.Transformer, opts ...Option) *Service {
	s := &Service{conn: conn, registry: registry, tr: tr, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	if s.tr == nil {
		s.tr = transform.New(transform.Config{})
	}
	return s
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Registry returns the registry the next operation will use.
func (s *Service) Registry() *resource.Registry {
	return s.registry.Registry()
}

// entity resolves a resource type against reg.
func entity(reg *resource.Registry, typ string) (*resource.Entity, error) {
	if reg == nil {
		return nil, resource.ContractViolation("schema not loaded")
	}
	e, ok := reg.ByType(typ)
	if !ok {
		return nil, resource.ContractViolation("unknown resource type %q", typ)
	}
	return e, nil
}

// rootID coerces a path id to the primary key type. An id that cannot be a
// key of e addresses no resource.
func rootID(e *resource.Entity, id string) (any, error) {
	v, err := e.PrimaryKey.Coerce(id)
	if err != nil {
		return nil, resource.NotFound(e.Type(), id)
	}
	return v, nil
}

func table(e *resource.Entity) pg.Table {
	return pg.Table{Schema: e.Schema, Name: e.Table}
}

// observe records the outcome of an operation.
func (s *Service) observe(op, typ string, start time.Time, err error) {
	metrics.Operations.WithLabelValues(op, typ, metrics.Outcome(err)).Inc()
	if err != nil {
		s.logger.Debug("operation failed", zap.String("operation", op), zap.String("type", typ), zap.Error(err))
		return
	}
	s.logger.Debug("operation", zap.String("operation", op), zap.String("type", typ), zap.Duration("took", time.Since(start)))
}

func (s *Service) emit(ctx context.Context, e events.Event) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, e)
	}
}
