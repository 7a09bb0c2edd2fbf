package schema

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/metrics"
	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
	"github.com/edgeflare/pgjsonapi/pkg/resource"
)

const (
	// DefaultChannel follows PostgREST's convention of a NOTIFY channel
	// carrying a "reload schema" payload.
	DefaultChannel = "pgjsonapi"
	ReloadPayload  = "reload schema"
)

// Config selects what is exposed and whether the cache follows changes.
type Config struct {
	Schemas []string `mapstructure:"schemas"`
	Exclude []string `mapstructure:"exclude"`
	Watch   bool     `mapstructure:"watch"`
	Channel string   `mapstructure:"channel"`
}

// Cache holds the current Registry.
type Cache struct {
	pool   *pgxpool.Pool
	cfg    Config
	logger *zap.Logger
	reg    atomic.Pointer[resource.Registry]
	tables atomic.Pointer[[]Table]
}

// NewCache returns an empty cache over pool. Call Load before Registry.
func NewCache(pool *pgxpool.Pool, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Channel = cmp.Or(cfg.Channel, DefaultChannel)
	return &Cache{pool: pool, cfg: cfg, logger: logger}
}

// Load introspects the catalog and swaps in a new Registry. On error the
// previous Registry stays in place.
func (c *Cache) Load(ctx context.Context) error {
	reg, tables, err := c.build(ctx)
	metrics.SchemaReloads.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	c.tables.Store(&tables)
	c.reg.Store(reg)
	c.logger.Info("schema loaded", zap.Int("entities", reg.Len()), zap.Strings("names", reg.Names()))
	return nil
}

func (c *Cache) build(ctx context.Context) (*resource.Registry, []Table, error) {
	tables, err := LoadTables(ctx, c.pool, c.cfg.Schemas, c.cfg.Exclude)
	if err != nil {
		return nil, nil, fmt.Errorf("schema: %w", err)
	}
	reg, err := Build(tables)
	if err != nil {
		return nil, nil, fmt.Errorf("schema: %w", err)
	}
	return reg, tables, nil
}

// Registry returns the current Registry, or nil before the first Load.
func (c *Cache) Registry() *resource.Registry {
	return c.reg.Load()
}

// Tables returns the catalog tables behind the current Registry.
func (c *Cache) Tables() []Table {
	if t := c.tables.Load(); t != nil {
		return *t
	}
	return nil
}

// Watch listens on the reload channel on a dedicated connection and reloads
// on every reload payload until ctx is canceled. It returns nil on
// cancellation.
func (c *Cache) Watch(ctx context.Context) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("schema: acquire listener: %w", err)
	}
	defer conn.Release()

	notifications, errs := pg.Listen(ctx, conn.Conn(), c.cfg.Channel)
	c.logger.Info("watching schema changes", zap.String("channel", c.cfg.Channel))
	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if n.Payload != ReloadPayload {
				continue
			}
			if err := c.Load(ctx); err != nil {
				c.logger.Error("schema reload failed", zap.Error(err))
			}
		case err, ok := <-errs:
			if !ok || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("schema: %w", err)
		}
	}
}

// Handler serves the current entity descriptors as JSON.
func (c *Cache) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg := c.Registry()
		if reg == nil {
			http.Error(w, `{"error":"schema not loaded"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reg.Entities()); err != nil {
			c.logger.Error("encoding schema", zap.Error(err))
		}
	}
}
