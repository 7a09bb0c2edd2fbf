package pgx

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"
)

// PoolConfig configures the connection pool.
type PoolConfig struct {
	ConnString string `mapstructure:"connString" validate:"required"`
	MaxConns   int32  `mapstructure:"maxConns" validate:"gte=0"`
	MinConns   int32  `mapstructure:"minConns" validate:"gte=0"`
	// ConnectTimeout bounds the retried initial ping.
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	// Vector registers the pgvector types on every connection. The vector
	// extension must be installed.
	Vector bool `mapstructure:"vector"`
}

var ErrNoConnString = errors.New("pgx: connection string is required")

// ParsePoolConfig turns cfg into a pgxpool configuration.
func ParsePoolConfig(cfg PoolConfig) (*pgxpool.Config, error) {
	if cfg.ConnString == "" {
		return nil, ErrNoConnString
	}
	pc, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("pgx: parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.Vector {
		pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvector.RegisterTypes(ctx, conn)
		}
	}
	return pc, nil
}

// NewPool creates a pool and pings it with exponential backoff until it
// answers or ConnectTimeout (default 30s) elapses.
func NewPool(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc, err := ParsePoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cmp.Or(cfg.ConnectTimeout, 30*time.Second)

	ping := func() error {
		err := pool.Ping(ctx)
		if err != nil {
			logger.Warn("database not ready", zap.Error(err))
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(b, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping: %w", err)
	}

	logger.Info("database connected",
		zap.String("host", pc.ConnConfig.Host),
		zap.String("database", pc.ConnConfig.Database),
		zap.Int32("max_conns", pc.MaxConns))
	return pool, nil
}
