package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier runs statements. It is satisfied by *pgx.Conn, *pgxpool.Pool,
// *pgxpool.Conn and pgx.Tx, so write helpers work inside and outside a
// transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a Querier that can start transactions. The context passed to
// Begin only affects the BEGIN command; there is no rollback on
// cancellation.
type Conn interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}
