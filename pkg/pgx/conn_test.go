package pgx

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ Conn    = (*pgx.Conn)(nil)
	_ Conn    = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)
