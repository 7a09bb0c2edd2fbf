package pgx

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// Table is a schema-qualified table name.
type Table struct {
	Schema string
	Name   string
}

// Sanitize returns the quoted table reference.
func (t Table) Sanitize() string {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}.Sanitize()
	}
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

var ErrNoWhere = errors.New("pgx: no WHERE conditions provided")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// quoted re-keys values by quoted column name. squirrel sorts map keys, so
// statements over the same columns render identically.
func quoted(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for col, v := range values {
		out[pgx.Identifier{col}.Sanitize()] = v
	}
	return out
}

func insertSQL(table Table, values map[string]any, returning string) (string, []any, error) {
	ret := "RETURNING " + pgx.Identifier{returning}.Sanitize()
	if len(values) == 0 {
		return sq.Expr("INSERT INTO " + table.Sanitize() + " DEFAULT VALUES " + ret).ToSql()
	}
	return psql.Insert(table.Sanitize()).SetMap(quoted(values)).Suffix(ret).ToSql()
}

func updateSQL(table Table, values, where map[string]any) (string, []any, error) {
	return psql.Update(table.Sanitize()).SetMap(quoted(values)).Where(sq.Eq(quoted(where))).ToSql()
}

func countSQL(table Table, where map[string]any) (string, []any, error) {
	return psql.Select("count(*)").From(table.Sanitize()).Where(sq.Eq(quoted(where))).ToSql()
}

func deleteSQL(table Table, where map[string]any) (string, []any, error) {
	return psql.Delete(table.Sanitize()).Where(sq.Eq(quoted(where))).ToSql()
}

// InsertRow inserts values (column -> value) and returns the value of the
// returning column of the new row.
func InsertRow(ctx context.Context, q Querier, table Table, values map[string]any, returning string) (any, error) {
	query, args, err := insertSQL(table, values, returning)
	if err != nil {
		return nil, fmt.Errorf("failed to build insert into %s: %w", table.Name, err)
	}
	var id any
	if err := q.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table.Name, err)
	}
	return id, nil
}

// UpdateRow sets values on the rows matching where and returns the number of
// rows affected. With no values it only counts the matching rows, so callers
// can still detect a missing row.
func UpdateRow(ctx context.Context, q Querier, table Table, values map[string]any, where map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, ErrNoWhere
	}
	if len(values) == 0 {
		query, args, err := countSQL(table, where)
		if err != nil {
			return 0, fmt.Errorf("failed to build lookup of %s: %w", table.Name, err)
		}
		var n int64
		if err := q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to look up %s: %w", table.Name, err)
		}
		return n, nil
	}

	query, args, err := updateSQL(table, values, where)
	if err != nil {
		return 0, fmt.Errorf("failed to build update of %s: %w", table.Name, err)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table.Name, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteRow deletes the rows matching where and returns the number of rows
// affected.
func DeleteRow(ctx context.Context, q Querier, table Table, where map[string]any) (int64, error) {
	if len(where) == 0 {
		return 0, ErrNoWhere
	}
	query, args, err := deleteSQL(table, where)
	if err != nil {
		return 0, fmt.Errorf("failed to build delete from %s: %w", table.Name, err)
	}
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table.Name, err)
	}
	return tag.RowsAffected(), nil
}
