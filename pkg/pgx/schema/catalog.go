// Package schema derives entity descriptors from the PostgreSQL catalog and
// caches the resulting registry. A NOTIFY on the reload channel rebuilds the
// registry and swaps it in atomically; registries are never mutated, so a
// request keeps using the one it started with.
package schema

import (
	"context"
	"fmt"
	"slices"

	pg "github.com/edgeflare/pgjsonapi/pkg/pgx"
)

// Table is the catalog description of one base table.
type Table struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	// Unique lists columns carrying a single-column unique constraint.
	Unique []string `json:"unique,omitempty"`
}

type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	UDTName      string `json:"udt_name"`
	IsNullable   bool   `json:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// ForeignKey is a single-column foreign key. Composite foreign keys are not
// loaded.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

func (t *Table) fullName() string {
	return t.Schema + "." + t.Name
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ForeignKey returns the foreign key declared on column name.
func (t *Table) ForeignKey(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// LoadTables reads the base tables of the given schemas, skipping excluded
// ones ("schema.table" or bare table names). Results are ordered by schema
// and table name.
func LoadTables(ctx context.Context, conn pg.Querier, schemas []string, exclude []string) ([]Table, error) {
	if len(schemas) == 0 {
		schemas = []string{"public"}
	}
	rows, err := conn.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_schema = ANY($1) AND table_type = 'BASE TABLE'
		ORDER BY table_schema, table_name`, schemas)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			rows.Close()
			return nil, err
		}
		if slices.Contains(exclude, t.Name) || slices.Contains(exclude, t.fullName()) {
			continue
		}
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tables {
		t := &tables[i]
		if t.Columns, t.PrimaryKeys, err = queryColumns(ctx, conn, t.Schema, t.Name); err != nil {
			return nil, fmt.Errorf("query columns %s: %w", t.fullName(), err)
		}
		if t.ForeignKeys, err = queryForeignKeys(ctx, conn, t.Schema, t.Name); err != nil {
			return nil, fmt.Errorf("query foreign keys %s: %w", t.fullName(), err)
		}
		if t.Unique, err = queryUnique(ctx, conn, t.Schema, t.Name); err != nil {
			return nil, fmt.Errorf("query unique constraints %s: %w", t.fullName(), err)
		}
	}
	return tables, nil
}

func queryColumns(ctx context.Context, conn pg.Querier, schema, table string) ([]Column, []string, error) {
	rows, err := conn.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable = 'YES',
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
					AND tc.table_name = kcu.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = $1
					AND tc.table_name = $2
					AND kcu.column_name = c.column_name
			) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cols []Column
	var pkeys []string
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType, &col.UDTName, &col.IsNullable, &col.IsPrimaryKey); err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
		if col.IsPrimaryKey {
			pkeys = append(pkeys, col.Name)
		}
	}
	return cols, pkeys, rows.Err()
}

func queryForeignKeys(ctx context.Context, conn pg.Querier, schema, table string) ([]ForeignKey, error) {
	rows, err := conn.Query(ctx, `
		SELECT a.attname, fn.nspname, ft.relname, fa.attname
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_class ft ON ft.oid = con.confrelid
		JOIN pg_namespace fn ON fn.oid = ft.relnamespace
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = con.conkey[1]
		JOIN pg_attribute fa ON fa.attrelid = con.confrelid AND fa.attnum = con.confkey[1]
		WHERE con.contype = 'f'
			AND cardinality(con.conkey) = 1
			AND n.nspname = $1
			AND t.relname = $2
		ORDER BY a.attnum`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fkeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.ReferencedSchema, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, err
		}
		fkeys = append(fkeys, fk)
	}
	return fkeys, rows.Err()
}

func queryUnique(ctx context.Context, conn pg.Querier, schema, table string) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT a.attname
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = con.conkey[1]
		WHERE con.contype = 'u'
			AND cardinality(con.conkey) = 1
			AND n.nspname = $1
			AND t.relname = $2
		ORDER BY a.attnum`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
