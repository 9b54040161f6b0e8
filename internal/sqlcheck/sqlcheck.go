// Package sqlcheck runs rendered SQLite statements against an in-memory
// database whose tables mirror a set of entity schemas.
//
// Preparing a statement makes SQLite parse it and resolve every table and
// column, so Check catches malformed output without any data. Seed and Query
// go further and compare results against expectations.
package sqlcheck

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"

	"github.com/huandu/go-sqlbuilder"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/quarry/internal/ir"
	"github.com/roach88/quarry/internal/querysql"
)

// Checker owns one in-memory SQLite database.
type Checker struct {
	db      *sql.DB
	columns map[string][]string
}

// Open creates a private in-memory database with one table per entity.
// Embedded products contribute their own leaf columns, named the way the
// compiler addresses them.
func Open(entities []*ir.Entity) (*Checker, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	c := &Checker{db: db, columns: map[string][]string{}}
	for _, e := range entities {
		if err := c.createTable(e); err != nil {
			db.Close()
			return nil, err
		}
	}
	return c, nil
}

// Close closes the database.
func (c *Checker) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Tables returns the created table names, sorted.
func (c *Checker) Tables() []string {
	names := make([]string, 0, len(c.columns))
	for n := range c.columns {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Checker) createTable(e *ir.Entity) error {
	schema := e.Schema()
	if schema == nil {
		return fmt.Errorf("entity %s has no schema", e.Name)
	}

	ctb := sqlbuilder.SQLite.NewCreateTableBuilder()
	ctb.CreateTable(quote(e.Name)).IfNotExists()
	var cols []string
	for _, col := range leafColumns(schema) {
		ctb.Define(quote(col.name), col.sqlType)
		cols = append(cols, col.name)
	}

	ddl, args := ctb.Build()
	if _, err := c.db.Exec(ddl, args...); err != nil {
		return fmt.Errorf("create table %s: %w", e.Name, err)
	}
	c.columns[e.Name] = cols
	return nil
}

type column struct {
	name    string
	sqlType string
}

func leafColumns(p *ir.ProductType) []column {
	var out []column
	for _, c := range p.Columns() {
		sqlType := "NUMERIC"
		if ir.IsBoolean(c.Type) {
			sqlType = "BOOLEAN"
		}
		out = append(out, column{name: c.Name, sqlType: sqlType})
	}
	return out
}

func quote(name string) string {
	return querysql.SQLite.Quote(name)
}

// CheckError reports a statement SQLite rejected.
type CheckError struct {
	SQL string
	Err error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("sqlite rejected %q: %v", e.SQL, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// Check prepares stmt without running it.
func (c *Checker) Check(ctx context.Context, stmt string) error {
	prepared, err := c.db.PrepareContext(ctx, stmt)
	if err != nil {
		return &CheckError{SQL: stmt, Err: err}
	}
	return prepared.Close()
}

// Seed inserts rows into table. Each row maps column names to values;
// missing columns are NULL.
func (c *Checker) Seed(ctx context.Context, table string, rows []map[string]any) error {
	cols, ok := c.columns[table]
	if !ok {
		return fmt.Errorf("seed: unknown table %s", table)
	}
	if len(rows) == 0 {
		return nil
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto(quote(table))
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quote(col)
	}
	ib.Cols(quoted...)
	for _, row := range rows {
		for name := range row {
			if !slices.Contains(cols, name) {
				return fmt.Errorf("seed %s: unknown column %s", table, name)
			}
		}
		values := make([]any, len(cols))
		for i, col := range cols {
			values[i] = row[col]
		}
		ib.Values(values...)
	}

	stmt, args := ib.Build()
	if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("seed %s: %w", table, err)
	}
	return nil
}

// Query runs stmt and returns every row. Text comes back as string and
// integers as int64.
func (c *Checker) Query(ctx context.Context, stmt string, args ...any) ([][]any, error) {
	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &CheckError{SQL: stmt, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	return out, rows.Err()
}
