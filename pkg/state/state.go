// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/migrations"
)

// Dialect selects the SQL flavour used for the history table.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

const DefaultTable = "schema_migrations"

const sqlInitPostgres = `CREATE TABLE IF NOT EXISTS %s (
	name		TEXT NOT NULL PRIMARY KEY,
	position	INTEGER NOT NULL,
	applied_at	TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const sqlInitMySQL = `CREATE TABLE IF NOT EXISTS %s (
	name		VARCHAR(255) NOT NULL PRIMARY KEY,
	position	INT NOT NULL,
	applied_at	TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const sqlInitSQLite = `CREATE TABLE IF NOT EXISTS %s (
	name		TEXT NOT NULL PRIMARY KEY,
	position	INTEGER NOT NULL,
	applied_at	TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// State tracks which migration units have been applied to one logical
// database.
type State struct {
	conn    db.DB
	dialect Dialect
	schema  string
	table   string

	// statements run at the start of every Apply transaction
	settings []string
}

func New(conn db.DB, dialect Dialect, opts ...StateOpt) *State {
	s := &State{
		conn:    conn,
		dialect: dialect,
		table:   DefaultTable,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the history table if it does not exist. Concurrent callers
// may race on the catalog; such a failure is classified as
// db.ClassAlreadyExists and left to the caller to confirm.
func (s *State) Init(ctx context.Context) error {
	var ddl string
	switch s.dialect {
	case DialectPostgres:
		ddl = sqlInitPostgres
	case DialectMySQL:
		ddl = sqlInitMySQL
	case DialectSQLite:
		ddl = sqlInitSQLite
	default:
		return db.Mark(db.ClassFatal, fmt.Errorf("unsupported dialect %q", s.dialect))
	}

	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(ddl, s.qualifiedTable()))
	return err
}

// IsInitialized reports whether the history table exists.
func (s *State) IsInitialized(ctx context.Context) (bool, error) {
	var (
		query string
		args  []any
	)
	switch s.dialect {
	case DialectPostgres:
		schema := s.schema
		if schema == "" {
			schema = "public"
		}
		query = `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`
		args = []any{schema, s.table}
	case DialectMySQL:
		query = `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_name = ?
		)`
		args = []any{s.table}
	case DialectSQLite:
		query = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`
		args = []any{s.table}
	default:
		return false, db.Mark(db.ClassFatal, fmt.Errorf("unsupported dialect %q", s.dialect))
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := db.ScanFirstValue(rows, &exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Applied returns the names of the applied units in the order they were
// applied.
func (s *State) Applied(ctx context.Context) ([]string, error) {
	history, err := s.History(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(history))
	for _, h := range history {
		names = append(names, h.Name)
	}
	return names, nil
}

// Apply runs the unit and records it in the history table in a single
// transaction. position is the 1-based index of the unit in its source.
func (s *State) Apply(ctx context.Context, unit migrations.Unit, position int) error {
	return s.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range s.settings {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("unable to apply setting %q: %w", stmt, err)
			}
		}
		if _, err := tx.ExecContext(ctx, unit.Up); err != nil {
			return err
		}
		return s.record(ctx, tx, unit.Name, position)
	})
}

func (s *State) record(ctx context.Context, tx *sql.Tx, name string, position int) error {
	stmt := fmt.Sprintf("INSERT INTO %s (name, position) VALUES (%s, %s)",
		s.qualifiedTable(), s.placeholder(1), s.placeholder(2))

	_, err := tx.ExecContext(ctx, stmt, name, position)
	return err
}

func (s *State) Close() error {
	return s.conn.Close()
}

func (s *State) qualifiedTable() string {
	table := s.quote(s.table)
	if s.schema != "" {
		return s.quote(s.schema) + "." + table
	}
	return table
}

func (s *State) quote(ident string) string {
	if s.dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return pq.QuoteIdentifier(ident)
}

func (s *State) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
