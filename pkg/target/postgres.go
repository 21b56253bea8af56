// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/cloudgames/schemaboot/internal/connstr"
	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/migrations"
	"github.com/cloudgames/schemaboot/pkg/state"
)

var (
	_ bootstrap.Target        = (*Postgres)(nil)
	_ bootstrap.SyntaxChecker = (*Postgres)(nil)
)

// Postgres is a logical database on a postgres server. In database mode the
// logical database is a physical database; in schema mode it is a schema
// inside the database named by the connection string.
type Postgres struct {
	// name of the database or schema
	name   string
	schema bool
	// database holding the schema, schema mode only
	parent string

	admin *sql.DB
	conn  *sql.DB
	state *state.State
}

// NewPostgres returns a target for the database named in connStr. The
// server is looked up through its maintenance database.
func NewPostgres(connStr string, opts ...Option) (*Postgres, error) {
	o := newOptions(opts)

	name, err := connstr.DatabaseName(connStr)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	adminURL, err := connstr.WithDatabase(connStr, o.maintenanceDB)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	admin, err := sql.Open("postgres", adminURL)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		admin.Close()
		return nil, db.Mark(db.ClassFatal, err)
	}

	return &Postgres{
		name:  name,
		admin: admin,
		conn:  conn,
		state: state.New(&db.RDB{DB: conn}, state.DialectPostgres, pgStateOpts(o)...),
	}, nil
}

// NewPostgresSchema returns a target for a schema inside the database named
// in connStr. The history table lives in the schema.
func NewPostgresSchema(connStr, schema string, opts ...Option) (*Postgres, error) {
	o := newOptions(opts)

	if schema == "" {
		return nil, db.Mark(db.ClassFatal, errors.New("schema mode requires a schema name"))
	}

	parent, err := connstr.DatabaseName(connStr)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	url, err := connstr.AppendSearchPathOption(connStr, schema)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	stateOpts := append(pgStateOpts(o), state.WithSchema(schema))

	return &Postgres{
		name:   schema,
		schema: true,
		parent: parent,
		conn:   conn,
		state:  state.New(&db.RDB{DB: conn}, state.DialectPostgres, stateOpts...),
	}, nil
}

func pgStateOpts(o options) []state.StateOpt {
	opts := []state.StateOpt{state.WithTable(o.historyTable)}

	var settings []string
	if o.lockTimeoutMs > 0 {
		settings = append(settings, fmt.Sprintf("SET LOCAL lock_timeout TO '%dms'", o.lockTimeoutMs))
	}
	if o.role != "" {
		settings = append(settings, fmt.Sprintf("SET LOCAL ROLE %s", pq.QuoteIdentifier(o.role)))
	}
	if len(settings) > 0 {
		opts = append(opts, state.WithTransactionSettings(settings...))
	}
	return opts
}

func (p *Postgres) Exists(ctx context.Context) (bool, error) {
	query := "SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_database WHERE datname = $1)"
	conn := p.admin
	if p.schema {
		query = "SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $1)"
		conn = p.conn
	}

	var exists bool
	if err := conn.QueryRowContext(ctx, query, p.name).Scan(&exists); err != nil {
		// schema mode never creates the database it lives in
		if p.schema && db.IsNotFound(err) {
			return false, db.Mark(db.ClassFatal,
				fmt.Errorf("database %q holding schema %q does not exist: %w", p.parent, p.name, err))
		}
		return false, err
	}
	return exists, nil
}

func (p *Postgres) Create(ctx context.Context) error {
	if p.schema {
		_, err := p.conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", pq.QuoteIdentifier(p.name)))
		return err
	}

	_, err := p.admin.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(p.name)))
	return err
}

func (p *Postgres) InitHistory(ctx context.Context) error {
	return p.state.Init(ctx)
}

func (p *Postgres) Applied(ctx context.Context) ([]string, error) {
	return applied(ctx, p.state)
}

func (p *Postgres) Apply(ctx context.Context, unit migrations.Unit, position int) error {
	return p.state.Apply(ctx, unit, position)
}

// CheckSyntax parses every unit with the postgres parser.
func (p *Postgres) CheckSyntax(units []migrations.Unit) error {
	return migrations.CheckPostgresSyntax(units)
}

func (p *Postgres) Close() error {
	var errs []error
	if p.admin != nil {
		errs = append(errs, p.admin.Close())
	}
	errs = append(errs, p.state.Close())
	return errors.Join(errs...)
}
