// SPDX-License-Identifier: Apache-2.0

package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	// registers the "mysql" driver
	_ "github.com/go-sql-driver/mysql"

	"github.com/cloudgames/schemaboot/internal/connstr"
	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/migrations"
	"github.com/cloudgames/schemaboot/pkg/state"
)

var _ bootstrap.Target = (*MySQL)(nil)

// MySQL is a logical database (schema) on a MySQL server. MySQL commits DDL
// implicitly, so a unit whose statements are DDL is not rolled back when its
// history row cannot be written; units must be idempotent.
type MySQL struct {
	name string

	admin *sql.DB
	state *state.State
}

// NewMySQL returns a target for the database named in a go-sql-driver DSN.
func NewMySQL(dsn string, opts ...Option) (*MySQL, error) {
	o := newOptions(opts)

	server, name, err := connstr.SplitMySQLDSN(dsn)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	prepared, err := connstr.PrepareMySQLDSN(dsn)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	admin, err := sql.Open("mysql", server)
	if err != nil {
		return nil, db.Mark(db.ClassFatal, err)
	}

	conn, err := sql.Open("mysql", prepared)
	if err != nil {
		admin.Close()
		return nil, db.Mark(db.ClassFatal, err)
	}

	stateOpts := []state.StateOpt{state.WithTable(o.historyTable)}
	if o.lockTimeoutMs > 0 {
		// innodb_lock_wait_timeout has a one second granularity
		seconds := int(math.Ceil(float64(o.lockTimeoutMs) / 1000))
		stateOpts = append(stateOpts, state.WithTransactionSettings(
			fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds)))
	}

	return &MySQL{
		name:  name,
		admin: admin,
		state: state.New(&db.RDB{DB: conn}, state.DialectMySQL, stateOpts...),
	}, nil
}

func (m *MySQL) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := m.admin.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?)", m.name).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (m *MySQL) Create(ctx context.Context) error {
	_, err := m.admin.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", quoteMySQL(m.name)))
	return err
}

func (m *MySQL) InitHistory(ctx context.Context) error {
	return m.state.Init(ctx)
}

func (m *MySQL) Applied(ctx context.Context) ([]string, error) {
	return applied(ctx, m.state)
}

func (m *MySQL) Apply(ctx context.Context, unit migrations.Unit, position int) error {
	return m.state.Apply(ctx, unit, position)
}

func (m *MySQL) Close() error {
	return errors.Join(m.admin.Close(), m.state.Close())
}

func quoteMySQL(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
