// SPDX-License-Identifier: Apache-2.0

// Package target implements the per-driver side of a logical database:
// existence checks, creation and the migration history table.
package target

import (
	"context"
	"fmt"

	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/state"
)

// Driver names a kind of target.
type Driver string

const (
	DriverPostgres       Driver = "postgres"
	DriverPostgresSchema Driver = "postgres-schema"
	DriverMySQL          Driver = "mysql"
	DriverSQLite         Driver = "sqlite"
)

// Drivers lists every supported driver.
var Drivers = []Driver{DriverPostgres, DriverPostgresSchema, DriverMySQL, DriverSQLite}

// New opens the target for driver. url is a postgres URL, a go-sql-driver
// DSN or a sqlite path; schema is only used by DriverPostgresSchema.
// No connection is made until the target is used.
func New(driver Driver, url, schema string, opts ...Option) (bootstrap.Target, error) {
	var (
		t   bootstrap.Target
		err error
	)

	switch driver {
	case DriverPostgres:
		t, err = NewPostgres(url, opts...)
	case DriverPostgresSchema:
		t, err = NewPostgresSchema(url, schema, opts...)
	case DriverMySQL:
		t, err = NewMySQL(url, opts...)
	case DriverSQLite:
		t, err = NewSQLite(url, opts...)
	default:
		return nil, db.Mark(db.ClassFatal, fmt.Errorf("unsupported driver %q", driver))
	}

	if err != nil {
		return nil, err
	}
	return t, nil
}

// applied returns the applied unit names, or none while the history table
// does not exist.
func applied(ctx context.Context, st *state.State) ([]string, error) {
	ok, err := st.IsInitialized(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return st.Applied(ctx)
}
