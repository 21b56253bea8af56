// SPDX-License-Identifier: Apache-2.0

package db_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgames/schemaboot/internal/testutils"
	"github.com/cloudgames/schemaboot/pkg/db"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want db.Class
	}{
		{name: "nil", err: nil, want: db.ClassUnknown},
		{name: "plain error", err: errors.New("something odd"), want: db.ClassUnknown},
		{name: "marked error", err: db.Mark(db.ClassFatal, errors.New("bad config")), want: db.ClassFatal},
		{name: "wrapped marked error", err: fmt.Errorf("outer: %w", db.Mark(db.ClassNotFound, errors.New("x"))), want: db.ClassNotFound},

		{name: "pg duplicate database", err: &pq.Error{Code: "42P04"}, want: db.ClassAlreadyExists},
		{name: "pg duplicate schema", err: &pq.Error{Code: "42P06"}, want: db.ClassAlreadyExists},
		{name: "pg duplicate table", err: &pq.Error{Code: "42P07"}, want: db.ClassAlreadyExists},
		{name: "pg duplicate object", err: &pq.Error{Code: "42710"}, want: db.ClassAlreadyExists},
		{name: "pg duplicate column", err: &pq.Error{Code: "42701"}, want: db.ClassAlreadyExists},
		{name: "pg duplicate alias", err: &pq.Error{Code: "42712"}, want: db.ClassAlreadyExists},
		{name: "pg duplicate function", err: &pq.Error{Code: "42723"}, want: db.ClassAlreadyExists},
		{name: "pg unique violation", err: &pq.Error{Code: "23505"}, want: db.ClassAlreadyExists},
		{name: "pg lock not available", err: &pq.Error{Code: "55P03"}, want: db.ClassLockContention},
		{name: "pg deadlock", err: &pq.Error{Code: "40P01"}, want: db.ClassLockContention},
		{name: "pg serialization failure", err: &pq.Error{Code: "40001"}, want: db.ClassLockContention},
		{name: "pg missing database", err: &pq.Error{Code: "3D000"}, want: db.ClassNotFound},
		{name: "pg missing schema", err: &pq.Error{Code: "3F000"}, want: db.ClassNotFound},
		{name: "pg connection failure", err: &pq.Error{Code: "08006"}, want: db.ClassConnectivity},
		{name: "pg password authentication failed", err: &pq.Error{Code: "28P01"}, want: db.ClassConnectivity},
		{name: "pg too many connections", err: &pq.Error{Code: "53300"}, want: db.ClassConnectivity},
		{name: "pg cannot connect now", err: &pq.Error{Code: "57P03"}, want: db.ClassConnectivity},
		{name: "pg permission denied", err: &pq.Error{Code: "42501"}, want: db.ClassFatal},
		{name: "pg syntax error", err: &pq.Error{Code: "42601"}, want: db.ClassFatal},
		{name: "pg feature not supported", err: &pq.Error{Code: "0A000"}, want: db.ClassFatal},
		{name: "pg unrecognised code", err: &pq.Error{Code: "22012"}, want: db.ClassUnknown},
		{name: "wrapped pg error", err: fmt.Errorf("creating: %w", &pq.Error{Code: "42P04"}), want: db.ClassAlreadyExists},

		{name: "mysql database exists", err: &mysql.MySQLError{Number: 1007}, want: db.ClassAlreadyExists},
		{name: "mysql table exists", err: &mysql.MySQLError{Number: 1050}, want: db.ClassAlreadyExists},
		{name: "mysql duplicate entry", err: &mysql.MySQLError{Number: 1062}, want: db.ClassAlreadyExists},
		{name: "mysql duplicate column", err: &mysql.MySQLError{Number: 1060}, want: db.ClassAlreadyExists},
		{name: "mysql duplicate key name", err: &mysql.MySQLError{Number: 1061}, want: db.ClassAlreadyExists},
		{name: "mysql procedure exists", err: &mysql.MySQLError{Number: 1304}, want: db.ClassAlreadyExists},
		{name: "mysql trigger exists", err: &mysql.MySQLError{Number: 1359}, want: db.ClassAlreadyExists},
		{name: "mysql duplicate foreign key", err: &mysql.MySQLError{Number: 1826}, want: db.ClassAlreadyExists},
		{name: "mysql lock wait timeout", err: &mysql.MySQLError{Number: 1205}, want: db.ClassLockContention},
		{name: "mysql deadlock", err: &mysql.MySQLError{Number: 1213}, want: db.ClassLockContention},
		{name: "mysql unknown database", err: &mysql.MySQLError{Number: 1049}, want: db.ClassNotFound},
		{name: "mysql access denied for user", err: &mysql.MySQLError{Number: 1045}, want: db.ClassConnectivity},
		{name: "mysql access denied to database", err: &mysql.MySQLError{Number: 1044}, want: db.ClassFatal},
		{name: "mysql parse error", err: &mysql.MySQLError{Number: 1064}, want: db.ClassFatal},
		{name: "mysql invalid connection", err: mysql.ErrInvalidConn, want: db.ClassConnectivity},

		{name: "deadline exceeded", err: context.DeadlineExceeded, want: db.ClassConnectivity},
		{name: "bad connection", err: driver.ErrBadConn, want: db.ClassConnectivity},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, want: db.ClassConnectivity},
		{name: "network error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, want: db.ClassConnectivity},
		{name: "dns error", err: &net.DNSError{Err: "no such host", Name: "db.internal"}, want: db.ClassConnectivity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, db.Classify(tt.err))
		})
	}
}

func TestClassRetryable(t *testing.T) {
	t.Parallel()

	for _, c := range []db.Class{db.ClassUnknown, db.ClassConnectivity, db.ClassLockContention, db.ClassAlreadyExists, db.ClassNotFound} {
		assert.True(t, c.Retryable(), c.String())
	}
	assert.False(t, db.ClassFatal.Retryable())
}

func TestMarkNil(t *testing.T) {
	assert.NoError(t, db.Mark(db.ClassFatal, nil))
}

func TestClassifySQLiteErrors(t *testing.T) {
	t.Parallel()

	t.Run("primary key violation is already exists", func(t *testing.T) {
		testutils.WithSQLite(t, func(conn *sql.DB, _ string) {
			ctx := context.Background()
			_, err := conn.ExecContext(ctx, "CREATE TABLE history (name TEXT NOT NULL PRIMARY KEY)")
			require.NoError(t, err)
			_, err = conn.ExecContext(ctx, "INSERT INTO history (name) VALUES ('01')")
			require.NoError(t, err)

			_, err = conn.ExecContext(ctx, "INSERT INTO history (name) VALUES ('01')")
			require.Error(t, err)
			assert.True(t, db.IsAlreadyExists(err), "got class %s", db.Classify(err))
		})
	})

	t.Run("read only database is fatal", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "readonly.db")

		rw, err := sql.Open("sqlite", path)
		require.NoError(t, err)
		_, err = rw.Exec("CREATE TABLE games (id INTEGER PRIMARY KEY)")
		require.NoError(t, err)
		require.NoError(t, rw.Close())

		ro, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
		require.NoError(t, err)
		t.Cleanup(func() { ro.Close() })

		_, err = ro.Exec("INSERT INTO games (id) VALUES (1)")
		require.Error(t, err)
		assert.True(t, db.IsFatal(err), "got class %s", db.Classify(err))
	})
}
