// SPDX-License-Identifier: Apache-2.0

package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	_ "modernc.org/sqlite"

	"github.com/cloudgames/schemaboot/internal/connstr"
)

// The version of postgres against which the tests are run
// if the POSTGRES_VERSION environment variable is not set.
const defaultPostgresVersion = "15.3"

var (
	ctrOnce  sync.Once
	ctr      *postgres.PostgresContainer
	tConnStr string
	ctrErr   error
)

// SharedTestMain runs the tests of a package and terminates the postgres
// container if any test started it.
func SharedTestMain(m *testing.M) {
	exitCode := m.Run()

	if ctr != nil {
		if err := ctr.Terminate(context.Background()); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}

	os.Exit(exitCode)
}

// WithConnectionToContainer creates a fresh database in a shared postgres
// container and passes a connection to it, together with its connection
// string, to fn. The test is skipped when no container provider is available.
func WithConnectionToContainer(t *testing.T, fn func(*sql.DB, string)) {
	t.Helper()

	db, connStr, _ := setupTestDatabase(t)

	fn(db, connStr)
}

// WithServerURL passes fn a connection string to the shared postgres server
// naming a database that does not exist yet. The database is dropped, if it
// was created, when the test ends.
func WithServerURL(t *testing.T, fn func(connStr, dbName string)) {
	t.Helper()

	admin := adminConnection(t)
	dbName := randomDBName()

	connStr, err := connstr.WithDatabase(tConnStr, dbName)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(),
			fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", pq.QuoteIdentifier(dbName)))
	})

	fn(connStr, dbName)
}

// SQLitePath returns the path of a not yet existing sqlite database file in
// a directory removed at the end of the test.
func SQLitePath(t *testing.T) string {
	t.Helper()

	return filepath.Join(t.TempDir(), randomDBName()+".db")
}

// WithSQLite opens a sqlite database in a temporary directory.
func WithSQLite(t *testing.T, fn func(*sql.DB, string)) {
	t.Helper()

	path := SQLitePath(t)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Failed to close database connection: %v", err)
		}
	})

	fn(db, path)
}

func startContainer(t *testing.T) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctrOnce.Do(func() {
		ctx := context.Background()

		pgVersion := os.Getenv("POSTGRES_VERSION")
		if pgVersion == "" {
			pgVersion = defaultPostgresVersion
		}

		ctr, ctrErr = postgres.Run(ctx, "postgres:"+pgVersion,
			postgres.BasicWaitStrategies(),
		)
		if ctrErr != nil {
			return
		}

		tConnStr, ctrErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})

	if ctrErr != nil {
		t.Skipf("postgres container unavailable: %v", ctrErr)
	}
}

func adminConnection(t *testing.T) *sql.DB {
	t.Helper()
	startContainer(t)

	tDB, err := sql.Open("postgres", tConnStr)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := tDB.Close(); err != nil {
			t.Fatalf("Failed to close database connection: %v", err)
		}
	})

	return tDB
}

// setupTestDatabase creates a new database in the test container and returns:
// - a connection to the new database
// - the connection string to the new database
// - the name of the new database
func setupTestDatabase(t *testing.T) (*sql.DB, string, string) {
	t.Helper()
	ctx := context.Background()

	tDB := adminConnection(t)
	dbName := randomDBName()

	_, err := tDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName)))
	if err != nil {
		t.Fatal(err)
	}

	connStr, err := connstr.WithDatabase(tConnStr, dbName)
	if err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Failed to close database connection: %v", err)
		}
	})

	return db, connStr, dbName
}
