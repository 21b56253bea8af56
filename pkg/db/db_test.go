// SPDX-License-Identifier: Apache-2.0

package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgames/schemaboot/internal/testutils"
	"github.com/cloudgames/schemaboot/pkg/db"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

// lockedOperations run against a table locked by another session.
var lockedOperations = map[string]func(ctx context.Context, rdb *db.RDB) error{
	"exec": func(ctx context.Context, rdb *db.RDB) error {
		_, err := rdb.ExecContext(ctx, "INSERT INTO test(id) VALUES (1)")
		return err
	},
	"query": func(ctx context.Context, rdb *db.RDB) error {
		rows, err := rdb.QueryContext(ctx, "SELECT COUNT(*) FROM test")
		if err != nil {
			return err
		}
		var count int
		return db.ScanFirstValue(rows, &count)
	},
	"transaction": func(ctx context.Context, rdb *db.RDB) error {
		return rdb.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return tx.QueryRowContext(ctx, "SELECT 1 FROM test").Err()
		})
	},
}

func TestRetriesOnLockContention(t *testing.T) {
	t.Parallel()

	for name, op := range lockedOperations {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			testutils.WithConnectionToContainer(t, func(conn *sql.DB, connStr string) {
				// the lock is held for 2 seconds, the lock timeout is 100ms
				setupTableLock(t, connStr, 2*time.Second)
				ensureLockTimeout(t, conn, 100)

				err := op(context.Background(), &db.RDB{DB: conn})
				require.NoError(t, err)
			})
		})
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	for name, op := range lockedOperations {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			testutils.WithConnectionToContainer(t, func(conn *sql.DB, connStr string) {
				ctx, cancel := context.WithCancel(context.Background())
				defer cancel()

				setupTableLock(t, connStr, 2*time.Second)
				ensureLockTimeout(t, conn, 100)

				// cancel before the lock is released
				time.AfterFunc(500*time.Millisecond, cancel)

				err := op(ctx, &db.RDB{DB: conn})
				require.Error(t, err)
			})
		})
	}
}

func TestTransactionIsRolledBackOnError(t *testing.T) {
	t.Parallel()

	testutils.WithSQLite(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		rdb := &db.RDB{DB: conn}

		_, err := rdb.ExecContext(ctx, "CREATE TABLE payments (id INTEGER PRIMARY KEY)")
		require.NoError(t, err)

		errBoom := fmt.Errorf("boom")
		err = rdb.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, "INSERT INTO payments (id) VALUES (1)"); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		rows, err := rdb.QueryContext(ctx, "SELECT COUNT(*) FROM payments")
		require.NoError(t, err)

		var count int
		require.NoError(t, db.ScanFirstValue(rows, &count))
		assert.Zero(t, count)
	})
}

func TestScanFirstValueWithNoRows(t *testing.T) {
	t.Parallel()

	testutils.WithSQLite(t, func(conn *sql.DB, _ string) {
		rows, err := conn.QueryContext(context.Background(), "SELECT 1 WHERE 1 = 0")
		require.NoError(t, err)

		value := 42
		require.NoError(t, db.ScanFirstValue(rows, &value))
		assert.Equal(t, 42, value)
	})
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()

	t.Run("returns after the duration", func(t *testing.T) {
		assert.NoError(t, db.SleepCtx(context.Background(), time.Millisecond))
	})

	t.Run("returns early when cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := db.SleepCtx(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
}

// setupTableLock:
// * connects to the database
// * creates a table in the database
// * starts a transaction that temporarily locks the table
func setupTableLock(t *testing.T, connStr string, d time.Duration) {
	t.Helper()
	ctx := context.Background()

	conn2, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { conn2.Close() })

	_, err = conn2.ExecContext(ctx, "CREATE TABLE test (id INT PRIMARY KEY)")
	require.NoError(t, err)

	errCh := make(chan error)
	go func() {
		tx, err := conn2.Begin()
		if err != nil {
			errCh <- err
			return
		}

		_, err = tx.ExecContext(ctx, "LOCK TABLE test IN ACCESS EXCLUSIVE MODE")
		if err != nil {
			errCh <- err
			return
		}

		// signal that the lock is obtained
		errCh <- nil

		time.Sleep(d)
		tx.Commit()
	}()

	err = <-errCh
	require.NoError(t, err)
}

func ensureLockTimeout(t *testing.T, conn *sql.DB, ms int) {
	t.Helper()

	// a single connection keeps the session setting for every statement
	conn.SetMaxOpenConns(1)

	_, err := conn.ExecContext(context.Background(), fmt.Sprintf("SET lock_timeout = '%dms'", ms))
	require.NoError(t, err)

	var lockTimeout string
	err = conn.QueryRowContext(context.Background(), "SHOW lock_timeout").Scan(&lockTimeout)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("%dms", ms), lockTimeout)
}
