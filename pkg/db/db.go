// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cloudflare/backoff"
)

const (
	maxBackoffDuration = 1 * time.Minute
	backoffInterval    = 1 * time.Second
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error
	Close() error
}

// RDB wraps a *sql.DB and retries queries using an exponential backoff (with
// jitter) on lock contention errors (see IsLockContention).
type RDB struct {
	DB *sql.DB
}

// ExecContext wraps sql.DB.ExecContext, retrying queries on lock contention.
func (db *RDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	err := retryOnLockContention(ctx, func() error {
		var err error
		res, err = db.DB.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// QueryContext wraps sql.DB.QueryContext, retrying queries on lock contention.
func (db *RDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := retryOnLockContention(ctx, func() error {
		var err error
		rows, err = db.DB.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

// WithRetryableTransaction runs `f` in a transaction, retrying on lock
// contention. `f` is rolled back before every retry.
func (db *RDB) WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	return retryOnLockContention(ctx, func() error {
		tx, err := db.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		if err := f(ctx, tx); err != nil {
			if errRollback := tx.Rollback(); errRollback != nil {
				return errRollback
			}
			return err
		}

		return tx.Commit()
	})
}

func (db *RDB) Close() error {
	return db.DB.Close()
}

func retryOnLockContention(ctx context.Context, f func() error) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for {
		err := f()
		if err == nil || !IsLockContention(err) {
			return err
		}

		if err := SleepCtx(ctx, b.Duration()); err != nil {
			return err
		}
	}
}

// SleepCtx blocks for `d` or until `ctx` is done, whichever comes first.
func SleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ScanFirstValue is a helper function to scan the first value with the assumption that Rows contains
// a single row with a single value.
func ScanFirstValue[T any](rows *sql.Rows, dest *T) error {
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}
