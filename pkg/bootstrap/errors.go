// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"errors"
	"fmt"

	"github.com/cloudgames/schemaboot/pkg/db"
)

var (
	// ErrExhausted is matched by every error ending a database's bootstrap
	// in the Exhausted state.
	ErrExhausted = errors.New("retries exhausted")

	// ErrCancelled is matched by errors ending a bootstrap because its
	// context was cancelled.
	ErrCancelled = errors.New("bootstrap cancelled")
)

// ConnectivityError is a failure reaching the database server.
type ConnectivityError struct {
	Database string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("database %q unreachable: %s", e.Database, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// MigrationApplicationError is a failure applying one migration unit.
type MigrationApplicationError struct {
	Database string
	Unit     string
	Err      error
}

func (e *MigrationApplicationError) Error() string {
	return fmt.Sprintf("applying migration %q to database %q: %s", e.Unit, e.Database, e.Err)
}

func (e *MigrationApplicationError) Unwrap() error {
	return e.Err
}

// FatalConfigurationError is a failure no retry can fix: malformed
// migrations, a missing source, permission problems or diverged history.
type FatalConfigurationError struct {
	Database string
	Reason   string
	Err      error
}

func (e *FatalConfigurationError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.Database == "" {
		return msg
	}
	return fmt.Sprintf("database %q: %s", e.Database, msg)
}

func (e *FatalConfigurationError) Unwrap() error {
	return e.Err
}

// ExhaustedError ends the bootstrap of a database after its last attempt.
type ExhaustedError struct {
	Database string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("database %q: %s after %d attempt(s): %s", e.Database, ErrExhausted, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// CancelledError ends the bootstrap of a database whose context was
// cancelled during an attempt or a backoff.
type CancelledError struct {
	Database string
	Attempts int
	Err      error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("database %q: %s after %d attempt(s)", e.Database, ErrCancelled, e.Attempts)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// isFatal reports whether err must not be retried.
func isFatal(err error) bool {
	var fatal *FatalConfigurationError
	if errors.As(err, &fatal) {
		return true
	}
	return db.IsFatal(err)
}

// classOf returns the class reported for a failed attempt.
func classOf(err error) db.Class {
	if isFatal(err) {
		return db.ClassFatal
	}
	return db.Classify(err)
}
