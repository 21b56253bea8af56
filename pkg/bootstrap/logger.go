// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"time"

	"github.com/pterm/pterm"

	"github.com/cloudgames/schemaboot/pkg/db"
)

// Logger is responsible for logging all bootstrap events of a run.
type Logger interface {
	LogDatabaseNotFound(database string)
	LogDatabaseCreated(database string)
	LogDatabaseRace(database string)
	// LogRaceDetected reports an object inside the database, the history
	// table or a unit, found already created by a concurrent replica.
	LogRaceDetected(database, object string)
	LogMigrationsPending(database string, count int)
	// LogMigrationsApplied reports the units applied by this attempt and
	// the units still pending after it.
	LogMigrationsApplied(database string, count, remaining int)
	LogAttemptFailed(database string, attempt, maxAttempts int, class db.Class, err error)
	LogRetriesExhausted(database string, attempts int, err error)
	LogBootstrapCancelled(database string)
	LogDatabaseReady(database string, attempts int, elapsed time.Duration)

	Info(msg string, args ...any)

	// WithRunID returns a Logger that tags every event with the run id.
	WithRunID(id string) Logger
}

type bootstrapLogger struct {
	logger *pterm.Logger
	runID  string
}

type noopLogger struct{}

// NewLogger returns a Logger writing to the given pterm logger, or to
// pterm.DefaultLogger when nil.
func NewLogger(l *pterm.Logger) Logger {
	if l == nil {
		l = &pterm.DefaultLogger
	}
	return &bootstrapLogger{logger: l}
}

func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *bootstrapLogger) WithRunID(id string) Logger {
	return &bootstrapLogger{logger: l.logger, runID: id}
}

func (l *bootstrapLogger) LogDatabaseNotFound(database string) {
	l.logger.Info("database not found, creating", l.args("database", database))
}

func (l *bootstrapLogger) LogDatabaseCreated(database string) {
	l.logger.Info("database created", l.args("database", database))
}

func (l *bootstrapLogger) LogDatabaseRace(database string) {
	l.logger.Warn("database already exists (race)", l.args("database", database))
}

func (l *bootstrapLogger) LogRaceDetected(database, object string) {
	l.logger.Warn("already exists (race)", l.args("database", database, "object", object))
}

func (l *bootstrapLogger) LogMigrationsPending(database string, count int) {
	l.logger.Info("migrations pending", l.args("database", database, "count", count))
}

func (l *bootstrapLogger) LogMigrationsApplied(database string, count, remaining int) {
	l.logger.Info("migrations applied", l.args("database", database, "count", count, "remaining", remaining))
}

func (l *bootstrapLogger) LogAttemptFailed(database string, attempt, maxAttempts int, class db.Class, err error) {
	l.logger.Warn("attempt failed", l.args(
		"database", database,
		"attempt", attempt,
		"max", maxAttempts,
		"class", class.String(),
		"error", err.Error(),
	))
}

func (l *bootstrapLogger) LogRetriesExhausted(database string, attempts int, err error) {
	l.logger.Error("retries exhausted", l.args(
		"database", database,
		"attempts", attempts,
		"error", err.Error(),
	))
}

func (l *bootstrapLogger) LogBootstrapCancelled(database string) {
	l.logger.Warn("bootstrap cancelled", l.args("database", database))
}

func (l *bootstrapLogger) LogDatabaseReady(database string, attempts int, elapsed time.Duration) {
	l.logger.Info("database ready", l.args(
		"database", database,
		"attempts", attempts,
		"elapsed", elapsed.Round(time.Millisecond).String(),
	))
}

func (l *bootstrapLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.args(args...))
}

func (l *bootstrapLogger) args(args ...any) []pterm.LoggerArgument {
	if l.runID != "" {
		args = append(args, "run", l.runID)
	}
	return l.logger.Args(args...)
}

func (l *noopLogger) LogDatabaseNotFound(database string)                                     {}
func (l *noopLogger) LogDatabaseCreated(database string)                                      {}
func (l *noopLogger) LogDatabaseRace(database string)                                         {}
func (l *noopLogger) LogRaceDetected(database, object string)                                 {}
func (l *noopLogger) LogMigrationsPending(database string, count int)                         {}
func (l *noopLogger) LogMigrationsApplied(database string, count, remaining int)              {}
func (l *noopLogger) LogAttemptFailed(database string, attempt, n int, c db.Class, err error) {}
func (l *noopLogger) LogRetriesExhausted(database string, attempts int, err error)            {}
func (l *noopLogger) LogBootstrapCancelled(database string)                                   {}
func (l *noopLogger) LogDatabaseReady(database string, attempts int, elapsed time.Duration)   {}
func (l *noopLogger) Info(msg string, args ...any)                                            {}
func (l *noopLogger) WithRunID(id string) Logger                                              { return l }
