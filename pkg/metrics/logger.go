// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"time"

	"github.com/cloudgames/schemaboot/pkg/bootstrap"
	"github.com/cloudgames/schemaboot/pkg/db"
)

// Logger records bootstrap events as prometheus metrics and forwards them
// to the wrapped logger.
type Logger struct {
	next bootstrap.Logger
}

var _ bootstrap.Logger = (*Logger)(nil)

// NewLogger wraps next. A nil next discards the events after recording.
func NewLogger(next bootstrap.Logger) *Logger {
	if next == nil {
		next = bootstrap.NewNoopLogger()
	}
	return &Logger{next: next}
}

func (l *Logger) LogDatabaseNotFound(database string) {
	l.next.LogDatabaseNotFound(database)
}

func (l *Logger) LogDatabaseCreated(database string) {
	DatabasesCreatedTotal.WithLabelValues(database).Inc()
	l.next.LogDatabaseCreated(database)
}

func (l *Logger) LogDatabaseRace(database string) {
	RacesDetectedTotal.WithLabelValues(database).Inc()
	l.next.LogDatabaseRace(database)
}

func (l *Logger) LogRaceDetected(database, object string) {
	RacesDetectedTotal.WithLabelValues(database).Inc()
	l.next.LogRaceDetected(database, object)
}

func (l *Logger) LogMigrationsPending(database string, count int) {
	MigrationsPending.WithLabelValues(database).Set(float64(count))
	l.next.LogMigrationsPending(database, count)
}

func (l *Logger) LogMigrationsApplied(database string, count, remaining int) {
	MigrationsAppliedTotal.WithLabelValues(database).Add(float64(count))
	MigrationsPending.WithLabelValues(database).Set(float64(remaining))
	l.next.LogMigrationsApplied(database, count, remaining)
}

func (l *Logger) LogAttemptFailed(database string, attempt, maxAttempts int, class db.Class, err error) {
	AttemptFailuresTotal.WithLabelValues(database, class.String()).Inc()
	l.next.LogAttemptFailed(database, attempt, maxAttempts, class, err)
}

func (l *Logger) LogRetriesExhausted(database string, attempts int, err error) {
	BootstrapsTotal.WithLabelValues(database, "exhausted").Inc()
	l.next.LogRetriesExhausted(database, attempts, err)
}

func (l *Logger) LogBootstrapCancelled(database string) {
	BootstrapsTotal.WithLabelValues(database, "cancelled").Inc()
	l.next.LogBootstrapCancelled(database)
}

func (l *Logger) LogDatabaseReady(database string, attempts int, elapsed time.Duration) {
	BootstrapsTotal.WithLabelValues(database, "success").Inc()
	MigrationsPending.WithLabelValues(database).Set(0)
	BootstrapDuration.WithLabelValues(database).Observe(elapsed.Seconds())
	l.next.LogDatabaseReady(database, attempts, elapsed)
}

func (l *Logger) Info(msg string, args ...any) {
	l.next.Info(msg, args...)
}

func (l *Logger) WithRunID(id string) bootstrap.Logger {
	return &Logger{next: l.next.WithRunID(id)}
}
