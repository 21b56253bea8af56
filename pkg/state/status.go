// SPDX-License-Identifier: Apache-2.0

package state

type MigrationStatus string

const (
	NoneMigrationStatus     MigrationStatus = "No migrations"
	PendingMigrationStatus  MigrationStatus = "Pending"
	CompleteMigrationStatus MigrationStatus = "Complete"
	MissingDatabaseStatus   MigrationStatus = "Database missing"
)

// Status describes the migration status of one logical database.
type Status struct {
	// The logical database name.
	Database string `json:"database"`

	// Whether the database exists.
	Exists bool `json:"exists"`

	// Names of the applied migrations, in order.
	Applied []string `json:"applied"`

	// Names of the pending migrations, in order.
	Pending []string `json:"pending"`

	// The overall status.
	Status MigrationStatus `json:"status"`
}

// StatusOf derives the overall MigrationStatus from the applied and pending
// lists.
func StatusOf(exists bool, applied, pending []string) MigrationStatus {
	switch {
	case !exists:
		return MissingDatabaseStatus
	case len(pending) > 0:
		return PendingMigrationStatus
	case len(applied) == 0:
		return NoneMigrationStatus
	default:
		return CompleteMigrationStatus
	}
}
