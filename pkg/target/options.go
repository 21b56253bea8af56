// SPDX-License-Identifier: Apache-2.0

package target

type options struct {
	// name of the migration history table
	historyTable string

	// lock timeout in milliseconds for migration statements
	lockTimeoutMs int

	// optional role to set before executing migrations
	role string

	// database used to look up and create postgres databases
	maintenanceDB string
}

type Option func(*options)

const defaultMaintenanceDB = "postgres"

func newOptions(opts []Option) options {
	o := options{maintenanceDB: defaultMaintenanceDB}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHistoryTable sets the name of the migration history table.
func WithHistoryTable(table string) Option {
	return func(o *options) {
		o.historyTable = table
	}
}

// WithLockTimeoutMs sets the lock timeout in milliseconds for migration
// statements. On sqlite it is the busy timeout.
func WithLockTimeoutMs(lockTimeoutMs int) Option {
	return func(o *options) {
		o.lockTimeoutMs = lockTimeoutMs
	}
}

// WithRole sets the postgres role to assume before executing migrations
func WithRole(role string) Option {
	return func(o *options) {
		o.role = role
	}
}

// WithMaintenanceDatabase sets the postgres database connected to when
// checking for and creating the logical database.
func WithMaintenanceDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.maintenanceDB = name
		}
	}
}
