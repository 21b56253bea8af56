// SPDX-License-Identifier: Apache-2.0

package state

type StateOpt func(s *State)

// WithTable sets the name of the migration history table.
func WithTable(table string) StateOpt {
	return func(s *State) {
		if table != "" {
			s.table = table
		}
	}
}

// WithSchema places the history table inside the given postgres schema
// instead of the connection's default.
func WithSchema(schema string) StateOpt {
	return func(s *State) {
		s.schema = schema
	}
}

// WithTransactionSettings runs stmts at the start of every transaction
// applying a migration unit, e.g. `SET LOCAL lock_timeout`.
func WithTransactionSettings(stmts ...string) StateOpt {
	return func(s *State) {
		s.settings = append(s.settings, stmts...)
	}
}
