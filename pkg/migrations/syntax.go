// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	pgq "github.com/xataio/pg_query_go/v6"
)

// CheckPostgresSyntax parses every unit with the Postgres parser and returns
// a SyntaxError for the first unit that does not parse.
func CheckPostgresSyntax(units []Unit) error {
	for _, u := range units {
		if _, err := pgq.Parse(u.Up); err != nil {
			return SyntaxError{Name: u.Name, Err: err}
		}
	}
	return nil
}
