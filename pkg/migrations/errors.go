// SPDX-License-Identifier: Apache-2.0

package migrations

import "fmt"

type InvalidMigrationError struct {
	Reason string
}

func (e InvalidMigrationError) Error() string {
	return e.Reason
}

type EmptyMigrationError struct {
	Name string
}

func (e EmptyMigrationError) Error() string {
	return fmt.Sprintf("migration %q is empty", e.Name)
}

type DuplicateMigrationError struct {
	Name string
}

func (e DuplicateMigrationError) Error() string {
	return fmt.Sprintf("migration %q is defined more than once", e.Name)
}

type SyntaxError struct {
	Name string
	Err  error
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("migration %q is not valid SQL: %s", e.Name, e.Err)
}

func (e SyntaxError) Unwrap() error {
	return e.Err
}
