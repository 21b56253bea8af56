// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"

	"github.com/cloudgames/schemaboot/pkg/migrations"
)

// Target is the driver-specific side of a logical database. Errors returned
// by a Target are classified with db.Classify.
type Target interface {
	// Exists reports whether the logical database exists. A missing
	// database is (false, nil).
	Exists(ctx context.Context) (bool, error)

	// Create creates the logical database. It fails with an error classified
	// db.ClassAlreadyExists when the database is already there.
	Create(ctx context.Context) error

	// InitHistory creates the migration history table if needed.
	InitHistory(ctx context.Context) error

	// Applied returns the applied unit names in application order. A
	// missing history table yields an empty list.
	Applied(ctx context.Context) ([]string, error)

	// Apply runs unit and records it at position in one transaction.
	Apply(ctx context.Context, unit migrations.Unit, position int) error

	Close() error
}

// SyntaxChecker is implemented by targets able to validate migration units
// before they are applied.
type SyntaxChecker interface {
	CheckSyntax(units []migrations.Unit) error
}

// Registration ties a logical database to its migrations and its target.
type Registration struct {
	Name   string
	Source migrations.Source
	Target Target
}
