// SPDX-License-Identifier: Apache-2.0

package migrations

import (
	"fmt"
	"slices"
	"strings"
)

// Unit is a single named, ordered schema change. The statement text in Up
// is opaque to the coordinator and must be safe to run exactly once.
type Unit struct {
	// Name identifies the unit in the migration history table.
	Name string `json:"name"`

	// Up holds the statements applying the change.
	Up string `json:"up"`

	// Source is the file the unit was read from, if any.
	Source string `json:"-"`
}

// Source supplies the ordered units for one logical database.
type Source interface {
	Units() ([]Unit, error)
}

// ListSource is a Source over a fixed, in-memory list of units.
type ListSource []Unit

// Units returns a copy of the list after validating it.
func (s ListSource) Units() ([]Unit, error) {
	units := slices.Clone([]Unit(s))
	if err := Validate(units); err != nil {
		return nil, err
	}
	return units, nil
}

// Names returns the unit names in order.
func Names(units []Unit) []string {
	names := make([]string, 0, len(units))
	for _, u := range units {
		names = append(names, u.Name)
	}
	return names
}

// Validate checks that every unit has a name and a body and that names are
// unique.
func Validate(units []Unit) error {
	seen := make(map[string]struct{}, len(units))
	for i, u := range units {
		if u.Name == "" {
			return InvalidMigrationError{Reason: fmt.Sprintf("migration at position %d has no name", i+1)}
		}
		if strings.TrimSpace(u.Up) == "" {
			return EmptyMigrationError{Name: u.Name}
		}
		if _, ok := seen[u.Name]; ok {
			return DuplicateMigrationError{Name: u.Name}
		}
		seen[u.Name] = struct{}{}
	}
	return nil
}
