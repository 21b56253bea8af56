// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"fmt"
	"slices"

	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/migrations"
)

// Applier brings the migration history of a logical database in line with
// its source. It holds no locks: races with concurrent replicas are resolved
// by re-reading the history.
type Applier struct {
	logger Logger
}

func NewApplier(logger Logger) *Applier {
	if logger == nil {
		logger = NewNoopLogger()
	}
	return &Applier{logger: logger}
}

// Pending ensures the history table exists and returns the units of units
// not yet applied, in source order. ldb.Applied and ldb.Pending are
// refreshed.
func (a *Applier) Pending(ctx context.Context, ldb *LogicalDatabase, target Target, units []migrations.Unit) ([]migrations.Unit, error) {
	if err := target.InitHistory(ctx); err != nil {
		if !db.IsAlreadyExists(err) {
			return nil, err
		}
		// a concurrent replica created the history table first
		ldb.RaceDetected = true
		a.logger.LogRaceDetected(ldb.Name, "history table")
	}

	return a.refresh(ctx, ldb, target, units)
}

// Apply applies every pending unit in order and returns how many units this
// call applied. Units applied concurrently by another replica are skipped
// and not counted.
func (a *Applier) Apply(ctx context.Context, ldb *LogicalDatabase, target Target, units []migrations.Unit) (int, error) {
	pending, err := a.Pending(ctx, ldb, target, units)
	if err != nil {
		return 0, err
	}

	if len(pending) == 0 {
		return 0, nil
	}
	a.logger.LogMigrationsPending(ldb.Name, len(pending))

	applied := 0
	for _, unit := range pending {
		position := slices.IndexFunc(units, func(u migrations.Unit) bool { return u.Name == unit.Name }) + 1

		if err := target.Apply(ctx, unit, position); err != nil {
			if !db.IsAlreadyExists(err) {
				return applied, &MigrationApplicationError{Database: ldb.Name, Unit: unit.Name, Err: err}
			}

			// confirm the racing replica recorded the unit
			if _, rerr := a.refresh(ctx, ldb, target, units); rerr != nil {
				return applied, rerr
			}
			if !slices.Contains(ldb.Applied, unit.Name) {
				return applied, &MigrationApplicationError{Database: ldb.Name, Unit: unit.Name, Err: err}
			}
			ldb.RaceDetected = true
			a.logger.LogRaceDetected(ldb.Name, unit.Name)
			continue
		}

		applied++
		ldb.markApplied(unit.Name)
	}

	a.logger.LogMigrationsApplied(ldb.Name, applied, len(ldb.Pending))
	return applied, nil
}

func (a *Applier) refresh(ctx context.Context, ldb *LogicalDatabase, target Target, units []migrations.Unit) ([]migrations.Unit, error) {
	applied, err := target.Applied(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := pendingUnits(units, applied)
	if err != nil {
		return nil, &FatalConfigurationError{Database: ldb.Name, Reason: "migration history diverged", Err: err}
	}

	ldb.Applied = applied
	ldb.Pending = migrations.Names(pending)
	return pending, nil
}

// pendingUnits returns the units not in applied. Every applied name must
// belong to units and appear in source order, and no pending unit may come
// before the last applied one: units are only ever applied in source order.
func pendingUnits(units []migrations.Unit, applied []string) ([]migrations.Unit, error) {
	index := make(map[string]int, len(units))
	for i, u := range units {
		index[u.Name] = i
	}

	done := make(map[string]bool, len(applied))
	last := -1
	for _, name := range applied {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("applied migration %q is not in the migration source", name)
		}
		if i < last {
			return nil, fmt.Errorf("applied migration %q is out of order", name)
		}
		last = i
		done[name] = true
	}

	pending := make([]migrations.Unit, 0, len(units)-len(done))
	for i, u := range units {
		if done[u.Name] {
			continue
		}
		if i < last {
			return nil, fmt.Errorf("migration %q comes before applied migration %q", u.Name, units[last].Name)
		}
		pending = append(pending, u)
	}
	return pending, nil
}
