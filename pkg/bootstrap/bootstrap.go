// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/cloudgames/schemaboot/pkg/db"
	"github.com/cloudgames/schemaboot/pkg/migrations"
	"github.com/cloudgames/schemaboot/pkg/state"
)

// Existence is the last known existence of a logical database.
type Existence int

const (
	ExistenceUnknown Existence = iota
	ExistenceAbsent
	ExistencePresent
)

func (e Existence) String() string {
	switch e {
	case ExistenceAbsent:
		return "absent"
	case ExistencePresent:
		return "present"
	default:
		return "unknown"
	}
}

// LogicalDatabase is the in-memory view of one registered database during a
// run.
type LogicalDatabase struct {
	Name    string
	Exists  Existence
	Applied []string
	Pending []string

	// RaceDetected is set once another replica was seen creating the
	// database, the history table or a unit first.
	RaceDetected bool
}

func (l *LogicalDatabase) markApplied(name string) {
	l.Applied = append(l.Applied, name)
	l.Pending = slices.DeleteFunc(l.Pending, func(p string) bool { return p == name })
}

// CreateOutcome is the non-error result of creating a database.
type CreateOutcome int

const (
	CreateCreated CreateOutcome = iota
	CreateAlreadyExists
)

// Summary describes a database that reached Success.
type Summary struct {
	Name         string        `json:"name"`
	Created      bool          `json:"created"`
	Applied      int           `json:"applied"`
	Attempts     int           `json:"attempts"`
	RaceDetected bool          `json:"raceDetected"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Result is the outcome of bootstrapping every registration of a run.
type Result struct {
	RunID     string    `json:"runId"`
	Summaries []Summary `json:"summaries"`

	// Failed names the first database that did not reach Success.
	Failed string `json:"failed,omitempty"`
	Err    error  `json:"-"`
}

// OK reports whether every registered database reached Success.
func (r *Result) OK() bool {
	return r.Err == nil && r.Failed == ""
}

// Coordinator bootstraps an ordered list of logical databases.
type Coordinator struct {
	opts       options
	supervisor *Supervisor
}

func New(opts ...Option) *Coordinator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Coordinator{opts: o, supervisor: &Supervisor{opts: o}}
}

// Bootstrap brings every registration, in order, to a fully migrated state.
// It stops at the first database that fails and never touches the ones
// after it. The returned error is the Result's Err.
func (c *Coordinator) Bootstrap(ctx context.Context, regs []Registration) (*Result, error) {
	runID := c.opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := c.opts.logger.WithRunID(runID)

	result := &Result{RunID: runID}
	fail := func(name string, err error) (*Result, error) {
		result.Failed = name
		result.Err = err
		return result, err
	}

	if err := validateRegistrations(regs); err != nil {
		return fail("", err)
	}

	for _, reg := range regs {
		units, err := loadUnits(reg)
		if err != nil {
			logger.Info("bootstrap aborted", "database", reg.Name, "error", err.Error())
			return fail(reg.Name, err)
		}

		summary, err := c.bootstrapOne(ctx, logger, reg, units)
		if err != nil {
			return fail(reg.Name, err)
		}
		result.Summaries = append(result.Summaries, summary)
	}

	return result, nil
}

func (c *Coordinator) bootstrapOne(ctx context.Context, logger Logger, reg Registration, units []migrations.Unit) (Summary, error) {
	start := time.Now()
	ldb := &LogicalDatabase{Name: reg.Name}
	summary := Summary{Name: reg.Name}
	applier := NewApplier(logger)

	report, err := c.supervisor.run(ctx, reg.Name, logger, func(ctx context.Context, _ int) error {
		ldb.Exists = ExistenceUnknown

		exists, err := reg.Target.Exists(ctx)
		if err != nil {
			return &ConnectivityError{Database: reg.Name, Err: err}
		}

		if exists {
			ldb.Exists = ExistencePresent
		} else {
			ldb.Exists = ExistenceAbsent
			logger.LogDatabaseNotFound(reg.Name)

			outcome, err := createIfAbsent(ctx, reg.Target)
			if err != nil {
				return err
			}
			switch outcome {
			case CreateCreated:
				summary.Created = true
				logger.LogDatabaseCreated(reg.Name)
			case CreateAlreadyExists:
				ldb.RaceDetected = true
				logger.LogDatabaseRace(reg.Name)
			}
			ldb.Exists = ExistencePresent
		}

		n, err := applier.Apply(ctx, ldb, reg.Target, units)
		summary.Applied += n
		return err
	})

	summary.Attempts = len(report.Attempts)
	summary.RaceDetected = ldb.RaceDetected
	summary.Elapsed = time.Since(start)
	if err != nil {
		return summary, err
	}

	logger.LogDatabaseReady(reg.Name, summary.Attempts, summary.Elapsed)
	return summary, nil
}

// createIfAbsent creates the database behind target. An error classified
// db.ClassAlreadyExists means a concurrent replica created it first.
func createIfAbsent(ctx context.Context, target Target) (CreateOutcome, error) {
	err := target.Create(ctx)
	switch {
	case err == nil:
		return CreateCreated, nil
	case db.IsAlreadyExists(err):
		return CreateAlreadyExists, nil
	default:
		return 0, err
	}
}

// Status reports, for every registration, whether its database exists and
// which units are applied and pending. It creates nothing and does not
// retry.
func (c *Coordinator) Status(ctx context.Context, regs []Registration) ([]state.Status, error) {
	if err := validateRegistrations(regs); err != nil {
		return nil, err
	}

	statuses := make([]state.Status, 0, len(regs))
	for _, reg := range regs {
		units, err := loadUnits(reg)
		if err != nil {
			return statuses, err
		}

		st, err := status(ctx, reg, units)
		if err != nil {
			return statuses, fmt.Errorf("database %q: %w", reg.Name, err)
		}
		statuses = append(statuses, st)
	}

	return statuses, nil
}

func status(ctx context.Context, reg Registration, units []migrations.Unit) (state.Status, error) {
	st := state.Status{Database: reg.Name, Applied: []string{}}

	exists, err := reg.Target.Exists(ctx)
	if err != nil {
		return st, err
	}
	st.Exists = exists

	var pending []migrations.Unit
	if exists {
		applied, err := reg.Target.Applied(ctx)
		if err != nil {
			return st, err
		}
		if pending, err = pendingUnits(units, applied); err != nil {
			return st, &FatalConfigurationError{Database: reg.Name, Reason: "migration history diverged", Err: err}
		}
		if applied != nil {
			st.Applied = applied
		}
	} else {
		pending = units
	}

	st.Pending = migrations.Names(pending)
	st.Status = state.StatusOf(st.Exists, st.Applied, st.Pending)
	return st, nil
}

// Validate checks the registrations and their migration sources without
// touching any database.
func Validate(regs []Registration) error {
	if err := validateRegistrations(regs); err != nil {
		return err
	}

	var errs []error
	for _, reg := range regs {
		if _, err := loadUnits(reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateRegistrations(regs []Registration) error {
	seen := make(map[string]struct{}, len(regs))
	for i, reg := range regs {
		if reg.Name == "" {
			return &FatalConfigurationError{Reason: fmt.Sprintf("registration %d has no name", i+1)}
		}
		if _, ok := seen[reg.Name]; ok {
			return &FatalConfigurationError{Database: reg.Name, Reason: "registered more than once"}
		}
		seen[reg.Name] = struct{}{}

		if reg.Target == nil {
			return &FatalConfigurationError{Database: reg.Name, Reason: "no target configured"}
		}
	}
	return nil
}

// loadUnits reads the units of reg and runs the target's syntax check, if
// any. Every failure is fatal.
func loadUnits(reg Registration) ([]migrations.Unit, error) {
	if reg.Source == nil {
		return nil, &FatalConfigurationError{Database: reg.Name, Reason: "missing migration source"}
	}

	units, err := reg.Source.Units()
	if err != nil {
		return nil, &FatalConfigurationError{Database: reg.Name, Reason: "reading migrations", Err: err}
	}

	if checker, ok := reg.Target.(SyntaxChecker); ok {
		if err := checker.CheckSyntax(units); err != nil {
			return nil, &FatalConfigurationError{Database: reg.Name, Reason: "malformed migration", Err: err}
		}
	}

	return units, nil
}
