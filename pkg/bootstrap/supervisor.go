// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"time"
)

// State is a state of the retry supervisor.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateBackoff
	StateSuccess
	StateExhausted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateExhausted || s == StateCancelled
}

// Outcome is the result of a single attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient"
	OutcomeFatal     Outcome = "fatal"
	OutcomeCancelled Outcome = "cancelled"
)

// Attempt records one pass of probe, create and migrate for a database.
type Attempt struct {
	Number  int
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// AttemptFunc runs one attempt. attempt is 1-based.
type AttemptFunc func(ctx context.Context, attempt int) error

// Supervisor runs attempts in a bounded retry loop.
type Supervisor struct {
	opts options
}

// NewSupervisor returns a Supervisor configured by opts.
func NewSupervisor(opts ...Option) *Supervisor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Supervisor{opts: o}
}

// Report is the outcome of a supervised run.
type Report struct {
	State    State
	Attempts []Attempt
}

// Run drives fn until it succeeds, fails fatally, runs out of attempts or
// ctx is cancelled. The returned error is nil on success, an
// *ExhaustedError or a *CancelledError.
func (s *Supervisor) Run(ctx context.Context, database string, fn AttemptFunc) (Report, error) {
	return s.run(ctx, database, s.opts.logger, fn)
}

func (s *Supervisor) run(ctx context.Context, database string, logger Logger, fn AttemptFunc) (Report, error) {
	report := Report{State: StateIdle}
	b := s.opts.backoff()
	b.Reset()

	var lastErr error
	for attempt := 1; ; attempt++ {
		report.State = StateAttempting

		a := s.attempt(ctx, attempt, fn)
		report.Attempts = append(report.Attempts, a)

		switch a.Outcome {
		case OutcomeSuccess:
			report.State = StateSuccess
			return report, nil

		case OutcomeCancelled:
			report.State = StateCancelled
			logger.LogBootstrapCancelled(database)
			return report, &CancelledError{Database: database, Attempts: attempt, Err: a.Err}

		case OutcomeFatal:
			logger.LogAttemptFailed(database, attempt, s.opts.maxRetries, classOf(a.Err), a.Err)
			report.State = StateExhausted
			logger.LogRetriesExhausted(database, attempt, a.Err)
			return report, &ExhaustedError{Database: database, Attempts: attempt, Err: a.Err}
		}

		lastErr = a.Err
		logger.LogAttemptFailed(database, attempt, s.opts.maxRetries, classOf(a.Err), a.Err)

		if attempt >= s.opts.maxRetries {
			report.State = StateExhausted
			logger.LogRetriesExhausted(database, attempt, lastErr)
			return report, &ExhaustedError{Database: database, Attempts: attempt, Err: lastErr}
		}

		report.State = StateBackoff
		if err := s.opts.sleep(ctx, b.Duration()); err != nil {
			report.State = StateCancelled
			logger.LogBootstrapCancelled(database)
			return report, &CancelledError{Database: database, Attempts: attempt, Err: errors.Join(err, lastErr)}
		}
	}
}

func (s *Supervisor) attempt(ctx context.Context, number int, fn AttemptFunc) Attempt {
	if err := ctx.Err(); err != nil {
		return Attempt{Number: number, Outcome: OutcomeCancelled, Err: err}
	}

	attemptCtx := ctx
	if s.opts.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.opts.attemptTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(attemptCtx, number)
	a := Attempt{Number: number, Err: err, Elapsed: time.Since(start)}

	switch {
	case err == nil:
		a.Outcome = OutcomeSuccess
	case ctx.Err() != nil:
		a.Outcome = OutcomeCancelled
	case isFatal(err):
		a.Outcome = OutcomeFatal
	default:
		a.Outcome = OutcomeTransient
	}

	return a
}
