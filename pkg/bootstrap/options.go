// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"time"

	"github.com/cloudgames/schemaboot/pkg/db"
)

const (
	DefaultMaxRetries     = 10
	DefaultDelay          = 6 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type options struct {
	// maximum number of attempts per database
	maxRetries int

	// delay between attempts
	delay time.Duration

	// upper bound on the duration of a single attempt
	attemptTimeout time.Duration

	// how the delay evolves between attempts
	strategy BackoffStrategy

	// builds the backoff used for one database, overrides strategy
	newBackoff func() Backoff

	sleep  Sleeper
	logger Logger

	// fixed run id, generated per run when empty
	runID string
}

type Option func(*options)

func defaultOptions() options {
	return options{
		maxRetries:     DefaultMaxRetries,
		delay:          DefaultDelay,
		attemptTimeout: DefaultAttemptTimeout,
		strategy:       BackoffFixed,
		sleep:          db.SleepCtx,
		logger:         NewNoopLogger(),
	}
}

// WithMaxRetries sets the maximum number of attempts per database.
// Values below 1 are ignored.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithDelay sets the delay between two attempts.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithAttemptTimeout bounds the duration of a single attempt. A zero value
// disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.attemptTimeout = d
		}
	}
}

// WithBackoffStrategy selects between a fixed and an exponential delay.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithBackoff installs a custom backoff constructor, called once per
// database.
func WithBackoff(newBackoff func() Backoff) Option {
	return func(o *options) {
		o.newBackoff = newBackoff
	}
}

// WithSleeper replaces the function used to wait between attempts.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		o.sleep = s
	}
}

// WithLogger sets the logger receiving bootstrap events.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRunID fixes the id attached to the events of every run.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

func (o *options) backoff() Backoff {
	if o.newBackoff != nil {
		return o.newBackoff()
	}
	return NewBackoff(o.strategy, o.delay)
}
