// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"time"

	"github.com/cloudflare/backoff"
)

// Backoff yields the delay to wait before the next attempt.
type Backoff interface {
	Duration() time.Duration
	Reset()
}

// FixedBackoff waits the same delay before every attempt.
type FixedBackoff time.Duration

func (b FixedBackoff) Duration() time.Duration { return time.Duration(b) }

func (b FixedBackoff) Reset() {}

// NewExponentialBackoff returns a jittered exponential backoff starting at
// interval and capped at maxDelay.
func NewExponentialBackoff(maxDelay, interval time.Duration) Backoff {
	return backoff.New(maxDelay, interval)
}

// BackoffStrategy names how the delay between attempts evolves.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// exponentialCapFactor bounds the exponential delay relative to the
// configured base delay.
const exponentialCapFactor = 10

// NewBackoff builds the Backoff for strategy. The exponential strategy
// starts at delay and grows up to ten times delay.
func NewBackoff(strategy BackoffStrategy, delay time.Duration) Backoff {
	if strategy == BackoffExponential {
		return NewExponentialBackoff(delay*exponentialCapFactor, delay)
	}
	return FixedBackoff(delay)
}
