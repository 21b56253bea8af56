// SPDX-License-Identifier: Apache-2.0

package bootstrap_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cloudgames/schemaboot/pkg/migrations"
)

// fakeTarget is an in-memory Target. Hooks run before the default
// behaviour; a non-nil error from a hook is returned as is.
type fakeTarget struct {
	mu sync.Mutex

	exists    bool
	applied   []string
	positions map[string]int

	existsHook func(call int) error
	createHook func(t *fakeTarget) error
	initHook   func() error
	applyHook  func(t *fakeTarget, unit migrations.Unit) error

	existsCalls int
	createCalls int
	applyCalls  int
	closed      bool
}

func newFakeTarget(exists bool, applied ...string) *fakeTarget {
	return &fakeTarget{exists: exists, applied: applied, positions: map[string]int{}}
}

func (f *fakeTarget) Exists(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.existsCalls++
	if f.existsHook != nil {
		if err := f.existsHook(f.existsCalls); err != nil {
			return false, err
		}
	}
	return f.exists, nil
}

func (f *fakeTarget) Create(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if f.createHook != nil {
		if err := f.createHook(f); err != nil {
			return err
		}
	}
	f.exists = true
	return nil
}

func (f *fakeTarget) InitHistory(ctx context.Context) error {
	if f.initHook != nil {
		return f.initHook()
	}
	return nil
}

func (f *fakeTarget) Applied(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.applied), nil
}

func (f *fakeTarget) Apply(ctx context.Context, unit migrations.Unit, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applyCalls++
	if f.applyHook != nil {
		if err := f.applyHook(f, unit); err != nil {
			return err
		}
	}
	f.applied = append(f.applied, unit.Name)
	f.positions[unit.Name] = position
	return nil
}

func (f *fakeTarget) Close() error {
	f.closed = true
	return nil
}

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delays)
}

func units(names ...string) migrations.ListSource {
	list := make(migrations.ListSource, 0, len(names))
	for _, n := range names {
		list = append(list, migrations.Unit{Name: n, Up: "CREATE TABLE " + n + " (id int)"})
	}
	return list
}
