package core

/*
rxfilter — prunes dead and redirecting domains from ad-blocking filter lists
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/x-stp/rxfilter/internal/domainlib"
)

func makeTasks(n int) []domainlib.DomainCheckTask {
	tasks := make([]domainlib.DomainCheckTask, n)
	for i := range tasks {
		d := fmt.Sprintf("d%02d.example", i)
		tasks[i] = domainlib.DomainCheckTask{Original: d, Variants: []string{d}}
	}
	return tasks
}

func TestNewSchedulerBatchBounds(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		size    int
		wantErr bool
	}{
		{0, true},
		{-3, true},
		{51, true},
		{1, false},
		{DefaultBatchSize, false},
		{50, false},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(fmt.Sprint(tc.size), func(t *testing.T) {
			t.Parallel()
			s, err := NewScheduler(tc.size, nil, nil, zap.NewNop())
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidBatchSize) {
					t.Errorf("NewScheduler(%d) error = %v; want ErrInvalidBatchSize", tc.size, err)
				}
				return
			}
			if err != nil || s.BatchSize() != tc.size {
				t.Errorf("NewScheduler(%d) = %v, %v", tc.size, s, err)
			}
		})
	}
}

func TestSchedulerPreservesOrder(t *testing.T) {
	t.Parallel()
	s, err := NewScheduler(5, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	tasks := makeTasks(23)

	var calls []int
	fn := func(_ context.Context, task domainlib.DomainCheckTask) domainlib.Result {
		// Later tasks finish first within a batch.
		time.Sleep(time.Duration(10-int(task.Original[2]-'0')) * time.Millisecond)
		return domainlib.DeadResult(task.Original, 404, "HTTP 404")
	}
	results, err := s.Run(context.Background(), tasks, fn, func(done, total int, _ domainlib.DomainCheckTask, _ domainlib.Result) {
		if total != len(tasks) {
			t.Errorf("total = %d", total)
		}
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(tasks) {
		t.Fatalf("got %d results; want %d", len(results), len(tasks))
	}
	for i, res := range results {
		if res.Domain != tasks[i].Original {
			t.Errorf("results[%d].Domain = %q; want %q", i, res.Domain, tasks[i].Original)
		}
	}
	if len(calls) != len(tasks) {
		t.Fatalf("progress called %d times", len(calls))
	}
	for i, done := range calls {
		if done != i+1 {
			t.Fatalf("progress done sequence = %v", calls)
		}
	}
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	t.Parallel()
	const batch = 4
	s, err := NewScheduler(batch, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var inFlight, peak atomic.Int32
	fn := func(_ context.Context, task domainlib.DomainCheckTask) domainlib.Result {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return domainlib.ActiveResult(task.Original)
	}
	if _, err := s.Run(context.Background(), makeTasks(18), fn, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p := peak.Load(); p > batch || p < 1 {
		t.Errorf("peak concurrency = %d; want 1..%d", p, batch)
	}
}

func TestSchedulerRecoversPanics(t *testing.T) {
	t.Parallel()
	s, err := NewScheduler(3, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	tasks := makeTasks(6)
	fn := func(_ context.Context, task domainlib.DomainCheckTask) domainlib.Result {
		if task.Original == tasks[2].Original {
			panic("page exploded")
		}
		return domainlib.DeadResult(task.Original, 0, "No response")
	}

	results, err := s.Run(context.Background(), tasks, fn, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, res := range results {
		want := domainlib.Dead
		if i == 2 {
			want = domainlib.Active
		}
		if res.Kind != want || res.Domain != tasks[i].Original {
			t.Errorf("results[%d] = %+v; want kind %v", i, res, want)
		}
	}
}

type countingCloser struct{ closed atomic.Int32 }

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestSchedulerSweepsLeakedResources(t *testing.T) {
	t.Parallel()
	tracker := NewTracker(zap.NewNop())
	s, err := NewScheduler(2, nil, tracker, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	leaked := &countingCloser{}
	var openAtBatchStart []int
	fn := func(_ context.Context, task domainlib.DomainCheckTask) domainlib.Result {
		if task.Original == "d00.example" {
			tracker.Add(leaked, "https://"+task.Original)
		}
		return domainlib.ActiveResult(task.Original)
	}
	_, err = s.Run(context.Background(), makeTasks(4), fn, func(done, _ int, _ domainlib.DomainCheckTask, _ domainlib.Result) {
		if done == 3 {
			openAtBatchStart = append(openAtBatchStart, tracker.Open())
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if leaked.closed.Load() != 1 {
		t.Errorf("leaked resource closed %d times; want 1", leaked.closed.Load())
	}
	if len(openAtBatchStart) != 1 || openAtBatchStart[0] != 0 {
		t.Errorf("resources open during second batch = %v; want [0]", openAtBatchStart)
	}
}

func TestSchedulerCancel(t *testing.T) {
	t.Parallel()
	s, err := NewScheduler(3, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started atomic.Int32
	fn := func(_ context.Context, task domainlib.DomainCheckTask) domainlib.Result {
		started.Add(1)
		cancel()
		return domainlib.ActiveResult(task.Original)
	}
	results, err := s.Run(ctx, makeTasks(9), fn, nil)
	if !errors.Is(err, context.Canceled) || results != nil {
		t.Fatalf("Run = %v, %v; want nil, context.Canceled", results, err)
	}
	if n := started.Load(); n > 3 {
		t.Errorf("%d tasks started; no batch may start after cancellation", n)
	}
}

func TestSchedulerPacesLaunches(t *testing.T) {
	t.Parallel()
	s, err := NewScheduler(10, NewAdaptiveLimiter(50), nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	fn := func(_ context.Context, task domainlib.DomainCheckTask) domainlib.Result {
		return domainlib.ActiveResult(task.Original)
	}
	if _, err := s.Run(context.Background(), makeTasks(6), fn, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Burst of one at 50/s: five waits of 20ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("6 launches at 50/s took %v", elapsed)
	}
}

func TestSchedulerEmpty(t *testing.T) {
	t.Parallel()
	s, err := NewScheduler(1, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.Run(context.Background(), nil, nil, nil)
	if err != nil || len(results) != 0 {
		t.Errorf("Run(nil) = %v, %v", results, err)
	}
}
