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
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/x-stp/rxfilter/internal/domainlib"
	"github.com/x-stp/rxfilter/internal/metrics"
)

// TaskFunc resolves one task. It must always return a result; errors are
// part of the result.
type TaskFunc func(ctx context.Context, task domainlib.DomainCheckTask) domainlib.Result

// ProgressFunc is told about every finished task. Calls are serialised;
// done counts finished tasks including this one.
type ProgressFunc func(done, total int, task domainlib.DomainCheckTask, res domainlib.Result)

var raiseLimitOnce sync.Once

// Scheduler runs tasks in strictly sequential batches. All tasks of a batch
// run concurrently, each in its own goroutine writing only its own result
// slot; the next batch starts once every task of the current one returned
// and the leftovers of the batch were swept.
type Scheduler struct {
	batchSize int
	limiter   *AdaptiveLimiter
	tracker   *Tracker
	logger    *zap.Logger
}

// NewScheduler validates batchSize and returns a scheduler. limiter may be
// nil for unpaced launches. The first scheduler of the process also raises
// the open file soft limit where the platform allows it.
func NewScheduler(batchSize int, limiter *AdaptiveLimiter, tracker *Tracker, logger *zap.Logger) (*Scheduler, error) {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = NewTracker(logger)
	}
	raiseLimitOnce.Do(func() { raiseFileLimit(logger) })

	return &Scheduler{
		batchSize: batchSize,
		limiter:   limiter,
		tracker:   tracker,
		logger:    logger,
	}, nil
}

// BatchSize returns the number of tasks run at once.
func (s *Scheduler) BatchSize() int { return s.batchSize }

// Run resolves every task with fn and returns the results in task order.
// When ctx is canceled no further batch is started, the running batch is
// drained and ctx.Err() is returned.
func (s *Scheduler) Run(ctx context.Context, tasks []domainlib.DomainCheckTask, fn TaskFunc, onResult ProgressFunc) ([]domainlib.Result, error) {
	results := make([]domainlib.Result, len(tasks))
	total := len(tasks)

	var progressMu sync.Mutex
	done := 0
	report := func(task domainlib.DomainCheckTask, res domainlib.Result) {
		if onResult == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		onResult(done, total, task, res)
	}

	for start, batch := 0, 1; start < total; start, batch = start+s.batchSize, batch+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+s.batchSize, total)
		batchStart := time.Now()

		var wg sync.WaitGroup
		var launchErr error
		for i := start; i < end; i++ {
			if err := s.limiter.Wait(ctx); err != nil {
				launchErr = err
				break
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res := s.runTask(ctx, tasks[i], fn)
				results[i] = res
				report(tasks[i], res)
			}(i)
		}
		wg.Wait()

		if n := s.tracker.Sweep(); n > 0 {
			s.logger.Warn("Swept leaked pages after batch", zap.Int("batch", batch), zap.Int("count", n))
			metrics.AddResourcesSwept(n)
		}
		metrics.ObserveBatch(time.Since(batchStart))
		s.logger.Debug("Batch finished",
			zap.Int("batch", batch),
			zap.Int("tasks", end-start),
			zap.Int("done", end),
			zap.Int("total", total),
			zap.Duration("took", time.Since(batchStart)))

		if launchErr != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("rate limiter: %w", launchErr)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// runTask calls fn, turning a panic into an Active result for the task.
func (s *Scheduler) runTask(ctx context.Context, task domainlib.DomainCheckTask, fn TaskFunc) (res domainlib.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered while probing",
				zap.String("domain", task.Original),
				zap.Any("panic", r))
			res = domainlib.ActiveResult(task.Original)
		}
	}()
	return fn(ctx, task)
}
