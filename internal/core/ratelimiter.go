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
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/x-stp/rxfilter/internal/metrics"
)

const (
	// MinRate is the lowest launch rate, in launches per second, that
	// failures can push the limiter down to. A ceiling below MinRate is its
	// own floor.
	MinRate = 0.5
	// RateIncreaseFraction of the ceiling is added back per success.
	RateIncreaseFraction = 0.1
	// RateDecreaseFactor multiplies the current rate on a connection failure.
	RateDecreaseFactor = 0.5
)

// AdaptiveLimiter paces navigation launches. It starts at its ceiling,
// halves the rate whenever a probe fails at the connection level and climbs
// back in small additive steps on every success.
//
// A nil *AdaptiveLimiter, or one built with a ceiling of 0, never waits.
// All methods are safe for concurrent use.
type AdaptiveLimiter struct {
	limiter *rate.Limiter
	ceiling float64
	floor   float64

	mu           sync.Mutex // serialises rate adjustments
	successCount atomic.Uint64
	failureCount atomic.Uint64
}

// NewAdaptiveLimiter returns a limiter capped at ceiling launches per
// second. A ceiling <= 0 disables pacing.
func NewAdaptiveLimiter(ceiling float64) *AdaptiveLimiter {
	if ceiling <= 0 || math.IsInf(ceiling, 1) {
		return &AdaptiveLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(rate.Limit(ceiling), 1),
		ceiling: ceiling,
		floor:   math.Min(MinRate, ceiling),
	}
}

func (l *AdaptiveLimiter) unlimited() bool {
	return l == nil || l.ceiling <= 0
}

// Wait blocks until the next launch is allowed or ctx is done.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	if l.unlimited() {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// RecordSuccess is called after a probe that reached the network
// successfully and may raise the rate.
func (l *AdaptiveLimiter) RecordSuccess() {
	if l == nil {
		return
	}
	l.successCount.Add(1)
	l.adjustRate(true)
}

// RecordFailure is called after a connection-level probe failure and lowers
// the rate.
func (l *AdaptiveLimiter) RecordFailure() {
	if l == nil {
		return
	}
	l.failureCount.Add(1)
	l.adjustRate(false)
}

func (l *AdaptiveLimiter) adjustRate(success bool) {
	if l.unlimited() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current := float64(l.limiter.Limit())
	var newRate float64
	if success {
		newRate = math.Min(current+l.ceiling*RateIncreaseFraction, l.ceiling)
	} else {
		newRate = math.Max(current*RateDecreaseFactor, l.floor)
	}
	if newRate != current {
		l.limiter.SetLimit(rate.Limit(newRate))
		metrics.SetLimiterRate(newRate)
	}
}

// CurrentRate returns the current launch rate, or 0 when pacing is off.
func (l *AdaptiveLimiter) CurrentRate() float64 {
	if l.unlimited() {
		return 0
	}
	return float64(l.limiter.Limit())
}

// Stats returns a snapshot of the limiter for logging.
func (l *AdaptiveLimiter) Stats() map[string]interface{} {
	if l == nil {
		return map[string]interface{}{"current_rate": 0.0}
	}
	return map[string]interface{}{
		"current_rate":  l.CurrentRate(),
		"ceiling":       l.ceiling,
		"success_count": l.successCount.Load(),
		"failure_count": l.failureCount.Load(),
	}
}
