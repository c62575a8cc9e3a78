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
	"testing"
	"time"
)

func TestAdaptiveLimiterUnlimited(t *testing.T) {
	t.Parallel()
	for _, l := range []*AdaptiveLimiter{nil, NewAdaptiveLimiter(0), NewAdaptiveLimiter(-1)} {
		start := time.Now()
		for i := 0; i < 100; i++ {
			if err := l.Wait(context.Background()); err != nil {
				t.Fatalf("Wait: %v", err)
			}
		}
		if time.Since(start) > 100*time.Millisecond {
			t.Error("unlimited limiter waited")
		}
		l.RecordFailure()
		l.RecordSuccess()
		if r := l.CurrentRate(); r != 0 {
			t.Errorf("CurrentRate() = %v; want 0", r)
		}
		if l.Stats()["current_rate"] != 0.0 {
			t.Errorf("Stats() = %v", l.Stats())
		}
	}
}

func TestAdaptiveLimiterAdjusts(t *testing.T) {
	t.Parallel()
	l := NewAdaptiveLimiter(10)
	if r := l.CurrentRate(); r != 10 {
		t.Fatalf("initial rate = %v; want the ceiling", r)
	}

	l.RecordFailure()
	if r := l.CurrentRate(); r != 5 {
		t.Errorf("after one failure rate = %v; want 5", r)
	}
	for i := 0; i < 10; i++ {
		l.RecordFailure()
	}
	if r := l.CurrentRate(); r != MinRate {
		t.Errorf("rate = %v; want floor %v", r, MinRate)
	}

	l.RecordSuccess()
	if r := l.CurrentRate(); r != MinRate+1 {
		t.Errorf("after one success rate = %v; want %v", r, MinRate+1)
	}
	for i := 0; i < 20; i++ {
		l.RecordSuccess()
	}
	if r := l.CurrentRate(); r != 10 {
		t.Errorf("rate = %v; want ceiling 10", r)
	}

	stats := l.Stats()
	if stats["success_count"].(uint64) != 21 || stats["failure_count"].(uint64) != 11 {
		t.Errorf("Stats() = %v", stats)
	}
}

func TestAdaptiveLimiterLowCeiling(t *testing.T) {
	t.Parallel()
	l := NewAdaptiveLimiter(0.2)
	l.RecordFailure()
	if r := l.CurrentRate(); r != 0.2 {
		t.Errorf("rate = %v; a ceiling below MinRate is its own floor", r)
	}
}

func TestAdaptiveLimiterWaitHonoursContext(t *testing.T) {
	t.Parallel()
	l := NewAdaptiveLimiter(0.5)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("Wait should fail when the next token is beyond the deadline")
	}
}
