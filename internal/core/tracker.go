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
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tracker keeps every page an attempt has opened until the attempt releases
// it. Whatever is still open when a batch ends was leaked by a hung or
// abandoned attempt and is force-closed by Sweep.
type Tracker struct {
	mu     sync.Mutex
	open   map[uint64]tracked
	next   uint64
	logger *zap.Logger
}

type tracked struct {
	res    io.Closer
	label  string
	opened time.Time
}

// NewTracker returns an empty tracker.
func NewTracker(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{open: make(map[uint64]tracked), logger: logger}
}

// Add registers res under label (usually the URL being probed) and returns
// the handle to release it with.
func (t *Tracker) Add(res io.Closer, label string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.open[t.next] = tracked{res: res, label: label, opened: time.Now()}
	return t.next
}

// Release closes and forgets the resource behind id. Releasing an id twice,
// or one that was already swept, does nothing.
func (t *Tracker) Release(id uint64) {
	t.mu.Lock()
	r, ok := t.open[id]
	delete(t.open, id)
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := r.res.Close(); err != nil {
		t.logger.Debug("Closing page failed", zap.String("url", r.label), zap.Error(err))
	}
}

// Open returns the number of resources not yet released.
func (t *Tracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Sweep force-closes every resource still open and returns how many there
// were.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	leaked := t.open
	t.open = make(map[uint64]tracked)
	t.mu.Unlock()

	for _, r := range leaked {
		t.logger.Warn("Force-closing leaked page",
			zap.String("url", r.label),
			zap.Duration("age", time.Since(r.opened)))
		if err := r.res.Close(); err != nil {
			t.logger.Debug("Closing leaked page failed", zap.String("url", r.label), zap.Error(err))
		}
	}
	return len(leaked)
}
