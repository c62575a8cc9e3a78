package logging

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
	"testing"

	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		in     string
		want   zap.AtomicLevel
		wantOK bool
	}{
		{"debug", zap.NewAtomicLevelAt(zap.DebugLevel), true},
		{"INFO", zap.NewAtomicLevelAt(zap.InfoLevel), true},
		{"", zap.NewAtomicLevelAt(zap.InfoLevel), true},
		{"warning", zap.NewAtomicLevelAt(zap.WarnLevel), true},
		{"error", zap.NewAtomicLevelAt(zap.ErrorLevel), true},
		{"verbose", zap.NewAtomicLevelAt(zap.InfoLevel), false},
	}
	for _, tc := range testCases {
		got, ok := ParseLevel(tc.in)
		if ok != tc.wantOK || got != tc.want.Level() {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want.Level(), tc.wantOK)
		}
	}
}

func TestNewHonoursLevel(t *testing.T) {
	t.Parallel()
	logger := New("warn")
	defer func() { _ = logger.Sync() }()
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Error("info must be disabled at warn level")
	}
	if !logger.Core().Enabled(zap.ErrorLevel) {
		t.Error("error must be enabled at warn level")
	}
}
