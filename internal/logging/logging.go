// Package logging builds the structured zap logger shared by every rxfilter
// component.
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
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Levels accepted by New and by the --log-level flag.
var Levels = []string{"debug", "info", "warn", "error"}

// ParseLevel maps a level name to a zap level. ok is false for unknown names.
func ParseLevel(level string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel, true
	case "info", "":
		return zap.InfoLevel, true
	case "warn", "warning":
		return zap.WarnLevel, true
	case "error":
		return zap.ErrorLevel, true
	default:
		return zap.InfoLevel, false
	}
}

// New returns a production (JSON, stderr) logger at the given level. Unknown
// levels log at info. If the logger cannot be built a no-op logger is
// returned so that callers never have to nil-check.
func New(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	lvl, _ := ParseLevel(level)
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// Progress lines own the terminal; keep log records compact.
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
