// Package export turns a check report into files: the dead and redirect
// reports and the cleaned filter list.
package export

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
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/x-stp/rxfilter/internal/core"
	"github.com/x-stp/rxfilter/internal/domainlib"
	rxio "github.com/x-stp/rxfilter/internal/io"
	"github.com/x-stp/rxfilter/internal/metrics"
	"github.com/x-stp/rxfilter/internal/rules"
	"github.com/x-stp/rxfilter/internal/util"
)

// RemovalOptions decide which classified domains are removed from the list.
type RemovalOptions struct {
	// IncludeRedirects also removes redirecting domains.
	IncludeRedirects bool
	// KeepResolvable keeps dead domains that still have an A record.
	KeepResolvable bool
	// IgnoreSimilar exempts redirects that stay within their base domain.
	IgnoreSimilar bool
	Table         *domainlib.BaseDomainTable
}

// RemovalSet builds the lowercase set of domains to remove from the list.
func RemovalSet(report *core.Report, opts RemovalOptions) map[string]struct{} {
	set := make(map[string]struct{})
	if report == nil {
		return set
	}
	for _, res := range report.Dead {
		if opts.KeepResolvable && res.DNS.Resolvable() {
			continue
		}
		set[strings.ToLower(res.Domain)] = struct{}{}
	}
	if !opts.IncludeRedirects {
		return set
	}
	table := opts.Table
	if table == nil {
		table = domainlib.DefaultBaseDomainTable()
	}
	for _, res := range report.Redirects {
		if table.IsSimilarRedirect(res.Domain, res.FinalDomain, opts.IgnoreSimilar) {
			continue
		}
		set[strings.ToLower(res.Domain)] = struct{}{}
	}
	return set
}

// Summary reports what an export wrote. Empty paths were not written.
type Summary struct {
	DeadPath      string
	DeadCount     int
	RedirectPath  string
	RedirectCount int
	CleanedPath   string
	Rewrite       rules.RewriteStats
	Removal       int
}

// Exporter writes the artifacts for one source list. Every file is written
// atomically, so a failure never leaves a partial artifact behind.
type Exporter struct {
	source string
	data   []byte
	digest uint64
	paths  util.OutputPaths
	mode   rules.Mode
	logger *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewExporter returns an exporter for the list read from source with
// content data.
func NewExporter(source string, data []byte, paths util.OutputPaths, mode rules.Mode, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		source: source,
		data:   data,
		digest: xxh3.Hash(data),
		paths:  paths,
		mode:   mode,
		logger: logger,
		now:    time.Now,
	}
}

// Digest returns the xxh3 digest of the source list as 16 hex digits.
func (e *Exporter) Digest() string {
	return fmt.Sprintf("%016x", e.digest)
}

// Export writes the dead report and the redirect report when they have
// entries, then the cleaned list with the removal set applied.
func (e *Exporter) Export(report *core.Report, opts RemovalOptions) (*Summary, error) {
	s := &Summary{}
	if report != nil && len(report.Dead) > 0 {
		if err := e.WriteDeadReport(report.Dead); err != nil {
			return nil, err
		}
		s.DeadPath, s.DeadCount = e.paths.Dead, len(report.Dead)
	}
	if report != nil && len(report.Redirects) > 0 {
		if err := e.WriteRedirectReport(report.Redirects); err != nil {
			return nil, err
		}
		s.RedirectPath, s.RedirectCount = e.paths.Redirect, len(report.Redirects)
	}

	remove := RemovalSet(report, opts)
	stats, err := e.WriteCleaned(remove)
	if err != nil {
		return nil, err
	}
	s.CleanedPath, s.Rewrite, s.Removal = e.paths.Cleaned, stats, len(remove)
	return s, nil
}

// WriteDeadReport writes one "domain # reason" line per dead domain,
// followed by the DNS verification outcome when there is one.
func (e *Exporter) WriteDeadReport(dead []domainlib.Result) error {
	err := rxio.WriteFile(e.paths.Dead, func(f *rxio.AtomicFile) error {
		if _, err := f.WriteString(e.header("Dead domains", len(dead))); err != nil {
			return err
		}
		for _, res := range dead {
			if _, err := f.WriteString(DeadLine(res) + "\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write dead report: %w", err)
	}
	metrics.RecordArtifact("dead")
	e.logger.Info("Dead report written", zap.String("path", e.paths.Dead), zap.Int("count", len(dead)))
	return nil
}

// WriteRedirectReport writes one "domain ? finalDomain # finalUrl" line per
// redirecting domain.
func (e *Exporter) WriteRedirectReport(redirects []domainlib.Result) error {
	err := rxio.WriteFile(e.paths.Redirect, func(f *rxio.AtomicFile) error {
		if _, err := f.WriteString(e.header("Redirecting domains", len(redirects))); err != nil {
			return err
		}
		for _, res := range redirects {
			if _, err := f.WriteString(RedirectLine(res) + "\n"); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write redirect report: %w", err)
	}
	metrics.RecordArtifact("redirect")
	e.logger.Info("Redirect report written", zap.String("path", e.paths.Redirect), zap.Int("count", len(redirects)))
	return nil
}

// WriteCleaned rewrites the source list without the domains in remove.
func (e *Exporter) WriteCleaned(remove map[string]struct{}) (rules.RewriteStats, error) {
	cleaned, stats := rules.NewRewriter(remove, e.mode).RewriteText(string(e.data))
	err := rxio.WriteFile(e.paths.Cleaned, func(f *rxio.AtomicFile) error {
		_, err := f.WriteString(cleaned)
		return err
	})
	if err != nil {
		return rules.RewriteStats{}, fmt.Errorf("failed to write cleaned list: %w", err)
	}
	metrics.RecordArtifact("cleaned")
	e.logger.Info("Cleaned list written",
		zap.String("path", e.paths.Cleaned),
		zap.Int("removed", stats.Removed),
		zap.Int("modified", stats.Modified),
		zap.Int("kept", stats.Kept))
	return stats, nil
}

func (e *Exporter) header(title string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "# Source: %s\n", e.source)
	fmt.Fprintf(&b, "# Source xxh3: %s\n", e.Digest())
	fmt.Fprintf(&b, "# Generated: %s\n", e.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "# Count: %d\n", count)
	b.WriteString("#\n")
	return b.String()
}

// DeadLine formats a dead result as a report line.
func DeadLine(res domainlib.Result) string {
	reason := res.Reason
	if reason == "" && res.StatusCode > 0 {
		reason = fmt.Sprintf("HTTP %d", res.StatusCode)
	}
	line := res.Domain + " # " + reason
	if res.DNS == nil || !res.DNS.Checked {
		return line
	}
	if res.DNS.Resolvable() {
		return line + " | DNS: " + res.DNS.Variant + " -> " + strings.Join(res.DNS.IPs, ",")
	}
	return line + " | DNS: No A record"
}

// RedirectLine formats a redirect result as a report line.
func RedirectLine(res domainlib.Result) string {
	return res.Domain + " ? " + res.FinalDomain + " # " + res.FinalURL
}
