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
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/x-stp/rxfilter/internal/client"
	"github.com/x-stp/rxfilter/internal/config"
	"github.com/x-stp/rxfilter/internal/domainlib"
	"github.com/x-stp/rxfilter/internal/metrics"
)

// Resolver is the DNS capability the checker needs. LookupToggle returns the
// variant that answered (the host or its www.-toggled form) and its IPv4
// addresses, or "" and nil when neither resolved.
type Resolver interface {
	LookupToggle(ctx context.Context, host string) (string, []string)
}

// Report is the outcome of a check run. Dead and Redirects keep task order.
type Report struct {
	Total     int
	Dead      []domainlib.Result
	Redirects []domainlib.Result
	Active    int
	Duration  time.Duration
}

// CheckStats holds running totals that may be read while a run is going on.
type CheckStats struct {
	Queued    atomic.Int64
	Processed atomic.Int64
	Dead      atomic.Int64
	Redirects atomic.Int64
	Active    atomic.Int64
}

// StatsSnapshot is a consistent-enough copy of CheckStats for display.
type StatsSnapshot struct {
	Queued, Processed, Dead, Redirects, Active int64
}

// Snapshot copies the counters.
func (s *CheckStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queued:    s.Queued.Load(),
		Processed: s.Processed.Load(),
		Dead:      s.Dead.Load(),
		Redirects: s.Redirects.Load(),
		Active:    s.Active.Load(),
	}
}

func (s *CheckStats) record(res domainlib.Result) {
	s.Processed.Add(1)
	switch res.Kind {
	case domainlib.Dead:
		s.Dead.Add(1)
	case domainlib.Redirect:
		s.Redirects.Add(1)
	default:
		s.Active.Add(1)
	}
}

// Checker wires the classifier, the scheduler and DNS verification for a
// whole run.
type Checker struct {
	cfg        config.Config
	classifier *Classifier
	scheduler  *Scheduler
	resolver   Resolver
	limiter    *AdaptiveLimiter
	stats      CheckStats
	logger     *zap.Logger
}

// NewChecker validates cfg and builds a checker. resolver may be nil when
// cfg.DNSCheck is off.
func NewChecker(cfg config.Config, browser client.Browser, resolver Resolver,
	table *domainlib.BaseDomainTable, logger *zap.Logger) (*Checker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.DNSCheck && resolver == nil {
		return nil, fmt.Errorf("dns verification enabled without a resolver")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tracker := NewTracker(logger)
	limiter := NewAdaptiveLimiter(cfg.Rate)
	scheduler, err := NewScheduler(cfg.Concurrency, limiter, tracker, logger)
	if err != nil {
		return nil, err
	}
	metrics.SetLimiterRate(limiter.CurrentRate())

	return &Checker{
		cfg:        cfg,
		classifier: NewClassifier(browser, cfg, table, tracker, limiter, logger),
		scheduler:  scheduler,
		resolver:   resolver,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// Stats returns the live counters of the checker.
func (c *Checker) Stats() *CheckStats { return &c.stats }

// Limiter returns the launch limiter, for reporting.
func (c *Checker) Limiter() *AdaptiveLimiter { return c.limiter }

// Prepare drops ignored domains, applies the domain cap and expands the
// rest into tasks.
func (c *Checker) Prepare(domains []string) []domainlib.DomainCheckTask {
	ignore := c.cfg.IgnoreSet()
	kept := make([]string, 0, len(domains))
	for _, d := range domains {
		if _, skip := ignore[strings.ToLower(d)]; skip {
			continue
		}
		kept = append(kept, d)
	}
	if skipped := len(domains) - len(kept); skipped > 0 {
		c.logger.Info("Ignored domains skipped", zap.Int("count", skipped))
	}
	if c.cfg.MaxDomains > 0 && len(kept) > c.cfg.MaxDomains {
		c.logger.Info("Domain cap applied",
			zap.Int("cap", c.cfg.MaxDomains),
			zap.Int("dropped", len(kept)-c.cfg.MaxDomains))
		kept = kept[:c.cfg.MaxDomains]
	}
	return domainlib.ExpandWithWWW(kept, c.cfg.AddWWW)
}

// Run checks domains and, when enabled, verifies the dead ones over DNS.
// onResult may be nil.
func (c *Checker) Run(ctx context.Context, domains []string, onResult ProgressFunc) (*Report, error) {
	start := time.Now()
	tasks := c.Prepare(domains)
	c.stats.Queued.Store(int64(len(tasks)))
	c.logger.Info("Checking domains",
		zap.Int("tasks", len(tasks)),
		zap.Int("batch_size", c.scheduler.BatchSize()),
		zap.Float64("rate", c.limiter.CurrentRate()))

	progress := func(done, total int, task domainlib.DomainCheckTask, res domainlib.Result) {
		c.stats.record(res)
		if onResult != nil {
			onResult(done, total, task, res)
		}
	}
	results, err := c.scheduler.Run(ctx, tasks, c.classifier.Classify, progress)
	if err != nil {
		return nil, err
	}

	report := &Report{Total: len(results)}
	for _, res := range results {
		switch res.Kind {
		case domainlib.Dead:
			report.Dead = append(report.Dead, res)
		case domainlib.Redirect:
			report.Redirects = append(report.Redirects, res)
		default:
			report.Active++
		}
	}

	if c.cfg.DNSCheck && len(report.Dead) > 0 {
		if err := c.verifyDNS(ctx, report.Dead); err != nil {
			return nil, err
		}
	}
	report.Duration = time.Since(start)
	return report, nil
}

// verifyDNS looks up every dead domain, bounded by the configured DNS
// concurrency. Each goroutine writes only its own element of dead.
func (c *Checker) verifyDNS(ctx context.Context, dead []domainlib.Result) error {
	c.logger.Info("Verifying dead domains over DNS",
		zap.Int("count", len(dead)),
		zap.Int("concurrency", c.cfg.DNSConcurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.DNSConcurrency)
	var resolvable atomic.Int64
	for i := range dead {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			variant, ips := c.resolver.LookupToggle(gctx, dead[i].Domain)
			dead[i].DNS = &domainlib.DNSInfo{Checked: true, Variant: variant, IPs: ips}
			if len(ips) > 0 {
				resolvable.Add(1)
				metrics.RecordDNSLookup("resolvable")
			} else {
				metrics.RecordDNSLookup("no_record")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("dns verification: %w", err)
	}
	c.logger.Info("DNS verification finished",
		zap.Int("resolvable", int(resolvable.Load())),
		zap.Int("unresolvable", len(dead)-int(resolvable.Load())))
	return nil
}
