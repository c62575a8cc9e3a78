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
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/x-stp/rxfilter/internal/client"
	"github.com/x-stp/rxfilter/internal/config"
	"github.com/x-stp/rxfilter/internal/domainlib"
	"github.com/x-stp/rxfilter/internal/metrics"
)

// Classifier probes the variants of a task one after the other and turns
// the first conclusive navigation into a Result.
type Classifier struct {
	browser client.Browser
	cfg     config.Config
	table   *domainlib.BaseDomainTable
	tracker *Tracker
	limiter *AdaptiveLimiter
	antiBot *AntiBotDetector
	logger  *zap.Logger
}

// NewClassifier returns a classifier. tracker and limiter may be nil, in
// which case a private tracker is used and launches are not paced.
func NewClassifier(browser client.Browser, cfg config.Config, table *domainlib.BaseDomainTable,
	tracker *Tracker, limiter *AdaptiveLimiter, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == nil {
		table = domainlib.DefaultBaseDomainTable()
	}
	if tracker == nil {
		tracker = NewTracker(logger)
	}
	return &Classifier{
		browser: browser,
		cfg:     cfg,
		table:   table,
		tracker: tracker,
		limiter: limiter,
		antiBot: NewAntiBotDetector(cfg.AntiBot),
		logger:  logger,
	}
}

// attemptOutcome is what one navigation of one variant produced.
type attemptOutcome struct {
	url  string
	resp *client.Response
	err  error
}

// Classify probes task.Variants in order and returns the terminal result.
// An inconclusive attempt moves on to the next variant; the last variant
// always produces a result. Classify never fails: a canceled ctx yields
// Active, so that nothing is removed on the strength of an aborted probe.
func (c *Classifier) Classify(ctx context.Context, task domainlib.DomainCheckTask) domainlib.Result {
	if len(task.Variants) == 0 {
		c.logger.Warn("Nothing to probe", zap.String("domain", task.Original), zap.Error(ErrNoVariants))
		return domainlib.ActiveResult(task.Original)
	}

	for i, variant := range task.Variants {
		if ctx.Err() != nil {
			return domainlib.ActiveResult(task.Original)
		}
		last := i == len(task.Variants)-1
		out := c.attempt(ctx, variant)
		if res, done := c.decide(task.Original, variant, out, last); done {
			metrics.RecordClassification(res.Kind.String())
			return res
		}
		c.logger.Debug("Variant inconclusive, trying next",
			zap.String("domain", task.Original),
			zap.String("variant", variant))
	}
	// decide always finishes on the last variant.
	return domainlib.ActiveResult(task.Original)
}

// attempt navigates to one variant. The page is tracked for the whole
// attempt and released on every path. A navigation that outlives the
// force-close timeout is abandoned and its page closed, which aborts it.
func (c *Classifier) attempt(ctx context.Context, variant string) attemptOutcome {
	target := "https://" + variant
	start := time.Now()

	page, err := c.openPage(ctx)
	if err != nil {
		metrics.RecordAttempt(outcomePageFailure, time.Since(start))
		return attemptOutcome{url: target, err: err}
	}
	id := c.tracker.Add(page, target)
	defer c.tracker.Release(id)

	type navResult struct {
		resp *client.Response
		err  error
	}
	done := make(chan navResult, 1)
	opts := client.NavigateOptions{
		UserAgent:      c.cfg.UserAgent,
		Timeout:        c.cfg.NavigationTimeout,
		BlockResources: c.cfg.BlockResources,
	}
	go func() {
		resp, err := page.Navigate(ctx, target, opts)
		done <- navResult{resp: resp, err: err}
	}()

	forceClose := time.NewTimer(c.cfg.ForceCloseTimeout)
	defer forceClose.Stop()

	out := attemptOutcome{url: target}
	outcome := outcomeResponse
	select {
	case r := <-done:
		out.resp, out.err = r.resp, r.err
	case <-forceClose.C:
		c.tracker.Release(id)
		c.logger.Warn("Navigation hung, page force-closed",
			zap.String("url", target),
			zap.Duration("after", c.cfg.ForceCloseTimeout))
		out.err = &client.NavigationError{
			Kind: client.KindNavigationTimeout,
			Err:  fmt.Errorf("navigation force-closed after %s", c.cfg.ForceCloseTimeout),
		}
		outcome = outcomeForceClosed
	case <-ctx.Done():
		c.tracker.Release(id)
		out.err = &client.NavigationError{Kind: client.KindUnknown, Err: ctx.Err()}
	}

	switch {
	case outcome == outcomeForceClosed:
	case out.err != nil:
		kind := client.KindOf(out.err)
		outcome = outcomeErrorPrefix + kind.String()
		if kind == client.KindConnection {
			c.limiter.RecordFailure()
		}
	case out.resp == nil || out.resp.StatusCode == 0:
		outcome = outcomeNoResponse
	default:
		c.limiter.RecordSuccess()
	}
	metrics.RecordAttempt(outcome, time.Since(start))
	return out
}

// openPage opens a page, retrying once on transient failures.
func (c *Classifier) openPage(ctx context.Context) (client.Page, error) {
	var lastErr error
	for i := 0; i < MaxPageAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(PageRetryDelay):
			}
		}
		page, err := c.browser.NewPage(ctx)
		if err == nil {
			return page, nil
		}
		retryable := ctx.Err() == nil && !errors.Is(err, client.ErrBrowserClosed)
		lastErr = WrapError("failed to open page", retryable, err)
		if !IsRetryable(lastErr) {
			break
		}
	}
	return nil, lastErr
}

// decide applies the decision rules to one attempt. done is false when the
// attempt was inconclusive and another variant is left to try.
func (c *Classifier) decide(original, variant string, out attemptOutcome, last bool) (domainlib.Result, bool) {
	if out.err != nil {
		if client.KindOf(out.err) == client.KindConnection {
			if !last {
				return domainlib.Result{}, false
			}
			return domainlib.DeadResult(original, 0, TruncateError(out.err.Error(), c.cfg.MaxReasonLength)), true
		}
		// Certificate problems, timeouts and anything unrecognised do not
		// prove a domain dead.
		if !last {
			return domainlib.Result{}, false
		}
		return domainlib.ActiveResult(original), true
	}

	resp := out.resp
	if resp == nil || resp.StatusCode == 0 {
		if !last {
			return domainlib.Result{}, false
		}
		return domainlib.DeadResult(original, 0, "No response"), true
	}

	status := resp.StatusCode
	if status == http.StatusForbidden {
		if len(resp.Body) > c.cfg.ContentThreshold && resp.FinalURL != "" && resp.FinalURL != BlankURL {
			return domainlib.ActiveResult(original), true
		}
		if c.antiBot.Detect(resp.Body) {
			return domainlib.ActiveResult(original), true
		}
	}
	if status >= http.StatusBadRequest {
		if !last {
			return domainlib.Result{}, false
		}
		return domainlib.DeadResult(original, status, fmt.Sprintf("HTTP %d", status)), true
	}

	from := domainlib.StripWWW(strings.ToLower(variant))
	to := domainlib.StripWWW(hostOf(resp.FinalURL))
	if to == "" || to == from {
		return domainlib.ActiveResult(original), true
	}
	if c.table.IsSimilarRedirect(from, to, c.cfg.IgnoreSimilar) {
		return domainlib.ActiveResult(original), true
	}
	return domainlib.RedirectResult(original, to, out.url, resp.FinalURL, status), true
}

// hostOf returns the lowercased host of rawURL without port, or "" when
// rawURL has none.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
