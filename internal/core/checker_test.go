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
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/x-stp/rxfilter/internal/config"
	"github.com/x-stp/rxfilter/internal/domainlib"
)

type fakeResolver struct {
	mu      sync.Mutex
	answers map[string][]string
	asked   []string
}

func (r *fakeResolver) LookupToggle(_ context.Context, host string) (string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = append(r.asked, host)
	for _, candidate := range []string{host, "www." + host} {
		if ips, ok := r.answers[candidate]; ok {
			return candidate, ips
		}
	}
	return "", nil
}

func checkerConfig() config.Config {
	cfg := testConfig()
	cfg.Concurrency = 3
	cfg.AddWWW = false
	cfg.IgnoreSimilar = false
	return cfg
}

func TestCheckerRun(t *testing.T) {
	t.Parallel()
	cfg := checkerConfig()
	cfg.DNSCheck = true
	cfg.Ignore = []string{"SKIP.example"}

	b := newFakeBrowser(map[string]fakeNav{
		"https://alive.example": ok200("https://alive.example/"),
		"https://moved.example": ok200("https://elsewhere.example/"),
		"https://gone.example":  withStatus(410, "https://gone.example/", "gone"),
	})
	resolver := &fakeResolver{answers: map[string][]string{"www.gone.example": {"192.0.2.7"}}}
	c, err := NewChecker(cfg, b, resolver, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	var progress int
	report, err := c.Run(context.Background(),
		[]string{"nx.example", "alive.example", "skip.example", "moved.example", "gone.example"},
		func(_, _ int, _ domainlib.DomainCheckTask, _ domainlib.Result) { progress++ })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Total != 4 || report.Active != 1 || len(report.Dead) != 2 || len(report.Redirects) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if progress != 4 {
		t.Errorf("progress called %d times; want 4", progress)
	}
	if report.Dead[0].Domain != "nx.example" || report.Dead[1].Domain != "gone.example" {
		t.Errorf("dead order = %s, %s", report.Dead[0].Domain, report.Dead[1].Domain)
	}
	if report.Redirects[0].FinalDomain != "elsewhere.example" {
		t.Errorf("redirect = %+v", report.Redirects[0])
	}

	nx, gone := report.Dead[0].DNS, report.Dead[1].DNS
	if nx == nil || !nx.Checked || nx.Resolvable() {
		t.Errorf("nx.example DNS = %+v; want checked, unresolvable", nx)
	}
	if gone == nil || !gone.Resolvable() || gone.Variant != "www.gone.example" {
		t.Errorf("gone.example DNS = %+v; want resolvable via www", gone)
	}
	if len(resolver.asked) != 2 {
		t.Errorf("resolver asked %v; only dead domains are verified", resolver.asked)
	}

	snap := c.Stats().Snapshot()
	if snap.Queued != 4 || snap.Processed != 4 || snap.Dead != 2 || snap.Redirects != 1 || snap.Active != 1 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestCheckerWithoutDNS(t *testing.T) {
	t.Parallel()
	c, err := NewChecker(checkerConfig(), newFakeBrowser(nil), nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	report, err := c.Run(context.Background(), []string{"nx.example"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Dead) != 1 || report.Dead[0].DNS != nil {
		t.Errorf("report = %+v; DNS must stay unset", report)
	}
}

func TestCheckerPrepare(t *testing.T) {
	t.Parallel()
	cfg := checkerConfig()
	cfg.AddWWW = true
	cfg.MaxDomains = 2
	cfg.Ignore = []string{"b.example"}
	c, err := NewChecker(cfg, newFakeBrowser(nil), nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	tasks := c.Prepare([]string{"a.example", "b.example", "www.c.example", "d.example"})
	if len(tasks) != 2 {
		t.Fatalf("Prepare returned %d tasks; want the cap of 2", len(tasks))
	}
	if tasks[0].Original != "a.example" || len(tasks[0].Variants) != 2 || tasks[0].Variants[1] != "www.a.example" {
		t.Errorf("tasks[0] = %+v", tasks[0])
	}
	if tasks[1].Original != "www.c.example" || len(tasks[1].Variants) != 1 {
		t.Errorf("tasks[1] = %+v", tasks[1])
	}
}

func TestNewCheckerRejectsBadConfig(t *testing.T) {
	t.Parallel()
	cfg := checkerConfig()
	cfg.Concurrency = 0
	if _, err := NewChecker(cfg, newFakeBrowser(nil), nil, nil, zap.NewNop()); !errors.Is(err, config.ErrInvalidConcurrency) {
		t.Errorf("NewChecker error = %v; want ErrInvalidConcurrency", err)
	}

	cfg = checkerConfig()
	cfg.DNSCheck = true
	if _, err := NewChecker(cfg, newFakeBrowser(nil), nil, nil, zap.NewNop()); err == nil {
		t.Error("DNS verification without a resolver must be rejected")
	}
}

func TestCheckerRunCanceled(t *testing.T) {
	t.Parallel()
	c, err := NewChecker(checkerConfig(), newFakeBrowser(nil), nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx, []string{"a.example", "b.example"}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v; want context.Canceled", err)
	}
}
