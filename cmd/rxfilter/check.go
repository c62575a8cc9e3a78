package main

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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/x-stp/rxfilter/internal/client"
	"github.com/x-stp/rxfilter/internal/config"
	"github.com/x-stp/rxfilter/internal/core"
	"github.com/x-stp/rxfilter/internal/domainlib"
	"github.com/x-stp/rxfilter/internal/export"
	rxio "github.com/x-stp/rxfilter/internal/io"
	"github.com/x-stp/rxfilter/internal/logging"
	"github.com/x-stp/rxfilter/internal/metrics"
	"github.com/x-stp/rxfilter/internal/rules"
	"github.com/x-stp/rxfilter/internal/util"
)

// maxPSLSize bounds the suffix list download.
const maxPSLSize = 16 << 20

var (
	deadColor     = color.New(color.FgRed)
	redirectColor = color.New(color.FgYellow)
	activeColor   = color.New(color.FgGreen)
	boldColor     = color.New(color.Bold)
)

func runCheck(ctx context.Context, path string, cfg config.Config) error {
	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	mode, err := cfg.ParsedMode()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read filter list %s: %w", path, err)
	}
	domains, err := rules.ParseDomains(bytes.NewReader(data), mode)
	if err != nil {
		return fmt.Errorf("failed to parse filter list %s: %w", path, err)
	}
	fmt.Printf("Extracted %d unique domains from %s\n", len(domains), path)
	if len(domains) == 0 {
		return nil
	}

	if cfg.MetricsPort > 0 {
		metrics.EnableMetrics()
		if err := metrics.StartMetricsServer(fmt.Sprintf(":%d", cfg.MetricsPort), logger); err != nil {
			logger.Warn("Failed to start metrics server", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metrics.ShutdownMetricsServer(shutdownCtx)
		}()
	}

	table := domainlib.LoadBaseDomainTableFile(cfg.SuffixFile, logger)

	httpConfig := client.DefaultConfig()
	httpConfig.RequestTimeout = cfg.ForceCloseTimeout
	httpConfig.MaxConnsPerHost = cfg.Concurrency
	client.InitHTTPClient(httpConfig)
	browser := client.NewHTTPBrowser(nil)
	defer browser.Close()

	var resolver core.Resolver
	if cfg.DNSCheck {
		server := cfg.DNSServer
		if server == "" {
			server = client.DefaultDNSServer()
		}
		r := client.NewResolver(server, cfg.DNSTimeout, logger)
		logger.Info("DNS verification enabled", zap.String("server", r.Server()))
		resolver = r
	}

	checker, err := core.NewChecker(cfg, browser, resolver, table, logger)
	if err != nil {
		return err
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	var statsWg sync.WaitGroup
	statsWg.Add(1)
	go func() {
		defer statsWg.Done()
		reportStats(statsCtx, checker, logger)
	}()

	report, err := checker.Run(ctx, domains, printProgress)
	stopStats()
	statsWg.Wait()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("check interrupted, nothing written")
		}
		return err
	}

	printSummary(report, cfg)

	if noExport {
		return nil
	}
	if !assumeYes && !confirm(os.Stdin, "Write reports and the cleaned list? [y/N] ") {
		fmt.Println("Nothing written.")
		return nil
	}

	exporter := export.NewExporter(path, data, util.DeriveOutputPaths(path, outputDir), mode, logger)
	summary, err := exporter.Export(report, export.RemovalOptions{
		IncludeRedirects: cfg.IncludeRedirects,
		KeepResolvable:   cfg.DNSCheck && cfg.DNSKeepResolvable,
		IgnoreSimilar:    cfg.IgnoreSimilar,
		Table:            table,
	})
	if err != nil {
		return err
	}
	printExport(summary)
	return nil
}

// printProgress writes one colored line per finished domain.
func printProgress(done, total int, _ domainlib.DomainCheckTask, res domainlib.Result) {
	prefix := fmt.Sprintf("[%d/%d] ", done, total)
	switch res.Kind {
	case domainlib.Dead:
		deadColor.Printf("%sDEAD      %s (%s)\n", prefix, res.Domain, res.Reason)
	case domainlib.Redirect:
		redirectColor.Printf("%sREDIRECT  %s -> %s\n", prefix, res.Domain, res.FinalDomain)
	default:
		activeColor.Printf("%sACTIVE    %s\n", prefix, res.Domain)
	}
}

func reportStats(ctx context.Context, checker *core.Checker, logger *zap.Logger) {
	ticker := time.NewTicker(core.StatsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := checker.Stats().Snapshot()
			logger.Info("Progress",
				zap.Int64("processed", s.Processed),
				zap.Int64("queued", s.Queued),
				zap.Int64("dead", s.Dead),
				zap.Int64("redirects", s.Redirects),
				zap.Int64("active", s.Active),
				zap.Float64("rate", checker.Limiter().CurrentRate()))
		}
	}
}

func printSummary(report *core.Report, cfg config.Config) {
	fmt.Println()
	boldColor.Println("Summary")
	fmt.Printf("  Checked:   %d\n", report.Total)
	deadColor.Printf("  Dead:      %d\n", len(report.Dead))
	redirectColor.Printf("  Redirect:  %d\n", len(report.Redirects))
	activeColor.Printf("  Active:    %d\n", report.Active)
	if cfg.DNSCheck {
		resolvable := 0
		for _, res := range report.Dead {
			if res.DNS.Resolvable() {
				resolvable++
			}
		}
		fmt.Printf("  Dead but resolvable: %d\n", resolvable)
	}
	fmt.Printf("  Took:      %s\n", report.Duration.Round(time.Second))
}

func printExport(s *export.Summary) {
	if s.DeadPath != "" {
		fmt.Printf("Dead report:     %s (%d)\n", s.DeadPath, s.DeadCount)
	}
	if s.RedirectPath != "" {
		fmt.Printf("Redirect report: %s (%d)\n", s.RedirectPath, s.RedirectCount)
	}
	fmt.Printf("Cleaned list:    %s (%d removed, %d modified, %d kept lines)\n",
		s.CleanedPath, s.Rewrite.Removed, s.Rewrite.Modified, s.Rewrite.Kept)
}

// confirm asks question on stdout and reads a yes/no answer from in. Only
// an explicit yes counts.
func confirm(in io.Reader, question string) bool {
	fmt.Print(question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		fmt.Println()
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func runExtract(out io.Writer, path, modeName string) error {
	mode, err := rules.ParseMode(modeName)
	if err != nil {
		return err
	}
	domains, err := rules.ParseDomainsFromFile(path, mode)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	for _, d := range domains {
		if _, err := fmt.Fprintln(w, d); err != nil {
			return err
		}
	}
	return w.Flush()
}

func runFetchPSL(ctx context.Context, out io.Writer, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid suffix list url %s: %w", url, err)
	}
	resp, err := client.GetHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to download suffix list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download suffix list: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPSLSize))
	if err != nil {
		return fmt.Errorf("failed to read suffix list: %w", err)
	}

	table, err := domainlib.LoadBaseDomainTable(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("downloaded suffix list is unusable: %w", err)
	}
	err = rxio.WriteFile(path, func(f *rxio.AtomicFile) error {
		_, err := f.Write(data)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s (%d multi-label suffixes)\n", path, table.Len())
	return nil
}
