/*
rxfilter checks the domains referenced by an ad-blocking filter list and
prunes the ones that no longer serve anything.

Commands:

  - check: extract the domains of a list, probe every one of them, report
    dead and redirecting domains and write a cleaned copy of the list.
  - extract: print the domains a list references.
  - fetch-psl: download the Public Suffix List for --suffix-file.

Configuration is layered: built-in defaults, then an optional YAML file
(--config), then flags given on the command line. Probing is cancelled
cleanly on SIGINT or SIGTERM.
*/
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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/x-stp/rxfilter/internal/config"
)

// DefaultPSLURL is where fetch-psl downloads the suffix list from.
const DefaultPSLURL = "https://publicsuffix.org/list/public_suffix_list.dat"

// flagCfg receives the config-backed flags. Only flags set on the command
// line are copied over the loaded configuration.
var flagCfg = config.Default()

// Flags that are not part of config.Config.
var (
	configPath  string
	outputDir   string
	assumeYes   bool
	noExport    bool
	extractMode string
	pslURL      string
	pslOutput   string
)

var rootCmd = &cobra.Command{
	Use:           "rxfilter",
	Short:         "rxfilter - prunes dead and redirecting domains from ad-blocking filter lists",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Probe every domain of a filter list and write a cleaned copy",
	Long: `Extracts the domains referenced by a filter list, navigates to each of them and
classifies it as dead, redirecting or active. Dead and redirecting domains are
written to <name>_dead.txt and <name>_redirect.txt, and a copy of the list
without them to <name>_cleaned<ext>.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd.Flags())
		if err != nil {
			return err
		}
		return runCheck(cmd.Context(), args[0], cfg)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the sorted set of domains a filter list references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd.OutOrStdout(), args[0], extractMode)
	},
}

var fetchPSLCmd = &cobra.Command{
	Use:   "fetch-psl",
	Short: "Download the Public Suffix List for use with --suffix-file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetchPSL(cmd.Context(), cmd.OutOrStdout(), pslURL, pslOutput)
	},
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.StringVarP(&outputDir, "output-dir", "o", "", "Directory for reports and the cleaned list (default: next to the input)")
	f.BoolVarP(&assumeYes, "yes", "y", false, "Write the outputs without asking")
	f.BoolVar(&noExport, "no-export", false, "Only report, never write any file")

	f.StringVar(&flagCfg.Mode, "mode", flagCfg.Mode, "Parsing mode: rules (adblock grammar) or domains (plain or hosts list)")
	f.BoolVar(&flagCfg.AddWWW, "www", flagCfg.AddWWW, "Also probe the www. variant of bare domains")
	f.BoolVar(&flagCfg.IgnoreSimilar, "ignore-similar", flagCfg.IgnoreSimilar, "Treat redirects within the same base domain as active")
	f.BoolVar(&flagCfg.BlockResources, "block-resources", flagCfg.BlockResources, "Only load the top-level HTML document")
	f.IntVarP(&flagCfg.Concurrency, "concurrency", "c", flagCfg.Concurrency,
		fmt.Sprintf("Domains probed at once (%d-%d)", config.MinConcurrency, config.MaxConcurrency))
	f.Float64Var(&flagCfg.Rate, "rate", flagCfg.Rate, "Maximum navigation launches per second (0 for unlimited)")
	f.DurationVar(&flagCfg.NavigationTimeout, "nav-timeout", flagCfg.NavigationTimeout, "Navigation timeout per attempt")
	f.DurationVar(&flagCfg.ForceCloseTimeout, "force-timeout", flagCfg.ForceCloseTimeout, "Force-close a hung attempt after this long")
	f.StringVar(&flagCfg.UserAgent, "user-agent", flagCfg.UserAgent, "User-Agent sent with every navigation")
	f.BoolVar(&flagCfg.DNSCheck, "dns", flagCfg.DNSCheck, "Verify dead domains with an A record lookup")
	f.BoolVar(&flagCfg.DNSKeepResolvable, "dns-keep-resolvable", flagCfg.DNSKeepResolvable, "Keep dead domains that still resolve")
	f.StringVar(&flagCfg.DNSServer, "dns-server", flagCfg.DNSServer, "DNS server for verification (default: from /etc/resolv.conf)")
	f.IntVar(&flagCfg.MaxDomains, "max-domains", flagCfg.MaxDomains, "Check at most this many domains (0 for all)")
	f.StringSliceVar(&flagCfg.Ignore, "ignore", flagCfg.Ignore, "Domain never checked nor removed (repeatable)")
	f.StringVar(&flagCfg.SuffixFile, "suffix-file", flagCfg.SuffixFile, "Public Suffix List file (see fetch-psl)")
	f.BoolVar(&flagCfg.IncludeRedirects, "include-redirects", flagCfg.IncludeRedirects, "Also remove redirecting domains from the list")
	f.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level: debug, info, warn or error")
	f.IntVar(&flagCfg.MetricsPort, "metrics-port", flagCfg.MetricsPort, "Expose Prometheus metrics on this port (0 to disable)")

	extractCmd.Flags().StringVar(&extractMode, "mode", flagCfg.Mode, "Parsing mode: rules or domains")

	fetchPSLCmd.Flags().StringVar(&pslURL, "url", DefaultPSLURL, "Where to download the list from")
	fetchPSLCmd.Flags().StringVarP(&pslOutput, "output", "o", "public_suffix_list.dat", "Output file")

	rootCmd.AddCommand(checkCmd, extractCmd, fetchPSLCmd)
}

// buildConfig layers defaults, the optional config file and the flags that
// were set explicitly, then validates the result.
func buildConfig(flags *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	overrides := map[string]func(){
		"mode":                func() { cfg.Mode = flagCfg.Mode },
		"www":                 func() { cfg.AddWWW = flagCfg.AddWWW },
		"ignore-similar":      func() { cfg.IgnoreSimilar = flagCfg.IgnoreSimilar },
		"block-resources":     func() { cfg.BlockResources = flagCfg.BlockResources },
		"concurrency":         func() { cfg.Concurrency = flagCfg.Concurrency },
		"rate":                func() { cfg.Rate = flagCfg.Rate },
		"nav-timeout":         func() { cfg.NavigationTimeout = flagCfg.NavigationTimeout },
		"force-timeout":       func() { cfg.ForceCloseTimeout = flagCfg.ForceCloseTimeout },
		"user-agent":          func() { cfg.UserAgent = flagCfg.UserAgent },
		"dns":                 func() { cfg.DNSCheck = flagCfg.DNSCheck },
		"dns-keep-resolvable": func() { cfg.DNSKeepResolvable = flagCfg.DNSKeepResolvable },
		"dns-server":          func() { cfg.DNSServer = flagCfg.DNSServer },
		"max-domains":         func() { cfg.MaxDomains = flagCfg.MaxDomains },
		"ignore":              func() { cfg.Ignore = append(cfg.Ignore, flagCfg.Ignore...) },
		"suffix-file":         func() { cfg.SuffixFile = flagCfg.SuffixFile },
		"include-redirects":   func() { cfg.IncludeRedirects = flagCfg.IncludeRedirects },
		"log-level":           func() { cfg.LogLevel = flagCfg.LogLevel },
		"metrics-port":        func() { cfg.MetricsPort = flagCfg.MetricsPort },
	}
	flags.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		fmt.Fprintf(os.Stderr, "\nReceived %v, stopping after the current batch...\n", sig)
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	signal.Stop(sigChan)
	close(sigChan)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
