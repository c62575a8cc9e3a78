// Package config holds the run configuration of rxfilter. A Config is built
// once (defaults, then an optional YAML file, then command line flags),
// validated, and from then on passed by value.
package config

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
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/x-stp/rxfilter/internal/logging"
	"github.com/x-stp/rxfilter/internal/rules"
)

// Limits and defaults.
const (
	MinConcurrency     = 1
	MaxConcurrency     = 50
	DefaultConcurrency = 12

	DefaultNavigationTimeout = 30 * time.Second
	DefaultForceCloseTimeout = 45 * time.Second
	DefaultDNSTimeout        = 5 * time.Second
	DefaultDNSConcurrency    = 20
	DefaultContentThreshold  = 500
	DefaultMaxReasonLength   = 120

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var (
	// ErrInvalidConcurrency is returned when Concurrency is outside 1..50.
	ErrInvalidConcurrency = errors.New("concurrency must be between 1 and 50")
	// ErrInvalidTimeout is returned for non-positive timeouts or a force-close
	// timeout shorter than the navigation timeout.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// AntiBot lists the content signatures of access-denied pages served by
// bot protection in front of a live origin.
type AntiBot struct {
	Phrases   []string `yaml:"phrases"`
	Markers   []string `yaml:"markers"`
	EdgeHosts []string `yaml:"edge_hosts"`
}

// Config is the complete run configuration.
type Config struct {
	Mode           string `yaml:"mode"`
	AddWWW         bool   `yaml:"www"`
	IgnoreSimilar  bool   `yaml:"ignore_similar"`
	BlockResources bool   `yaml:"block_resources"`

	Concurrency int `yaml:"concurrency"`
	// Rate caps navigation launches per second; 0 disables pacing.
	Rate float64 `yaml:"rate"`

	NavigationTimeout time.Duration `yaml:"nav_timeout"`
	ForceCloseTimeout time.Duration `yaml:"force_timeout"`
	UserAgent         string        `yaml:"user_agent"`

	ContentThreshold int     `yaml:"content_threshold"`
	MaxReasonLength  int     `yaml:"max_reason_length"`
	AntiBot          AntiBot `yaml:"anti_bot"`

	DNSCheck          bool          `yaml:"dns"`
	DNSKeepResolvable bool          `yaml:"dns_keep_resolvable"`
	DNSServer         string        `yaml:"dns_server"`
	DNSTimeout        time.Duration `yaml:"dns_timeout"`
	DNSConcurrency    int           `yaml:"dns_concurrency"`

	// MaxDomains caps the number of domains checked; 0 means no cap.
	MaxDomains int      `yaml:"max_domains"`
	Ignore     []string `yaml:"ignore"`
	SuffixFile string   `yaml:"suffix_file"`

	IncludeRedirects bool `yaml:"include_redirects"`

	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mode:              string(rules.ModeRules),
		AddWWW:            true,
		IgnoreSimilar:     true,
		BlockResources:    true,
		Concurrency:       DefaultConcurrency,
		NavigationTimeout: DefaultNavigationTimeout,
		ForceCloseTimeout: DefaultForceCloseTimeout,
		UserAgent:         DefaultUserAgent,
		ContentThreshold:  DefaultContentThreshold,
		MaxReasonLength:   DefaultMaxReasonLength,
		AntiBot: AntiBot{
			Phrases:   []string{"Access Denied"},
			Markers:   []string{"Reference #"},
			EdgeHosts: []string{"errors.edgesuite.net", "errors.edgekey.net"},
		},
		DNSTimeout:       DefaultDNSTimeout,
		DNSConcurrency:   DefaultDNSConcurrency,
		IncludeRedirects: true,
		LogLevel:         "info",
	}
}

// Load overlays the YAML file at path onto base. Keys absent from the file
// keep their value from base.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ParsedMode returns the validated parsing mode.
func (c Config) ParsedMode() (rules.Mode, error) {
	return rules.ParseMode(c.Mode)
}

// IgnoreSet returns the lowercased ignore list as a set.
func (c Config) IgnoreSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Ignore))
	for _, d := range c.Ignore {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// Validate checks every field that has a constrained range.
func (c Config) Validate() error {
	if c.Concurrency < MinConcurrency || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("%w: got %d", ErrInvalidConcurrency, c.Concurrency)
	}
	if _, err := c.ParsedMode(); err != nil {
		return err
	}
	if c.NavigationTimeout <= 0 || c.ForceCloseTimeout <= 0 || c.DNSTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidTimeout)
	}
	if c.ForceCloseTimeout < c.NavigationTimeout {
		return fmt.Errorf("%w: force-close timeout %s is shorter than navigation timeout %s",
			ErrInvalidTimeout, c.ForceCloseTimeout, c.NavigationTimeout)
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate must not be negative, got %g", c.Rate)
	}
	if c.MaxDomains < 0 {
		return fmt.Errorf("max domains must not be negative, got %d", c.MaxDomains)
	}
	if c.ContentThreshold < 0 {
		return fmt.Errorf("content threshold must not be negative, got %d", c.ContentThreshold)
	}
	if c.MaxReasonLength < 4 {
		return fmt.Errorf("max reason length must be at least 4, got %d", c.MaxReasonLength)
	}
	if c.DNSConcurrency < 1 {
		return fmt.Errorf("dns concurrency must be at least 1, got %d", c.DNSConcurrency)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics port out of range: %d", c.MetricsPort)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q (want one of %s)", c.LogLevel, strings.Join(logging.Levels, ", "))
	}
	return nil
}
