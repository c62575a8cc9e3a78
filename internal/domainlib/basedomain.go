package domainlib

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
	"io"
	"os"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	"go.uber.org/zap"
)

// DefaultMultiLabelSuffixes is the built-in fallback used when no suffix file
// is configured or the configured one cannot be read.
var DefaultMultiLabelSuffixes = []string{
	"co.uk", "org.uk", "me.uk", "ac.uk", "gov.uk", "net.uk", "ltd.uk", "plc.uk",
	"com.au", "net.au", "org.au", "edu.au", "gov.au", "id.au",
	"co.nz", "net.nz", "org.nz", "govt.nz",
	"co.jp", "ne.jp", "or.jp", "ac.jp", "go.jp",
	"co.kr", "or.kr", "ne.kr",
	"co.in", "net.in", "org.in", "firm.in", "gen.in", "ind.in",
	"co.za", "org.za", "web.za",
	"com.br", "net.br", "org.br",
	"com.cn", "net.cn", "org.cn", "gov.cn",
	"com.tw", "org.tw", "net.tw",
	"com.hk", "org.hk", "net.hk",
	"com.sg", "org.sg", "net.sg",
	"com.my", "net.my", "org.my",
	"com.mx", "org.mx", "gob.mx",
	"com.ar", "com.tr", "com.ua", "com.pl", "com.ru", "com.vn", "com.ph",
	"co.id", "or.id", "web.id",
	"co.il", "org.il",
	"co.th", "in.th",
	"com.sa", "com.eg", "com.ng", "com.pk", "com.co", "com.pe", "com.ve",
	"github.io", "gitlab.io", "blogspot.com", "herokuapp.com", "appspot.com",
}

// BaseDomainTable is a read-only set of multi-label public suffixes used to
// approximate a host's registrable base. It is built once at start-up and
// shared by all probing goroutines without locking.
//
// This is a heuristic, not a full public suffix algorithm: only two- and
// three-label suffixes are consulted, so 4+-label suffixes are not supported.
type BaseDomainTable struct {
	suffixes map[string]struct{}
}

// NewBaseDomainTable builds a table from the given suffixes (lowercased,
// surrounding dots trimmed, single-label entries ignored).
func NewBaseDomainTable(suffixes []string) *BaseDomainTable {
	t := &BaseDomainTable{suffixes: make(map[string]struct{}, len(suffixes))}
	for _, s := range suffixes {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if strings.Count(s, ".") < 1 {
			continue
		}
		t.suffixes[s] = struct{}{}
	}
	return t
}

// DefaultBaseDomainTable returns a table holding DefaultMultiLabelSuffixes.
func DefaultBaseDomainTable() *BaseDomainTable {
	return NewBaseDomainTable(DefaultMultiLabelSuffixes)
}

// LoadBaseDomainTable reads a suffix table in Public Suffix List syntax.
// Only normal rules with two or three labels are kept; wildcard and exception
// rules are ignored because BaseDomain has no way to honour them.
func LoadBaseDomainTable(r io.Reader) (*BaseDomainTable, error) {
	list := publicsuffix.NewList()
	rules, err := list.Load(r, &publicsuffix.ParserOption{PrivateDomains: true})
	if err != nil {
		return nil, fmt.Errorf("failed to parse suffix list: %w", err)
	}

	suffixes := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.Type != publicsuffix.NormalType {
			continue
		}
		value, err := publicsuffix.ToASCII(rule.Value)
		if err != nil {
			continue
		}
		labels := strings.Count(value, ".") + 1
		if labels < 2 || labels > 3 {
			continue
		}
		suffixes = append(suffixes, value)
	}
	if len(suffixes) == 0 {
		return nil, fmt.Errorf("suffix list contains no multi-label rules")
	}
	return NewBaseDomainTable(suffixes), nil
}

// LoadBaseDomainTableFile loads the table from path. It never fails: an
// empty path yields the default table silently, any read or parse error is
// logged as a warning and the default table is returned.
func LoadBaseDomainTableFile(path string, logger *zap.Logger) *BaseDomainTable {
	if path == "" {
		return DefaultBaseDomainTable()
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("suffix table unavailable, using built-in defaults", zap.String("path", path), zap.Error(err))
		return DefaultBaseDomainTable()
	}
	defer f.Close()

	t, err := LoadBaseDomainTable(f)
	if err != nil {
		logger.Warn("suffix table unusable, using built-in defaults", zap.String("path", path), zap.Error(err))
		return DefaultBaseDomainTable()
	}
	logger.Info("loaded suffix table", zap.String("path", path), zap.Int("suffixes", t.Len()))
	return t
}

// Len returns the number of suffixes held.
func (t *BaseDomainTable) Len() int { return len(t.suffixes) }

// Contains reports whether suffix is a known multi-label public suffix.
func (t *BaseDomainTable) Contains(suffix string) bool {
	_, ok := t.suffixes[suffix]
	return ok
}

// BaseDomain returns the registrable base of domain, e.g. "example.co.uk"
// for "shop.example.co.uk". The single reduction step is applied until it no
// longer changes the value, which keeps the result stable under repeated
// application even for hosts such as "x.www.co.uk".
func (t *BaseDomainTable) BaseDomain(domain string) string {
	cur := strings.ToLower(domain)
	for {
		next := t.reduce(cur)
		if next == cur {
			return cur
		}
		cur = next
	}
}

func (t *BaseDomainTable) reduce(domain string) string {
	domain = StripWWW(domain)
	labels := strings.Split(domain, ".")
	n := len(labels)
	if n <= 2 {
		return domain
	}

	// Longest suffix first; a suffix needs at least one label in front of it.
	for _, size := range []int{3, 2} {
		if n <= size {
			continue
		}
		suffix := strings.Join(labels[n-size:], ".")
		if t.Contains(suffix) {
			return strings.Join(labels[n-size-1:], ".")
		}
	}
	return strings.Join(labels[n-2:], ".")
}

// IsSimilarRedirect reports whether a redirect from a to b stays within the
// same base domain. It always returns false when enabled is false.
func (t *BaseDomainTable) IsSimilarRedirect(a, b string, enabled bool) bool {
	if !enabled {
		return false
	}
	return t.BaseDomain(a) == t.BaseDomain(b)
}
