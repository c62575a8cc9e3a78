// Package rules extracts domains from ad-blocking filter lists and rewrites
// those lists once some of their domains are known to be gone.
//
// Two top-level grammars exist. ModeRules understands Adblock Plus, AdGuard
// and uBlock Origin syntax (cosmetic prefixes, network rule anchors and the
// domain= option). ModeDomains reads plain domain lists and hosts files.
package rules

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
	"regexp"
	"strings"

	"github.com/x-stp/rxfilter/internal/domainlib"
)

var (
	// cosmeticRe matches a domain prefix followed by an element hiding,
	// scriptlet, CSS injection or HTML filtering separator. Longer
	// separators come first so that #@$?# is not read as #@#.
	cosmeticRe = regexp.MustCompile(`^([^#$]+)(#@\$\?#|#@#|#\$#|#%#|#\?#|##|\$\$)`)

	// domainParamRe captures the value of a network rule's domain= option.
	domainParamRe = regexp.MustCompile(`domain=([^,\s$]+)`)

	// anchorRe captures the host after a || anchor. '*' is captured so that
	// wildcard anchors can be rejected as a whole instead of being truncated.
	anchorRe = regexp.MustCompile(`(?i)\|\|([a-z0-9.*-]+)`)

	// ublockRe is the last-resort uBlock cosmetic prefix.
	ublockRe = regexp.MustCompile(`^([^#]+)(?:##\+js\(|##\^|#@#|##)`)
)

// LineKind is the coarse classification of a filter list line.
type LineKind int

const (
	KindBlank LineKind = iota
	KindComment
	KindCosmetic
	KindNetwork
	KindOther
)

func (k LineKind) String() string {
	switch k {
	case KindBlank:
		return "blank"
	case KindComment:
		return "comment"
	case KindCosmetic:
		return "cosmetic"
	case KindNetwork:
		return "network"
	default:
		return "other"
	}
}

// ClassifyLine reports which grammar governs line.
func ClassifyLine(line string) LineKind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return KindBlank
	case isComment(line):
		return KindComment
	case cosmeticRe.MatchString(line):
		return KindCosmetic
	case strings.Contains(line, "||") || domainParamRe.MatchString(line):
		return KindNetwork
	default:
		return KindOther
	}
}

// isComment expects a trimmed line. '[' covers "[Adblock Plus 2.0]" headers.
func isComment(line string) bool {
	return strings.HasPrefix(line, "!") || strings.HasPrefix(line, "[")
}

// ExtractDomains returns the set of domains referenced by one filter rule.
//
// Grammars are tried in order and the first one yielding at least one valid
// domain wins: cosmetic prefix, network rule (domain= values together with
// || anchors), then the uBlock cosmetic fallback. A line that matches
// nothing yields an empty set. Returned domains are lowercase.
func ExtractDomains(line string) map[string]struct{} {
	out := make(map[string]struct{})
	line = strings.TrimSpace(line)
	if line == "" || isComment(line) {
		return out
	}

	if m := cosmeticRe.FindStringSubmatch(line); m != nil {
		addPrefixDomains(out, m[1])
		if len(out) > 0 {
			return out
		}
	}

	addDomainParam(out, line)
	addAnchors(out, line)
	if len(out) > 0 {
		return out
	}

	if m := ublockRe.FindStringSubmatch(line); m != nil {
		addPrefixDomains(out, m[1])
	}
	return out
}

func addPrefixDomains(out map[string]struct{}, prefix string) {
	for _, c := range strings.Split(prefix, ",") {
		if d, ok := cleanPrefixCandidate(c); ok {
			out[d] = struct{}{}
		}
	}
}

func cleanPrefixCandidate(c string) (string, bool) {
	c = strings.TrimLeft(strings.TrimSpace(c), ".~")
	if strings.Contains(c, "*") {
		return "", false
	}
	return acceptCandidate(c)
}

func addDomainParam(out map[string]struct{}, line string) {
	m := domainParamRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	for _, c := range strings.Split(m[1], "|") {
		if strings.Contains(c, "*") || strings.HasPrefix(c, "~") {
			continue
		}
		if d, ok := acceptCandidate(strings.TrimPrefix(c, ".")); ok {
			out[d] = struct{}{}
		}
	}
}

func addAnchors(out map[string]struct{}, line string) {
	for _, host := range anchorHosts(line) {
		out[host] = struct{}{}
	}
}

// anchorHosts returns the valid, lowercased hosts following every || anchor.
func anchorHosts(line string) []string {
	var hosts []string
	for _, m := range anchorRe.FindAllStringSubmatch(line, -1) {
		host := strings.ToLower(m[1])
		if strings.Contains(host, "*") || !domainlib.IsValidDomain(host) {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}

func acceptCandidate(c string) (string, bool) {
	c = strings.ToLower(c)
	if len(c) < 4 || !strings.Contains(c, ".") || !domainlib.IsValidDomain(c) {
		return "", false
	}
	return c, true
}
