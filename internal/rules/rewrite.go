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
	"strings"
)

// RewriteStats counts what a rewrite did to the input lines.
type RewriteStats struct {
	Removed  int
	Modified int
	Kept     int
}

// Rewriter removes the domains of a removal set from filter list lines,
// narrowing a rule when some of its domains survive and deleting it when
// none do. A Rewriter is read-only after construction and safe for
// concurrent use.
type Rewriter struct {
	remove map[string]struct{}
	mode   Mode
}

// NewRewriter returns a Rewriter for the given removal set. Keys must be
// lowercase domains.
func NewRewriter(remove map[string]struct{}, mode Mode) *Rewriter {
	return &Rewriter{remove: remove, mode: mode}
}

// RewriteLine returns the rewritten line and whether it should be kept.
// Unchanged lines are returned verbatim; narrowed lines are returned
// without surrounding whitespace.
func (rw *Rewriter) RewriteLine(line string) (string, bool) {
	if rw.mode == ModeDomains {
		return rw.rewritePlain(line)
	}
	return rw.rewriteRule(line)
}

// Rewrite applies RewriteLine to every line, dropping deleted ones.
func (rw *Rewriter) Rewrite(lines []string) ([]string, RewriteStats) {
	var stats RewriteStats
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		rewritten, keep := rw.RewriteLine(line)
		switch {
		case !keep:
			stats.Removed++
			continue
		case rewritten != line:
			stats.Modified++
		default:
			stats.Kept++
		}
		out = append(out, rewritten)
	}
	return out, stats
}

// RewriteText rewrites a whole file body. The line ending style (LF or
// CRLF) and the presence of a final newline are preserved.
func (rw *Rewriter) RewriteText(text string) (string, RewriteStats) {
	if text == "" {
		return "", RewriteStats{}
	}
	eol := "\n"
	if strings.Contains(text, "\r\n") {
		eol = "\r\n"
	}
	trailing := strings.HasSuffix(text, "\n")
	body := strings.TrimSuffix(strings.TrimSuffix(text, "\n"), "\r")

	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	out, stats := rw.Rewrite(lines)
	result := strings.Join(out, eol)
	if trailing && len(out) > 0 {
		result += eol
	}
	return result, stats
}

func (rw *Rewriter) removed(entry string) bool {
	_, ok := rw.remove[strings.ToLower(strings.TrimLeft(strings.TrimSpace(entry), "~."))]
	return ok
}

func (rw *Rewriter) rewriteRule(line string) (string, bool) {
	cur := strings.TrimSpace(line)
	if cur == "" || isComment(cur) {
		return line, true
	}
	cosmetic := cosmeticRe.MatchString(cur)

	handledParam := false
	if !cosmetic {
		if loc := domainParamRe.FindStringSubmatchIndex(cur); loc != nil {
			handledParam = true
			next, keep := rw.rewriteDomainParam(cur, loc)
			if !keep {
				return "", false
			}
			cur = next
		}
	}

	if cosmetic {
		next, keep := rw.rewriteCosmetic(cur)
		if !keep {
			return "", false
		}
		cur = next
	}

	if !handledParam {
		for d := range ExtractDomains(cur) {
			if _, ok := rw.remove[d]; ok {
				return "", false
			}
		}
	}

	if cur == strings.TrimSpace(line) {
		return line, true
	}
	return cur, true
}

// rewriteDomainParam prunes the domain= value located by loc. A rule whose
// || anchor host is being removed goes away entirely. Once every included
// domain is gone the rule keeps working only if it has an anchor of its own;
// a list of exclusions only loses its option, never the rule.
func (rw *Rewriter) rewriteDomainParam(line string, loc []int) (string, bool) {
	for _, host := range anchorHosts(line) {
		if _, ok := rw.remove[host]; ok {
			return "", false
		}
	}

	entries := strings.Split(line[loc[2]:loc[3]], "|")
	kept := make([]string, 0, len(entries))
	included, includedKept := 0, 0
	for _, e := range entries {
		excluded := strings.HasPrefix(strings.TrimSpace(e), "~")
		if !excluded {
			included++
		}
		if strings.Contains(e, "*") || !rw.removed(e) {
			kept = append(kept, e)
			if !excluded {
				includedKept++
			}
		}
	}

	switch {
	case len(kept) == len(entries):
		return line, true
	case included > 0 && includedKept == 0:
		// Exclusions alone would widen the rule to every other site.
		if !strings.Contains(line, "||") {
			return "", false
		}
		return removeOption(line, loc[0], loc[1]), true
	case len(kept) > 0:
		return line[:loc[2]] + strings.Join(kept, "|") + line[loc[3]:], true
	default:
		return removeOption(line, loc[0], loc[1]), true
	}
}

// removeOption cuts line[start:end] out of a $-option list together with
// one adjacent comma, and drops a '$' left without options.
func removeOption(line string, start, end int) string {
	switch {
	case end < len(line) && line[end] == ',':
		end++
	case start > 0 && line[start-1] == ',':
		start--
	}
	out := line[:start] + line[end:]
	if trimmed := strings.TrimRight(out, " \t"); strings.HasSuffix(trimmed, "$") {
		out = strings.TrimSuffix(trimmed, "$")
	}
	return out
}

func (rw *Rewriter) rewriteCosmetic(line string) (string, bool) {
	loc := cosmeticRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, true
	}
	entries := strings.Split(line[loc[2]:loc[3]], ",")
	kept := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(e, "*") || !rw.removed(e) {
			kept = append(kept, e)
		}
	}
	switch {
	case len(kept) == 0:
		return "", false
	case len(kept) == len(entries):
		return line, true
	default:
		return strings.Join(kept, ",") + line[loc[3]:], true
	}
}

func (rw *Rewriter) rewritePlain(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isPlainComment(trimmed) {
		return line, true
	}

	if hosts, ok := hostsFileEntries(trimmed); ok {
		return rw.rewriteHostsEntry(line, trimmed, hosts)
	}

	entries := strings.Split(trimmed, ",")
	kept := make([]string, 0, len(entries))
	for _, e := range entries {
		if !rw.plainRemoved(e) {
			kept = append(kept, e)
		}
	}
	switch {
	case len(kept) == 0:
		return "", false
	case len(kept) == len(entries):
		return line, true
	default:
		return strings.TrimSpace(strings.Join(kept, ",")), true
	}
}

// rewriteHostsEntry keeps the address and any trailing comment of a hosts
// file line and drops removed host names from it.
func (rw *Rewriter) rewriteHostsEntry(line, trimmed string, hosts []string) (string, bool) {
	kept := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if !rw.plainRemoved(h) {
			kept = append(kept, h)
		}
	}
	switch {
	case len(kept) == 0:
		return "", false
	case len(kept) == len(hosts):
		return line, true
	}

	out := strings.Fields(trimmed)[0] + " " + strings.Join(kept, " ")
	if i := strings.IndexByte(trimmed, '#'); i >= 0 {
		out += " " + trimmed[i:]
	}
	return out, true
}

func (rw *Rewriter) plainRemoved(entry string) bool {
	host := normalizePlainHost(entry)
	if host == "" {
		return false
	}
	_, ok := rw.remove[host]
	return ok
}
