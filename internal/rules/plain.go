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
	"net/netip"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/x-stp/rxfilter/internal/domainlib"
)

// isPlainComment expects a trimmed line.
func isPlainComment(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") || strings.HasPrefix(line, "//")
}

// ExtractPlainDomains returns the domains on one line of a plain domain list.
// A line holds comma-separated hosts or URLs, or is a hosts-file entry such
// as "0.0.0.0 example.com".
func ExtractPlainDomains(line string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, entry := range plainEntries(line) {
		if host := normalizePlainHost(entry); host != "" && domainlib.IsValidDomain(host) {
			out[host] = struct{}{}
		}
	}
	return out
}

// plainEntries splits a plain-list line into its raw host entries. Comments
// and blank lines yield nothing.
func plainEntries(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || isPlainComment(line) {
		return nil
	}
	if hosts, ok := hostsFileEntries(line); ok {
		return hosts
	}
	return strings.Split(line, ",")
}

// hostsFileEntries recognises "<ip> <host> [<host>...] [# comment]".
func hostsFileEntries(line string) ([]string, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, false
	}
	if _, err := netip.ParseAddr(fields[0]); err != nil {
		return nil, false
	}
	var hosts []string
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "#") {
			break
		}
		hosts = append(hosts, f)
	}
	return hosts, true
}

// normalizePlainHost reduces a raw entry to a lowercase ASCII host: scheme,
// path and port are dropped, internationalised names are punycoded.
// It returns "" when nothing usable is left.
func normalizePlainHost(entry string) string {
	h := strings.ToLower(strings.TrimSpace(entry))
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimPrefix(h, "https://")
	if i := strings.IndexByte(h, '/'); i >= 0 {
		h = h[:i]
	}
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	if h == "" {
		return ""
	}
	if !isASCII(h) {
		ascii, err := idna.Lookup.ToASCII(h)
		if err != nil {
			return ""
		}
		h = ascii
	}
	return h
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
