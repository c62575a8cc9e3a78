/*
Package domainlib holds the domain-level building blocks of rxfilter: syntactic
validity checks, base-domain (eTLD+1-like) reduction over a suffix table,
www-variant expansion and the classification result model shared by the
prober and the exporter.
*/
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
	"regexp"
	"strings"
)

var (
	ipv4Pattern   = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	domainCharset = regexp.MustCompile(`^[a-z0-9.-]+$`)
)

// IsValidDomain reports whether token looks like a probeable host name.
// It rejects empty tokens, tokens without a dot, anything with a port or IPv6
// colon, .onion hosts, bare IPv4 literals and tokens with characters outside
// [a-z0-9.-] once lowercased. Pure predicate, never panics.
func IsValidDomain(token string) bool {
	if token == "" || !strings.Contains(token, ".") || strings.Contains(token, ":") {
		return false
	}
	lower := strings.ToLower(token)
	if strings.HasSuffix(lower, ".onion") {
		return false
	}
	if ipv4Pattern.MatchString(lower) {
		return false
	}
	return domainCharset.MatchString(lower)
}

// StripWWW removes a single leading "www." label.
func StripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
