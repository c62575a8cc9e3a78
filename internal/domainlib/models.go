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
	"strings"
)

// DomainCheckTask pairs an original domain with the host variants to probe.
// Variants are ordered, original first: the prober stops at the first
// conclusive variant, so the order decides which one wins.
type DomainCheckTask struct {
	Original string
	Variants []string
}

// ExpandWithWWW turns domains into check tasks. With addWWW set, a bare
// domain (exactly one dot, no www. prefix) also gets its www. variant.
// Domains that already start with www. or carry their own subdomain are
// probed as-is.
func ExpandWithWWW(domains []string, addWWW bool) []DomainCheckTask {
	tasks := make([]DomainCheckTask, 0, len(domains))
	for _, d := range domains {
		tasks = append(tasks, DomainCheckTask{Original: d, Variants: variantsFor(d, addWWW)})
	}
	return tasks
}

func variantsFor(domain string, addWWW bool) []string {
	if !addWWW || strings.HasPrefix(domain, "www.") {
		return []string{domain}
	}
	if strings.Count(StripWWW(domain), ".") > 1 {
		return []string{domain}
	}
	return []string{domain, "www." + domain}
}

// Kind is the terminal classification of a task.
type Kind int

const (
	Active Kind = iota
	Dead
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Dead:
		return "dead"
	case Redirect:
		return "redirect"
	default:
		return "active"
	}
}

// DNSInfo records the outcome of the optional A-record verification of a
// dead domain.
type DNSInfo struct {
	Checked bool
	Variant string   // host that answered, empty when nothing did
	IPs     []string // IPv4 addresses found for Variant
}

// Resolvable reports whether the verification found at least one A record.
func (d *DNSInfo) Resolvable() bool {
	return d != nil && d.Checked && len(d.IPs) > 0
}

// Result is the immutable outcome of probing one task. Active results carry
// only Domain and are dropped from every output.
type Result struct {
	Kind   Kind
	Domain string

	// StatusCode is 0 when no HTTP status was observed.
	StatusCode int
	Reason     string

	// Redirect only.
	FinalDomain string
	OriginalURL string
	FinalURL    string

	// Dead only, set by DNS verification.
	DNS *DNSInfo
}

// ActiveResult builds an Active result for domain.
func ActiveResult(domain string) Result {
	return Result{Kind: Active, Domain: domain}
}

// DeadResult builds a Dead result.
func DeadResult(domain string, status int, reason string) Result {
	return Result{Kind: Dead, Domain: domain, StatusCode: status, Reason: reason}
}

// RedirectResult builds a Redirect result.
func RedirectResult(domain, finalDomain, originalURL, finalURL string, status int) Result {
	return Result{
		Kind:        Redirect,
		Domain:      domain,
		FinalDomain: finalDomain,
		OriginalURL: originalURL,
		FinalURL:    finalURL,
		StatusCode:  status,
	}
}
