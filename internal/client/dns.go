package client

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
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const (
	// FallbackDNSServer is used when /etc/resolv.conf has no nameserver.
	FallbackDNSServer = "1.1.1.1:53"
	// DefaultDNSTimeout bounds one A query.
	DefaultDNSTimeout = 5 * time.Second

	resolvConfPath = "/etc/resolv.conf"
)

// Resolver performs A-record lookups against a single DNS server.
// It is safe for concurrent use.
type Resolver struct {
	server  string
	timeout time.Duration
	client  *dns.Client
	logger  *zap.Logger
}

// DefaultDNSServer returns the first nameserver of the system resolver
// configuration, or FallbackDNSServer.
func DefaultDNSServer() string {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(cfg.Servers) == 0 {
		return FallbackDNSServer
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// NewResolver returns a resolver for server ("host" or "host:port"; empty
// selects DefaultDNSServer). A non-positive timeout selects DefaultDNSTimeout.
func NewResolver(server string, timeout time.Duration, logger *zap.Logger) *Resolver {
	if server == "" {
		server = DefaultDNSServer()
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = DefaultDNSTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		server:  server,
		timeout: timeout,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
		logger:  logger,
	}
}

// Server returns the address queries are sent to.
func (r *Resolver) Server() string { return r.server }

// LookupA returns the IPv4 addresses of host. A negative answer is not an
// error; it yields no addresses.
func (r *Resolver) LookupA(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return nil, fmt.Errorf("A query for %s via %s: %w", host, r.server, err)
	}
	if in.Truncated {
		tcp := &dns.Client{Net: "tcp", Timeout: r.timeout}
		if in, _, err = tcp.ExchangeContext(ctx, m, r.server); err != nil {
			return nil, fmt.Errorf("A query for %s via %s over tcp: %w", host, r.server, err)
		}
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, nil
	}

	var ips []string
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips, nil
}

// LookupToggle looks up host and, if that yields nothing, the variant with
// "www." added or removed. It returns the host that answered and its
// addresses, or "" and nil. Lookup failures are logged, never returned.
func (r *Resolver) LookupToggle(ctx context.Context, host string) (string, []string) {
	for _, candidate := range []string{host, toggleWWW(host)} {
		ips, err := r.LookupA(ctx, candidate)
		if err != nil {
			r.logger.Debug("dns lookup failed", zap.String("host", candidate), zap.Error(err))
			continue
		}
		if len(ips) > 0 {
			return candidate, ips
		}
	}
	return "", nil
}

func toggleWWW(host string) string {
	if strings.HasPrefix(host, "www.") {
		return strings.TrimPrefix(host, "www.")
	}
	return "www." + host
}
