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
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// startTestDNS serves A records from records on a loopback UDP port.
func startTestDNS(t *testing.T, records map[string][]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		ips, ok := records[q.Name]
		if !ok {
			m.Rcode = dns.RcodeNameError
			_ = w.WriteMsg(m)
			return
		}
		for _, ip := range ips {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(ip),
			})
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestResolverLookupA(t *testing.T) {
	t.Parallel()
	addr := startTestDNS(t, map[string][]string{
		"live.example.":  {"192.0.2.10", "192.0.2.11"},
		"empty.example.": {},
	})
	r := NewResolver(addr, time.Second, zap.NewNop())

	ips, err := r.LookupA(context.Background(), "live.example")
	if err != nil {
		t.Fatalf("LookupA: %v", err)
	}
	if !reflect.DeepEqual(ips, []string{"192.0.2.10", "192.0.2.11"}) {
		t.Errorf("LookupA = %v", ips)
	}

	ips, err = r.LookupA(context.Background(), "gone.example")
	if err != nil || len(ips) != 0 {
		t.Errorf("NXDOMAIN LookupA = %v, %v; want no addresses and no error", ips, err)
	}

	ips, err = r.LookupA(context.Background(), "empty.example")
	if err != nil || len(ips) != 0 {
		t.Errorf("empty LookupA = %v, %v", ips, err)
	}
}

func TestResolverLookupToggle(t *testing.T) {
	t.Parallel()
	addr := startTestDNS(t, map[string][]string{
		"www.only-www.example.": {"192.0.2.20"},
		"bare.example.":         {"192.0.2.30"},
	})
	r := NewResolver(addr, time.Second, zap.NewNop())

	testCases := []struct {
		host        string
		wantVariant string
		wantIPs     []string
	}{
		{"only-www.example", "www.only-www.example", []string{"192.0.2.20"}},
		{"www.bare.example", "bare.example", []string{"192.0.2.30"}},
		{"bare.example", "bare.example", []string{"192.0.2.30"}},
		{"nothing.example", "", nil},
	}
	for _, tc := range testCases {
		variant, ips := r.LookupToggle(context.Background(), tc.host)
		if variant != tc.wantVariant || !reflect.DeepEqual(ips, tc.wantIPs) {
			t.Errorf("LookupToggle(%q) = %q, %v; want %q, %v", tc.host, variant, ips, tc.wantVariant, tc.wantIPs)
		}
	}
}

func TestResolverLookupToggleNeverFails(t *testing.T) {
	t.Parallel()
	// Nothing listens here; every query times out.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := pc.LocalAddr().String()
	_ = pc.Close()

	r := NewResolver(addr, 200*time.Millisecond, zap.NewNop())
	variant, ips := r.LookupToggle(context.Background(), "example.com")
	if variant != "" || ips != nil {
		t.Errorf("LookupToggle = %q, %v; want nothing", variant, ips)
	}
}

func TestNewResolverAddsDefaultPort(t *testing.T) {
	t.Parallel()
	if got := NewResolver("9.9.9.9", 0, nil).Server(); got != "9.9.9.9:53" {
		t.Errorf("Server() = %q; want 9.9.9.9:53", got)
	}
	if got := NewResolver("", 0, nil).Server(); got == "" {
		t.Error("expected a default server")
	}
}
