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
	"net/http"
	"testing"
	"time"
)

// These tests reset package state and therefore do not run in parallel.

func TestInitHTTPClientFillsDefaults(t *testing.T) {
	sharedClient = nil
	clientInitialized = false

	cfg := &Config{}
	InitHTTPClient(cfg)
	c := GetHTTPClient()

	tr, ok := c.Transport.(*http.Transport)
	if !ok || tr == nil {
		t.Fatalf("expected *http.Transport, got %T", c.Transport)
	}
	if tr.MaxIdleConns == 0 {
		t.Fatalf("expected MaxIdleConns defaulted, got %d", tr.MaxIdleConns)
	}
	if tr.MaxIdleConnsPerHost == 0 {
		t.Fatalf("expected MaxIdleConnsPerHost defaulted, got %d", tr.MaxIdleConnsPerHost)
	}
	if tr.MaxConnsPerHost == 0 {
		t.Fatalf("expected MaxConnsPerHost defaulted, got %d", tr.MaxConnsPerHost)
	}
	if c.Timeout != RequestTimeout {
		t.Fatalf("expected RequestTimeout defaulted, got %v", c.Timeout)
	}
	if c.CheckRedirect == nil {
		t.Fatal("expected a redirect policy")
	}
	if cfg.MaxIdleConns != 0 {
		t.Fatal("defaulting must not write into the caller's Config")
	}
}

func TestGetHTTPClientInitializesLazily(t *testing.T) {
	sharedClient = nil
	clientInitialized = false

	c := GetHTTPClient()
	if c == nil {
		t.Fatal("expected a client")
	}
	if GetHTTPClient() != c {
		t.Fatal("expected the same shared client on subsequent calls")
	}
}

func TestInitHTTPClientReplacesClient(t *testing.T) {
	sharedClient = nil
	clientInitialized = false

	InitHTTPClient(nil)
	first := GetHTTPClient()
	InitHTTPClient(&Config{RequestTimeout: 5 * time.Second})
	second := GetHTTPClient()

	if first == second {
		t.Fatal("expected a new client after reconfiguration")
	}
	if second.Timeout != 5*time.Second {
		t.Fatalf("expected configured timeout, got %v", second.Timeout)
	}
}
