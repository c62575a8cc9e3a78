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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrorKind is the liveness-relevant class of a navigation failure.
type ErrorKind int

const (
	// KindUnknown is anything that could not be classified.
	KindUnknown ErrorKind = iota
	// KindCertificate covers TLS certificate and SSL protocol failures.
	KindCertificate
	// KindNavigationTimeout is the navigation deadline expiring.
	KindNavigationTimeout
	// KindConnection covers name resolution failures, refused, reset or
	// timed out connections and unreachable hosts.
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindCertificate:
		return "certificate"
	case KindNavigationTimeout:
		return "navigation_timeout"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// NavigationError is returned by Page.Navigate on failure.
type NavigationError struct {
	Kind ErrorKind
	Err  error
}

func (e *NavigationError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *NavigationError) Unwrap() error { return e.Err }

// NewNavigationError wraps err with its classified kind.
func NewNavigationError(err error) *NavigationError {
	return &NavigationError{Kind: KindOf(err), Err: err}
}

// KindOf classifies err. A *NavigationError anywhere in the chain wins;
// otherwise typed Go errors are inspected first and the message text is
// the fallback.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return navErr.Kind
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		hostnameErr      x509.HostnameError
		invalidCert      x509.CertificateInvalidError
		verifyErr        *tls.CertificateVerificationError
		dnsErr           *net.DNSError
		opErr            *net.OpError
	)
	switch {
	case errors.As(err, &unknownAuthority), errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert), errors.As(err, &verifyErr):
		return KindCertificate
	case errors.As(err, &dnsErr):
		return KindConnection
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return KindConnection
	// A socket-level timeout is a connection timing out, even though net
	// reports it as matching context.DeadlineExceeded.
	case errors.As(err, &opErr) && opErr.Timeout():
		return KindConnection
	case errors.Is(err, context.DeadlineExceeded):
		return KindNavigationTimeout
	}
	return ClassifyMessage(err.Error())
}

// Message markers, matched against the lowercased error text. Browser
// engines report net::ERR_* codes; Go's net stack reports plain phrases.
var (
	certificateMarkers = []string{
		"err_cert_", "err_ssl_", "err_bad_ssl", "certificate", "x509:",
		"ssl routines", "ssl handshake", "ssl_error",
	}
	navigationTimeoutMarkers = []string{
		"navigation timeout", "navigation timed out",
	}
	connectionMarkers = []string{
		"err_name_not_resolved", "err_name_resolution_failed", "no such host",
		"err_connection_refused", "connection refused",
		"err_connection_timed_out", "connection timed out",
		"err_connection_reset", "connection reset",
		"err_address_unreachable", "host unreachable", "no route to host",
		"network is unreachable", "err_timed_out", "timeout", "timed out",
	}
)

// ClassifyMessage maps an error message to an ErrorKind. Certificate
// markers are checked first, then navigation timeouts, then connection
// failures; a generic "timeout" only counts as a connection failure once
// the navigation timeout phrasing has been ruled out.
func ClassifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, certificateMarkers):
		return KindCertificate
	case containsAny(lower, navigationTimeoutMarkers):
		return KindNavigationTimeout
	case containsAny(lower, connectionMarkers):
		return KindConnection
	default:
		return KindUnknown
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
