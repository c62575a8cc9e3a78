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
	"time"
)

// NavigateOptions are the per-navigation inputs handed to a Page.
type NavigateOptions struct {
	UserAgent string
	// Timeout bounds the navigation itself. Zero means no navigation
	// timeout beyond the caller's context.
	Timeout time.Duration
	// BlockResources asks the page not to load images, stylesheets, fonts
	// and media.
	BlockResources bool
}

// Response is what a navigation produced.
type Response struct {
	StatusCode int
	// FinalURL is the document URL after all redirects were followed.
	FinalURL string
	Body     string
}

// Page is a single browsing context. A Page is used by one goroutine for
// one navigation at a time; Close may be called from any goroutine and
// aborts an in-flight navigation.
type Page interface {
	// Navigate loads url. A nil *Response with a nil error means the
	// navigation finished without a usable response. Failures are
	// returned as *NavigationError.
	Navigate(ctx context.Context, url string, opts NavigateOptions) (*Response, error)
	Close() error
}

// Browser hands out pages. Implementations must be safe for concurrent use.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
