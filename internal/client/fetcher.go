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
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
	"sync/atomic"
)

// Body read limits. A blocked-resources navigation only needs enough of the
// document to sniff denial pages.
const (
	MaxBodySize        = 1 << 20
	BlockedMaxBodySize = 64 << 10
)

const (
	acceptAll  = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	acceptHTML = "text/html,application/xhtml+xml"
)

var (
	// ErrBrowserClosed is returned by NewPage after Close.
	ErrBrowserClosed = errors.New("browser closed")
	// ErrPageClosed is returned by Navigate on a closed page.
	ErrPageClosed = errors.New("page closed")
)

// HTTPBrowser is a Browser backed by net/http. It loads only the top-level
// document, so sub-resources are never fetched whatever BlockResources says.
type HTTPBrowser struct {
	client *http.Client
	closed atomic.Bool
}

// NewHTTPBrowser returns a browser using c, or the shared client when c is nil.
func NewHTTPBrowser(c *http.Client) *HTTPBrowser {
	if c == nil {
		c = GetHTTPClient()
	}
	return &HTTPBrowser{client: c}
}

// NewPage implements Browser.
func (b *HTTPBrowser) NewPage(ctx context.Context) (Page, error) {
	if b.closed.Load() {
		return nil, ErrBrowserClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &httpPage{client: b.client}, nil
}

// Close implements Browser.
func (b *HTTPBrowser) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.client.CloseIdleConnections()
	return nil
}

type httpPage struct {
	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// Navigate implements Page.
func (p *httpPage) Navigate(ctx context.Context, url string, opts NavigateOptions) (*Response, error) {
	navCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		navCtx, cancelTimeout = context.WithTimeout(navCtx, opts.Timeout)
		defer cancelTimeout()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &NavigationError{Kind: KindUnknown, Err: ErrPageClosed}
	}
	p.cancel = cancel
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NavigationError{Kind: KindUnknown, Err: err}
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	if opts.BlockResources {
		req.Header.Set("Accept", acceptHTML)
	} else {
		req.Header.Set("Accept", acceptAll)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, navigationError(ctx, navCtx, opts, err)
	}
	defer resp.Body.Close()

	limit := int64(MaxBodySize)
	if opts.BlockResources {
		limit = BlockedMaxBodySize
	}
	var body []byte
	if !opts.BlockResources || isDocument(resp.Header.Get("Content-Type")) {
		// A body cut short by the deadline still counts; the status line
		// and final URL are already known.
		body, _ = io.ReadAll(io.LimitReader(resp.Body, limit))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Body:       string(body),
	}, nil
}

// navigationError classifies a failed request. The navigation deadline
// expiring is reported as such even when the underlying error is a dial
// or read timeout.
func navigationError(parent, navCtx context.Context, opts NavigateOptions, err error) *NavigationError {
	if parent.Err() == nil && errors.Is(navCtx.Err(), context.DeadlineExceeded) {
		return &NavigationError{
			Kind: KindNavigationTimeout,
			Err:  fmt.Errorf("Navigation timeout of %d ms exceeded: %w", opts.Timeout.Milliseconds(), err),
		}
	}
	return NewNavigationError(err)
}

func isDocument(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// Close implements Page. It aborts an in-flight navigation.
func (p *httpPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}
