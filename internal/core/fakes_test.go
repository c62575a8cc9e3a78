package core

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
	"sync"
	"sync/atomic"

	"github.com/x-stp/rxfilter/internal/client"
)

// fakeNav is the scripted outcome of navigating to one URL.
type fakeNav struct {
	resp *client.Response
	err  error
	// hang blocks the navigation until the page is closed or ctx ends.
	hang bool
}

// fakeBrowser serves scripted navigations keyed by URL. URLs without a
// script fail as unresolvable hosts.
type fakeBrowser struct {
	mu      sync.Mutex
	navs    map[string]fakeNav
	visited []string

	newPageErr error
	pagesOpen  atomic.Int32
	newPages   atomic.Int32
	closes     atomic.Int32
}

func newFakeBrowser(navs map[string]fakeNav) *fakeBrowser {
	return &fakeBrowser{navs: navs}
}

func (b *fakeBrowser) NewPage(ctx context.Context) (client.Page, error) {
	b.newPages.Add(1)
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.pagesOpen.Add(1)
	return &fakePage{browser: b, closed: make(chan struct{})}, nil
}

func (b *fakeBrowser) Close() error { return nil }

func (b *fakeBrowser) Visited() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.visited...)
}

type fakePage struct {
	browser *fakeBrowser
	once    sync.Once
	closed  chan struct{}
}

var errPageAborted = errors.New("page aborted")

func (p *fakePage) Navigate(ctx context.Context, url string, _ client.NavigateOptions) (*client.Response, error) {
	b := p.browser
	b.mu.Lock()
	b.visited = append(b.visited, url)
	nav, ok := b.navs[url]
	b.mu.Unlock()

	if !ok {
		return nil, &client.NavigationError{Kind: client.KindConnection, Err: errors.New("net::ERR_NAME_NOT_RESOLVED at " + url)}
	}
	if nav.hang {
		select {
		case <-p.closed:
			return nil, &client.NavigationError{Kind: client.KindUnknown, Err: errPageAborted}
		case <-ctx.Done():
			return nil, &client.NavigationError{Kind: client.KindUnknown, Err: ctx.Err()}
		}
	}
	return nav.resp, nav.err
}

func (p *fakePage) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.browser.pagesOpen.Add(-1)
		p.browser.closes.Add(1)
	})
	return nil
}

func ok200(finalURL string) fakeNav {
	return fakeNav{resp: &client.Response{StatusCode: 200, FinalURL: finalURL, Body: "<html><body>ok</body></html>"}}
}

func withStatus(code int, finalURL, body string) fakeNav {
	return fakeNav{resp: &client.Response{StatusCode: code, FinalURL: finalURL, Body: body}}
}

func navErr(kind client.ErrorKind, msg string) fakeNav {
	return fakeNav{err: &client.NavigationError{Kind: kind, Err: errors.New(msg)}}
}
