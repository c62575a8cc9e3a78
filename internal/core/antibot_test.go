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
	"testing"

	"github.com/x-stp/rxfilter/internal/config"
)

func TestAntiBotDetect(t *testing.T) {
	t.Parallel()
	d := NewAntiBotDetector(config.Default().AntiBot)

	testCases := []struct {
		name string
		body string
		want bool
	}{
		{"empty", "", false},
		{"akamai denial", `<html><head><title>Access Denied</title></head><body><h1>Access Denied</h1>
You don't have permission to access "http://shop.example/" on this server.<p>
Reference&#32;&#35;18&#46;5c3e1102&#46;1700000000&#46;2b1c</p></body></html>`, true},
		{"phrase without marker", `<html><body><h1>Access Denied</h1></body></html>`, false},
		{"marker without phrase", `<html><body>Reference # 42</body></html>`, false},
		{"case insensitive", `<html><body>ACCESS DENIED reference #7</body></html>`, true},
		{"edge host in link", `<html><body><a href="https://errors.edgesuite.net/18.1">why?</a></body></html>`, true},
		{"edge host in script", `<html><head><script src="//errors.edgekey.net/x.js"></script></head></html>`, true},
		{"edge host in text", `<html><body>See errors.edgesuite.net for details</body></html>`, true},
		{"phrase only in markup", `<html><body><img alt="Access Denied" src="/a.png">Reference #1</body></html>`, false},
		{"ordinary page", `<html><body><p>Welcome to our shop</p></body></html>`, false},
		{"plain text body", "Access Denied. Reference #18.abc", true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Detect(tc.body); got != tc.want {
				t.Errorf("Detect() = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestAntiBotCustomSignatures(t *testing.T) {
	t.Parallel()
	d := NewAntiBotDetector(config.AntiBot{
		Phrases: []string{"  Request Blocked "},
		Markers: []string{"Ray ID"},
	})
	if !d.Detect(`<html><body>Request blocked. Ray ID: 7f00</body></html>`) {
		t.Error("custom signature not detected")
	}
	if d.Detect(`<html><body><a href="https://errors.edgesuite.net/">x</a></body></html>`) {
		t.Error("edge hosts were not configured and must not match")
	}
}
