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
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/x-stp/rxfilter/internal/config"
)

// resourceAttrs are the selectors whose attribute may point at an edge
// error host.
var resourceAttrs = []struct{ selector, attr string }{
	{"a[href]", "href"},
	{"img[src]", "src"},
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"iframe[src]", "src"},
	{"form[action]", "action"},
}

// AntiBotDetector recognises access-denied pages served by bot protection
// in front of an otherwise live origin. Matching is case-insensitive.
type AntiBotDetector struct {
	phrases   []string
	markers   []string
	edgeHosts []string
}

// NewAntiBotDetector builds a detector from the configured signatures.
func NewAntiBotDetector(sig config.AntiBot) *AntiBotDetector {
	return &AntiBotDetector{
		phrases:   lowerAll(sig.Phrases),
		markers:   lowerAll(sig.Markers),
		edgeHosts: lowerAll(sig.EdgeHosts),
	}
}

// Detect reports whether body looks like a bot-protection denial: the page
// text contains a denial phrase together with a reference marker, or the
// page links to or mentions an edge error host.
func (d *AntiBotDetector) Detect(body string) bool {
	if body == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return d.matchText(strings.ToLower(body))
	}

	if d.matchText(strings.ToLower(doc.Text())) {
		return true
	}
	if len(d.edgeHosts) == 0 {
		return false
	}
	for _, ra := range resourceAttrs {
		found := false
		doc.Find(ra.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr(ra.attr)
			found = containsAnyOf(strings.ToLower(v), d.edgeHosts)
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

func (d *AntiBotDetector) matchText(text string) bool {
	if containsAnyOf(text, d.phrases) && containsAnyOf(text, d.markers) {
		return true
	}
	return containsAnyOf(text, d.edgeHosts)
}

func containsAnyOf(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
