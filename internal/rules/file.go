package rules

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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Mode selects the grammar applied to every line of an input file.
type Mode string

const (
	ModeRules   Mode = "rules"
	ModeDomains Mode = "domains"
)

// ErrUnknownMode is returned by ParseMode for anything but "rules" or "domains".
var ErrUnknownMode = errors.New("unknown parsing mode")

// maxLineSize bounds a single input line; long uBlock scriptlet lines exceed
// bufio's 64 KiB default.
const maxLineSize = 1 << 20

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRules:
		return ModeRules, nil
	case ModeDomains:
		return ModeDomains, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

func (m Mode) String() string { return string(m) }

// Extract applies the mode's grammar to one line.
func (m Mode) Extract(line string) map[string]struct{} {
	if m == ModeDomains {
		return ExtractPlainDomains(line)
	}
	return ExtractDomains(line)
}

// ParseDomains reads every line of r with the given mode and returns the
// deduplicated domains in sorted order.
func ParseDomains(r io.Reader, mode Mode) ([]string, error) {
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		for d := range mode.Extract(scanner.Text()) {
			set[d] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read filter list: %w", err)
	}

	domains := make([]string, 0, len(set))
	for d := range set {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains, nil
}

// ParseDomainsFromFile is ParseDomains over the file at path.
func ParseDomainsFromFile(path string, mode Mode) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open filter list %s: %w", path, err)
	}
	defer f.Close()
	return ParseDomains(f, mode)
}
