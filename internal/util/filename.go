package util

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
	"path/filepath"
	"strings"
)

// maxNameLength caps sanitized file names.
const maxNameLength = 100

// SanitizeFilename creates a filesystem-safe filename from a URL or other string.
// Replaces common problematic characters with underscores and limits length.
func SanitizeFilename(input string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, input)
	runes := []rune(replaced)
	if len(runes) > maxNameLength {
		return string(runes[:maxNameLength])
	}
	return replaced
}

// OutputPaths are the artifacts derived from one input list.
type OutputPaths struct {
	Dead     string
	Redirect string
	Cleaned  string
}

// DeriveOutputPaths names the reports after input: for "lists/ads.txt" it
// returns "ads_dead.txt", "ads_redirect.txt" and "ads_cleaned.txt" in dir,
// or next to the input when dir is empty. The cleaned list keeps the input
// extension (".txt" when there is none).
func DeriveOutputPaths(input, dir string) OutputPaths {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if name == "" {
		// ".hosts" style names
		name, ext = base, ""
	}
	if ext == "" {
		ext = ".txt"
	}
	name = SanitizeFilename(name)
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return OutputPaths{
		Dead:     filepath.Join(dir, name+"_dead.txt"),
		Redirect: filepath.Join(dir, name+"_redirect.txt"),
		Cleaned:  filepath.Join(dir, name+"_cleaned"+SanitizeFilename(ext)),
	}
}
