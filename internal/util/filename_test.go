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
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		in, want string
	}{
		{"easylist", "easylist"},
		{"https://example.com/list.txt", "https___example.com_list.txt"},
		{`a\b|c?d*e"f<g>h`, "a_b_c_d_e_f_g_h"},
		{"tab\there", "tab_here"},
		{strings.Repeat("é", 150), strings.Repeat("é", 100)},
	}
	for _, tc := range testCases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestDeriveOutputPaths(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name, input, dir string
		want             OutputPaths
	}{
		{
			name:  "next to input",
			input: filepath.Join("lists", "ads.txt"),
			want: OutputPaths{
				Dead:     filepath.Join("lists", "ads_dead.txt"),
				Redirect: filepath.Join("lists", "ads_redirect.txt"),
				Cleaned:  filepath.Join("lists", "ads_cleaned.txt"),
			},
		},
		{
			name:  "explicit dir keeps extension",
			input: filepath.Join("lists", "hosts.list"),
			dir:   "out",
			want: OutputPaths{
				Dead:     filepath.Join("out", "hosts_dead.txt"),
				Redirect: filepath.Join("out", "hosts_redirect.txt"),
				Cleaned:  filepath.Join("out", "hosts_cleaned.list"),
			},
		},
		{
			name:  "no extension",
			input: "filters",
			want: OutputPaths{
				Dead:     "filters_dead.txt",
				Redirect: "filters_redirect.txt",
				Cleaned:  "filters_cleaned.txt",
			},
		},
		{
			name:  "dot file",
			input: ".adblock",
			want: OutputPaths{
				Dead:     ".adblock_dead.txt",
				Redirect: ".adblock_redirect.txt",
				Cleaned:  ".adblock_cleaned.txt",
			},
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DeriveOutputPaths(tc.input, tc.dir); got != tc.want {
				t.Errorf("DeriveOutputPaths(%q, %q) = %+v; want %+v", tc.input, tc.dir, got, tc.want)
			}
		})
	}
}
