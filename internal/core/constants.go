/*
Package core runs the probe pipeline of rxfilter: it classifies every
candidate domain by navigating to it, schedules the navigations in bounded
batches, keeps track of the pages each attempt opens and finally verifies
dead domains over DNS.

Tunables that are not part of the user-facing configuration live here.
*/
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

import "time"

// Batch bounds. A batch is the unit of parallelism: every task of a batch
// runs at once and the next batch starts only after the whole batch ended.
const (
	MinBatchSize     = 1
	MaxBatchSize     = 50
	DefaultBatchSize = 12
)

const (
	// MaxPageAttempts bounds how often opening a page is tried for one
	// variant before the attempt is given up as a transport error.
	MaxPageAttempts = 2
	// PageRetryDelay is the pause between two page opening attempts.
	PageRetryDelay = 250 * time.Millisecond

	// StatsReportInterval is how often the CLI logs running totals.
	StatsReportInterval = 15 * time.Second

	// BlankURL is what a browsing context reports before it committed to a
	// document.
	BlankURL = "about:blank"
)

// Attempt outcomes as recorded in metrics.
const (
	outcomeResponse    = "response"
	outcomeNoResponse  = "no_response"
	outcomeForceClosed = "force_closed"
	outcomePageFailure = "page_failure"
	outcomeErrorPrefix = "error_"
)
