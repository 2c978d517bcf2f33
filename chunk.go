/*
Copyright © 2026 the Reanest authors.
This file is part of Reanest.

Reanest is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Reanest is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Reanest.  If not, see <http://www.gnu.org/licenses/>.
*/

package reanest

import "time"

const (
	// chunkMonths is the largest span, in calendar months, of a single
	// retrieval at monthly or yearly frequency.
	chunkMonths = 100

	// chunkDays is the largest span, in days, of a single retrieval at
	// hourly, daily, or weekly frequency.
	chunkDays = 14
)

// chunksMonthly reports whether requests at the given frequency are
// sized in calendar months rather than days. Monthly and yearly
// requests pull from the monthly-means dataset, so their chunks can be
// far larger.
func chunksMonthly(freq Frequency) bool {
	return freq == Monthly || freq == Yearly
}

// chunkUnits returns the total retrieval size of the request in its
// chunking unit: inclusive calendar months at monthly and yearly
// frequency, inclusive days otherwise.
func chunkUnits(req *Request) int {
	if chunksMonthly(req.Frequency) {
		return (req.End.Year()-req.Start.Year())*12 +
			int(req.End.Month()) - int(req.Start.Month()) + 1
	}
	return int(req.End.Sub(req.Start).Hours()/24) + 1
}

// TimeChunks splits a request into consecutive sub-requests, each no
// larger than the retrieval ceiling, that tile [Start, End] exactly.
// A request within the ceiling is returned unchanged as a single chunk.
func TimeChunks(req *Request) []*Request {
	monthly := chunksMonthly(req.Frequency)
	ceiling := chunkDays
	if monthly {
		ceiling = chunkMonths
	}
	if chunkUnits(req) <= ceiling {
		return []*Request{req}
	}

	var chunks []*Request
	cur := req.Start
	for !cur.After(req.End) {
		var chunkEnd time.Time
		if monthly {
			// The last day of the month that is ceiling-1 months
			// after the current month.
			endYear := cur.Year() + (int(cur.Month())-1+ceiling-1)/12
			endMonth := time.Month((int(cur.Month())-1+ceiling-1)%12 + 1)
			chunkEnd = time.Date(endYear, endMonth,
				daysInMonth(endYear, endMonth), 0, 0, 0, 0, time.UTC)
		} else {
			chunkEnd = cur.AddDate(0, 0, ceiling-1)
		}
		if chunkEnd.After(req.End) {
			chunkEnd = req.End
		}
		chunks = append(chunks, req.clone(cur, chunkEnd))
		cur = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks
}
