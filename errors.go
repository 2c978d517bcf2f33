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

import (
	"errors"
	"fmt"

	"github.com/ctessum/geom"
)

// ErrNoData is returned when every chunk of a run failed to produce
// usable data.
var ErrNoData = errors.New("reanest: no data was successfully processed from any chunk")

// A ValidationError reports a malformed request. It is returned before
// any network activity takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reanest: invalid request (%s): %s", e.Field, e.Reason)
}

// A DownloadError reports that retrieval for one chunk failed after the
// retry budget was exhausted. It is fatal for that chunk only.
type DownloadError struct {
	Chunk    int // 1-based chunk number
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("reanest: chunk %d: all %d download attempts failed: %v", e.Chunk, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// A GeospatialError reports that no grid points were found inside the
// request geometry. Both extents are included for diagnosis.
type GeospatialError struct {
	GridBounds   *geom.Bounds
	RegionBounds *geom.Bounds
}

func (e *GeospatialError) Error() string {
	return fmt.Sprintf("reanest: no grid points inside region geometry: grid extent is %s but region extent is %s",
		formatBounds(e.GridBounds), formatBounds(e.RegionBounds))
}

// A ProcessingError reports that a retrieved file could not be used: it
// was unreadable, or it was missing an expected coordinate field. The
// file is skipped; if every file in a chunk is unusable the chunk fails.
type ProcessingError struct {
	Path string
	Op   string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("reanest: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func formatBounds(b *geom.Bounds) string {
	if b == nil {
		return "(none)"
	}
	return fmt.Sprintf("[W %.4f, S %.4f, E %.4f, N %.4f]", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
}
