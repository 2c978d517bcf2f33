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

// Package reanest turns gridded climate-reanalysis output into per-region
// tabular time series. It retrieves gridded files for a requested time range
// and area, keeps only the grid points that fall inside an arbitrary
// geographic region, and reduces the result to one row per reporting
// interval using climatologically appropriate rules for each variable.
package reanest

import (
	"fmt"
	"strings"
	"time"

	"github.com/ctessum/geom"
)

// Version gives the version number of this version of Reanest.
const Version = "1.2.0"

// Frequency is the temporal granularity of the requested output.
type Frequency string

// The supported reporting frequencies.
const (
	Hourly  Frequency = "hourly"
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// ParseFrequency converts s to a Frequency, ignoring case.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToLower(s)) {
	case Hourly, Daily, Weekly, Monthly, Yearly:
		return Frequency(strings.ToLower(s)), nil
	}
	return "", &ValidationError{Field: "frequency", Reason: fmt.Sprintf("invalid frequency %q; must be one of hourly, daily, weekly, monthly, yearly", s)}
}

// DatasetKind distinguishes variables defined at the surface from
// variables defined on vertical pressure levels.
type DatasetKind string

// The supported dataset kinds.
const (
	Surface        DatasetKind = "surface"
	PressureLevels DatasetKind = "pressure"
)

// ParseDatasetKind converts s to a DatasetKind, ignoring case.
func ParseDatasetKind(s string) (DatasetKind, error) {
	switch DatasetKind(strings.ToLower(s)) {
	case Surface, PressureLevels:
		return DatasetKind(strings.ToLower(s)), nil
	}
	return "", &ValidationError{Field: "dataset", Reason: fmt.Sprintf("invalid dataset kind %q; must be 'surface' or 'pressure'", s)}
}

// DefaultResolution is the grid spacing [degrees] used when a request
// does not specify one.
const DefaultResolution = 0.25

// A Request describes one retrieval-and-aggregation run. A Request is
// created once per invocation and must not be modified afterwards.
type Request struct {
	// ID identifies the run. Output files and temporary downloads are
	// named after it.
	ID string

	// Variables are the reanalysis variable names to retrieve.
	Variables []string

	// Start and End give the inclusive date range to retrieve.
	Start, End time.Time

	// Frequency is the reporting granularity of the output.
	Frequency Frequency

	// Resolution is the grid spacing in degrees.
	Resolution float64

	// Kind selects between surface and pressure-level variables.
	Kind DatasetKind

	// Levels are the pressure levels [hPa] to retrieve. Required when
	// Kind == PressureLevels and disallowed otherwise.
	Levels []string

	// Region restricts output to grid points inside a geographic
	// region. When nil, the full Bounds rectangle is used.
	Region *Region

	// Bounds is the rectangular extent sent to the retrieval service.
	// When nil it is derived from the Region envelope.
	Bounds *geom.Bounds
}

// Validate checks the request invariants. It returns a *ValidationError
// describing the first violated invariant, or nil if the request is valid.
func (r *Request) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "request ID cannot be empty"}
	}
	if len(r.Variables) == 0 {
		return &ValidationError{Field: "variables", Reason: "variable list cannot be empty"}
	}
	if r.Start.After(r.End) {
		return &ValidationError{Field: "dates", Reason: fmt.Sprintf("start date %v is after end date %v", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))}
	}
	switch r.Kind {
	case Surface, "": // surface is the default
		if len(r.Levels) != 0 {
			return &ValidationError{Field: "levels", Reason: "pressure levels are only allowed for pressure-level requests"}
		}
	case PressureLevels:
		if len(r.Levels) == 0 {
			return &ValidationError{Field: "levels", Reason: "pressure levels must be provided for pressure-level requests"}
		}
	default:
		return &ValidationError{Field: "dataset", Reason: fmt.Sprintf("invalid dataset kind %q", r.Kind)}
	}
	switch r.Frequency {
	case Hourly, Daily, Weekly, Monthly, Yearly:
	default:
		return &ValidationError{Field: "frequency", Reason: fmt.Sprintf("invalid frequency %q", r.Frequency)}
	}
	if r.Resolution <= 0 {
		return &ValidationError{Field: "resolution", Reason: fmt.Sprintf("resolution must be positive but is %g", r.Resolution)}
	}
	if r.Region == nil && r.Bounds == nil {
		return &ValidationError{Field: "extent", Reason: "either a region geometry or a bounding rectangle is required"}
	}
	if r.Bounds != nil && (r.Bounds.Max.Y <= r.Bounds.Min.Y || r.Bounds.Max.X <= r.Bounds.Min.X) {
		return &ValidationError{Field: "extent", Reason: "invalid bounding rectangle: north must exceed south and east must exceed west"}
	}
	return nil
}

// SpatialBounds returns the rectangular extent of the request: the explicit
// Bounds when present, otherwise the envelope of the region geometry.
func (r *Request) SpatialBounds() *geom.Bounds {
	if r.Bounds != nil {
		return r.Bounds
	}
	return r.Region.Bounds()
}

// clone returns a copy of r with the date range narrowed to [start, end].
// The copy shares no mutable state with r beyond the immutable region
// geometry.
func (r *Request) clone(start, end time.Time) *Request {
	o := new(Request)
	*o = *r
	o.Start, o.End = start, end
	return o
}

// ParseDate parses a date in 'YYYY-M-D' or 'YYYY-MM-DD' form.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-1-2", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("invalid date %q; expected 'YYYY-M-D' or 'YYYY-MM-DD'", s)}
}
