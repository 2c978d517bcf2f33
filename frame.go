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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"
)

// A GridPoint is one (latitude, longitude) cell of the regular spatial
// grid at the requested resolution.
type GridPoint struct {
	Lat, Lon float64
}

// A Frame is a column-oriented table of observations: one row per
// (timestamp, grid point[, pressure level]) tuple, with one value column
// per data variable.
type Frame struct {
	Times []time.Time
	Lats  []float64
	Lons  []float64

	// Levels holds per-row pressure levels [hPa]. It is nil for
	// surface data.
	Levels []float64

	// Features holds per-row distinguishing-feature labels attached by
	// the spatial filter. It is nil when the region has no
	// distinguishing features.
	Features []string

	// Columns names the data variables, in order.
	Columns []string

	// Data maps each column name to its values, aligned with Times.
	Data map[string][]float64
}

// NewFrame returns an empty frame with the given data columns. If
// withLevels is true the frame carries a per-row pressure level.
func NewFrame(columns []string, withLevels bool) *Frame {
	f := &Frame{
		Columns: append([]string(nil), columns...),
		Data:    make(map[string][]float64, len(columns)),
	}
	for _, c := range columns {
		f.Data[c] = nil
	}
	if withLevels {
		f.Levels = []float64{}
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Times) }

// HasLevels reports whether rows carry a pressure level.
func (f *Frame) HasLevels() bool { return f.Levels != nil }

// HasFeatures reports whether rows carry a feature label.
func (f *Frame) HasFeatures() bool { return f.Features != nil }

// AppendRow adds one row. vals must be aligned with f.Columns. level is
// ignored unless the frame was created with levels.
func (f *Frame) AppendRow(t time.Time, lat, lon, level float64, vals []float64) {
	f.Times = append(f.Times, t)
	f.Lats = append(f.Lats, lat)
	f.Lons = append(f.Lons, lon)
	if f.HasLevels() {
		f.Levels = append(f.Levels, level)
	}
	if f.Features != nil {
		f.Features = append(f.Features, "")
	}
	for i, c := range f.Columns {
		f.Data[c] = append(f.Data[c], vals[i])
	}
}

// rowKey is the fixed deduplication tuple:
// (timestamp, lat, lon[, pressure level][, feature]).
type rowKey struct {
	t        int64
	lat, lon float64
	level    float64
	feature  string
}

func (f *Frame) key(i int) rowKey {
	k := rowKey{t: f.Times[i].UnixNano(), lat: f.Lats[i], lon: f.Lons[i]}
	if f.HasLevels() {
		k.level = f.Levels[i]
	}
	if f.HasFeatures() {
		k.feature = f.Features[i]
	}
	return k
}

// Dedup returns a frame with duplicate rows removed, keeping the first
// occurrence of each deduplication tuple. Applying Dedup twice yields
// the same row set as applying it once.
func (f *Frame) Dedup() *Frame {
	seen := make(map[rowKey]bool, f.Len())
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		k := f.key(i)
		if seen[k] {
			continue
		}
		seen[k] = true
		keep = append(keep, i)
	}
	if len(keep) == f.Len() {
		return f
	}
	return f.take(keep)
}

// take returns a frame holding the rows at the given indices.
func (f *Frame) take(rows []int) *Frame {
	o := &Frame{
		Times:   make([]time.Time, len(rows)),
		Lats:    make([]float64, len(rows)),
		Lons:    make([]float64, len(rows)),
		Columns: append([]string(nil), f.Columns...),
		Data:    make(map[string][]float64, len(f.Columns)),
	}
	if f.HasLevels() {
		o.Levels = make([]float64, len(rows))
	}
	if f.HasFeatures() {
		o.Features = make([]string, len(rows))
	}
	for _, c := range f.Columns {
		o.Data[c] = make([]float64, len(rows))
	}
	for j, i := range rows {
		o.Times[j] = f.Times[i]
		o.Lats[j] = f.Lats[i]
		o.Lons[j] = f.Lons[i]
		if f.HasLevels() {
			o.Levels[j] = f.Levels[i]
		}
		if f.HasFeatures() {
			o.Features[j] = f.Features[i]
		}
		for _, c := range f.Columns {
			o.Data[c][j] = f.Data[c][i]
		}
	}
	return o
}

// ConcatFrames concatenates frames row-wise, in order. All frames must
// share the same column set and the same level/feature layout.
func ConcatFrames(frames []*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("reanest: concatenating frames: no frames given")
	}
	first := frames[0]
	o := NewFrame(first.Columns, first.HasLevels())
	if first.HasFeatures() {
		o.Features = []string{}
	}
	for n, f := range frames {
		if err := sameSchema(first, f); err != nil {
			return nil, fmt.Errorf("reanest: concatenating frame %d: %v", n, err)
		}
		o.Times = append(o.Times, f.Times...)
		o.Lats = append(o.Lats, f.Lats...)
		o.Lons = append(o.Lons, f.Lons...)
		if o.HasLevels() {
			o.Levels = append(o.Levels, f.Levels...)
		}
		if o.HasFeatures() {
			o.Features = append(o.Features, f.Features...)
		}
		for _, c := range o.Columns {
			o.Data[c] = append(o.Data[c], f.Data[c]...)
		}
	}
	return o, nil
}

func sameSchema(a, b *Frame) error {
	if a.HasLevels() != b.HasLevels() {
		return fmt.Errorf("mismatched pressure-level layout")
	}
	if a.HasFeatures() != b.HasFeatures() {
		return fmt.Errorf("mismatched feature layout")
	}
	if len(a.Columns) != len(b.Columns) {
		return fmt.Errorf("mismatched columns: %v vs %v", a.Columns, b.Columns)
	}
	for i, c := range a.Columns {
		if b.Columns[i] != c {
			return fmt.Errorf("mismatched columns: %v vs %v", a.Columns, b.Columns)
		}
	}
	return nil
}

// MergeFrames merges frames that share coordinate dimensions but carry
// different variables (for example, the separate files inside one
// retrieval archive) into a single frame joined on the coordinate tuple.
// When two frames define the same column, the first non-NaN value wins.
func MergeFrames(frames []*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("reanest: merging frames: no frames given")
	}
	if len(frames) == 1 {
		return frames[0], nil
	}
	withLevels := false
	for _, f := range frames {
		if f.HasLevels() {
			withLevels = true
		}
	}

	// Ordered union of columns.
	var columns []string
	haveCol := make(map[string]bool)
	for _, f := range frames {
		for _, c := range f.Columns {
			if !haveCol[c] {
				haveCol[c] = true
				columns = append(columns, c)
			}
		}
	}

	o := NewFrame(columns, withLevels)
	rowAt := make(map[rowKey]int)
	for _, f := range frames {
		for i := 0; i < f.Len(); i++ {
			k := rowKey{t: f.Times[i].UnixNano(), lat: f.Lats[i], lon: f.Lons[i]}
			if f.HasLevels() {
				k.level = f.Levels[i]
			}
			j, ok := rowAt[k]
			if !ok {
				j = o.Len()
				rowAt[k] = j
				o.Times = append(o.Times, f.Times[i])
				o.Lats = append(o.Lats, f.Lats[i])
				o.Lons = append(o.Lons, f.Lons[i])
				if withLevels {
					o.Levels = append(o.Levels, k.level)
				}
				for _, c := range columns {
					o.Data[c] = append(o.Data[c], math.NaN())
				}
			}
			for _, c := range f.Columns {
				if math.IsNaN(o.Data[c][j]) {
					o.Data[c][j] = f.Data[c][i]
				}
			}
		}
	}
	return o, nil
}

// UniqueCoords returns the distinct (lat, lon) pairs present in the
// frame, in order of first appearance.
func (f *Frame) UniqueCoords() []GridPoint {
	seen := make(map[GridPoint]bool)
	var pts []GridPoint
	for i := 0; i < f.Len(); i++ {
		p := GridPoint{Lat: f.Lats[i], Lon: f.Lons[i]}
		if !seen[p] {
			seen[p] = true
			pts = append(pts, p)
		}
	}
	return pts
}

// sortByTime returns the frame's row indices ordered by
// (time, level, lat, lon), used for deterministic output.
func (f *Frame) sortByTime() []int {
	idx := make([]int, f.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if !f.Times[i].Equal(f.Times[j]) {
			return f.Times[i].Before(f.Times[j])
		}
		if f.HasLevels() && f.Levels[i] != f.Levels[j] {
			return f.Levels[i] < f.Levels[j]
		}
		if f.Lats[i] != f.Lats[j] {
			return f.Lats[i] < f.Lats[j]
		}
		return f.Lons[i] < f.Lons[j]
	})
	return idx
}

// WriteCSV writes the frame to w, one row per observation.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"valid_time", "latitude", "longitude"}
	if f.HasLevels() {
		header = append(header, "pressure_level")
	}
	if f.HasFeatures() {
		header = append(header, "feature")
	}
	header = append(header, f.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("reanest: writing csv header: %v", err)
	}
	rec := make([]string, 0, len(header))
	for _, i := range f.sortByTime() {
		rec = rec[:0]
		rec = append(rec, f.Times[i].UTC().Format("2006-01-02 15:04:05"),
			formatFloat(f.Lats[i]), formatFloat(f.Lons[i]))
		if f.HasLevels() {
			rec = append(rec, formatFloat(f.Levels[i]))
		}
		if f.HasFeatures() {
			rec = append(rec, f.Features[i])
		}
		for _, c := range f.Columns {
			rec = append(rec, formatFloat(f.Data[c][i]))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("reanest: writing csv row: %v", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
