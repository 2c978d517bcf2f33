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
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

var (
	latNames   = []string{"latitude", "lat"}
	lonNames   = []string{"longitude", "lon"}
	timeNames  = []string{"valid_time", "time"}
	levelNames = []string{"pressure_level", "level"}
)

// ReadNetCDF reads a gridded reanalysis file and flattens it to one row
// per (timestamp, grid point[, pressure level]) tuple. Values are
// unpacked using the scale_factor and add_offset attributes when
// present, and fill values become NaN.
func ReadNetCDF(path string) (*Frame, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "open", Err: err}
	}
	defer ff.Close()
	nc, err := cdf.Open(ff)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "decode", Err: err}
	}

	latDim, lats, err := readCoord(nc, latNames)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "decode", Err: err}
	}
	lonDim, lons, err := readCoord(nc, lonNames)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "decode", Err: err}
	}
	timeDim, timeVals, err := readCoord(nc, timeNames)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "decode", Err: err}
	}
	times, err := decodeTimes(nc, timeDim, timeVals)
	if err != nil {
		return nil, &ProcessingError{Path: path, Op: "decode", Err: err}
	}

	levelDim, levels, err := readCoord(nc, levelNames)
	if err != nil {
		// Surface files have no vertical coordinate.
		levelDim, levels = "", nil
	}

	// Data variables are those spanning (time, [level,] lat, lon),
	// possibly through a length-1 ensemble or version dimension.
	type dataVar struct {
		name     string
		hasLevel bool
		vals     []float64
	}
	var vars []dataVar
	for _, v := range nc.Header.Variables() {
		dims := nc.Header.Dimensions(v)
		shape, ok := classifyDims(nc, dims, timeDim, levelDim, latDim, lonDim)
		if !ok {
			continue
		}
		vals, err := readNumericVar(nc, v)
		if err != nil {
			return nil, &ProcessingError{Path: path, Op: "decode",
				Err: fmt.Errorf("reading variable %s: %v", v, err)}
		}
		if vals == nil {
			continue
		}
		unpackVar(nc, v, vals)
		vars = append(vars, dataVar{name: v, hasLevel: shape, vals: vals})
	}
	if len(vars) == 0 {
		return nil, &ProcessingError{Path: path, Op: "decode",
			Err: fmt.Errorf("no data variables with (time, lat, lon) dimensions")}
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].name < vars[j].name })

	withLevels := false
	for _, v := range vars {
		if v.hasLevel {
			withLevels = true
		}
	}
	if !withLevels {
		levels = nil
	}
	if levels == nil {
		levels = []float64{math.NaN()}
	}

	columns := make([]string, len(vars))
	for i, v := range vars {
		columns[i] = v.name
	}
	f := NewFrame(columns, withLevels)
	nlat, nlon, nlev := len(lats), len(lons), len(levels)
	row := make([]float64, len(vars))
	for t := range times {
		for l := 0; l < nlev; l++ {
			for y := 0; y < nlat; y++ {
				for x := 0; x < nlon; x++ {
					for i, v := range vars {
						var idx int
						if v.hasLevel {
							idx = ((t*nlev+l)*nlat+y)*nlon + x
						} else {
							idx = (t*nlat+y)*nlon + x
						}
						row[i] = v.vals[idx]
					}
					f.AppendRow(times[t], lats[y], normalizeLon(lons[x]), levels[l], row)
				}
			}
		}
	}
	return f, nil
}

// classifyDims reports whether dims describes a data variable and, if
// so, whether it spans the vertical coordinate. Extra dimensions of
// length 1 (ensemble number, experiment version) are tolerated. The
// coordinate dimensions must appear in (time[, level], lat, lon)
// order, which is what the row flattening assumes; a variable with a
// permuted layout is rejected rather than read misaligned.
func classifyDims(nc *cdf.File, dims []string, timeDim, levelDim, latDim, lonDim string) (hasLevel, ok bool) {
	var order []string
	for _, d := range dims {
		switch d {
		case timeDim, latDim, lonDim:
			order = append(order, d)
		case levelDim:
			if levelDim != "" {
				hasLevel = true
				order = append(order, d)
			}
		default:
			if dimLength(nc, d) != 1 {
				return false, false
			}
		}
	}
	want := []string{timeDim}
	if hasLevel {
		want = append(want, levelDim)
	}
	want = append(want, latDim, lonDim)
	if len(order) != len(want) {
		return false, false
	}
	for i, d := range want {
		if order[i] != d {
			return false, false
		}
	}
	return hasLevel, true
}

func dimLength(nc *cdf.File, dim string) int {
	for i, d := range nc.Header.Dimensions("") {
		if d == dim {
			return nc.Header.Lengths("")[i]
		}
	}
	return -1
}

// readCoord finds the first coordinate variable with one of the given
// names and returns its dimension name and values.
func readCoord(nc *cdf.File, names []string) (string, []float64, error) {
	for _, name := range names {
		for _, v := range nc.Header.Variables() {
			if v != name {
				continue
			}
			vals, err := readNumericVar(nc, v)
			if err != nil {
				return "", nil, fmt.Errorf("reading coordinate %s: %v", v, err)
			}
			dims := nc.Header.Dimensions(v)
			if len(dims) != 1 {
				return "", nil, fmt.Errorf("coordinate %s has %d dimensions", v, len(dims))
			}
			return dims[0], vals, nil
		}
	}
	return "", nil, fmt.Errorf("no coordinate variable named any of %v", names)
}

// readNumericVar reads a variable in full and converts it to float64.
// It returns nil for non-numeric variables.
func readNumericVar(nc *cdf.File, v string) ([]float64, error) {
	r := nc.Reader(v, nil, nil)
	buf := r.Zero(-1)
	switch buf.(type) {
	case []float64, []float32, []int32, []int16:
	default:
		return nil, nil
	}
	if _, err := r.Read(buf); err != nil {
		return nil, err
	}
	var vals []float64
	switch b := buf.(type) {
	case []float64:
		vals = b
	case []float32:
		vals = make([]float64, len(b))
		for i, x := range b {
			vals[i] = float64(x)
		}
	case []int32:
		vals = make([]float64, len(b))
		for i, x := range b {
			vals[i] = float64(x)
		}
	case []int16:
		vals = make([]float64, len(b))
		for i, x := range b {
			vals[i] = float64(x)
		}
	}
	return vals, nil
}

// unpackVar applies the packing and fill-value attributes in place.
func unpackVar(nc *cdf.File, v string, vals []float64) {
	fill, hasFill := attrFloat(nc, v, "_FillValue")
	missing, hasMissing := attrFloat(nc, v, "missing_value")
	scale, hasScale := attrFloat(nc, v, "scale_factor")
	offset, hasOffset := attrFloat(nc, v, "add_offset")
	if !hasScale {
		scale = 1
	}
	if !hasOffset {
		offset = 0
	}
	for i, x := range vals {
		if (hasFill && x == fill) || (hasMissing && x == missing) {
			vals[i] = math.NaN()
			continue
		}
		if hasScale || hasOffset {
			vals[i] = x*scale + offset
		}
	}
}

func attrFloat(nc *cdf.File, v, attr string) (float64, bool) {
	a := nc.Header.GetAttribute(v, attr)
	if a == nil {
		return 0, false
	}
	switch x := a.(type) {
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// decodeTimes converts raw time-coordinate values to UTC timestamps
// using the variable's "units" attribute, for example
// "hours since 1900-01-01 00:00:00.0".
func decodeTimes(nc *cdf.File, timeDim string, raw []float64) ([]time.Time, error) {
	var unitsAttr string
	for _, v := range nc.Header.Variables() {
		for _, name := range timeNames {
			if v == name {
				if a, ok := nc.Header.GetAttribute(v, "units").(string); ok {
					unitsAttr = a
				}
			}
		}
	}
	if unitsAttr == "" {
		// ERA5 files from the current CDS ship epoch seconds when the
		// units attribute is absent.
		unitsAttr = "seconds since 1970-01-01"
	}
	parts := strings.SplitN(unitsAttr, " since ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("unsupported time units %q", unitsAttr)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds":
		step = time.Second
	case "minutes":
		step = time.Minute
	case "hours":
		step = time.Hour
	case "days":
		step = 24 * time.Hour
	default:
		return nil, fmt.Errorf("unsupported time units %q", unitsAttr)
	}
	epochStr := strings.TrimSpace(parts[1])
	var epoch time.Time
	var err error
	for _, layout := range []string{"2006-01-02 15:04:05.0", "2006-01-02 15:04:05", "2006-01-02"} {
		epoch, err = time.ParseInLocation(layout, epochStr, time.UTC)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("unsupported time epoch %q in units %q", epochStr, unitsAttr)
	}
	times := make([]time.Time, len(raw))
	for i, x := range raw {
		times[i] = epoch.Add(time.Duration(x * float64(step))).UTC()
	}
	return times, nil
}
