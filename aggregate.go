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
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// meanDaysPerMonth is the mean month length used to scale yearly
// totals of accumulated variables.
const meanDaysPerMonth = 30.4375

// An AggRecord is one aggregated output row: the reduced value of every
// variable for one time bucket, pressure level, and feature.
type AggRecord struct {
	Time    time.Time
	Level   float64 // NaN for surface data
	Feature string
	Values  map[string]float64
}

// An Aggregator reduces filtered observations in two phases: first
// across grid points within each timestamp, then across timestamps
// within each calendar bucket of the requested frequency.
//
// Accumulated variables average spatially like everything else, but sum
// temporally; period-extreme variables take the maximum or minimum in
// both phases; mean-rate and intensive variables average in both.
// At monthly and yearly frequencies, where the underlying data are
// daily means, accumulated variables are rescaled to period totals
// using the month length (leap aware) or the mean month length.
type Aggregator struct {
	Frequency Frequency
	Log       logrus.FieldLogger
}

type groupKey struct {
	t       int64
	level   float64
	feature string
}

// Aggregate reduces f to one record per (time bucket, level, feature).
// Records are ordered by time, then level, then feature.
func (a *Aggregator) Aggregate(f *Frame) ([]AggRecord, error) {
	if f.Len() == 0 {
		return nil, fmt.Errorf("reanest: aggregating: no rows to aggregate")
	}
	cats := ClassifyColumns(f.Columns)

	spatial := a.collapseSpace(f, cats)
	if a.Frequency == Hourly {
		return a.finish(spatial), nil
	}
	temporal := a.collapseTime(spatial, cats)
	a.adjustSums(temporal, cats)
	return a.finish(temporal), nil
}

// collapseSpace reduces all grid points sharing a timestamp, level, and
// feature to a single record.
func (a *Aggregator) collapseSpace(f *Frame, cats map[string]Category) map[groupKey]map[string][]float64 {
	groups := make(map[groupKey]map[string][]float64)
	for i := 0; i < f.Len(); i++ {
		k := groupKey{t: f.Times[i].UnixNano(), level: math.NaN(), feature: ""}
		if f.HasLevels() {
			k.level = f.Levels[i]
		}
		if f.HasFeatures() {
			k.feature = f.Features[i]
		}
		// NaN keys never compare equal; use a sentinel instead.
		if math.IsNaN(k.level) {
			k.level = -1
		}
		g, ok := groups[k]
		if !ok {
			g = make(map[string][]float64, len(f.Columns))
			groups[k] = g
		}
		for _, c := range f.Columns {
			if v := f.Data[c][i]; !math.IsNaN(v) {
				g[c] = append(g[c], v)
			}
		}
	}
	out := make(map[groupKey]map[string][]float64, len(groups))
	for k, g := range groups {
		vals := make(map[string][]float64, len(f.Columns))
		for _, c := range f.Columns {
			var v float64
			switch cats[c] {
			case CategoryMax:
				v = reduceMax(g[c])
			case CategoryMin:
				v = reduceMin(g[c])
			default:
				v = reduceMean(g[c])
			}
			vals[c] = []float64{v}
		}
		out[k] = vals
	}
	if a.Log != nil {
		a.Log.WithFields(logrus.Fields{
			"rows":       f.Len(),
			"timestamps": len(out),
		}).Debug("spatial aggregation complete")
	}
	return out
}

// collapseTime reduces spatially collapsed records into calendar
// buckets of the aggregator's frequency.
func (a *Aggregator) collapseTime(spatial map[groupKey]map[string][]float64, cats map[string]Category) map[groupKey]map[string][]float64 {
	buckets := make(map[groupKey]map[string][]float64)
	for k, vals := range spatial {
		bk := groupKey{
			t:       a.bucket(time.Unix(0, k.t).UTC()).UnixNano(),
			level:   k.level,
			feature: k.feature,
		}
		b, ok := buckets[bk]
		if !ok {
			b = make(map[string][]float64)
			buckets[bk] = b
		}
		for c, v := range vals {
			if !math.IsNaN(v[0]) {
				b[c] = append(b[c], v[0])
			}
		}
	}
	for _, b := range buckets {
		for c, vals := range b {
			var v float64
			switch cats[c] {
			case CategorySum:
				v = reduceSum(vals)
			case CategoryMax:
				v = reduceMax(vals)
			case CategoryMin:
				v = reduceMin(vals)
			default:
				v = reduceMean(vals)
			}
			b[c] = []float64{v}
		}
	}
	return buckets
}

// bucket returns the calendar bucket containing t: the calendar day,
// the Monday of the ISO week, the first of the month, or January 1.
func (a *Aggregator) bucket(t time.Time) time.Time {
	t = t.UTC()
	switch a.Frequency {
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Weekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		wd := int(day.Weekday())
		if wd == 0 {
			wd = 7
		}
		return day.AddDate(0, 0, 1-wd)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// adjustSums rescales accumulated variables from daily means to period
// totals at monthly and yearly frequencies.
func (a *Aggregator) adjustSums(buckets map[groupKey]map[string][]float64, cats map[string]Category) {
	if a.Frequency != Monthly && a.Frequency != Yearly {
		return
	}
	for k, b := range buckets {
		t := time.Unix(0, k.t).UTC()
		factor := meanDaysPerMonth
		if a.Frequency == Monthly {
			factor = float64(daysInMonth(t.Year(), t.Month()))
		}
		for c, vals := range b {
			if cats[c] == CategorySum {
				b[c] = []float64{vals[0] * factor}
			}
		}
	}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// finish converts grouped values to ordered records.
func (a *Aggregator) finish(groups map[groupKey]map[string][]float64) []AggRecord {
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].t != keys[j].t {
			return keys[i].t < keys[j].t
		}
		if keys[i].level != keys[j].level {
			return keys[i].level < keys[j].level
		}
		return keys[i].feature < keys[j].feature
	})
	recs := make([]AggRecord, len(keys))
	for i, k := range keys {
		vals := make(map[string]float64, len(groups[k]))
		for c, v := range groups[k] {
			if len(v) == 1 {
				vals[c] = v[0]
			} else {
				vals[c] = math.NaN()
			}
		}
		level := k.level
		if level == -1 {
			level = math.NaN()
		}
		recs[i] = AggRecord{
			Time:    time.Unix(0, k.t).UTC(),
			Level:   level,
			Feature: k.feature,
			Values:  vals,
		}
	}
	return recs
}

func reduceMean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

func reduceSum(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return floats.Sum(vals)
}

func reduceMax(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return floats.Max(vals)
}

func reduceMin(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return floats.Min(vals)
}
