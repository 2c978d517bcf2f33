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

package cdsapi

import (
	"fmt"

	"github.com/spatialmodel/reanest"
)

// Dataset names by data kind, for the hourly and the monthly-means
// products.
const (
	datasetSurface         = "reanalysis-era5-single-levels"
	datasetSurfaceMonthly  = "reanalysis-era5-single-levels-monthly-means"
	datasetPressure        = "reanalysis-era5-pressure-levels"
	datasetPressureMonthly = "reanalysis-era5-pressure-levels-monthly-means"
)

// BuildRequest translates a request into the dataset name and JSON
// payload the Climate Data Store expects. Monthly and yearly
// frequencies pull monthly means at time 00:00; other frequencies pull
// every hour of every day in the request range.
func BuildRequest(req *reanest.Request) (dataset string, payload map[string]interface{}) {
	monthly := req.Frequency == reanest.Monthly || req.Frequency == reanest.Yearly
	pressure := req.Kind == reanest.PressureLevels

	switch {
	case pressure && monthly:
		dataset = datasetPressureMonthly
	case pressure:
		dataset = datasetPressure
	case monthly:
		dataset = datasetSurfaceMonthly
	default:
		dataset = datasetSurface
	}

	years, months, days := dateLists(req)
	b := req.SpatialBounds()

	payload = map[string]interface{}{
		"variable": req.Variables,
		"year":     years,
		"month":    months,
		"area":     []float64{b.Max.Y, b.Min.X, b.Min.Y, b.Max.X}, // N, W, S, E
		"grid":     []float64{req.Resolution, req.Resolution},
	}
	if monthly {
		payload["product_type"] = []string{"monthly_averaged_reanalysis"}
		payload["time"] = []string{"00:00"}
	} else {
		payload["product_type"] = []string{"reanalysis"}
		payload["day"] = days
		payload["time"] = hourList()
	}
	if pressure {
		payload["pressure_level"] = req.Levels
		payload["format"] = "netcdf"
	} else {
		payload["data_format"] = "netcdf"
		payload["download_format"] = "zip"
	}
	return dataset, payload
}

// dateLists returns the zero-padded year, month, and day values covered
// by the request range, each deduplicated in order of first appearance.
func dateLists(req *reanest.Request) (years, months, days []string) {
	seenY := map[string]bool{}
	seenM := map[string]bool{}
	seenD := map[string]bool{}
	for d := req.Start; !d.After(req.End); d = d.AddDate(0, 0, 1) {
		y := fmt.Sprintf("%d", d.Year())
		m := fmt.Sprintf("%02d", int(d.Month()))
		dd := fmt.Sprintf("%02d", d.Day())
		if !seenY[y] {
			seenY[y] = true
			years = append(years, y)
		}
		if !seenM[m] {
			seenM[m] = true
			months = append(months, m)
		}
		if !seenD[dd] {
			seenD[dd] = true
			days = append(days, dd)
		}
	}
	return years, months, days
}

func hourList() []string {
	hours := make([]string, 24)
	for h := range hours {
		hours[h] = fmt.Sprintf("%02d:00", h)
	}
	return hours
}
