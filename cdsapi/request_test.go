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
	"reflect"
	"testing"
	"time"

	"github.com/ctessum/geom"

	"github.com/spatialmodel/reanest"
)

func testRequest(freq reanest.Frequency, kind reanest.DatasetKind) *reanest.Request {
	req := &reanest.Request{
		ID:         "cds_test",
		Variables:  []string{"2m_temperature"},
		Start:      time.Date(2020, 1, 30, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC),
		Frequency:  freq,
		Resolution: 0.25,
		Kind:       kind,
		Bounds: &geom.Bounds{
			Min: geom.Point{X: 76, Y: 28},
			Max: geom.Point{X: 78, Y: 29},
		},
	}
	if kind == reanest.PressureLevels {
		req.Levels = []string{"500", "850"}
	}
	return req
}

func TestBuildRequestDatasets(t *testing.T) {
	tests := []struct {
		freq reanest.Frequency
		kind reanest.DatasetKind
		want string
	}{
		{reanest.Hourly, reanest.Surface, datasetSurface},
		{reanest.Daily, reanest.Surface, datasetSurface},
		{reanest.Weekly, reanest.Surface, datasetSurface},
		{reanest.Monthly, reanest.Surface, datasetSurfaceMonthly},
		{reanest.Yearly, reanest.Surface, datasetSurfaceMonthly},
		{reanest.Hourly, reanest.PressureLevels, datasetPressure},
		{reanest.Monthly, reanest.PressureLevels, datasetPressureMonthly},
	}
	for _, test := range tests {
		dataset, _ := BuildRequest(testRequest(test.freq, test.kind))
		if dataset != test.want {
			t.Errorf("%s/%s: dataset = %s, want %s", test.freq, test.kind, dataset, test.want)
		}
	}
}

func TestBuildRequestHourlyPayload(t *testing.T) {
	_, payload := BuildRequest(testRequest(reanest.Hourly, reanest.Surface))

	if got := payload["product_type"]; !reflect.DeepEqual(got, []string{"reanalysis"}) {
		t.Errorf("product_type = %v", got)
	}
	if got := payload["year"]; !reflect.DeepEqual(got, []string{"2020"}) {
		t.Errorf("year = %v", got)
	}
	if got := payload["month"]; !reflect.DeepEqual(got, []string{"01", "02"}) {
		t.Errorf("month = %v", got)
	}
	// Days are zero padded and deduplicated in order of first
	// appearance across the range.
	if got := payload["day"]; !reflect.DeepEqual(got, []string{"30", "31", "01", "02"}) {
		t.Errorf("day = %v", got)
	}
	hours := payload["time"].([]string)
	if len(hours) != 24 || hours[0] != "00:00" || hours[23] != "23:00" {
		t.Errorf("time = %v", hours)
	}
	// Area is ordered north, west, south, east.
	if got := payload["area"]; !reflect.DeepEqual(got, []float64{29, 76, 28, 78}) {
		t.Errorf("area = %v", got)
	}
	if got := payload["grid"]; !reflect.DeepEqual(got, []float64{0.25, 0.25}) {
		t.Errorf("grid = %v", got)
	}
	if payload["data_format"] != "netcdf" || payload["download_format"] != "zip" {
		t.Errorf("formats = %v, %v", payload["data_format"], payload["download_format"])
	}
	if _, ok := payload["pressure_level"]; ok {
		t.Error("surface payload should not carry pressure levels")
	}
}

func TestBuildRequestMonthlyPayload(t *testing.T) {
	_, payload := BuildRequest(testRequest(reanest.Monthly, reanest.Surface))
	if got := payload["product_type"]; !reflect.DeepEqual(got, []string{"monthly_averaged_reanalysis"}) {
		t.Errorf("product_type = %v", got)
	}
	if got := payload["time"]; !reflect.DeepEqual(got, []string{"00:00"}) {
		t.Errorf("time = %v", got)
	}
	if _, ok := payload["day"]; ok {
		t.Error("monthly payload should not carry a day list")
	}
}

func TestBuildRequestPressurePayload(t *testing.T) {
	_, payload := BuildRequest(testRequest(reanest.Hourly, reanest.PressureLevels))
	if got := payload["pressure_level"]; !reflect.DeepEqual(got, []string{"500", "850"}) {
		t.Errorf("pressure_level = %v", got)
	}
	if payload["format"] != "netcdf" {
		t.Errorf("format = %v", payload["format"])
	}
	if _, ok := payload["download_format"]; ok {
		t.Error("pressure payload should not request a zip download")
	}
}
