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
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func saveTestResult(freq Frequency) (*Request, *Result) {
	f := NewFrame([]string{"t2m", "tp"}, false)
	t0 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	f.AppendRow(t0, 28.5, 77.0, math.NaN(), []float64{280, 0.5})
	f.AppendRow(t0, 28.75, 77.0, math.NaN(), []float64{282, 0.7})
	req := &Request{
		ID:         "save_test",
		Variables:  []string{"2m_temperature", "total_precipitation"},
		Start:      t0,
		End:        t0,
		Frequency:  freq,
		Resolution: 0.25,
		Bounds:     bounds(76, 28, 78, 29),
	}
	res := &Result{
		Raw: f,
		Records: []AggRecord{{
			Time:   t0,
			Level:  math.NaN(),
			Values: map[string]float64{"t2m": 281, "tp": 0.6},
		}},
		Coords: []GridPoint{{Lat: 28.5, Lon: 77}, {Lat: 28.75, Lon: 77}},
	}
	return req, res
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestSaverSave(t *testing.T) {
	dir := t.TempDir()
	req, res := saveTestResult(Daily)
	s := &Saver{Dir: dir, SaveRaw: true}

	out, err := s.Save(req, res)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "save_test_output"); out != want {
		t.Errorf("output dir = %s, want %s", out, want)
	}

	rows := readCSV(t, filepath.Join(out, "save_test_daily_data.csv"))
	wantHeader := []string{"t2m", "tp", "year", "month", "day", "date"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Errorf("header = %v, want %v", rows[0], wantHeader)
	}
	wantRow := []string{"281", "0.6", "2020", "6", "1", "2020-06-01"}
	if !reflect.DeepEqual(rows[1], wantRow) {
		t.Errorf("row = %v, want %v", rows[1], wantRow)
	}

	coords := readCSV(t, filepath.Join(out, "save_test_unique_latlongs.csv"))
	if !reflect.DeepEqual(coords[0], []string{"latitude", "longitude"}) {
		t.Errorf("coordinate header = %v", coords[0])
	}
	if len(coords) != 3 || coords[1][0] != "28.5" {
		t.Errorf("coordinates = %v", coords)
	}

	raw := readCSV(t, filepath.Join(out, "save_test_raw_data.csv"))
	if len(raw) != 3 {
		t.Errorf("raw file has %d rows, want a header plus 2", len(raw))
	}
}

func TestSaverSkipsRawByDefault(t *testing.T) {
	dir := t.TempDir()
	req, res := saveTestResult(Daily)
	out, err := (&Saver{Dir: dir}).Save(req, res)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "save_test_raw_data.csv")); !os.IsNotExist(err) {
		t.Error("raw file written without SaveRaw")
	}
}

func TestSaverXLSX(t *testing.T) {
	dir := t.TempDir()
	req, res := saveTestResult(Monthly)
	out, err := (&Saver{Dir: dir, SaveXLSX: true}).Save(req, res)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "save_test_monthly_data.xlsx")); err != nil {
		t.Errorf("spreadsheet missing: %v", err)
	}
}

func TestSaverCalendarColumns(t *testing.T) {
	tests := []struct {
		freq    Frequency
		header  []string
		tailLen int
		tail    []string
	}{
		{Hourly, []string{"t2m", "tp", "date", "year", "month", "day", "hour"}, 5,
			[]string{"2020-06-01", "2020", "6", "1", "0"}},
		{Weekly, []string{"t2m", "tp", "year", "week"}, 2, []string{"2020", "23"}},
		{Monthly, []string{"t2m", "tp", "year", "month"}, 2, []string{"2020", "6"}},
		{Yearly, []string{"t2m", "tp", "year"}, 1, []string{"2020"}},
	}
	for _, test := range tests {
		dir := t.TempDir()
		req, res := saveTestResult(test.freq)
		out, err := (&Saver{Dir: dir}).Save(req, res)
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(out, "save_test_"+string(test.freq)+"_data.csv")
		rows := readCSV(t, path)
		if !reflect.DeepEqual(rows[0], test.header) {
			t.Errorf("%s: header = %v, want %v", test.freq, rows[0], test.header)
		}
		tail := rows[1][len(rows[1])-test.tailLen:]
		if !reflect.DeepEqual(tail, test.tail) {
			t.Errorf("%s: calendar columns = %v, want %v", test.freq, tail, test.tail)
		}
	}
}

func TestSaverLevelAndFeatureColumns(t *testing.T) {
	f := NewFrame([]string{"temperature"}, true)
	t0 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	f.AppendRow(t0, 28.5, 77.0, 500, []float64{250})
	f.Features = []string{"Delhi"}
	req := &Request{
		ID:         "level_test",
		Variables:  []string{"temperature"},
		Start:      t0,
		End:        t0,
		Frequency:  Yearly,
		Resolution: 0.25,
		Kind:       PressureLevels,
		Levels:     []string{"500"},
		Bounds:     bounds(76, 28, 78, 29),
	}
	res := &Result{
		Raw: f,
		Records: []AggRecord{{
			Time:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Level:   500,
			Feature: "Delhi",
			Values:  map[string]float64{"temperature": 250},
		}},
		Coords: []GridPoint{{Lat: 28.5, Lon: 77}},
	}

	out, err := (&Saver{Dir: t.TempDir()}).Save(req, res)
	if err != nil {
		t.Fatal(err)
	}
	rows := readCSV(t, filepath.Join(out, "level_test_yearly_data.csv"))
	want := []string{"pressure_level", "feature", "temperature", "year"}
	if !reflect.DeepEqual(rows[0], want) {
		t.Errorf("header = %v, want %v", rows[0], want)
	}
	if !reflect.DeepEqual(rows[1], []string{"500", "Delhi", "250", "2020"}) {
		t.Errorf("row = %v", rows[1])
	}
}
