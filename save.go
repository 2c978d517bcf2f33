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
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx"
)

// A Saver writes pipeline results to disk. Each request gets its own
// directory, {id}_output, holding the aggregated table, the accepted
// coordinates, and optionally the pre-aggregation rows and a
// spreadsheet copy of the aggregated table.
type Saver struct {
	// Dir is the parent directory for output. Empty means the current
	// directory.
	Dir string

	// SaveRaw also writes the filtered pre-aggregation rows.
	SaveRaw bool

	// SaveXLSX also writes the aggregated table as a spreadsheet.
	SaveXLSX bool

	// Log receives progress information.
	Log logrus.FieldLogger
}

// Save writes the result files for req and returns the output
// directory path.
func (s *Saver) Save(req *Request, res *Result) (string, error) {
	dir := filepath.Join(s.Dir, req.ID+"_output")
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("reanest: creating output directory: %v", err)
	}

	dataPath := filepath.Join(dir, fmt.Sprintf("%s_%s_data.csv", req.ID, req.Frequency))
	if err := s.writeAggregated(dataPath, req, res); err != nil {
		return "", err
	}
	coordPath := filepath.Join(dir, req.ID+"_unique_latlongs.csv")
	if err := s.writeCoords(coordPath, res.Coords); err != nil {
		return "", err
	}
	if s.SaveRaw {
		rawPath := filepath.Join(dir, req.ID+"_raw_data.csv")
		if err := writeFile(rawPath, res.Raw.WriteCSV); err != nil {
			return "", err
		}
	}
	if s.SaveXLSX {
		xlsxPath := filepath.Join(dir, fmt.Sprintf("%s_%s_data.xlsx", req.ID, req.Frequency))
		if err := s.writeXLSX(xlsxPath, req, res); err != nil {
			return "", err
		}
	}
	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"request": req.ID,
			"dir":     dir,
		}).Info("results saved")
	}
	return dir, nil
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("reanest: creating %s: %v", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// resultHeader returns the aggregated-table column names: pressure
// level and feature when present, the variables, then the calendar
// columns for the request frequency.
func resultHeader(req *Request, res *Result) []string {
	var header []string
	if res.Raw.HasLevels() {
		header = append(header, "pressure_level")
	}
	if res.Raw.HasFeatures() {
		header = append(header, "feature")
	}
	header = append(header, res.Raw.Columns...)
	switch req.Frequency {
	case Hourly:
		header = append(header, "date", "year", "month", "day", "hour")
	case Daily:
		header = append(header, "year", "month", "day", "date")
	case Weekly:
		header = append(header, "year", "week")
	case Monthly:
		header = append(header, "year", "month")
	case Yearly:
		header = append(header, "year")
	}
	return header
}

// resultRow formats one aggregated record in resultHeader order.
func resultRow(req *Request, res *Result, r AggRecord) []string {
	var rec []string
	if res.Raw.HasLevels() {
		rec = append(rec, formatFloat(r.Level))
	}
	if res.Raw.HasFeatures() {
		rec = append(rec, r.Feature)
	}
	for _, c := range res.Raw.Columns {
		rec = append(rec, formatFloat(r.Values[c]))
	}
	t := r.Time.UTC()
	switch req.Frequency {
	case Hourly:
		rec = append(rec, t.Format("2006-01-02"),
			strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())),
			strconv.Itoa(t.Day()), strconv.Itoa(t.Hour()))
	case Daily:
		rec = append(rec, strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())),
			strconv.Itoa(t.Day()), t.Format("2006-01-02"))
	case Weekly:
		year, week := t.ISOWeek()
		rec = append(rec, strconv.Itoa(year), strconv.Itoa(week))
	case Monthly:
		rec = append(rec, strconv.Itoa(t.Year()), strconv.Itoa(int(t.Month())))
	case Yearly:
		rec = append(rec, strconv.Itoa(t.Year()))
	}
	return rec
}

func (s *Saver) writeAggregated(path string, req *Request, res *Result) error {
	return writeFile(path, func(f io.Writer) error {
		w := csv.NewWriter(f)
		if err := w.Write(resultHeader(req, res)); err != nil {
			return fmt.Errorf("reanest: writing %s: %v", path, err)
		}
		for _, r := range res.Records {
			if err := w.Write(resultRow(req, res, r)); err != nil {
				return fmt.Errorf("reanest: writing %s: %v", path, err)
			}
		}
		w.Flush()
		return w.Error()
	})
}

func (s *Saver) writeCoords(path string, coords []GridPoint) error {
	return writeFile(path, func(f io.Writer) error {
		w := csv.NewWriter(f)
		if err := w.Write([]string{"latitude", "longitude"}); err != nil {
			return fmt.Errorf("reanest: writing %s: %v", path, err)
		}
		for _, p := range coords {
			err := w.Write([]string{formatFloat(p.Lat), formatFloat(p.Lon)})
			if err != nil {
				return fmt.Errorf("reanest: writing %s: %v", path, err)
			}
		}
		w.Flush()
		return w.Error()
	})
}

func (s *Saver) writeXLSX(path string, req *Request, res *Result) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("data")
	if err != nil {
		return fmt.Errorf("reanest: writing %s: %v", path, err)
	}
	hr := sheet.AddRow()
	for _, h := range resultHeader(req, res) {
		hr.AddCell().SetString(h)
	}
	for _, r := range res.Records {
		row := sheet.AddRow()
		if res.Raw.HasLevels() {
			setNumericCell(row, r.Level)
		}
		if res.Raw.HasFeatures() {
			row.AddCell().SetString(r.Feature)
		}
		for _, c := range res.Raw.Columns {
			setNumericCell(row, r.Values[c])
		}
		rec := resultRow(req, res, r)
		for _, v := range rec[len(rec)-calendarWidth(req.Frequency):] {
			row.AddCell().SetString(v)
		}
	}
	if err := f.Save(path); err != nil {
		return fmt.Errorf("reanest: writing %s: %v", path, err)
	}
	return nil
}

func calendarWidth(freq Frequency) int {
	switch freq {
	case Hourly:
		return 5
	case Daily:
		return 4
	case Weekly, Monthly:
		return 2
	default:
		return 1
	}
}

func setNumericCell(row *xlsx.Row, v float64) {
	if math.IsNaN(v) {
		row.AddCell().SetString("")
		return
	}
	row.AddCell().SetFloat(v)
}
