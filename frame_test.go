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
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

var frameT0 = time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)

func sampleFrame() *Frame {
	f := NewFrame([]string{"t2m"}, false)
	f.AppendRow(frameT0, 28.5, 77.0, 0, []float64{300})
	f.AppendRow(frameT0, 28.5, 77.25, 0, []float64{301})
	f.AppendRow(frameT0.Add(time.Hour), 28.5, 77.0, 0, []float64{302})
	return f
}

func TestFrameDedup(t *testing.T) {
	f := sampleFrame()
	f.AppendRow(frameT0, 28.5, 77.0, 0, []float64{999}) // duplicate tuple
	d := f.Dedup()
	if d.Len() != 3 {
		t.Fatalf("got %d rows after dedup, want 3", d.Len())
	}
	// First occurrence wins.
	if d.Data["t2m"][0] != 300 {
		t.Errorf("kept value %g, want the first occurrence 300", d.Data["t2m"][0])
	}
	// Dedup is idempotent: a second application changes nothing.
	d2 := d.Dedup()
	if !reflect.DeepEqual(d.Times, d2.Times) || !reflect.DeepEqual(d.Data, d2.Data) {
		t.Error("second dedup changed the row set")
	}
}

func TestFrameDedupLevelsDistinguish(t *testing.T) {
	f := NewFrame([]string{"z"}, true)
	f.AppendRow(frameT0, 28.5, 77.0, 500, []float64{1})
	f.AppendRow(frameT0, 28.5, 77.0, 850, []float64{2})
	f.AppendRow(frameT0, 28.5, 77.0, 500, []float64{3})
	if got := f.Dedup().Len(); got != 2 {
		t.Errorf("got %d rows, want 2: rows differing only in level are distinct", got)
	}
}

func TestConcatFrames(t *testing.T) {
	a := sampleFrame()
	b := sampleFrame()
	o, err := ConcatFrames([]*Frame{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if o.Len() != a.Len()+b.Len() {
		t.Errorf("got %d rows, want %d", o.Len(), a.Len()+b.Len())
	}
	if o.Dedup().Len() != a.Len() {
		t.Errorf("concatenating identical frames then deduplicating should restore the original row count")
	}

	mismatched := NewFrame([]string{"tp"}, false)
	if _, err := ConcatFrames([]*Frame{a, mismatched}); err == nil {
		t.Error("expected an error for mismatched columns")
	}
}

func TestMergeFrames(t *testing.T) {
	a := NewFrame([]string{"t2m"}, false)
	a.AppendRow(frameT0, 28.5, 77.0, 0, []float64{300})
	a.AppendRow(frameT0, 28.5, 77.25, 0, []float64{301})
	b := NewFrame([]string{"tp"}, false)
	b.AppendRow(frameT0, 28.5, 77.0, 0, []float64{0.002})

	o, err := MergeFrames([]*Frame{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if o.Len() != 2 {
		t.Fatalf("got %d rows, want 2", o.Len())
	}
	if !reflect.DeepEqual(o.Columns, []string{"t2m", "tp"}) {
		t.Fatalf("columns = %v", o.Columns)
	}
	if o.Data["tp"][0] != 0.002 {
		t.Errorf("tp at shared coordinate = %g, want 0.002", o.Data["tp"][0])
	}
	if !math.IsNaN(o.Data["tp"][1]) {
		t.Errorf("tp without a matching row should be NaN, got %g", o.Data["tp"][1])
	}
}

func TestUniqueCoords(t *testing.T) {
	f := sampleFrame()
	got := f.UniqueCoords()
	want := []GridPoint{{Lat: 28.5, Lon: 77.0}, {Lat: 28.5, Lon: 77.25}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UniqueCoords = %v, want %v", got, want)
	}
}

func TestFrameWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleFrame().WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0] != "valid_time,latitude,longitude,t2m" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2020-06-01 00:00:00,28.5,77,300" {
		t.Errorf("first row = %q", lines[1])
	}
}
