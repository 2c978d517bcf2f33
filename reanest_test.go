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
	"testing"
	"time"

	"github.com/ctessum/geom"
)

// bounds returns the rectangle with the given west, south, east, and
// north edges.
func bounds(w, s, e, n float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: w, Y: s},
		Max: geom.Point{X: e, Y: n},
	}
}

func validRequest() *Request {
	return &Request{
		ID:         "delhi_temp",
		Variables:  []string{"2m_temperature"},
		Start:      time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC),
		Frequency:  Daily,
		Resolution: DefaultResolution,
		Bounds:     bounds(76.8, 28.4, 77.4, 28.9),
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Request)
		wantField string // empty means valid
	}{
		{"valid", func(r *Request) {}, ""},
		{"empty id", func(r *Request) { r.ID = "" }, "id"},
		{"no variables", func(r *Request) { r.Variables = nil }, "variables"},
		{"start after end", func(r *Request) { r.Start = r.End.AddDate(0, 0, 1) }, "dates"},
		{"levels on surface request", func(r *Request) { r.Levels = []string{"500"} }, "levels"},
		{"pressure without levels", func(r *Request) { r.Kind = PressureLevels }, "levels"},
		{"pressure with levels", func(r *Request) {
			r.Kind = PressureLevels
			r.Levels = []string{"500", "850"}
		}, ""},
		{"bad frequency", func(r *Request) { r.Frequency = "fortnightly" }, "frequency"},
		{"zero resolution", func(r *Request) { r.Resolution = 0 }, "resolution"},
		{"no extent", func(r *Request) { r.Bounds = nil }, "extent"},
		{"inverted rectangle", func(r *Request) { r.Bounds = bounds(77.4, 28.9, 76.8, 28.4) }, "extent"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			req := validRequest()
			test.mutate(req)
			err := req.Validate()
			if test.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want a *ValidationError", err)
			}
			if verr.Field != test.wantField {
				t.Errorf("field: got %q, want %q", verr.Field, test.wantField)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2020-02-29", "2020-2-29"} {
		d, err := ParseDate(s)
		if err != nil {
			t.Fatalf("ParseDate(%q): %v", s, err)
		}
		want := time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)
		if !d.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", s, d, want)
		}
	}
	if _, err := ParseDate("29/02/2020"); err == nil {
		t.Error("expected an error for a non-ISO date")
	}
}

func TestSpatialBoundsPrefersExplicitRectangle(t *testing.T) {
	req := validRequest()
	req.Region = PointRegion(0, 0)
	if b := req.SpatialBounds(); b != req.Bounds {
		t.Errorf("explicit bounds should win over the region envelope")
	}
	req.Bounds = nil
	if b := req.SpatialBounds(); b.Max.X > 1 || b.Min.X < -1 {
		t.Errorf("region envelope out of range: %+v", b)
	}
}

func TestParseFrequencyAndKind(t *testing.T) {
	if f, err := ParseFrequency("Monthly"); err != nil || f != Monthly {
		t.Errorf("ParseFrequency(Monthly) = %v, %v", f, err)
	}
	if _, err := ParseFrequency("decadal"); err == nil {
		t.Error("expected an error for an unknown frequency")
	}
	if k, err := ParseDatasetKind("PRESSURE"); err != nil || k != PressureLevels {
		t.Errorf("ParseDatasetKind(PRESSURE) = %v, %v", k, err)
	}
}
