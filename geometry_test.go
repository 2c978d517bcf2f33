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
	"math"
	"testing"

	"github.com/ctessum/geom"
)

func TestDecodeGeoJSONFeatureCollection(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"state": "Haryana", "district": "Gurgaon"},
				"geometry": {"type": "Polygon", "coordinates": [[[76,28],[77,28],[77,29],[76,29],[76,28]]]}
			},
			{
				"type": "Feature",
				"properties": {"state": "Delhi", "district": "New Delhi"},
				"geometry": {"type": "MultiPolygon", "coordinates": [[[[77,28],[78,28],[78,29],[77,29],[77,28]]]]}
			}
		]
	}`)
	r, err := DecodeGeoJSON(data, []string{"state", "district"})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(r.Features))
	}
	if r.Features[0].Label != "Haryana_Gurgaon" {
		t.Errorf("label = %q, want Haryana_Gurgaon", r.Features[0].Label)
	}
	if r.Features[1].Label != "Delhi_New Delhi" {
		t.Errorf("label = %q, want Delhi_New Delhi", r.Features[1].Label)
	}
	b := r.Bounds()
	if b.Min.X != 76 || b.Max.X != 78 || b.Min.Y != 28 || b.Max.Y != 29 {
		t.Errorf("bounds = %+v", b)
	}
}

func TestDecodeGeoJSONBareGeometry(t *testing.T) {
	data := []byte(`{"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`)
	r, err := DecodeGeoJSON(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Features) != 1 || r.Features[0].Label != "" {
		t.Errorf("bare geometry should produce one unlabeled feature")
	}
}

func TestDecodeGeoJSONRejectsLines(t *testing.T) {
	data := []byte(`{"type": "LineString", "coordinates": [[0,0],[1,1]]}`)
	if _, err := DecodeGeoJSON(data, nil); err == nil {
		t.Error("expected an error for a line geometry")
	}
}

func TestPointBufferCircle(t *testing.T) {
	p := PointBuffer(28.6, 77.2)
	if len(p) != 1 {
		t.Fatalf("got %d rings, want 1", len(p))
	}
	ring := p[0]
	if len(ring) != pointBufferVertices+1 {
		t.Fatalf("got %d vertices, want %d", len(ring), pointBufferVertices+1)
	}
	if ring[0] != ring[len(ring)-1] {
		t.Error("ring is not closed")
	}
	// The center must be inside, and the latitude extent must match
	// the buffer radius.
	if (geom.Point{X: 77.2, Y: 28.6}).Within(p) == geom.Outside {
		t.Error("center point is outside its own buffer")
	}
	b := p.Bounds()
	if got := b.Max.Y - b.Min.Y; math.Abs(got-2*pointBufferRadius) > 1e-9 {
		t.Errorf("latitude extent = %g, want %g", got, 2*pointBufferRadius)
	}
	// Meridians converge away from the equator, so the longitude
	// extent must exceed the latitude extent.
	if b.Max.X-b.Min.X <= b.Max.Y-b.Min.Y {
		t.Error("longitude extent should exceed latitude extent at 28.6 degrees north")
	}
}

func TestPointBufferNearPole(t *testing.T) {
	p := PointBuffer(89.5, 10)
	ring := p[0]
	if len(ring) != 5 {
		t.Fatalf("got %d vertices, want a closed square of 5", len(ring))
	}
	for _, pt := range ring {
		if pt.Y > 90 {
			t.Errorf("vertex latitude %g exceeds the pole", pt.Y)
		}
	}
	b := p.Bounds()
	if got := b.Max.X - b.Min.X; math.Abs(got-4*pointBufferRadius) > 1e-9 {
		t.Errorf("pole square longitude extent = %g, want %g", got, 4*pointBufferRadius)
	}
}

func TestPointBufferAntimeridian(t *testing.T) {
	for _, lon := range []float64{180, -180, 179.95} {
		p := PointBuffer(0, lon)
		for _, pt := range p[0] {
			if pt.X > 180 || pt.X < -180 {
				t.Errorf("lon %g: vertex longitude %g out of range", lon, pt.X)
			}
		}
		// The nudged buffer must stay on one side of the antimeridian.
		b := p.Bounds()
		if b.Max.X-b.Min.X > 1 {
			t.Errorf("lon %g: buffer spans the antimeridian: %+v", lon, b)
		}
	}
}

func TestBBoxRegionBoundaryInclusive(t *testing.T) {
	r := BBoxRegion(29, 76, 28, 78)
	g := r.Features[0].Geom
	tests := []struct {
		name      string
		p         geom.Point
		contained bool
	}{
		{"interior", geom.Point{X: 77, Y: 28.5}, true},
		{"edge", geom.Point{X: 76, Y: 28.5}, true},
		{"corner", geom.Point{X: 76, Y: 28}, true},
		{"outside", geom.Point{X: 75.99, Y: 28.5}, false},
	}
	for _, test := range tests {
		got := test.p.Within(g) != geom.Outside
		if got != test.contained {
			t.Errorf("%s: contained = %v, want %v", test.name, got, test.contained)
		}
	}
}

func TestRegionSignatureDistinguishesGeometry(t *testing.T) {
	a := BBoxRegion(29, 76, 28, 78)
	b := BBoxRegion(29, 76, 28, 78.5)
	c := BBoxRegion(29, 76, 28, 78)
	if a.signature() == b.signature() {
		t.Error("different geometries should have different signatures")
	}
	if a.signature() != c.signature() {
		t.Error("identical geometries should share a signature")
	}
}

func TestNormalizeLon(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{180, 180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{360, 0},
	}
	for _, test := range tests {
		if got := normalizeLon(test.in); math.Abs(got-test.want) > 1e-12 {
			t.Errorf("normalizeLon(%g) = %g, want %g", test.in, got, test.want)
		}
	}
}
