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
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/index/rtree"
)

const (
	// pointBufferRadius is the radius [degrees] of the polygon
	// synthesized around a single-point region so that at least the
	// nearest grid cell is captured.
	pointBufferRadius = 0.06

	// pointBufferVertices is the number of vertices used to
	// approximate the circular buffer.
	pointBufferVertices = 16

	// poleLatitude is the latitude beyond which the circular buffer
	// parametrization becomes singular and a bounding square is used
	// instead.
	poleLatitude = 89.0

	// antimeridianNudge is how far a ±180° longitude is moved inward
	// before the buffer is generated.
	antimeridianNudge = 0.1
)

// A RegionFeature is one polygonal member of a Region, carrying the
// properties of the GeoJSON feature or shapefile row it came from.
type RegionFeature struct {
	Geom geom.Polygonal

	// Properties holds the feature's attribute values, stringified.
	Properties map[string]string

	// Label is the distinguishing-feature label attached to rows that
	// match this feature, or "" when the region has no distinguishing
	// features.
	Label string
}

// A Region is an arbitrary geographic area used to restrict grid points.
// It may contain several features; a grid point belongs to the region if
// it is inside (or on the boundary of) any feature. Regions are immutable
// after creation and safe for concurrent use.
type Region struct {
	Features []RegionFeature

	// DistFeatures are the property names whose values partition
	// aggregation across multi-area geometries.
	DistFeatures []string

	indexOnce sync.Once
	index     *rtree.Rtree

	boundsOnce sync.Once
	bounds     *geom.Bounds

	sigOnce sync.Once
	sig     string
}

// Bounds returns the rectangular envelope of all features in the region.
func (r *Region) Bounds() *geom.Bounds {
	r.boundsOnce.Do(func() {
		b := geom.NewBounds()
		for _, f := range r.Features {
			b.Extend(f.Geom.Bounds())
		}
		r.bounds = b
	})
	return r.bounds
}

// signature returns a stable identifier for the region's geometry,
// suitable as a cache key.
func (r *Region) signature() string {
	r.sigOnce.Do(func() {
		h := fnv.New64a()
		for _, f := range r.Features {
			fmt.Fprint(h, f.Label)
			for _, p := range f.Geom.Polygons() {
				for _, ring := range p {
					for _, pt := range ring {
						fmt.Fprintf(h, "%x%x", math.Float64bits(pt.X), math.Float64bits(pt.Y))
					}
				}
			}
		}
		r.sig = fmt.Sprintf("%x", h.Sum64())
	})
	return r.sig
}

// LoadRegion reads a region geometry from a GeoJSON (.json, .geojson) or
// shapefile (.shp) file. distFeatures names the feature properties whose
// values should partition aggregation, and may be nil.
func LoadRegion(path string, distFeatures []string) (*Region, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".geojson":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("reading geometry file: %v", err)}
		}
		return DecodeGeoJSON(data, distFeatures)
	case ".shp":
		return loadShapefileRegion(path, distFeatures)
	}
	return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("unsupported geometry file type %q; expected .json, .geojson, or .shp", filepath.Ext(path))}
}

// geoJSON decoding structures. The geometry coordinate layouts follow
// the GeoJSON specification: positions are [longitude, latitude].
type geoJSONObject struct {
	Type       string            `json:"type"`
	Features   []geoJSONObject   `json:"features"`
	Geometry   *geoJSONGeometry  `json:"geometry"`
	Properties map[string]any    `json:"properties"`
	Geometries []geoJSONGeometry `json:"geometries"`
	// Coordinates is set when the object is itself a bare geometry.
	Coordinates json.RawMessage `json:"coordinates"`
}

type geoJSONGeometry struct {
	Type        string            `json:"type"`
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []geoJSONGeometry `json:"geometries"`
}

// DecodeGeoJSON parses a GeoJSON feature collection, single feature, or
// bare geometry into a Region. Point geometries are expanded into small
// buffer polygons; line geometries are rejected because they enclose no
// area.
func DecodeGeoJSON(data []byte, distFeatures []string) (*Region, error) {
	var obj geoJSONObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("unparsable GeoJSON: %v", err)}
	}
	r := &Region{DistFeatures: distFeatures}
	switch obj.Type {
	case "FeatureCollection":
		for i, f := range obj.Features {
			if f.Geometry == nil {
				return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("feature %d has no geometry", i)}
			}
			if err := appendGeoJSONFeature(r, f.Geometry, f.Properties, distFeatures); err != nil {
				return nil, err
			}
		}
	case "Feature":
		if obj.Geometry == nil {
			return nil, &ValidationError{Field: "region", Reason: "feature has no geometry"}
		}
		if err := appendGeoJSONFeature(r, obj.Geometry, obj.Properties, distFeatures); err != nil {
			return nil, err
		}
	default:
		g := &geoJSONGeometry{Type: obj.Type, Coordinates: obj.Coordinates, Geometries: obj.Geometries}
		if err := appendGeoJSONFeature(r, g, nil, distFeatures); err != nil {
			return nil, err
		}
	}
	if len(r.Features) == 0 {
		return nil, &ValidationError{Field: "region", Reason: "no usable geometries found in GeoJSON"}
	}
	return r, nil
}

func appendGeoJSONFeature(r *Region, g *geoJSONGeometry, props map[string]any, distFeatures []string) error {
	pg, err := decodeGeoJSONGeometry(g)
	if err != nil {
		return err
	}
	f := RegionFeature{
		Geom:       pg,
		Properties: stringifyProperties(props),
	}
	f.Label = featureLabel(f.Properties, distFeatures)
	r.Features = append(r.Features, f)
	return nil
}

func decodeGeoJSONGeometry(g *geoJSONGeometry) (geom.Polygonal, error) {
	switch g.Type {
	case "Polygon":
		var c [][][]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("invalid Polygon coordinates: %v", err)}
		}
		return polygonFromRings(c)
	case "MultiPolygon":
		var c [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("invalid MultiPolygon coordinates: %v", err)}
		}
		mp := make(geom.MultiPolygon, 0, len(c))
		for _, rings := range c {
			p, err := polygonFromRings(rings)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	case "Point":
		var c []float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil || len(c) < 2 {
			return nil, &ValidationError{Field: "region", Reason: "invalid Point coordinates"}
		}
		return PointBuffer(c[1], c[0]), nil
	case "GeometryCollection":
		var mp geom.MultiPolygon
		for i := range g.Geometries {
			pg, err := decodeGeoJSONGeometry(&g.Geometries[i])
			if err != nil {
				return nil, err
			}
			mp = append(mp, pg.Polygons()...)
		}
		if len(mp) == 0 {
			return nil, &ValidationError{Field: "region", Reason: "GeometryCollection contains no areal geometries"}
		}
		return mp, nil
	}
	return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("unsupported geometry type %q; regions must be areal", g.Type)}
}

func polygonFromRings(rings [][][]float64) (geom.Polygon, error) {
	p := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		pts := make([]geom.Point, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				return nil, &ValidationError{Field: "region", Reason: "polygon position with fewer than 2 coordinates"}
			}
			pts = append(pts, geom.Point{X: normalizeLon(pos[0]), Y: pos[1]})
		}
		p = append(p, pts)
	}
	return p, nil
}

func stringifyProperties(props map[string]any) map[string]string {
	if len(props) == 0 {
		return nil
	}
	o := make(map[string]string, len(props))
	for k, v := range props {
		o[k] = fmt.Sprint(v)
	}
	return o
}

// featureLabel joins the values of the distinguishing properties, in the
// order they were requested, into the label attached to matching rows.
func featureLabel(props map[string]string, distFeatures []string) string {
	if len(distFeatures) == 0 {
		return ""
	}
	vals := make([]string, 0, len(distFeatures))
	for _, name := range distFeatures {
		if v, ok := props[name]; ok {
			vals = append(vals, v)
		}
	}
	return strings.Join(vals, "_")
}

func loadShapefileRegion(path string, distFeatures []string) (*Region, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("opening shapefile: %v", err)}
	}
	defer d.Close()
	r := &Region{DistFeatures: distFeatures}
	for {
		g, fields, more := d.DecodeRowFields(distFeatures...)
		if !more {
			break
		}
		var pg geom.Polygonal
		switch gg := g.(type) {
		case geom.Polygonal:
			pg = gg
		case geom.Point:
			pg = PointBuffer(gg.Y, gg.X)
		default:
			return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("unsupported shapefile geometry type %T; regions must be areal", g)}
		}
		f := RegionFeature{Geom: pg, Properties: fields}
		f.Label = featureLabel(fields, distFeatures)
		r.Features = append(r.Features, f)
	}
	if err := d.Error(); err != nil {
		return nil, &ValidationError{Field: "region", Reason: fmt.Sprintf("reading shapefile: %v", err)}
	}
	if len(r.Features) == 0 {
		return nil, &ValidationError{Field: "region", Reason: "shapefile contains no geometries"}
	}
	return r, nil
}

// RectRegion returns a single-feature region covering the rectangle b.
// It lets bounding-rectangle requests run through the same filtering
// path as arbitrary geometries.
func RectRegion(b *geom.Bounds) *Region {
	return &Region{Features: []RegionFeature{{Geom: rectPolygon(b)}}}
}

// BBoxRegion returns the rectangular region with the given edges, in
// degrees.
func BBoxRegion(north, west, south, east float64) *Region {
	return RectRegion(&geom.Bounds{
		Min: geom.Point{X: west, Y: south},
		Max: geom.Point{X: east, Y: north},
	})
}

func rectPolygon(b *geom.Bounds) geom.Polygon {
	return geom.Polygon{{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Min.Y},
	}}
}

// PointRegion returns a region for a single coordinate, expanded into a
// small buffer polygon so that at least the nearest grid cell(s) are
// captured.
func PointRegion(lat, lon float64) *Region {
	return &Region{Features: []RegionFeature{{Geom: PointBuffer(lat, lon)}}}
}

// PointBuffer expands a single coordinate into a polygon of radius
// pointBufferRadius. Within poleLatitude of either pole a bounding
// square is used instead of a circle to avoid the parametrization's
// singularity, and a longitude at ±180° is nudged inward before the
// circle is generated.
func PointBuffer(lat, lon float64) geom.Polygon {
	lon = normalizeLon(lon)

	if math.Abs(lat) > poleLatitude {
		// Wider longitude range near the poles, where meridians
		// converge.
		latOff, lonOff := pointBufferRadius, pointBufferRadius*2
		south := math.Max(lat-latOff, -90)
		north := math.Min(lat+latOff, 90)
		return geom.Polygon{{
			{X: normalizeLon(lon - lonOff), Y: south},
			{X: normalizeLon(lon + lonOff), Y: south},
			{X: normalizeLon(lon + lonOff), Y: north},
			{X: normalizeLon(lon - lonOff), Y: north},
			{X: normalizeLon(lon - lonOff), Y: south},
		}}
	}

	workingLon := lon
	if lon > 180-antimeridianNudge {
		workingLon = 180 - antimeridianNudge
	} else if lon < -180+antimeridianNudge {
		workingLon = -180 + antimeridianNudge
	}

	ring := make([]geom.Point, 0, pointBufferVertices+1)
	for i := 0; i <= pointBufferVertices; i++ {
		angle := 2 * math.Pi * float64(i) / pointBufferVertices
		latOff := pointBufferRadius * math.Cos(angle)
		lonOff := pointBufferRadius * math.Sin(angle) / math.Cos(lat*math.Pi/180)
		ring = append(ring, geom.Point{
			X: normalizeLon(workingLon + lonOff),
			Y: math.Max(-90, math.Min(90, lat+latOff)),
		})
	}
	return geom.Polygon{ring}
}

// normalizeLon wraps a longitude into [-180, 180].
func normalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}
