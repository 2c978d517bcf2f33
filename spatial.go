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
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

const (
	// spatialIndexThreshold is the candidate-point count above which
	// containment tests go through a spatial index instead of testing
	// every feature directly.
	spatialIndexThreshold = 100

	// filterChunkSize is the number of candidate points handed to each
	// worker at a time.
	filterChunkSize = 10000

	// filterWorkers is the default containment-test parallelism.
	filterWorkers = 4
)

// A Grid is the regular latitude-longitude grid implied by a request's
// spatial bounds and resolution.
type Grid struct {
	Lats, Lons []float64
}

// NewGrid returns the grid covering b at the given resolution [degrees].
// Both boundary rows and columns are included.
func NewGrid(b *geom.Bounds, resolution float64) *Grid {
	return &Grid{
		Lats: gridAxis(b.Min.Y, b.Max.Y, resolution),
		Lons: gridAxis(b.Min.X, b.Max.X, resolution),
	}
}

func gridAxis(min, max, step float64) []float64 {
	n := int(math.Floor((max-min)/step+1e-9)) + 1
	ax := make([]float64, n)
	for i := range ax {
		ax[i] = min + float64(i)*step
	}
	return ax
}

// DataGrid returns the grid spanned by a frame's distinct latitude and
// longitude values, sorted ascending. Containment tests run against
// this grid rather than one synthesized from the request envelope: the
// data provider snaps coordinates to its own lattice, which need not
// line up with the envelope's corners.
func DataGrid(f *Frame) *Grid {
	return &Grid{
		Lats: uniqueSorted(f.Lats),
		Lons: uniqueSorted(f.Lons),
	}
}

func uniqueSorted(vals []float64) []float64 {
	seen := make(map[float64]bool, len(vals))
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// Points returns every grid cell, latitude-major.
func (g *Grid) Points() []GridPoint {
	pts := make([]GridPoint, 0, len(g.Lats)*len(g.Lons))
	for _, lat := range g.Lats {
		for _, lon := range g.Lons {
			pts = append(pts, GridPoint{Lat: lat, Lon: lon})
		}
	}
	return pts
}

// Bounds returns the grid's spatial extent.
func (g *Grid) Bounds() *geom.Bounds {
	b := geom.NewBounds()
	for _, lat := range g.Lats {
		for _, lon := range g.Lons {
			b.Extend(geom.Point{X: lon, Y: lat}.Bounds())
		}
	}
	return b
}

// signature returns a hash identifying the grid for caching.
func (g *Grid) signature() string {
	h := fnv.New64a()
	buf := make([]byte, 8)
	write := func(v float64) {
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf)
	}
	for _, lat := range g.Lats {
		write(lat)
	}
	for _, lon := range g.Lons {
		write(lon)
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// featureEntry makes a region feature indexable by the spatial index.
// The embedded geometry satisfies geom.Geom by promotion.
type featureEntry struct {
	geom.Polygonal
	idx int
}

// buildIndex lazily fills the region's spatial index.
func (r *Region) buildIndex() *rtree.Rtree {
	r.indexOnce.Do(func() {
		r.index = rtree.NewTree(25, 50)
		for i, f := range r.Features {
			r.index.Insert(&featureEntry{Polygonal: f.Geom, idx: i})
		}
	})
	return r.index
}

// featureAt returns the index of the first region feature containing p
// (boundary points count as contained), or -1 if none does.
func (r *Region) featureAt(p geom.Point, useIndex bool) int {
	if !useIndex {
		for i, f := range r.Features {
			if p.Within(f.Geom) != geom.Outside {
				return i
			}
		}
		return -1
	}
	hits := r.buildIndex().SearchIntersect(p.Bounds())
	best := -1
	for _, h := range hits {
		e := h.(*featureEntry)
		if (best < 0 || e.idx < best) && p.Within(e.Polygonal) != geom.Outside {
			best = e.idx
		}
	}
	return best
}

// A SpatialFilter tests grid points for containment in a region and
// restricts frames to the points that pass. Containment results are
// cached per (region, grid) pair so repeated chunks of one request only
// pay for the geometry tests once.
type SpatialFilter struct {
	// ChunkSize is the number of candidate points handled per worker
	// dispatch. Zero means the default.
	ChunkSize int

	// MaxWorkers is the containment-test parallelism. Zero means the
	// default.
	MaxWorkers int

	// Log receives progress information.
	Log logrus.FieldLogger

	cacheOnce sync.Once
	cache     *requestcache.Cache
}

type acceptPayload struct {
	sf     *SpatialFilter
	region *Region
	grid   *Grid
}

func (sf *SpatialFilter) acceptCache() *requestcache.Cache {
	sf.cacheOnce.Do(func() {
		sf.cache = requestcache.NewCache(
			func(ctx context.Context, payload interface{}) (interface{}, error) {
				p := payload.(*acceptPayload)
				return p.sf.accept(ctx, p.region, p.grid)
			}, 1, requestcache.Deduplicate(), requestcache.Memory(20))
	})
	return sf.cache
}

// Accept returns the grid points contained in the region, mapped to the
// label of the first matching feature. The label is empty when the
// region has no distinguishing features. If no grid point falls inside
// the region, the error is a *GeospatialError carrying both extents.
func (sf *SpatialFilter) Accept(ctx context.Context, region *Region, grid *Grid) (map[GridPoint]string, error) {
	key := "accept_" + region.signature() + "_" + grid.signature()
	req := sf.acceptCache().NewRequest(ctx, &acceptPayload{sf: sf, region: region, grid: grid}, key)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(map[GridPoint]string), nil
}

func (sf *SpatialFilter) accept(ctx context.Context, region *Region, grid *Grid) (map[GridPoint]string, error) {
	chunkSize := sf.ChunkSize
	if chunkSize <= 0 {
		chunkSize = filterChunkSize
	}
	workers := sf.MaxWorkers
	if workers <= 0 {
		workers = filterWorkers
	}

	// Cheap envelope test first: only points inside the region's
	// bounding box need a real containment test.
	rb := region.Bounds()
	all := grid.Points()
	candidates := make([]GridPoint, 0, len(all))
	for _, p := range all {
		if rb.Overlaps(geom.Point{X: p.Lon, Y: p.Lat}.Bounds()) {
			candidates = append(candidates, p)
		}
	}
	useIndex := len(candidates) > spatialIndexThreshold

	if sf.Log != nil {
		sf.Log.WithFields(logrus.Fields{
			"grid_points": len(all),
			"candidates":  len(candidates),
			"indexed":     useIndex,
		}).Debug("testing grid points against region")
	}

	type chunk struct{ lo, hi int }
	chunks := make(chan chunk)
	results := make([]int, len(candidates)) // feature index or -1
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range chunks {
				for i := c.lo; i < c.hi; i++ {
					p := geom.Point{X: candidates[i].Lon, Y: candidates[i].Lat}
					results[i] = region.featureAt(p, useIndex)
				}
			}
		}()
	}
	for lo := 0; lo < len(candidates); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(candidates) {
			hi = len(candidates)
		}
		select {
		case chunks <- chunk{lo, hi}:
		case <-ctx.Done():
			close(chunks)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(chunks)
	wg.Wait()

	accepted := make(map[GridPoint]string)
	for i, fi := range results {
		if fi < 0 {
			continue
		}
		accepted[candidates[i]] = region.Features[fi].Label
	}
	if len(accepted) == 0 {
		return nil, &GeospatialError{GridBounds: grid.Bounds(), RegionBounds: rb}
	}
	if sf.Log != nil {
		sf.Log.WithFields(logrus.Fields{
			"accepted": len(accepted),
			"of":       len(all),
		}).Info("spatial filter complete")
	}
	return accepted, nil
}

// Filter returns the rows of f whose grid point lies inside the region.
// When the region carries distinguishing features, the returned frame
// has each row labeled with its containing feature.
func (sf *SpatialFilter) Filter(ctx context.Context, f *Frame, region *Region, grid *Grid) (*Frame, error) {
	accepted, err := sf.Accept(ctx, region, grid)
	if err != nil {
		return nil, err
	}
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		if _, ok := accepted[GridPoint{Lat: f.Lats[i], Lon: f.Lons[i]}]; ok {
			keep = append(keep, i)
		}
	}
	o := f.take(keep)
	if len(region.DistFeatures) > 0 {
		o.Features = make([]string, o.Len())
		for i := 0; i < o.Len(); i++ {
			o.Features[i] = accepted[GridPoint{Lat: o.Lats[i], Lon: o.Lons[i]}]
		}
	}
	return o, nil
}
