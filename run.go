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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	// downloadAttempts is the per-chunk retry budget.
	downloadAttempts = 5

	// retryDelay is the fixed pause between retries of one chunk.
	retryDelay = 30 * time.Second

	// chunkPause is the rate-limiting pause between successive chunks.
	chunkPause = 10 * time.Second
)

// A Retriever fetches the gridded data for one request and returns the
// path of the downloaded file, which may be a bare NetCDF file or a
// zip archive of NetCDF files.
type Retriever interface {
	Retrieve(ctx context.Context, req *Request) (string, error)
}

// A Result holds the output of a pipeline run.
type Result struct {
	// Raw holds the filtered observations before aggregation, in case
	// the caller wants them.
	Raw *Frame

	// Records are the aggregated output rows.
	Records []AggRecord

	// Coords are the grid points that passed the spatial filter, in
	// order of first appearance.
	Coords []GridPoint
}

// A Pipeline runs a request end to end: it splits the request into
// chunks, retrieves each chunk with retries, decodes and merges the
// gridded files, filters them to the request geometry, and aggregates
// the survivors at the requested frequency.
//
// A chunk whose retrieval or decoding fails is logged and skipped;
// the run only fails when every chunk does.
type Pipeline struct {
	Retriever Retriever

	// Filter tests grid points against the request geometry. If nil, a
	// filter with default settings is used.
	Filter *SpatialFilter

	// Log receives progress information. If nil, the standard logger
	// is used.
	Log logrus.FieldLogger

	// Clock is the time source for retry and rate-limit pauses.
	// If nil, the real clock is used.
	Clock clockwork.Clock

	// KeepDownloads prevents deletion of downloaded and extracted
	// files after processing.
	KeepDownloads bool

	filterOnce sync.Once
}

func (p *Pipeline) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}

func (p *Pipeline) log() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

func (p *Pipeline) filter() *SpatialFilter {
	p.filterOnce.Do(func() {
		if p.Filter == nil {
			p.Filter = &SpatialFilter{Log: p.Log}
		}
	})
	return p.Filter
}

// Run executes the request and returns the aggregated result.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	region := req.Region
	if region == nil {
		region = RectRegion(req.Bounds)
	}

	chunks := TimeChunks(req)
	log := p.log().WithFields(logrus.Fields{
		"request": req.ID,
		"chunks":  len(chunks),
	})
	log.Info("starting retrieval")

	var frames []*Frame
	var firstErr error
	for i, chunk := range chunks {
		if i > 0 {
			// Rate limiting between chunk retrievals.
			select {
			case <-p.clock().After(chunkPause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		clog := log.WithFields(logrus.Fields{
			"chunk": i + 1,
			"start": chunk.Start.Format("2006-01-02"),
			"end":   chunk.End.Format("2006-01-02"),
		})
		f, err := p.processChunk(ctx, chunk, i+1, region, clog)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			clog.WithError(err).Error("chunk failed; continuing with remaining chunks")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		clog.WithField("rows", f.Len()).Info("chunk complete")
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("reanest: request %s: %w: every chunk failed, first error: %v",
			req.ID, ErrNoData, firstErr)
	}

	all, err := ConcatFrames(frames)
	if err != nil {
		return nil, err
	}
	all = all.Dedup()

	agg := &Aggregator{Frequency: req.Frequency, Log: p.Log}
	records, err := agg.Aggregate(all)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"rows":    all.Len(),
		"records": len(records),
	}).Info("aggregation complete")
	return &Result{Raw: all, Records: records, Coords: all.UniqueCoords()}, nil
}

// processChunk retrieves, decodes, and filters a single chunk. A file
// that fails to decode is skipped; the chunk only fails when no file in
// it could be read.
func (p *Pipeline) processChunk(ctx context.Context, chunk *Request, n int, region *Region, log logrus.FieldLogger) (*Frame, error) {
	path, err := p.retrieve(ctx, chunk, n, log)
	if err != nil {
		return nil, err
	}
	if !p.KeepDownloads {
		defer p.cleanup(path)
	}
	files, err := ExtractGridded(path)
	if err != nil {
		return nil, err
	}
	frames := make([]*Frame, 0, len(files))
	var readErr error
	for _, file := range files {
		f, err := ReadNetCDF(file)
		if err != nil {
			log.WithError(err).WithField("file", filepath.Base(file)).Warn("skipping unreadable file")
			readErr = err
			continue
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return nil, readErr
	}
	f, err := MergeFrames(frames)
	if err != nil {
		return nil, err
	}
	f = f.Dedup()
	return p.filter().Filter(ctx, f, region, DataGrid(f))
}

// retrieve downloads one chunk, retrying on a fixed schedule until the
// attempt budget is exhausted.
func (p *Pipeline) retrieve(ctx context.Context, chunk *Request, n int, log logrus.FieldLogger) (string, error) {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), downloadAttempts-1)
	policy.Reset()
	for attempt := 1; ; attempt++ {
		path, err := p.Retriever.Retrieve(ctx, chunk)
		if err == nil {
			return path, nil
		}
		log.WithError(err).WithField("attempt", attempt).Warn("download attempt failed")
		d := policy.NextBackOff()
		if d == backoff.Stop {
			return "", &DownloadError{Chunk: n, Attempts: attempt, Err: err}
		}
		select {
		case <-p.clock().After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// RunAll executes independent requests concurrently, at most
// maxConcurrent at a time (maxConcurrent < 1 means unbounded). This is
// how surface and pressure-level data for the same period are pulled
// together. Results and errors are indexed like reqs; one request
// failing does not cancel its siblings.
func (p *Pipeline) RunAll(ctx context.Context, reqs []*Request, maxConcurrent int) ([]*Result, []error) {
	results := make([]*Result, len(reqs))
	errs := make([]error, len(reqs))
	var sem chan struct{}
	if maxConcurrent > 0 {
		sem = make(chan struct{}, maxConcurrent)
	}
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req *Request) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results[i], errs[i] = p.Run(ctx, req)
		}(i, req)
	}
	wg.Wait()
	return results, errs
}

// cleanup removes a downloaded file and anything extracted from it.
func (p *Pipeline) cleanup(path string) {
	os.Remove(path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	extracted := filepath.Join(dir,
		base[:len(base)-len(filepath.Ext(base))]+"_extracted")
	os.RemoveAll(extracted)
}
