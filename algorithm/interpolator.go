package algorithm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// SegmentSource provides the orbit segments and records of a platform.
type SegmentSource interface {
	SegmentAt(ctx context.Context, platformID int64, t float64) (*kaos_fields.OrbitSegment, error)
	SegmentRecords(ctx context.Context, segmentID int64) ([]kaos_fields.OrbitRecord, error)
}

// StateSource returns a satellite state vector at a POSIX time.
type StateSource interface {
	Interpolate(ctx context.Context, t float64) (pos, vel r3.Vec, err error)
}

type loadedSegment struct {
	segment kaos_fields.OrbitSegment
	times   []float64
	records []kaos_fields.OrbitRecord
}

// Interpolator linearly interpolates the ephemeris of one platform. Segments
// are loaded once and kept for the lifetime of the Interpolator.
type Interpolator struct {
	PlatformID int64

	source   SegmentSource
	mu       sync.Mutex
	segments map[int64]*loadedSegment
	last     *loadedSegment
}

func NewInterpolator(source SegmentSource, platformID int64) *Interpolator {
	return &Interpolator{
		PlatformID: platformID,
		source:     source,
		segments:   map[int64]*loadedSegment{},
	}
}

// Interpolate returns the position and velocity of the platform at t.
func (i *Interpolator) Interpolate(ctx context.Context, t float64) (r3.Vec, r3.Vec, error) {
	seg, err := i.segmentFor(ctx, t)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}

	idx := sort.SearchFloat64s(seg.times, t)
	switch {
	case idx < len(seg.times) && seg.times[idx] == t:
		rec := seg.records[idx]
		return rec.Position(), rec.Velocity(), nil
	case idx == 0:
		rec := seg.records[0]
		return rec.Position(), rec.Velocity(), nil
	case idx == len(seg.times):
		rec := seg.records[len(seg.records)-1]
		return rec.Position(), rec.Velocity(), nil
	}

	lo, hi := seg.records[idx-1], seg.records[idx]
	frac := (t - lo.Time) / (hi.Time - lo.Time)
	return lerp(lo.Position(), hi.Position(), frac), lerp(lo.Velocity(), hi.Velocity(), frac), nil
}

func lerp(a, b r3.Vec, frac float64) r3.Vec {
	return r3.Add(a, r3.Scale(frac, r3.Sub(b, a)))
}

func (i *Interpolator) segmentFor(ctx context.Context, t float64) (*loadedSegment, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	// A segment that starts at or before t and ends after it is the latest
	// one covering t, since segments of a platform never overlap.
	if i.last != nil && i.last.segment.StartTime <= t && t < i.last.segment.EndTime {
		return i.last, nil
	}

	seg, err := i.source.SegmentAt(ctx, i.PlatformID, t)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Wrap(err, apperr.ErrInterpolation, "No satellite data at "+utils.UnixToUTC(t))
		}
		return nil, err
	}

	if loaded, ok := i.segments[seg.SegmentID]; ok {
		i.last = loaded
		return loaded, nil
	}

	records, err := i.source.SegmentRecords(ctx, seg.SegmentID)
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, apperr.Wrap(fmt.Errorf("platform %d segment %d has %d records", i.PlatformID, seg.SegmentID, len(records)),
			apperr.ErrInterpolation, "No satellite data at "+utils.UnixToUTC(t))
	}
	sort.Slice(records, func(a, b int) bool { return records[a].Time < records[b].Time })

	loaded := &loadedSegment{segment: *seg, records: records, times: make([]float64, len(records))}
	for k, rec := range records {
		loaded.times[k] = rec.Time
	}
	i.segments[seg.SegmentID] = loaded
	i.last = loaded
	return loaded, nil
}
