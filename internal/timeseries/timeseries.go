// Package timeseries implements the time-series alignment engine used by
// the attribution transform: grouping measurement points by a user-defined
// key, extracting the common range across groups, and linearly
// interpolating every non-reference group onto the reference group's
// timeline.
package timeseries

import (
	"sort"
	"time"

	"github.com/alumet-io/alumet/internal/measurement"
)

// Timeseries is an ordered sequence of points sorted by timestamp.
type Timeseries struct {
	Points []measurement.Point
}

// MinTimestamp returns the earliest timestamp in the series.
func (t *Timeseries) MinTimestamp() (time.Time, bool) {
	if len(t.Points) == 0 {
		return time.Time{}, false
	}
	return t.Points[0].Timestamp, true
}

// MaxTimestamp returns the latest timestamp in the series.
func (t *Timeseries) MaxTimestamp() (time.Time, bool) {
	if len(t.Points) == 0 {
		return time.Time{}, false
	}
	return t.Points[len(t.Points)-1].Timestamp, true
}

// dedupTakeLast collapses runs of equal timestamps to their last occurrence
// in insertion order. This realizes the "take last" tie-break policy for
// duplicate-timestamp samples chosen in SPEC_FULL.md §9 (spec.md §9 open
// question (d)). Points are assumed sorted by timestamp, which holds by the
// per-source monotonic-timestamp invariant (spec.md §3).
func dedupTakeLast(points []measurement.Point) []measurement.Point {
	out := make([]measurement.Point, 0, len(points))
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(p.Timestamp) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// interpolateAt returns the linearly interpolated value of dedup (a
// timestamp-deduplicated, timestamp-sorted series) at t. ok is false if t
// lies outside [dedup[0].Timestamp, dedup[len-1].Timestamp].
func interpolateAt(dedup []measurement.Point, t time.Time) (float64, bool) {
	if len(dedup) == 0 {
		return 0, false
	}
	i := sort.Search(len(dedup), func(i int) bool { return !dedup[i].Timestamp.Before(t) })
	if i < len(dedup) && dedup[i].Timestamp.Equal(t) {
		return dedup[i].Value.AsF64(), true
	}
	if i == 0 || i == len(dedup) {
		return 0, false
	}
	a, b := dedup[i-1], dedup[i]
	ta, tb := a.Timestamp, b.Timestamp
	va, vb := a.Value.AsF64(), b.Value.AsF64()
	frac := float64(t.Sub(ta)) / float64(tb.Sub(ta))
	return va + (vb-va)*frac, true
}

// Key derives a grouping key from a point. Implementations are typically a
// comparable struct over Resource/Consumer fields.
type Key[K comparable] func(measurement.Point) K

// GroupedBuffer maps a user-defined key to the Timeseries of points sharing
// that key.
type GroupedBuffer[K comparable] struct {
	keyOf  Key[K]
	groups map[K]*Timeseries
}

// NewGroupedBuffer returns an empty grouped buffer using keyOf to derive
// each point's group.
func NewGroupedBuffer[K comparable](keyOf Key[K]) *GroupedBuffer[K] {
	return &GroupedBuffer[K]{keyOf: keyOf, groups: make(map[K]*Timeseries)}
}

// Extend appends every point in buf passing filter to the group keyed by
// keyOf(point). filter may be nil to accept every point.
func (g *GroupedBuffer[K]) Extend(buf *measurement.Buffer, filter func(measurement.Point) bool) {
	buf.ForEach(func(p measurement.Point) {
		if filter != nil && !filter(p) {
			return
		}
		k := g.keyOf(p)
		ts, ok := g.groups[k]
		if !ok {
			ts = &Timeseries{}
			g.groups[k] = ts
		}
		ts.Points = append(ts.Points, p)
	})
}

// Get returns the timeseries for key k, if any points have been extended
// into it.
func (g *GroupedBuffer[K]) Get(k K) (*Timeseries, bool) {
	ts, ok := g.groups[k]
	return ts, ok
}

// ExtractCommonRange computes the widest interval over which every
// non-reference group can be linearly interpolated at reference timestamps
// without extrapolation, trimmed to actual reference samples (spec.md
// §4.5). Returns ok=false if any group (including the reference) is empty,
// or the groups are disjoint.
func (g *GroupedBuffer[K]) ExtractCommonRange(refKey K) (start, end time.Time, ok bool) {
	ref, hasRef := g.groups[refKey]
	if !hasRef || len(ref.Points) == 0 {
		return time.Time{}, time.Time{}, false
	}

	var inf, sup time.Time
	haveBound := false
	for k, ts := range g.groups {
		if k == refKey {
			continue
		}
		lo, okLo := ts.MinTimestamp()
		hi, okHi := ts.MaxTimestamp()
		if !okLo || !okHi {
			return time.Time{}, time.Time{}, false
		}
		if !haveBound {
			inf, sup = lo, hi
			haveBound = true
			continue
		}
		if lo.After(inf) {
			inf = lo
		}
		if hi.Before(sup) {
			sup = hi
		}
	}

	if !haveBound {
		// No non-reference groups: the common range is simply the
		// reference series' own span.
		lo, _ := ref.MinTimestamp()
		hi, _ := ref.MaxTimestamp()
		return lo, hi, true
	}

	refFirst, okFirst := firstAtOrAfter(ref.Points, inf)
	refLast, okLast := lastAtOrBefore(ref.Points, sup)
	if !okFirst || !okLast || refLast.Before(refFirst) {
		return time.Time{}, time.Time{}, false
	}
	return refFirst, refLast, true
}

func firstAtOrAfter(points []measurement.Point, t time.Time) (time.Time, bool) {
	for _, p := range points {
		if !p.Timestamp.Before(t) {
			return p.Timestamp, true
		}
	}
	return time.Time{}, false
}

func lastAtOrBefore(points []measurement.Point, t time.Time) (time.Time, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].Timestamp.After(t) {
			return points[i].Timestamp, true
		}
	}
	return time.Time{}, false
}

// AlignedRow is one reference-timestamp row of the aligned output: the
// reference group's own sample at that instant, plus every non-reference
// group's value linearly interpolated to the same instant.
type AlignedRow[K comparable] struct {
	Timestamp time.Time
	Reference measurement.Point
	Values    map[K]float64
}

// InterpolateAll extracts the reference series restricted to the common
// range, then for every other group linearly interpolates at each
// reference timestamp, returning one AlignedRow per reference sample.
// Returns ok=false when ExtractCommonRange does.
func (g *GroupedBuffer[K]) InterpolateAll(refKey K) ([]AlignedRow[K], bool) {
	start, end, ok := g.ExtractCommonRange(refKey)
	if !ok {
		return nil, false
	}

	ref := g.groups[refKey]
	dedupByKey := make(map[K][]measurement.Point, len(g.groups))
	for k, ts := range g.groups {
		dedupByKey[k] = dedupTakeLast(ts.Points)
	}

	var rows []AlignedRow[K]
	for _, p := range dedupTakeLast(ref.Points) {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		row := AlignedRow[K]{Timestamp: p.Timestamp, Reference: p, Values: make(map[K]float64, len(g.groups))}
		for k, dedup := range dedupByKey {
			if k == refKey {
				continue
			}
			v, ok := interpolateAt(dedup, p.Timestamp)
			if !ok {
				continue
			}
			row.Values[k] = v
		}
		rows = append(rows, row)
	}
	return rows, true
}
