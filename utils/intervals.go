package utils

import (
	"sort"
)

// TimeInterval is a closed span of POSIX seconds.
type TimeInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (t TimeInterval) Duration() float64 {
	return t.End - t.Start
}

// Contains reports whether ts lies within the interval, bounds included.
func (t TimeInterval) Contains(ts float64) bool {
	return ts >= t.Start && ts <= t.End
}

func sortByStart(in []TimeInterval) []TimeInterval {
	out := make([]TimeInterval, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// FuseNeighborIntervals joins intervals where one ends exactly where the next
// starts. Intervals are assumed not to overlap.
func FuseNeighborIntervals(intervals []TimeInterval) []TimeInterval {
	if len(intervals) == 0 {
		return []TimeInterval{}
	}
	sorted := sortByStart(intervals)
	out := []TimeInterval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &out[len(out)-1]
		if last.End == cur.Start {
			last.End = cur.End
			continue
		}
		out = append(out, cur)
	}
	return out
}

// MergeIntervals returns the union of intervals, which may overlap.
func MergeIntervals(intervals []TimeInterval) []TimeInterval {
	if len(intervals) == 0 {
		return []TimeInterval{}
	}
	sorted := sortByStart(intervals)
	out := []TimeInterval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &out[len(out)-1]
		if cur.Start <= last.End {
			if cur.End > last.End {
				last.End = cur.End
			}
			continue
		}
		out = append(out, cur)
	}
	return out
}

// TrimPOISegments clips every interval to poi and drops the ones outside it.
func TrimPOISegments(intervals []TimeInterval, poi TimeInterval) []TimeInterval {
	out := []TimeInterval{}
	for _, in := range intervals {
		if in.Start > poi.End || in.End < poi.Start {
			continue
		}
		trimmed := in
		if trimmed.Start < poi.Start {
			trimmed.Start = poi.Start
		}
		if trimmed.End > poi.End {
			trimmed.End = poi.End
		}
		out = append(out, trimmed)
	}
	return out
}

// SplitInterval cuts interval into consecutive chunks of at most size seconds.
func SplitInterval(interval TimeInterval, size float64) []TimeInterval {
	if size <= 0 || interval.Duration() <= size {
		return []TimeInterval{interval}
	}
	var out []TimeInterval
	for start := interval.Start; start < interval.End; start += size {
		end := start + size
		if end > interval.End {
			end = interval.End
		}
		out = append(out, TimeInterval{Start: start, End: end})
	}
	return out
}
