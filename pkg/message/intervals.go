// Package message implements fragmentation and reassembly of logical
// messages into MTU-sized fragments.
//
// Outbound messages are tracked as SendMessage values whose delivered
// byte ranges advance as acknowledgements arrive; inbound fragments are
// collected by an Assembler keyed on fragmentation id, which also retains
// recently-completed reliable ids to suppress duplicate delivery after
// retransmissions.
package message

import "sort"

type span struct {
	start, end int
}

// Intervals is an ordered, merged set of byte ranges over [0, size).
//
// A zero-size interval set is complete only after an explicit Mark(0, 0):
// empty messages still travel as exactly one fragment covering [0, 0).
type Intervals struct {
	size       int
	spans      []span
	zeroMarked bool
}

// NewIntervals creates an empty interval set over [0, size).
func NewIntervals(size int) *Intervals {
	return &Intervals{size: size}
}

// Clone returns an independent copy.
func (iv *Intervals) Clone() *Intervals {
	c := &Intervals{
		size:       iv.size,
		zeroMarked: iv.zeroMarked,
	}
	if len(iv.spans) > 0 {
		c.spans = make([]span, len(iv.spans))
		copy(c.spans, iv.spans)
	}
	return c
}

// Size returns the extent of the set.
func (iv *Intervals) Size() int {
	return iv.size
}

// Mark records [start, end) as covered, merging with existing spans.
// Empty ranges are ignored except for the zero-size case, where Mark(0, 0)
// records the empty message as seen.
func (iv *Intervals) Mark(start, end int) {
	if iv.size == 0 {
		if start == 0 && end == 0 {
			iv.zeroMarked = true
		}
		return
	}
	if start >= end {
		return
	}

	// Insert preserving start order, then merge intersecting neighbours.
	i := sort.Search(len(iv.spans), func(i int) bool {
		return iv.spans[i].start >= start
	})
	iv.spans = append(iv.spans, span{})
	copy(iv.spans[i+1:], iv.spans[i:])
	iv.spans[i] = span{start, end}

	merged := iv.spans[:0]
	for _, s := range iv.spans {
		if n := len(merged); n > 0 && s.start <= merged[n-1].end {
			if s.end > merged[n-1].end {
				merged[n-1].end = s.end
			}
		} else {
			merged = append(merged, s)
		}
	}
	iv.spans = merged
}

// Complete reports whether the whole of [0, size) is covered.
func (iv *Intervals) Complete() bool {
	if iv.size == 0 {
		return iv.zeroMarked
	}
	return len(iv.spans) == 1 && iv.spans[0].start == 0 && iv.spans[0].end == iv.size
}

// FirstGap returns the first uncovered range, if any. For a zero-size set
// the pseudo-gap [0, 0) is reported until Mark(0, 0) is called.
func (iv *Intervals) FirstGap() (start, end int, ok bool) {
	if iv.size == 0 {
		if iv.zeroMarked {
			return 0, 0, false
		}
		return 0, 0, true
	}
	if len(iv.spans) == 0 {
		return 0, iv.size, true
	}
	if iv.spans[0].start > 0 {
		return 0, iv.spans[0].start, true
	}
	for i := 0; i+1 < len(iv.spans); i++ {
		if iv.spans[i].end < iv.spans[i+1].start {
			return iv.spans[i].end, iv.spans[i+1].start, true
		}
	}
	if last := iv.spans[len(iv.spans)-1]; last.end < iv.size {
		return last.end, iv.size, true
	}
	return 0, 0, false
}

// intersect returns the portions of [start, end) already covered.
func (iv *Intervals) intersect(start, end int) []span {
	var out []span
	for _, s := range iv.spans {
		lo, hi := s.start, s.end
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		if lo < hi {
			out = append(out, span{lo, hi})
		}
	}
	return out
}
