// Package bucket splits large indexed containers into contiguous sub-ranges
// of at most a fixed number of elements, so no element fetch ever
// materializes more than that many children at once.
package bucket

import (
	"fmt"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

// DefaultSize is the largest number of elements in one bucket
const DefaultSize = 100

// Range is an inclusive index range [Start, End]
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of indices covered
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// Label is the preview text of a bucket node
func (r Range) Label() string {
	return fmt.Sprintf("[%d … %d]", r.Start, r.End)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// PlanKind says how a container's children are fetched
type PlanKind int

const (
	Direct PlanKind = iota
	Buckets
)

func (k PlanKind) String() string {
	if k == Buckets {
		return "buckets"
	}
	return "direct"
}

// Plan is the fetch shape for one expansion
type Plan struct {
	Kind   PlanKind
	Ranges []Range
}

// Planner decides between direct fetches and bucket nodes
type Planner struct {
	Size int
}

// NewPlanner creates a planner; size <= 1 falls back to DefaultSize
func NewPlanner(size int) Planner {
	if size <= 1 {
		size = DefaultSize
	}
	return Planner{Size: size}
}

// PlanFetch decides the fetch shape for a whole value. Only arrays (typed
// arrays included) with a declared length above the bucket size are split.
func (p Planner) PlanFetch(v value.RemoteValue) Plan {
	if v.Kind != value.KindArray || !v.HasLength || v.Length <= p.size() {
		return Plan{Kind: Direct}
	}
	return p.PlanRange(Range{Start: 0, End: v.Length - 1})
}

// PlanRange applies the same policy to a sub-range, which is how a bucket
// node expands. A range within the bucket size is fetched directly; a longer
// one splits again into consecutive ranges of at most size elements.
func (p Planner) PlanRange(r Range) Plan {
	size := p.size()
	n := r.Len()
	if n <= size {
		return Plan{Kind: Direct}
	}

	ranges := make([]Range, 0, (n+size-1)/size)
	for start := r.Start; start <= r.End; start += size {
		end := start + size - 1
		if end > r.End {
			end = r.End
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return Plan{Kind: Buckets, Ranges: ranges}
}

func (p Planner) size() int {
	if p.Size <= 1 {
		return DefaultSize
	}
	return p.Size
}
