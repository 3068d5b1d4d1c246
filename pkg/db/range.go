package db

import (
	"fmt"
	"math"
)

// Range is an inclusive interval of ids. A nil bound is open.
//
// Bounds are numeric regardless of a table's direction: on a descending table
// Between(3, 5) yields 5, 4, 3.
type Range struct {
	Lo, Hi *int64
}

// All is the unbounded range.
func All() Range { return Range{} }

func Between(lo, hi int64) Range { return Range{Lo: &lo, Hi: &hi} }

func From(lo int64) Range { return Range{Lo: &lo} }

func To(hi int64) Range { return Range{Hi: &hi} }

// Bounds returns the range as closed numeric limits.
func (r Range) Bounds() (lo, hi int64) {
	lo, hi = math.MinInt64, math.MaxInt64
	if r.Lo != nil {
		lo = *r.Lo
	}
	if r.Hi != nil {
		hi = *r.Hi
	}
	return lo, hi
}

// Empty reports whether no id can fall inside r.
func (r Range) Empty() bool {
	lo, hi := r.Bounds()
	return lo > hi
}

func (r Range) Contains(id int64) bool {
	lo, hi := r.Bounds()
	return id >= lo && id <= hi
}

func (r Range) String() string {
	lo, hi := "-inf", "+inf"
	if r.Lo != nil {
		lo = fmt.Sprint(*r.Lo)
	}
	if r.Hi != nil {
		hi = fmt.Sprint(*r.Hi)
	}
	return "[" + lo + ", " + hi + "]"
}
