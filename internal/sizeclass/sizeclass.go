// Package sizeclass implements the eight power-of-two buckets WALLOC
// uses to route small allocations back through the arena free lists.
package sizeclass

import "math/bits"

// NumClasses is the number of size-classed free lists each arena keeps.
const NumClasses = 8

// MinSize is the smallest size class (bytes).
const MinSize = 32

// MaxSize is the largest size class (bytes); requests above this bypass
// the free lists entirely and are always served from the bump cursor.
const MaxSize = 4096

// sizes holds the upper bound, in bytes, of each of the 8 classes.
var sizes = [NumClasses]uint64{32, 64, 128, 256, 512, 1024, 2048, 4096}

// Of classifies n into one of the 8 classes, returning the class index,
// the rounded-up class size, and whether n is oversize (n > MaxSize,
// bypasses free lists, always bump-allocated at its exact size).
//
// class = clamp(ceil_log2(max(n, 32)) - 5, 0, 7)
func Of(n uint64) (class int, classSize uint64, oversize bool) {
	if n > MaxSize {
		return 0, 0, true
	}
	v := n
	if v < MinSize {
		v = MinSize
	}
	// ceil_log2(v): bits.Len64(v-1) for v a power of two gives log2(v)
	// exactly; for non-powers it gives the next integer up, which is
	// the ceil() behaviour the spec calls for.
	log2 := bits.Len64(v - 1)
	c := log2 - 5
	if c < 0 {
		c = 0
	}
	if c > NumClasses-1 {
		c = NumClasses - 1
	}
	return c, sizes[c], false
}

// Size returns the byte size of class c.
func Size(c int) uint64 {
	return sizes[c]
}
