// Package arena implements a single lifetime-segregated bump arena:
// an atomic monotonic cursor plus eight size-classed intrusive free
// lists, carved out of a shared growable backing region.
//
// The design generalizes the offset-addressed free lists kept by
// Zyuery-ShmMaster's segment.Segment (core/segment.go: the free/truth
// maps keyed by size class) from a mutex-guarded Go map to a lock-free
// intrusive list living directly in the backing bytes, since WALLOC's
// arenas must be safe for unsynchronized concurrent callers instead of
// the teacher's single-writer-mutex segment.
package arena

import (
	"encoding/binary"
	"sync/atomic"

	"walloc/internal/sizeclass"
)

// nullOffset is the free-list "no next" sentinel, sharing its bit
// pattern with the handle null value (all-ones) by design.
const nullOffset = ^uint64(0)

// freeNodeSize is the number of bytes an intrusive free-list node
// borrows from the start of a freed block to store its "next" offset.
const freeNodeSize = 8

// Memory is the narrow view an Arena needs into the shared backing
// region: raw read/write access for intrusive free-list bookkeeping.
// internal/membacking.Region and internal/engine's test fakes both
// satisfy it.
type Memory interface {
	Bytes() []byte
}

// Arena is a bump allocator over [BaseOffset, BaseOffset+Capacity)
// of some shared Memory, with size-classed free lists for recycling.
type Arena struct {
	mem Memory

	baseOffset uint64
	alignment  uint64

	capacity  atomic.Uint64
	head      atomic.Uint64
	freelists [sizeclass.NumClasses]atomic.Uint64

	highWaterMark  atomic.Uint64
	totalAllocated atomic.Uint64
	memorySaved    atomic.Uint64
}

// New constructs an arena over [baseOffset, baseOffset+capacity) of
// mem, rounding bump allocations up to at least alignment bytes.
func New(mem Memory, baseOffset, capacity, alignment uint64) *Arena {
	a := &Arena{mem: mem, baseOffset: baseOffset, alignment: alignment}
	a.capacity.Store(capacity)
	for i := range a.freelists {
		a.freelists[i].Store(nullOffset)
	}
	return a
}

// BaseOffset returns the arena's fixed starting offset in the backing
// region.
func (a *Arena) BaseOffset() uint64 { return a.baseOffset }

// Capacity returns the arena's current byte capacity.
func (a *Arena) Capacity() uint64 { return a.capacity.Load() }

// Contains reports whether the global offset h falls inside this
// arena's current extent.
func (a *Arena) Contains(h uint64) bool {
	cap := a.capacity.Load()
	return h >= a.baseOffset && h < a.baseOffset+cap
}

// ExtendCapacity grows the arena's capacity to newCapacity, which must
// be >= the current capacity. Called by the tiered allocator after a
// successful backing-memory grow.
func (a *Arena) ExtendCapacity(newCapacity uint64) {
	for {
		cur := a.capacity.Load()
		if newCapacity <= cur {
			return
		}
		if a.capacity.CompareAndSwap(cur, newCapacity) {
			return
		}
	}
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// Allocate carves out size bytes aligned to at least align (and at
// least the arena's own alignment class). It returns the global
// offset of the allocation, whether it succeeded, and — on failure —
// how many additional bytes of capacity would have been required, so
// the caller can size a backing-memory grow request.
func (a *Arena) Allocate(size, align uint64) (offset uint64, ok bool, shortfall uint64) {
	if align < a.alignment {
		align = a.alignment
	}

	if size == 0 {
		// A zero-length request is always satisfiable: it borrows no
		// space and simply hands back the current cursor position,
		// unaligned and unrecorded. It never touches the free lists.
		return a.baseOffset + a.head.Load(), true, 0
	}

	class, classSize, oversize := sizeclass.Of(size)
	allocSize := size
	if !oversize {
		allocSize = classSize
		if off, hit := a.popFreeList(class); hit {
			a.memorySaved.Add(classSize)
			return off, true, 0
		}
	}

	for {
		cur := a.head.Load()
		aligned := alignUp(cur, align)
		newHead := aligned + allocSize
		capNow := a.capacity.Load()
		if newHead > capNow {
			return 0, false, newHead - capNow
		}
		if a.head.CompareAndSwap(cur, newHead) {
			a.totalAllocated.Add(allocSize)
			for {
				hwm := a.highWaterMark.Load()
				if newHead <= hwm || a.highWaterMark.CompareAndSwap(hwm, newHead) {
					break
				}
			}
			return a.baseOffset + aligned, true, 0
		}
	}
}

// Deallocate returns the block at handle (size bytes) to the
// appropriate free list. Oversize requests and handles outside this
// arena are rejected; it never panics or corrupts state on bad input.
func (a *Arena) Deallocate(handle uint64, size uint64) bool {
	if handle == nullOffset || !a.Contains(handle) {
		return false
	}
	class, _, oversize := sizeclass.Of(size)
	if oversize {
		return false
	}
	localOffset := handle - a.baseOffset
	a.pushFreeList(class, localOffset)
	return true
}

func (a *Arena) popFreeList(class int) (offset uint64, ok bool) {
	list := &a.freelists[class]
	for {
		head := list.Load()
		if head == nullOffset {
			return 0, false
		}
		global := a.baseOffset + head
		next := binary.LittleEndian.Uint64(a.mem.Bytes()[global : global+8])
		if list.CompareAndSwap(head, next) {
			return global, true
		}
	}
}

func (a *Arena) pushFreeList(class int, localOffset uint64) {
	list := &a.freelists[class]
	buf := a.mem.Bytes()
	global := a.baseOffset + localOffset
	for {
		head := list.Load()
		binary.LittleEndian.PutUint64(buf[global:global+8], head)
		if list.CompareAndSwap(head, localOffset) {
			return
		}
	}
}

// Reset returns the arena to its empty state: the bump cursor and all
// free-list heads are cleared and the allocation counters zeroed. The
// high-water mark, a diagnostic record of the peak, survives.
func (a *Arena) Reset() {
	a.head.Store(0)
	for i := range a.freelists {
		a.freelists[i].Store(nullOffset)
	}
	a.totalAllocated.Store(0)
	a.memorySaved.Store(0)
}

// FastCompact moves the bump cursor to preserveBytes, invalidating any
// allocation at or beyond it and clearing the free lists (whose nodes
// may now point past the new cursor). It never copies bytes, so the
// preserved prefix is byte-identical afterwards. It fails only if
// preserveBytes exceeds the arena's capacity.
func (a *Arena) FastCompact(preserveBytes uint64) bool {
	if preserveBytes > a.capacity.Load() {
		return false
	}
	a.head.Store(preserveBytes)
	for i := range a.freelists {
		a.freelists[i].Store(nullOffset)
	}
	return true
}

// Usage returns the current bump-cursor position (bytes in use,
// ignoring anything parked on a free list).
func (a *Arena) Usage() uint64 { return a.head.Load() }

// Stats is the set of diagnostic counters a single arena reports.
type Stats struct {
	Used           uint64
	Capacity       uint64
	HighWaterMark  uint64
	TotalAllocated uint64
	MemorySaved    uint64
}

// Stats snapshots the arena's counters.
func (a *Arena) Stats() Stats {
	return Stats{
		Used:           a.head.Load(),
		Capacity:       a.capacity.Load(),
		HighWaterMark:  a.highWaterMark.Load(),
		TotalAllocated: a.totalAllocated.Load(),
		MemorySaved:    a.memorySaved.Load(),
	}
}
