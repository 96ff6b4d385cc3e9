// Package engine implements the tiered allocator: three arenas carved
// out of one growable membacking.Region, dispatched by tier or by
// handle-offset range, with the bulk memory operations and the
// capacity-exceeded growth path that handles backing-memory growth.
//
// Grounded on Zyuery-ShmMaster's core/db.go, which owns a *Segment set
// and routes Get/Set/Delete to the right one by key hash; engine.Engine
// plays the same owning/routing role over arenas addressed by handle
// range instead of key hash.
package engine

import (
	"errors"
	"sync"

	"walloc/internal/arena"
	"walloc/internal/simdcopy"
	"walloc/internal/sizeclass"
)

const (
	numTiers = 3

	topShare    = 50
	middleShare = 30
	bottomShare = 20

	topAlignment    = 128
	middleAlignment = 64
	bottomAlignment = 8
)

// pageGrower is the narrow view Engine needs of the backing region:
// grow it by whole pages. Satisfied by *membacking.Region; tests
// substitute a capacity-limited fake so they don't need to map 4 GiB
// of real address space.
type pageGrower interface {
	Bytes() []byte
	CommittedBytes() uint64
	ReservedBytes() uint64
	GrowBy(nPages uint32) (newTotalPages uint32, ok bool)
}

const pageSize = 64 * 1024

// regionMemory adapts a pageGrower to arena.Memory.
type regionMemory struct{ r pageGrower }

func (m regionMemory) Bytes() []byte { return m.r.Bytes() }

// Engine owns the three tiers and the shared backing region they are
// carved from.
type Engine struct {
	region pageGrower
	mem    regionMemory
	tiers  [numTiers]*arena.Arena

	growMu sync.Mutex
}

// New carves three arenas (Top 50% / Middle 30% / Bottom 20%) out of
// region's currently committed bytes.
func New(region pageGrower) *Engine {
	e := &Engine{region: region, mem: regionMemory{region}}

	total := region.CommittedBytes()
	topCap := alignDown(total*topShare/100, topAlignment)
	middleCap := alignDown(total*middleShare/100, middleAlignment)
	bottomCap := total - topCap - middleCap

	e.tiers[TierTop] = arena.New(e.mem, 0, topCap, topAlignment)
	e.tiers[TierMiddle] = arena.New(e.mem, topCap, middleCap, middleAlignment)
	e.tiers[TierBottom] = arena.New(e.mem, topCap+middleCap, bottomCap, bottomAlignment)
	return e
}

// Tier identifiers, mirroring walloc.Tier without importing the root
// package (which imports this one).
type Tier uint8

const (
	TierTop Tier = iota
	TierMiddle
	TierBottom
)

func alignDown(v, align uint64) uint64 { return v &^ (align - 1) }

func (e *Engine) arenaFor(t Tier) *arena.Arena { return e.tiers[t] }

// arenaForHandle recovers the owning arena from a handle's offset
// range: tier identity is implicit in which arena's range a handle
// falls into, never tagged in the handle itself.
func (e *Engine) arenaForHandle(h uint64) (*arena.Arena, bool) {
	for _, a := range e.tiers {
		if a.Contains(h) {
			return a, true
		}
	}
	return nil, false
}

const nullOffset = ^uint64(0)

// tailTier is the tier laid out last in the backing region (highest
// base offset). Because backing memory only ever grows by appending
// bytes at the global tail, only this tier can have its capacity
// extended in place without the new range overlapping its neighbor;
// growing any other tier's capacity field would make its logical
// extent collide with the tier that physically follows it. Growth
// therefore always targets the tail tier, never whichever tier asked.
const tailTier = TierBottom

// Allocate carves size bytes out of tier t. If t is full and is the
// tail tier, the backing region is grown and t's capacity extended to
// cover the new bytes before retrying. A full non-tail tier cannot be
// grown in place — there is no cross-tier reallocation — and fails
// immediately.
func (e *Engine) Allocate(size uint64, t Tier) uint64 {
	a := e.arenaFor(t)
	off, ok, shortfall := a.Allocate(size, 0)
	if ok {
		return off
	}
	if t != tailTier || !e.grow(shortfall) {
		return nullOffset
	}
	off, ok, _ = a.Allocate(size, 0)
	if !ok {
		return nullOffset
	}
	return off
}

// AllocateBatch allocates each (size, tier) request independently,
// leaving earlier successes intact even if a later request fails.
func (e *Engine) AllocateBatch(sizes []uint64, tiers []Tier) []uint64 {
	out := make([]uint64, len(sizes))
	for i := range sizes {
		out[i] = e.Allocate(sizes[i], tiers[i])
	}
	return out
}

// Deallocate returns the size-byte block at handle to its owning
// arena's free list. Advisory: the caller is free to never call it,
// at the cost of never reusing that block.
func (e *Engine) Deallocate(handle uint64, size uint64) bool {
	a, ok := e.arenaForHandle(handle)
	if !ok {
		return false
	}
	return a.Deallocate(handle, size)
}

// grow asks the backing region for enough additional pages to cover
// shortfall and extends the tail tier's capacity by however much got
// committed. Always targets tailTier; see its doc comment.
func (e *Engine) grow(shortfall uint64) bool {
	e.growMu.Lock()
	defer e.growMu.Unlock()

	// Another goroutine may have already grown enough while we waited
	// for the lock; re-check isn't needed here since Allocate retries
	// unconditionally after grow() returns, and a redundant grow is
	// harmless (capacity only ever increases).
	pages := uint32((shortfall + pageSize - 1) / pageSize)
	if pages == 0 {
		pages = 1
	}

	before := e.region.CommittedBytes()
	_, ok := e.region.GrowBy(pages)
	if !ok {
		return false
	}
	after := e.region.CommittedBytes()
	a := e.arenaFor(tailTier)
	a.ExtendCapacity(a.Capacity() + (after - before))
	return true
}

// Read copies length bytes starting at handle into a fresh buffer.
func (e *Engine) Read(handle uint64, length uint64) ([]byte, error) {
	a, ok := e.arenaForHandle(handle)
	if !ok {
		return nil, errInvalidHandle
	}
	local := handle - a.BaseOffset()
	if local+length > a.Capacity() {
		return nil, errOversize
	}
	buf := e.mem.Bytes()
	out := make([]byte, length)
	simdcopy.Copy(out, buf[handle:handle+length])
	return out, nil
}

// Write copies data into backing memory starting at handle.
func (e *Engine) Write(handle uint64, data []byte) error {
	a, ok := e.arenaForHandle(handle)
	if !ok {
		return errInvalidHandle
	}
	local := handle - a.BaseOffset()
	length := uint64(len(data))
	if local+length > a.Capacity() {
		return errOversize
	}
	buf := e.mem.Bytes()
	simdcopy.Copy(buf[handle:handle+length], data)
	return nil
}

// MemoryView returns a non-owning slice into backing memory. Its
// lifetime is bounded by the caller contract: it must not be retained
// across any operation that could grow memory.
func (e *Engine) MemoryView(handle uint64, length uint64) ([]byte, error) {
	a, ok := e.arenaForHandle(handle)
	if !ok {
		return nil, errInvalidHandle
	}
	local := handle - a.BaseOffset()
	if local+length > a.Capacity() {
		return nil, errOversize
	}
	buf := e.mem.Bytes()
	return buf[handle : handle+length], nil
}

// CopyTriple is one (src, dst, length) request to BulkCopy.
type CopyTriple struct {
	Src, Dst uint64
	Length   uint64
}

// BulkCopy executes each triple in list order using the vectorized
// copy path. Ranges must not overlap within a single triple;
// overlapping ranges across triples are permitted.
func (e *Engine) BulkCopy(triples []CopyTriple) error {
	for _, c := range triples {
		srcArena, ok := e.arenaForHandle(c.Src)
		if !ok {
			return errInvalidHandle
		}
		dstArena, ok := e.arenaForHandle(c.Dst)
		if !ok {
			return errInvalidHandle
		}
		if c.Src-srcArena.BaseOffset()+c.Length > srcArena.Capacity() {
			return errOversize
		}
		if c.Dst-dstArena.BaseOffset()+c.Length > dstArena.Capacity() {
			return errOversize
		}
		buf := e.mem.Bytes()
		simdcopy.Copy(buf[c.Dst:c.Dst+c.Length], buf[c.Src:c.Src+c.Length])
	}
	return nil
}

// ResetTier empties tier t: cursor and free lists clear, counters
// zero, high-water mark preserved.
func (e *Engine) ResetTier(t Tier) bool {
	e.arenaFor(t).Reset()
	return true
}

// FastCompactTier rewinds tier t's cursor to preserveBytes without
// copying any bytes.
func (e *Engine) FastCompactTier(t Tier, preserveBytes uint64) bool {
	return e.arenaFor(t).FastCompact(preserveBytes)
}

// TierOf recovers the owning tier of a handle, or (0, false) if the
// handle belongs to none of the three arenas.
func (e *Engine) TierOf(handle uint64) (Tier, bool) {
	for i, a := range e.tiers {
		if a.Contains(handle) {
			return Tier(i), true
		}
	}
	return 0, false
}

// LocalOffset returns handle's offset within its owning arena (the
// value the asset registry needs to compare against the arena's
// current cursor to decide whether an evicted region is the tail).
func (e *Engine) LocalOffset(handle uint64) (uint64, bool) {
	a, ok := e.arenaForHandle(handle)
	if !ok {
		return 0, false
	}
	return handle - a.BaseOffset(), true
}

// TierStats is one tier's contribution to Stats.
type TierStats struct {
	Name           string `json:"name"`
	Used           uint64 `json:"used"`
	Capacity       uint64 `json:"capacity"`
	HighWaterMark  uint64 `json:"highWaterMark"`
	TotalAllocated uint64 `json:"totalAllocated"`
	MemorySaved    uint64 `json:"memorySaved"`
}

// Stats is the tiered allocator's full diagnostic snapshot.
type Stats struct {
	AllocatorType     string      `json:"allocatorType"`
	Pages             uint64      `json:"pages"`
	RawMemorySize     uint64      `json:"rawMemorySize"`
	TotalSize         uint64      `json:"totalSize"`
	TotalUsed         uint64      `json:"totalUsed"`
	MemoryUtilization float64     `json:"memoryUtilization"`
	Tiers             []TierStats `json:"tiers"`
}

var tierNames = [numTiers]string{"render", "scene", "entity"}

// Stats snapshots every tier's counters into the exact shape the host
// API expects back from memory_stats().
func (e *Engine) Stats() Stats {
	s := Stats{
		AllocatorType: "walloc",
		Pages:         uint64(e.region.CommittedBytes() / pageSize),
		RawMemorySize: e.region.ReservedBytes(),
		Tiers:         make([]TierStats, numTiers),
	}
	var totalSize, totalUsed uint64
	for i, a := range e.tiers {
		st := a.Stats()
		s.Tiers[i] = TierStats{
			Name:           tierNames[i],
			Used:           st.Used,
			Capacity:       st.Capacity,
			HighWaterMark:  st.HighWaterMark,
			TotalAllocated: st.TotalAllocated,
			MemorySaved:    st.MemorySaved,
		}
		totalSize += st.Capacity
		totalUsed += st.Used
	}
	s.TotalSize = totalSize
	s.TotalUsed = totalUsed
	if totalSize > 0 {
		s.MemoryUtilization = float64(totalUsed) / float64(totalSize) * 100
	}
	return s
}

var (
	errInvalidHandle = errors.New("engine: invalid handle")
	errOversize      = errors.New("engine: oversize")
)

// ErrInvalidHandle and ErrOversize let callers (the root walloc
// package) compare against these without duplicating sentinel values.
var (
	ErrInvalidHandle = errInvalidHandle
	ErrOversize      = errOversize
)

// SizeClassOf exposes sizeclass.Of for callers outside this package
// (the root walloc package's typed-memory helpers).
func SizeClassOf(n uint64) (class int, classSize uint64, oversize bool) {
	return sizeclass.Of(n)
}
