// Package membacking provides the single contiguous, growable byte
// region the tiered allocator carves its arenas out of.
//
// It generalizes Zyuery-ShmMaster's internal/mmap package (mmap_unix.go,
// mmap_windows.go), which maps a *file* once at a fixed size, into a
// region that is reserved once at its hard maximum and then *committed*
// page by page as the allocator grows — a reserve-and-commit strategy
// so that handles (plain offsets) stay valid across growth without
// ever relocating the backing memory.
package membacking

import "fmt"

// PageSize is the WebAssembly-style page granularity growth happens
// in, matching the host's grow_pages(n) contract.
const PageSize = 64 * 1024

// MaxPages is the hard cap on total backing memory: 65536 pages is
// exactly 4 GiB.
const MaxPages = 65536

// MaxBytes is MaxPages * PageSize.
const MaxBytes = uint64(MaxPages) * PageSize

// Region is a reserve-then-commit backing store: bytes() returns the
// currently committed prefix of a region reserved once, up front, at
// its eventual maximum size.
type Region struct {
	impl regionImpl
}

// regionImpl is the platform-specific half: reserve the address space
// and commit/decommit pages within it. Implemented by region_unix.go,
// region_windows.go and region_fallback.go.
type regionImpl interface {
	bytes() []byte
	committed() uint64
	reserved() uint64
	growBy(extraBytes uint64) bool
	close() error
}

// New reserves a region capable of growing up to maxBytes (rounded up
// to a whole number of pages, capped at MaxBytes) and commits
// initialBytes of it immediately.
func New(initialBytes, maxBytes uint64) (*Region, error) {
	if maxBytes > MaxBytes {
		maxBytes = MaxBytes
	}
	maxPages := pagesFor(maxBytes)
	initialPages := pagesFor(initialBytes)
	if initialPages > maxPages {
		return nil, fmt.Errorf("membacking: initial size exceeds max (%d > %d pages)", initialPages, maxPages)
	}
	impl, err := newRegionImpl(maxPages)
	if err != nil {
		return nil, err
	}
	if initialPages > 0 && !impl.growBy(uint64(initialPages)*PageSize) {
		_ = impl.close()
		return nil, fmt.Errorf("membacking: failed to commit initial %d pages", initialPages)
	}
	return &Region{impl: impl}, nil
}

func pagesFor(bytes uint64) uint32 {
	pages := (bytes + PageSize - 1) / PageSize
	if pages > MaxPages {
		pages = MaxPages
	}
	return uint32(pages)
}

// Bytes returns the currently committed slice; len() == CommittedBytes(),
// cap() may exceed it. Safe to hold onto only until the next GrowBy:
// growth never moves existing bytes, but it can extend len, so a
// slice captured before a grow will not observe memory committed
// afterwards.
func (r *Region) Bytes() []byte { return r.impl.bytes() }

// CommittedBytes returns the number of bytes currently backed by real
// memory (as opposed to merely reserved address space).
func (r *Region) CommittedBytes() uint64 { return r.impl.committed() }

// ReservedBytes returns the hard ceiling this region can grow to.
func (r *Region) ReservedBytes() uint64 { return r.impl.reserved() }

// CommittedPages returns CommittedBytes() expressed in whole pages.
func (r *Region) CommittedPages() uint32 { return uint32(r.impl.committed() / PageSize) }

// GrowBy commits nPages additional pages, returning the new total page
// count on success or (0, false) if the grow would exceed the
// region's reservation. This is the host-facing grow_pages(n)
// capability.
func (r *Region) GrowBy(nPages uint32) (newTotalPages uint32, ok bool) {
	if nPages == 0 {
		return r.CommittedPages(), true
	}
	if !r.impl.growBy(uint64(nPages) * PageSize) {
		return 0, false
	}
	return r.CommittedPages(), true
}

// Close releases the reserved address space. Only meaningful on
// native targets; a no-op on the sandboxed linear-memory target.
func (r *Region) Close() error { return r.impl.close() }
