//go:build windows

package membacking

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsRegion mirrors unixRegion's reserve-then-commit scheme using
// VirtualAlloc's MEM_RESERVE (address space only) followed by
// MEM_COMMIT on the growing prefix, in place of mmap/mprotect.
// Zyuery-ShmMaster's mmap_windows.go stubs mmap out entirely
// (ErrNotSupported); WALLOC needs a real native Windows target, so
// this implements the VirtualAlloc/VirtualFree equivalent instead of
// carrying that stub forward.
type windowsRegion struct {
	base           uintptr
	reservedBytes  uint64
	committedBytes atomic.Uint64
	growMu         sync.Mutex
}

func newRegionImpl(maxPages uint32) (regionImpl, error) {
	size := uintptr(uint64(maxPages) * PageSize)
	if size == 0 {
		size = uintptr(PageSize)
	}
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, err
	}
	return &windowsRegion{base: addr, reservedBytes: uint64(size)}, nil
}

func (r *windowsRegion) bytes() []byte {
	n := r.committedBytes.Load()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(r.base)), n)
}

func (r *windowsRegion) committed() uint64 { return r.committedBytes.Load() }
func (r *windowsRegion) reserved() uint64  { return r.reservedBytes }

func (r *windowsRegion) growBy(extraBytes uint64) bool {
	r.growMu.Lock()
	defer r.growMu.Unlock()

	cur := r.committedBytes.Load()
	next := cur + extraBytes
	if next > r.reservedBytes {
		return false
	}
	commitAddr := r.base + uintptr(cur)
	_, err := windows.VirtualAlloc(commitAddr, uintptr(extraBytes), windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return false
	}
	r.committedBytes.Store(next)
	return true
}

func (r *windowsRegion) close() error {
	if r.base == 0 {
		return nil
	}
	err := windows.VirtualFree(r.base, 0, windows.MEM_RELEASE)
	r.base = 0
	return err
}
