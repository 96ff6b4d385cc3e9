//go:build unix

package membacking

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// unixRegion reserves the full address range up front with PROT_NONE
// (no physical memory backing it) and commits pages on demand with
// mprotect, keeping handle offsets stable across growth since nothing
// ever relocates. Generalizes Zyuery-ShmMaster's
// internal/mmap/mmap_unix.go (file-backed MAP_SHARED) to an anonymous,
// growable MAP_PRIVATE mapping.
type unixRegion struct {
	data      []byte // len == reserved bytes, always; committed tracks the usable prefix
	committedBytes atomic.Uint64
	growMu    sync.Mutex
}

func newRegionImpl(maxPages uint32) (regionImpl, error) {
	size := int(uint64(maxPages) * PageSize)
	if size == 0 {
		size = int(PageSize)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return &unixRegion{data: data}, nil
}

func (r *unixRegion) bytes() []byte {
	return r.data[:r.committedBytes.Load()]
}

func (r *unixRegion) committed() uint64 { return r.committedBytes.Load() }
func (r *unixRegion) reserved() uint64  { return uint64(len(r.data)) }

func (r *unixRegion) growBy(extraBytes uint64) bool {
	r.growMu.Lock()
	defer r.growMu.Unlock()

	cur := r.committedBytes.Load()
	next := cur + extraBytes
	if next > uint64(len(r.data)) {
		return false
	}
	if err := unix.Mprotect(r.data[cur:next], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return false
	}
	r.committedBytes.Store(next)
	return true
}

func (r *unixRegion) close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
