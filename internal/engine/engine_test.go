package engine

import (
	"sort"
	"sync"
	"testing"
)

const testPageSize = 64 * 1024

// fakeRegion is a capacity-limited pageGrower fake so tests don't need
// to map real address space.
type fakeRegion struct {
	data      []byte
	committed uint64
	maxPages  uint32
}

func newFakeRegion(initialPages, maxPages uint32) *fakeRegion {
	r := &fakeRegion{maxPages: maxPages}
	r.data = make([]byte, uint64(maxPages)*testPageSize)
	r.committed = uint64(initialPages) * testPageSize
	return r
}

func (r *fakeRegion) Bytes() []byte            { return r.data[:r.committed] }
func (r *fakeRegion) CommittedBytes() uint64   { return r.committed }
func (r *fakeRegion) ReservedBytes() uint64    { return uint64(len(r.data)) }
func (r *fakeRegion) GrowBy(nPages uint32) (uint32, bool) {
	next := r.committed + uint64(nPages)*testPageSize
	if next > uint64(len(r.data)) {
		return 0, false
	}
	r.committed = next
	return uint32(r.committed / testPageSize), true
}

func newTestEngine(initialPages, maxPages uint32) *Engine {
	return New(newFakeRegion(initialPages, maxPages))
}

func TestBasicAllocateReadWrite(t *testing.T) {
	e := newTestEngine(4, 16)
	h := e.Allocate(1024, TierMiddle)
	if h == nullOffset {
		t.Fatal("allocate failed")
	}
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	if err := e.Write(h, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := e.Read(h, 1024)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d: got %x want %x", i, got[i], data[i])
		}
	}
}

func TestPreserveThenReuse(t *testing.T) {
	// 192 pages (12 MiB) gives Middle its 30% share of about 3.6 MiB,
	// room for the 1 MiB + 2 MiB allocations below. Middle is not the
	// tail tier, so it cannot grow to make room.
	e := newTestEngine(192, 256)
	const mib = 1 << 20

	h1 := e.Allocate(mib, TierMiddle)
	if h1 == nullOffset {
		t.Fatal("first allocate failed")
	}
	marker := make([]byte, 64)
	for i := range marker {
		marker[i] = 0xAA
	}
	if err := e.Write(h1, marker); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	h2 := e.Allocate(2*mib, TierMiddle)
	if h2 == nullOffset {
		t.Fatal("second allocate failed")
	}

	if !e.FastCompactTier(TierMiddle, mib) {
		t.Fatal("fast compact failed")
	}

	h3 := e.Allocate(2*mib, TierMiddle)
	if h3 == nullOffset {
		t.Fatal("third allocate failed")
	}
	sceneBase := e.tiers[TierMiddle].BaseOffset()
	if h3 != sceneBase+mib {
		t.Fatalf("expected reuse at base+1MiB, got offset %d (base %d)", h3-sceneBase, sceneBase)
	}

	got, err := e.Read(h1, 64)
	if err != nil {
		t.Fatalf("read after compact: %v", err)
	}
	for i, b := range got {
		if b != 0xAA {
			t.Fatalf("byte %d corrupted after compact: %x", i, b)
		}
	}
}

func TestOversizeAllocationFails(t *testing.T) {
	e := newTestEngine(4, 16)
	before := e.Stats()

	h := e.Allocate(1_000_000_000, TierTop)
	if h != nullOffset {
		t.Fatal("expected oversize allocation to fail")
	}

	after := e.Stats()
	if after.TotalUsed != before.TotalUsed {
		t.Fatalf("state changed on failed allocation: before=%d after=%d", before.TotalUsed, after.TotalUsed)
	}
}

func TestResetEmptiesTier(t *testing.T) {
	e := newTestEngine(4, 16)
	for i := 0; i < 5; i++ {
		if e.Allocate(1024, TierMiddle) == nullOffset {
			t.Fatalf("allocate %d failed", i)
		}
	}
	if !e.ResetTier(TierMiddle) {
		t.Fatal("reset failed")
	}
	if used := e.tiers[TierMiddle].Usage(); used != 0 {
		t.Fatalf("expected used=0 after reset, got %d", used)
	}
	h := e.Allocate(1024, TierMiddle)
	base := e.tiers[TierMiddle].BaseOffset()
	if h != base {
		t.Fatalf("expected allocation at tier base %d after reset, got %d", base, h)
	}
}

func TestConcurrentAllocationsDisjoint(t *testing.T) {
	e := newTestEngine(4, 16)
	const workers = 3
	const perWorker = 10
	const size = 64

	results := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		results[w] = make([]uint64, perWorker)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results[w][i] = e.Allocate(size, TierBottom)
			}
		}()
	}
	wg.Wait()

	var all []uint64
	for _, r := range results {
		all = append(all, r...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	for i, h := range all {
		if h == nullOffset {
			t.Fatalf("allocation %d failed", i)
		}
		if i > 0 && all[i]-all[i-1] < size {
			t.Fatalf("adjacent handles too close: %d, %d", all[i-1], h)
		}
	}
	seen := map[uint64]bool{}
	for _, h := range all {
		if seen[h] {
			t.Fatalf("duplicate handle %d", h)
		}
		seen[h] = true
	}
}

func TestTopTierAlignment(t *testing.T) {
	e := newTestEngine(4, 16)
	for i := 0; i < 20; i++ {
		h := e.Allocate(17, TierTop)
		if h == nullOffset {
			t.Fatalf("allocate %d failed", i)
		}
		if h%topAlignment != 0 {
			t.Fatalf("handle %d not %d-byte aligned", h, topAlignment)
		}
	}
}

func TestGrowthExtendsTailTier(t *testing.T) {
	e := newTestEngine(1, 32)
	before := e.tiers[TierBottom].Capacity()

	big := e.tiers[TierBottom].Capacity() + 1000
	h := e.Allocate(big, TierBottom)
	if h == nullOffset {
		t.Fatal("allocate requiring growth failed")
	}
	after := e.tiers[TierBottom].Capacity()
	if after <= before {
		t.Fatalf("expected bottom tier capacity to grow: before=%d after=%d", before, after)
	}
}

func TestNonTailTierCannotGrowInPlace(t *testing.T) {
	e := newTestEngine(1, 32)
	before := e.tiers[TierTop].Capacity()

	big := e.tiers[TierTop].Capacity() + 1000
	h := e.Allocate(big, TierTop)
	if h != nullOffset {
		t.Fatal("expected allocate exceeding top tier capacity to fail rather than grow in place")
	}
	after := e.tiers[TierTop].Capacity()
	if after != before {
		t.Fatalf("top tier capacity changed: before=%d after=%d", before, after)
	}
}

func TestBulkCopy(t *testing.T) {
	e := newTestEngine(4, 16)
	src := e.Allocate(256, TierMiddle)
	dst := e.Allocate(256, TierMiddle)

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	if err := e.Write(src, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := e.BulkCopy([]CopyTriple{{Src: src, Dst: dst, Length: 256}}); err != nil {
		t.Fatalf("bulk copy: %v", err)
	}
	got, err := e.Read(dst, 256)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d mismatch after bulk copy", i)
		}
	}
}

func TestFastCompactBeyondCapacityFails(t *testing.T) {
	e := newTestEngine(4, 16)
	capacity := e.tiers[TierTop].Capacity()
	if e.FastCompactTier(TierTop, capacity+1) {
		t.Fatal("expected fast compact beyond capacity to fail")
	}
}
