package registry_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walloc/internal/registry"
)

// fakeAllocator is an in-memory Allocator fake sized generously enough
// that tests never exercise its growth path.
type fakeAllocator struct {
	mu   sync.Mutex
	buf  []byte
	head map[registry.Tier]uint64
	base map[registry.Tier]uint64
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{
		buf:  make([]byte, 1<<20),
		head: map[registry.Tier]uint64{registry.TierTop: 0, registry.TierMiddle: 0, registry.TierBottom: 0},
		base: map[registry.Tier]uint64{registry.TierTop: 0, registry.TierMiddle: 1 << 18, registry.TierBottom: 1 << 19},
	}
}

func (a *fakeAllocator) Allocate(size uint64, tier registry.Tier) (registry.Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := a.head[tier]
	a.head[tier] = off + size
	return registry.Handle(a.base[tier] + off), true
}

func (a *fakeAllocator) Write(handle registry.Handle, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.buf[uint64(handle):], data)
	return nil
}

func (a *fakeAllocator) Read(handle registry.Handle, length uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byte, length)
	copy(out, a.buf[uint64(handle):uint64(handle)+length])
	return out, nil
}

func (a *fakeAllocator) LocalOffset(handle registry.Handle) (uint64, bool) {
	for tier, base := range a.base {
		if uint64(handle) >= base && uint64(handle) < base+(1<<17) {
			return uint64(handle) - base, true
		}
		_ = tier
	}
	return 0, false
}

func (a *fakeAllocator) TierUsage(tier registry.Tier) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.head[tier]
}

func (a *fakeAllocator) FastCompactTier(tier registry.Tier, preserveBytes uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.head[tier] = preserveBytes
	return true
}

type fakeFetcher struct {
	data map[string][]byte
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.data[url]
	if !ok {
		return nil, errors.New("fakeFetcher: not found")
	}
	return d, nil
}

func TestAssetEvictBatch(t *testing.T) {
	alloc := newFakeAllocator()
	reg := registry.New(alloc, &fakeFetcher{})

	for i := 0; i < 5; i++ {
		key := "asset_" + string(rune('0'+i))
		h, ok := alloc.Allocate(16, registry.TierMiddle)
		require.True(t, ok)
		require.NoError(t, alloc.Write(h, []byte("payload"+string(rune('0'+i)))))
		reg.Register(key, registry.Metadata{Type: registry.AssetBinary, Length: 16, Handle: h, Tier: registry.TierMiddle})
	}

	n := reg.EvictBatch([]string{"asset_0", "asset_4", "nonexistent"})
	assert.Equal(t, 2, n)

	data, found, err := reg.GetData("asset_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, string(data), "payload1")
}

func TestRegisterReplaceDoesNotReclaim(t *testing.T) {
	alloc := newFakeAllocator()
	reg := registry.New(alloc, &fakeFetcher{})

	h1, _ := alloc.Allocate(16, registry.TierTop)
	reg.Register("k", registry.Metadata{Handle: h1, Length: 16, Tier: registry.TierTop})

	h2, _ := alloc.Allocate(16, registry.TierTop)
	reg.Register("k", registry.Metadata{Handle: h2, Length: 16, Tier: registry.TierTop})

	m, ok := reg.Get("k")
	require.True(t, ok)
	assert.Equal(t, h2, m.Handle)
	assert.Equal(t, uint64(32), alloc.TierUsage(registry.TierTop))
}

func TestEvictUnknownKey(t *testing.T) {
	alloc := newFakeAllocator()
	reg := registry.New(alloc, &fakeFetcher{})
	assert.False(t, reg.Evict("missing"))

	_, found, err := reg.GetData("missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadAssetRoundTrip(t *testing.T) {
	alloc := newFakeAllocator()
	fetcher := &fakeFetcher{data: map[string][]byte{"https://cdn.example/sprite.png": []byte("PNGDATA")}}
	reg := registry.New(alloc, fetcher)
	reg.SetBaseURL("https://cdn.example/")

	h, err := reg.LoadAsset(context.Background(), "sprite.png", registry.AssetImage)
	require.NoError(t, err)
	assert.NotEqual(t, registry.NullHandle, h)

	data, found, err := reg.GetData("sprite.png")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "PNGDATA", string(data))
}

func TestLoadAssetNetworkFailureLeavesNoEntry(t *testing.T) {
	alloc := newFakeAllocator()
	fetcher := &fakeFetcher{err: errors.New("network down")}
	reg := registry.New(alloc, fetcher)

	_, err := reg.LoadAsset(context.Background(), "missing.bin", registry.AssetBinary)
	require.Error(t, err)

	_, found := reg.Get("missing.bin")
	assert.False(t, found)
}

func TestLoadAssetZeroCopy(t *testing.T) {
	alloc := newFakeAllocator()
	reg := registry.New(alloc, &fakeFetcher{})

	h, ok := reg.LoadAssetZeroCopy([]byte("raw-bytes"), registry.TierBottom)
	require.True(t, ok)
	assert.NotEqual(t, registry.NullHandle, h)
}
