// Package registry implements the asset registry layered above the
// tiered allocator: a sharded key -> metadata map plus the
// register/get/evict/load operations.
//
// The sharded map generalizes Zyuery-ShmMaster's internal/index
// (sharded.go's per-shard RWMutex map, hash.go's FNV-1a shard
// selection) from key -> Entry to key -> AssetMetadata.
package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
)

// AssetType and Tier mirror the root package's enums without
// importing it (the root package imports registry, not vice versa).
type AssetType uint8

const (
	AssetImage AssetType = iota
	AssetJSON
	AssetBinary
)

type Tier uint8

const (
	TierTop Tier = iota
	TierMiddle
	TierBottom
)

// Handle is an opaque backing-memory offset; NullHandle is the
// all-ones sentinel.
type Handle uint64

const NullHandle Handle = ^Handle(0)

// Metadata is the registry's per-key record.
type Metadata struct {
	Key    string
	Type   AssetType
	Length uint64
	Handle Handle
	Tier   Tier
}

// Allocator is the narrow slice of the tiered engine the registry
// needs: allocate in a tier, write bytes, and (on the sandboxed
// target) compact a tier's tail.
type Allocator interface {
	Allocate(size uint64, tier Tier) (Handle, bool)
	Write(handle Handle, data []byte) error
	Read(handle Handle, length uint64) ([]byte, error)
	LocalOffset(handle Handle) (uint64, bool)
	TierUsage(tier Tier) uint64
	FastCompactTier(tier Tier, preserveBytes uint64) bool
}

// Fetcher performs the external byte fetch a host exposes as a
// capability. See fetch.go for the default http.Client-backed
// implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

const shardCount = 16

type shard struct {
	mu    sync.RWMutex
	items map[string]Metadata
}

// Registry is the sharded asset map plus the allocator/fetcher it's
// layered over.
type Registry struct {
	shards  [shardCount]shard
	alloc   Allocator
	fetcher Fetcher
	baseURL string
	baseMu  sync.RWMutex
}

// New constructs a Registry over alloc, fetching assets through
// fetcher.
func New(alloc Allocator, fetcher Fetcher) *Registry {
	r := &Registry{alloc: alloc, fetcher: fetcher}
	for i := range r.shards {
		r.shards[i].items = make(map[string]Metadata)
	}
	return r
}

func (r *Registry) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &r.shards[h.Sum32()%shardCount]
}

// Register inserts or replaces the entry for key. A replacement never
// reclaims the prior entry's memory; callers that want the space
// accounted as reclaimed should evict the old entry first.
func (r *Registry) Register(key string, m Metadata) bool {
	m.Key = key
	sh := r.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = m
	sh.mu.Unlock()
	return true
}

// Get looks up key's metadata.
func (r *Registry) Get(key string) (Metadata, bool) {
	sh := r.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	m, ok := sh.items[key]
	return m, ok
}

// GetData combines Get with reading the asset's bytes.
func (r *Registry) GetData(key string) ([]byte, bool, error) {
	m, ok := r.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, err := r.alloc.Read(m.Handle, m.Length)
	return data, true, err
}

// Evict removes key's entry, returning true iff it existed. On the
// sandboxed target, if the evicted region sits at the tail of its
// arena, this additionally fast-compacts that tier back to the
// region's start — compactionOnEvict (platform_js.go /
// platform_other.go) gates this to the real sandboxed build target.
func (r *Registry) Evict(key string) bool {
	sh := r.shardFor(key)
	sh.mu.Lock()
	m, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}

	if compactionOnEvict {
		local, ok := r.alloc.LocalOffset(m.Handle)
		if ok && local+m.Length == r.alloc.TierUsage(m.Tier) {
			r.alloc.FastCompactTier(m.Tier, local)
		}
	}
	return true
}

// EvictBatch evicts every key in keys, returning the number actually
// removed.
func (r *Registry) EvictBatch(keys []string) int {
	n := 0
	for _, k := range keys {
		if r.Evict(k) {
			n++
		}
	}
	return n
}

// SetBaseURL configures the prefix LoadAsset prepends to a path.
func (r *Registry) SetBaseURL(url string) {
	r.baseMu.Lock()
	r.baseURL = url
	r.baseMu.Unlock()
}

func (r *Registry) baseURLSnapshot() string {
	r.baseMu.RLock()
	defer r.baseMu.RUnlock()
	return r.baseURL
}

// LoadAsset fetches baseURL+path, allocates a Middle-tier region sized
// to the response, writes the bytes, and registers the result under
// key = path. Network failures leave no registry entry and no
// allocated memory.
func (r *Registry) LoadAsset(ctx context.Context, path string, assetType AssetType) (Handle, error) {
	data, err := r.fetcher.Fetch(ctx, r.baseURLSnapshot()+path)
	if err != nil {
		return NullHandle, fmt.Errorf("%w: %v", errNetwork, err)
	}
	return r.loadBytes(path, assetType, TierMiddle, data)
}

// LoadAssetZeroCopy allocates and writes from a caller-supplied buffer
// without an intervening fetch.
func (r *Registry) LoadAssetZeroCopy(data []byte, tier Tier) (Handle, bool) {
	h, err := r.loadBytes("", AssetBinary, tier, data)
	if err != nil {
		return NullHandle, false
	}
	return h, true
}

func (r *Registry) loadBytes(key string, assetType AssetType, tier Tier, data []byte) (Handle, error) {
	h, ok := r.alloc.Allocate(uint64(len(data)), tier)
	if !ok {
		return NullHandle, errOutOfMemory
	}
	if err := r.alloc.Write(h, data); err != nil {
		return NullHandle, err
	}
	if key != "" {
		r.Register(key, Metadata{Type: assetType, Length: uint64(len(data)), Handle: h, Tier: tier})
	}
	return h, nil
}
