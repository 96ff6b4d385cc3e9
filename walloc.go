// Package walloc implements a tiered bump-arena allocator over a
// single contiguous backing region: three lifetime-segregated arenas
// (Render/Scene/Entity), O(1) allocation and reset, O(1) fast-compact,
// and a lightweight asset registry layered on top. See SPEC_FULL.md
// for the full design.
package walloc

import (
	"context"
	"errors"

	"walloc/internal/engine"
	"walloc/internal/membacking"
	"walloc/internal/registry"
)

const defaultInitialBytes = 16 * membacking.PageSize // 1 MiB

// config holds the constructor's functional-options state, generalizing
// the teacher's two-parameter Open(base, segSize) into an idiomatic
// options pattern (as joshuapare-hivekit's OpenOptions does for its
// reader.Open).
type config struct {
	initialBytes uint64
	maxBytes     uint64
	baseURL      string
	fetcher      registry.Fetcher
}

// Option configures a new Allocator.
type Option func(*config)

// WithInitialBytes sets how much backing memory is committed up
// front, before any growth. Defaults to 1 MiB.
func WithInitialBytes(n uint64) Option {
	return func(c *config) { c.initialBytes = n }
}

// WithMaxBytes caps how large the backing region may grow, up to the
// hard 4 GiB ceiling. Defaults to the hard ceiling.
func WithMaxBytes(n uint64) Option {
	return func(c *config) { c.maxBytes = n }
}

// WithBaseURL sets the prefix LoadAsset prepends to a path, equivalent
// to calling SetBaseURL immediately after construction.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithFetcher overrides the default http.Client-backed Fetcher, for
// tests or alternate transports.
func WithFetcher(f registry.Fetcher) Option {
	return func(c *config) { c.fetcher = f }
}

// Allocator is the host-visible facade: the tiered allocator plus the
// asset registry layered on top of it.
type Allocator struct {
	region *membacking.Region
	eng    *engine.Engine
	reg    *registry.Registry
}

// New constructs an Allocator, reserving and committing its initial
// backing memory and optionally binding it to an asset base URL.
func New(opts ...Option) (*Allocator, error) {
	cfg := config{
		initialBytes: defaultInitialBytes,
		maxBytes:     membacking.MaxBytes,
		fetcher:      registry.NewHTTPFetcher(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	region, err := membacking.New(cfg.initialBytes, cfg.maxBytes)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engineRegion{region})
	reg := registry.New(engineAllocator{eng}, cfg.fetcher)
	if cfg.baseURL != "" {
		reg.SetBaseURL(cfg.baseURL)
	}

	return &Allocator{region: region, eng: eng, reg: reg}, nil
}

// engineRegion adapts *membacking.Region to engine's pageGrower
// interface (already structurally identical; named wrapper kept for
// documentation and to decouple the two packages' interfaces).
type engineRegion struct{ r *membacking.Region }

func (e engineRegion) Bytes() []byte          { return e.r.Bytes() }
func (e engineRegion) CommittedBytes() uint64 { return e.r.CommittedBytes() }
func (e engineRegion) ReservedBytes() uint64  { return e.r.ReservedBytes() }
func (e engineRegion) GrowBy(n uint32) (uint32, bool) { return e.r.GrowBy(n) }

// engineAllocator adapts *engine.Engine to registry.Allocator.
type engineAllocator struct{ e *engine.Engine }

func (a engineAllocator) Allocate(size uint64, tier registry.Tier) (registry.Handle, bool) {
	h := a.e.Allocate(size, engine.Tier(tier))
	if h == ^uint64(0) {
		return registry.NullHandle, false
	}
	return registry.Handle(h), true
}

func (a engineAllocator) Write(handle registry.Handle, data []byte) error {
	return translateEngineErr(a.e.Write(uint64(handle), data))
}

func (a engineAllocator) Read(handle registry.Handle, length uint64) ([]byte, error) {
	b, err := a.e.Read(uint64(handle), length)
	return b, translateEngineErr(err)
}

func (a engineAllocator) LocalOffset(handle registry.Handle) (uint64, bool) {
	return a.e.LocalOffset(uint64(handle))
}

func (a engineAllocator) TierUsage(tier registry.Tier) uint64 {
	return a.e.Stats().Tiers[engineTierFromRegistry(tier)].Used
}

func (a engineAllocator) FastCompactTier(tier registry.Tier, preserveBytes uint64) bool {
	return a.e.FastCompactTier(engineTierFromRegistry(tier), preserveBytes)
}

func engineTierFromRegistry(t registry.Tier) engine.Tier { return engine.Tier(t) }

func tierToEngine(t Tier) engine.Tier     { return engine.Tier(t) }
func tierToRegistry(t Tier) registry.Tier { return registry.Tier(t) }

// Allocate carves size bytes out of tier, returning NullHandle on
// failure. Never returns an error: allocation failures are always a
// null handle, so callers can implement their own fallback.
func (a *Allocator) Allocate(size uint64, tier Tier) Handle {
	h := a.eng.Allocate(size, tierToEngine(tier))
	if h == ^uint64(0) {
		return NullHandle
	}
	return Handle(h)
}

// AllocateBatch allocates each (size, tier) pair independently,
// leaving earlier successes intact if a later request fails.
func (a *Allocator) AllocateBatch(sizes []uint64, tiers []Tier) []Handle {
	eSizes := make([]uint64, len(sizes))
	copy(eSizes, sizes)
	eTiers := make([]engine.Tier, len(tiers))
	for i, t := range tiers {
		eTiers[i] = tierToEngine(t)
	}
	raw := a.eng.AllocateBatch(eSizes, eTiers)
	out := make([]Handle, len(raw))
	for i, h := range raw {
		if h == ^uint64(0) {
			out[i] = NullHandle
		} else {
			out[i] = Handle(h)
		}
	}
	return out
}

// ResetTier empties tier, preserving its high-water mark.
func (a *Allocator) ResetTier(tier Tier) bool {
	return a.eng.ResetTier(tierToEngine(tier))
}

// Deallocate returns the size-byte block at handle to its owning
// tier's free list, so a later same-size-class allocation can reuse
// it. Advisory: skipping it only forgoes reuse, never correctness.
func (a *Allocator) Deallocate(handle Handle, size uint64) bool {
	return a.eng.Deallocate(uint64(handle), size)
}

// FastCompactTier rewinds tier's cursor to preserveBytes without
// copying any bytes. Fails if preserveBytes exceeds the tier's
// capacity.
func (a *Allocator) FastCompactTier(tier Tier, preserveBytes uint64) bool {
	return a.eng.FastCompactTier(tierToEngine(tier), preserveBytes)
}

// translateEngineErr maps internal/engine's sentinel errors onto the
// root package's, so callers can errors.Is against walloc.ErrOversize
// / walloc.ErrInvalidHandle regardless of which layer raised them.
func translateEngineErr(err error) error {
	switch err {
	case engine.ErrInvalidHandle:
		return ErrInvalidHandle
	case engine.ErrOversize:
		return ErrOversize
	default:
		return err
	}
}

// translateRegistryErr does the same for internal/registry's sentinel
// errors, so LoadAsset's failure modes are distinguishable via
// errors.Is against walloc.ErrNetwork / walloc.ErrCapacityExceeded
// regardless of which layer raised them.
func translateRegistryErr(err error) error {
	switch {
	case errors.Is(err, registry.ErrNetwork):
		return ErrNetwork
	case errors.Is(err, registry.ErrOutOfMemory):
		return ErrCapacityExceeded
	default:
		return err
	}
}

// Read copies length bytes starting at handle into a fresh buffer.
func (a *Allocator) Read(handle Handle, length uint64) ([]byte, error) {
	b, err := a.eng.Read(uint64(handle), length)
	return b, translateEngineErr(err)
}

// WriteMemory copies data into backing memory starting at handle.
func (a *Allocator) WriteMemory(handle Handle, data []byte) error {
	return translateEngineErr(a.eng.Write(uint64(handle), data))
}

// GetMemoryView returns a non-owning slice into backing memory. The
// caller must not retain it across any operation that could grow
// memory.
func (a *Allocator) GetMemoryView(handle Handle, length uint64) ([]byte, error) {
	b, err := a.eng.MemoryView(uint64(handle), length)
	return b, translateEngineErr(err)
}

// CopyTriple is one (src, dst, length) request to BulkCopy.
type CopyTriple struct {
	Src, Dst Handle
	Length   uint64
}

// BulkCopy executes each triple in list order via the vectorized copy
// path.
func (a *Allocator) BulkCopy(triples []CopyTriple) error {
	eTriples := make([]engine.CopyTriple, len(triples))
	for i, c := range triples {
		eTriples[i] = engine.CopyTriple{Src: uint64(c.Src), Dst: uint64(c.Dst), Length: c.Length}
	}
	return translateEngineErr(a.eng.BulkCopy(eTriples))
}

// RegisterAsset inserts or replaces the registry entry for key.
func (a *Allocator) RegisterAsset(key string, assetType AssetType, length uint64, handle Handle, tier Tier) bool {
	return a.reg.Register(key, registry.Metadata{
		Type:   registry.AssetType(assetType),
		Length: length,
		Handle: registry.Handle(handle),
		Tier:   tierToRegistry(tier),
	})
}

// GetAsset looks up key's metadata.
func (a *Allocator) GetAsset(key string) (AssetMetadata, bool) {
	m, ok := a.reg.Get(key)
	if !ok {
		return AssetMetadata{}, false
	}
	return fromRegistryMetadata(m), true
}

// GetAssetData combines GetAsset with reading the asset's bytes.
// Returns ErrUnknownKey if key has never been registered.
func (a *Allocator) GetAssetData(key string) ([]byte, error) {
	data, found, err := a.reg.GetData(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownKey
	}
	return data, nil
}

// EvictAsset removes key's entry, returning true iff it existed.
func (a *Allocator) EvictAsset(key string) bool {
	return a.reg.Evict(key)
}

// EvictAssetsBatch evicts every key in keys, returning the number
// actually removed.
func (a *Allocator) EvictAssetsBatch(keys []string) int {
	return a.reg.EvictBatch(keys)
}

// SetBaseURL configures the prefix LoadAsset prepends to a path.
func (a *Allocator) SetBaseURL(url string) {
	a.reg.SetBaseURL(url)
}

// LoadAsset fetches base_url+path, allocates and writes a Middle-tier
// region sized to the response, registers it under key=path, and
// returns its handle. Cancelable via ctx; already-allocated memory
// from a canceled load is leaked until the tier is reset or compacted.
// A failure before any allocation happens (the fetch itself failing)
// leaves nothing allocated at all.
func (a *Allocator) LoadAsset(ctx context.Context, path string, assetType AssetType) (Handle, error) {
	h, err := a.reg.LoadAsset(ctx, path, registry.AssetType(assetType))
	if err != nil {
		return NullHandle, translateRegistryErr(err)
	}
	return Handle(h), nil
}

// LoadAssetZeroCopy allocates and writes from a caller-supplied buffer
// without an intervening fetch.
func (a *Allocator) LoadAssetZeroCopy(data []byte, tier Tier) Handle {
	h, ok := a.reg.LoadAssetZeroCopy(data, tierToRegistry(tier))
	if !ok {
		return NullHandle
	}
	return Handle(h)
}

// MemoryStats returns a structured snapshot of every tier's counters.
func (a *Allocator) MemoryStats() Stats {
	return fromEngineStats(a.eng.Stats())
}

// Close releases the allocator's backing memory. Only meaningful on
// native targets; a no-op on the sandboxed linear-memory target.
func (a *Allocator) Close() error {
	return a.region.Close()
}

func fromRegistryMetadata(m registry.Metadata) AssetMetadata {
	return AssetMetadata{
		Key:    m.Key,
		Type:   AssetType(m.Type),
		Length: m.Length,
		Handle: Handle(m.Handle),
		Tier:   Tier(m.Tier),
	}
}
