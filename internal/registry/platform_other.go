//go:build !js && !wasip1

package registry

// Evict's automatic tail-compaction is restricted to the sandboxed
// target only, where compaction is meaningful; native callers who
// want the space back call FastCompactTier directly. FastCompactTier
// itself still behaves identically on both targets (it is a pure
// pointer move either way) — only Evict's policy of invoking it
// implicitly differs by target.
const compactionOnEvict = false
