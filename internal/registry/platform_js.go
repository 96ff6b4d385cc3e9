//go:build js || wasip1

package registry

// On the sandboxed linear-memory target, evicting the tail of an
// arena is cheap and meaningful, so Evict compacts.
const compactionOnEvict = true
