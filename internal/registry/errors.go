package registry

import "errors"

var (
	errOutOfMemory = errors.New("registry: out of memory")
	errNetwork     = errors.New("registry: network error")
)

// ErrOutOfMemory and ErrNetwork let callers outside this package
// compare against these without duplicating the sentinel values.
var (
	ErrOutOfMemory = errOutOfMemory
	ErrNetwork     = errNetwork
)
