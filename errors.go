package walloc

import "errors"

// Sentinel errors for the data-movement and registry operations,
// which report status rather than a null Handle (allocation failures
// are the one exception: they are always reported as NullHandle,
// never thrown).
var (
	// ErrCapacityExceeded is returned when an arena cannot satisfy a
	// request and the caller needs an error rather than a null handle
	// (e.g. AllocateValue, or LoadAsset running out of room to write
	// the fetched bytes into).
	ErrCapacityExceeded = errors.New("walloc: capacity exceeded")

	// ErrInvalidHandle indicates a null handle, an out-of-range handle,
	// or a handle belonging to the wrong arena.
	ErrInvalidHandle = errors.New("walloc: invalid handle")

	// ErrUnknownKey indicates a missing asset-registry key.
	ErrUnknownKey = errors.New("walloc: unknown key")

	// ErrNetwork indicates an external fetch failure during LoadAsset.
	ErrNetwork = errors.New("walloc: network error")

	// ErrOversize indicates a read/write length exceeding the owning
	// arena's extent.
	ErrOversize = errors.New("walloc: oversize")
)
