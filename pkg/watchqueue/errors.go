package watchqueue

import "errors"

var (
	ErrInvalidArgument  = errors.New("watchqueue: invalid argument")
	ErrPermissionDenied = errors.New("watchqueue: permission denied")
	ErrResourceLimit    = errors.New("watchqueue: resource limit exceeded")
	ErrAlreadyWatching  = errors.New("watchqueue: queue already watches this list")
	ErrNotFound         = errors.New("watchqueue: watch not found")

	// ErrNoCapacity means no free slot was available. Posting never returns it;
	// it is recorded as a loss on the target queue instead.
	ErrNoCapacity = errors.New("watchqueue: no free slot")

	// ErrFeatureDisabled is returned by every entry point of a Manager built
	// with Config.Enabled set to false.
	ErrFeatureDisabled = errors.New("watchqueue: feature disabled")

	ErrQueueClosed   = errors.New("watchqueue: queue closed")
	ErrListDestroyed = errors.New("watchqueue: watch list destroyed")
	ErrNotReadable   = errors.New("watchqueue: queue has an external sink")
	ErrManagerClosed = errors.New("watchqueue: manager closed")

	// ErrParsingConfig is returned when environment variables cannot be parsed into Config.
	ErrParsingConfig = errors.New("watchqueue: failed to parse environment variables into config")
)
