package memory

import "errors"

// Errors returned by memory operations. "No results" and "search failed"
// are distinct outcomes: failures are always reported through one of these,
// never as a silent empty list.
var (
	// ErrNotReady is returned when an operation is called before the
	// manager finished initializing.
	ErrNotReady = errors.New("memory: manager not ready")

	// ErrClosed is returned when an operation is called after Close.
	ErrClosed = errors.New("memory: manager closed")

	// ErrUnknownTier is returned when an operation references a tier that
	// was not enabled at initialization.
	ErrUnknownTier = errors.New("memory: tier not enabled")

	// ErrNotFound is returned by Get when no item has the given ID. It is
	// a negative result, not a backend failure.
	ErrNotFound = errors.New("memory: item not found")

	// ErrBackendUnavailable is returned when a durable backend or the
	// embedding provider cannot be reached.
	ErrBackendUnavailable = errors.New("memory: backend unavailable")

	// ErrInvalidArgument is returned for malformed inputs, e.g. an
	// importance outside [0,1].
	ErrInvalidArgument = errors.New("memory: invalid argument")

	// ErrInvalidRelation is returned when a relation references an
	// endpoint that does not exist. It fails that call only.
	ErrInvalidRelation = errors.New("memory: relation endpoint does not exist")
)
