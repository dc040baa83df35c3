package docstore

import "errors"

// Sentinel errors shared by all backends. Callers check them with errors.Is;
// backends wrap them with operation context via fmt.Errorf and %w.
var (
	// ErrInvalidSlug is returned for identifiers rejected before any I/O.
	ErrInvalidSlug = errors.New("invalid slug")
	// ErrNotFound indicates the requested document or version does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrNotFoundInTrash indicates no trash entry exists for the slug.
	ErrNotFoundInTrash = errors.New("not found in trash")
	// ErrConflict indicates an active document with the slug already exists.
	ErrConflict = errors.New("document already exists")
	// ErrBackendUnavailable indicates the configured backend is unreachable or
	// misconfigured. List operations fail with it rather than returning empty
	// results, so "no documents" and "store is down" stay distinguishable.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrTimeout indicates a backend call exceeded its bounded deadline.
	ErrTimeout = errors.New("storage operation timed out")
)
