// Package repository contains the persistence backends behind the document
// store. Each backend implements the same Backend contract with its engine's
// native primitives; the service layer provides slug validation, per-slug
// serialization and version/trash orchestration on top, so backends stay
// free of business policy.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mdvault/mdvault/internal/docstore"
)

// Backend is the raw persistence contract implemented per storage engine.
// All mutating methods are invoked under the service's per-slug lock, so a
// backend may implement check-then-act sequences without its own locking;
// it must still ensure readers never observe a half-written record.
type Backend interface {
	// CreateDoc persists a new active document. Returns ErrConflict if an
	// active document with the slug already exists.
	CreateDoc(ctx context.Context, doc *docstore.Document) error
	// GetDoc returns the active document or ErrNotFound.
	GetDoc(ctx context.Context, slug string) (*docstore.Document, error)
	// PutDoc overwrites an existing active document. Returns ErrNotFound if
	// no active document with the slug exists.
	PutDoc(ctx context.Context, doc *docstore.Document) error
	// ListDocs returns active document metadata ordered by CreatedAt descending.
	ListDocs(ctx context.Context) ([]docstore.DocumentMeta, error)

	// MoveToTrash atomically removes the active document and records a trash
	// entry stamped trashedAt (unix milliseconds). Returns ErrNotFound if no
	// active document exists.
	MoveToTrash(ctx context.Context, slug string, trashedAt int64) error
	// ListTrash returns all trash entries ordered by TrashedAt descending.
	ListTrash(ctx context.Context) ([]docstore.TrashEntry, error)
	// GetTrashEntry returns one trash entry by its composite key.
	GetTrashEntry(ctx context.Context, slug string, trashedAt int64) (*docstore.TrashEntry, error)
	// RestoreFromTrash promotes one trash entry for slug back to active,
	// stamping UpdatedAt with now. Which entry is chosen when several exist
	// is backend-dependent. Returns ErrNotFoundInTrash when no entry exists
	// and ErrConflict when an active document with the slug exists.
	RestoreFromTrash(ctx context.Context, slug string, now time.Time) (*docstore.Document, error)
	// PurgeTrash permanently removes one trash entry. Returns ErrNotFound if
	// the composite key does not match an entry.
	PurgeTrash(ctx context.Context, slug string, trashedAt int64) error

	// AppendVersion records one immutable snapshot. Versions are never
	// mutated or deleted once written.
	AppendVersion(ctx context.Context, v *docstore.Version) error
	// ListVersions returns all versions for slug ordered by ID descending.
	ListVersions(ctx context.Context, slug string) ([]docstore.Version, error)
	// GetVersion returns one version or ErrNotFound.
	GetVersion(ctx context.Context, slug string, id int64) (*docstore.Version, error)
	// NextVersionID reserves the next monotonic version id for slug.
	NextVersionID(ctx context.Context, slug string) (int64, error)

	// Ping reports backend reachability for readiness checks.
	Ping(ctx context.Context) error
	Close() error
}

// wrapErr maps low-level backend failures onto the shared taxonomy: context
// deadline expiry becomes ErrTimeout, everything else ErrBackendUnavailable.
// Business outcomes (NotFound, Conflict) must be returned directly, never
// through this helper.
func wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", docstore.ErrTimeout, op)
	}
	return fmt.Errorf("%w: %s: %v", docstore.ErrBackendUnavailable, op, err)
}
