// Package service implements the document store dispatcher: one backend is
// selected at startup and wrapped with the behavior every backend must share
// uniformly. Slug validation runs before any I/O, every mutating operation is
// serialized per slug, every backend call carries a bounded deadline, version
// snapshots and trash transitions follow the same policy regardless of the
// persistence engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mdvault/mdvault/internal/docstore"
	"github.com/mdvault/mdvault/internal/docstore/repository"
	"github.com/mdvault/mdvault/pkg/logger"
	"github.com/mdvault/mdvault/pkg/metrics"
)

// Archiver copies a trash entry to out-of-band storage before it is purged.
type Archiver interface {
	ArchiveTrashEntry(ctx context.Context, e *docstore.TrashEntry) error
}

// Options configures a Service.
type Options struct {
	// Backend names the selected backend kind for logs and metric labels.
	Backend string
	// Timeout bounds each backend I/O call. Zero disables the deadline.
	Timeout time.Duration
	// ReservedSlugs are identifiers rejected by validation.
	ReservedSlugs []string
	// Archiver, when non-nil, receives every trash entry before permanent
	// purge; purge is aborted if archival fails.
	Archiver Archiver
}

// Service is the DocumentStore handed to callers. Construct once at startup
// via New; a failed backend surfaces as a constructor or Ping error, never as
// a silently nil handle.
type Service struct {
	backend  repository.Backend
	name     string
	timeout  time.Duration
	slugs    *docstore.SlugValidator
	locks    *docstore.KeyedMutex
	archiver Archiver
}

func New(backend repository.Backend, opts Options) *Service {
	return &Service{
		backend:  backend,
		name:     opts.Backend,
		timeout:  opts.Timeout,
		slugs:    docstore.NewSlugValidator(opts.ReservedSlugs),
		locks:    docstore.NewKeyedMutex(),
		archiver: opts.Archiver,
	}
}

// opCtx derives the bounded per-call context. The per-slug lock is held
// across backend I/O, so the deadline is what keeps an unreachable remote
// backend from blocking a slug indefinitely.
func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, docstore.ErrInvalidSlug):
		return "invalid_slug"
	case errors.Is(err, docstore.ErrConflict):
		return "conflict"
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrNotFoundInTrash):
		return "not_found"
	case errors.Is(err, docstore.ErrTimeout):
		return "timeout"
	case errors.Is(err, docstore.ErrBackendUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	metrics.StoreOperations.WithLabelValues(op, s.name, outcome(err)).Inc()
	metrics.StoreOperationSeconds.WithLabelValues(op, s.name).Observe(time.Since(start).Seconds())
}

// Get returns the active document for slug.
func (s *Service) Get(ctx context.Context, slug string) (doc *docstore.Document, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.backend.GetDoc(ctx, slug)
}

// Create stores a new active document. Fails with ErrConflict when an active
// document with the slug exists.
func (s *Service) Create(ctx context.Context, slug, title, description, content string) (doc *docstore.Document, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(slug)
	defer unlock()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	doc = &docstore.Document{
		Slug:        slug,
		Title:       title,
		Description: description,
		Content:     content,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.backend.CreateDoc(ctx, doc); err != nil {
		return nil, err
	}
	logger.Infof("document created: slug=%s backend=%s", slug, s.name)
	return doc, nil
}

// Update overwrites the document's content, snapshotting the prior content
// as a new version first. Title and description are unchanged.
func (s *Service) Update(ctx context.Context, slug, content, message, author string) (doc *docstore.Document, err error) {
	start := time.Now()
	defer func() { s.observe("update", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(slug)
	defer unlock()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	prev, err := s.backend.GetDoc(ctx, slug)
	if err != nil {
		return nil, err
	}
	id, err := s.backend.NextVersionID(ctx, slug)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err = s.backend.AppendVersion(ctx, &docstore.Version{
		ID:        id,
		Slug:      slug,
		Content:   prev.Content,
		Message:   message,
		Author:    author,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	doc = prev
	doc.Content = content
	doc.UpdatedAt = now
	if err = s.backend.PutDoc(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// trashStamp picks the trash timestamp for a delete. Millisecond resolution
// can collide when a slug is deleted, restored and deleted again within one
// tick; bump until the composite key is free so repeated deletions always
// produce independently addressable entries.
func (s *Service) trashStamp(ctx context.Context, slug string) (int64, error) {
	ts := time.Now().UnixMilli()
	for {
		_, err := s.backend.GetTrashEntry(ctx, slug, ts)
		if errors.Is(err, docstore.ErrNotFound) {
			return ts, nil
		}
		if err != nil {
			return 0, err
		}
		ts++
	}
}

// Delete moves the active document to the trash.
func (s *Service) Delete(ctx context.Context, slug string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return err
	}
	unlock := s.locks.Lock(slug)
	defer unlock()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ts, err := s.trashStamp(ctx, slug)
	if err != nil {
		return err
	}
	if err = s.backend.MoveToTrash(ctx, slug, ts); err != nil {
		return err
	}
	logger.Infof("document trashed: slug=%s trashedAt=%d backend=%s", slug, ts, s.name)
	return nil
}

// Restore promotes one trash entry for slug back to the active set. Which
// entry is chosen when several exist is deliberately left to the backend.
func (s *Service) Restore(ctx context.Context, slug string) (doc *docstore.Document, err error) {
	start := time.Now()
	defer func() { s.observe("restore", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(slug)
	defer unlock()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	doc, err = s.backend.RestoreFromTrash(ctx, slug, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	logger.Infof("document restored: slug=%s backend=%s", slug, s.name)
	return doc, nil
}

// DeleteFromTrash permanently purges one trash entry. When an archiver is
// configured the entry is copied out first and archival failure aborts the
// purge, so the last copy is never destroyed silently.
func (s *Service) DeleteFromTrash(ctx context.Context, slug string, trashedAt int64) (err error) {
	start := time.Now()
	defer func() { s.observe("purge", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return err
	}
	unlock := s.locks.Lock(slug)
	defer unlock()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if s.archiver != nil {
		entry, gerr := s.backend.GetTrashEntry(ctx, slug, trashedAt)
		if gerr != nil {
			return gerr
		}
		if aerr := s.archiver.ArchiveTrashEntry(ctx, entry); aerr != nil {
			return fmt.Errorf("archive before purge: %w", aerr)
		}
		metrics.TrashArchived.WithLabelValues(s.name).Inc()
	}
	if err = s.backend.PurgeTrash(ctx, slug, trashedAt); err != nil {
		return err
	}
	logger.Infof("trash entry purged: slug=%s trashedAt=%d backend=%s", slug, trashedAt, s.name)
	return nil
}

// ListActive returns active document metadata, newest created first. An
// unreachable backend is an error, never an empty list.
func (s *Service) ListActive(ctx context.Context) (out []docstore.DocumentMeta, err error) {
	start := time.Now()
	defer func() { s.observe("list_active", start, err) }()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.backend.ListDocs(ctx)
}

// ListTrash returns all trash entries, newest deletion first.
func (s *Service) ListTrash(ctx context.Context) (out []docstore.TrashEntry, err error) {
	start := time.Now()
	defer func() { s.observe("list_trash", start, err) }()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.backend.ListTrash(ctx)
}

// GetVersions returns the document's version history, most recent first.
func (s *Service) GetVersions(ctx context.Context, slug string) (out []docstore.Version, err error) {
	start := time.Now()
	defer func() { s.observe("versions", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return nil, err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.backend.ListVersions(ctx, slug)
}

// Revert sets the document's content to that of the given version and
// appends a new version marking the revert. Forward history is preserved;
// the new version's ParentID points at the version that was restored.
func (s *Service) Revert(ctx context.Context, slug string, versionID int64) (doc *docstore.Document, err error) {
	start := time.Now()
	defer func() { s.observe("revert", start, err) }()
	if err = s.slugs.Validate(slug); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(slug)
	defer unlock()
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	doc, err = s.backend.GetDoc(ctx, slug)
	if err != nil {
		return nil, err
	}
	v, err := s.backend.GetVersion(ctx, slug, versionID)
	if err != nil {
		return nil, err
	}
	id, err := s.backend.NextVersionID(ctx, slug)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	// append the revert marker before touching content: if the append fails
	// the document is unchanged, never changed without an audit entry
	parent := v.ID
	if err = s.backend.AppendVersion(ctx, &docstore.Version{
		ID:        id,
		Slug:      slug,
		Content:   v.Content,
		Message:   fmt.Sprintf("revert to version %d", v.ID),
		CreatedAt: now,
		ParentID:  &parent,
	}); err != nil {
		return nil, err
	}
	doc.Content = v.Content
	doc.UpdatedAt = now
	if err = s.backend.PutDoc(ctx, doc); err != nil {
		return nil, err
	}
	logger.Infof("document reverted: slug=%s version=%d backend=%s", slug, v.ID, s.name)
	return doc, nil
}

// Ping reports whether the configured backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.backend.Ping(ctx)
}

// Backend returns the configured backend kind.
func (s *Service) Backend() string { return s.name }

func (s *Service) Close() error { return s.backend.Close() }
