package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mdvault/mdvault/internal/docstore"
	"github.com/mdvault/mdvault/internal/docstore/repository"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	backend, err := repository.NewFSStore(t.TempDir())
	require.NoError(t, err)
	if opts.Backend == "" {
		opts.Backend = "filesystem"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	return New(backend, opts)
}

func TestService_CreateGet(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	doc, err := svc.Create(ctx, "guide", "Guide", "a short guide", "# Guide\n\nHello")
	require.NoError(t, err)
	require.Equal(t, "guide", doc.Slug)
	require.False(t, doc.CreatedAt.IsZero())

	got, err := svc.Get(ctx, "guide")
	require.NoError(t, err)
	require.Equal(t, "# Guide\n\nHello", got.Content)
	require.Equal(t, "a short guide", got.Description)

	_, err = svc.Create(ctx, "guide", "Guide", "", "other")
	require.ErrorIs(t, err, docstore.ErrConflict)
}

func TestService_RejectsInvalidSlugBeforeIO(t *testing.T) {
	svc := newTestService(t, Options{ReservedSlugs: []string{"api"}})
	ctx := context.Background()

	for _, slug := range []string{"", "../etc", "a/b", "api"} {
		_, err := svc.Create(ctx, slug, "T", "", "c")
		require.ErrorIs(t, err, docstore.ErrInvalidSlug, "slug %q", slug)
		_, err = svc.Get(ctx, slug)
		require.ErrorIs(t, err, docstore.ErrInvalidSlug, "slug %q", slug)
		require.ErrorIs(t, svc.Delete(ctx, slug), docstore.ErrInvalidSlug, "slug %q", slug)
	}

	metas, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestService_UpdateSnapshotsPriorContent(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "guide", "Guide", "", "# Guide\n\nHello")
	require.NoError(t, err)

	doc, err := svc.Update(ctx, "guide", "# Guide\n\nHello v2", "second draft", "ann")
	require.NoError(t, err)
	require.Equal(t, "# Guide\n\nHello v2", doc.Content)

	versions, err := svc.GetVersions(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "# Guide\n\nHello", versions[0].Content)
	require.Equal(t, "second draft", versions[0].Message)
	require.Equal(t, "ann", versions[0].Author)
	require.Nil(t, versions[0].ParentID)

	_, err = svc.Update(ctx, "missing", "c", "m", "")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestService_DeleteRestoreRoundtrip(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "guide", "Guide", "", "# Guide\n\nHello")
	require.NoError(t, err)
	_, err = svc.Update(ctx, "guide", "# Guide\n\nHello v2", "edit", "")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "guide"))
	_, err = svc.Get(ctx, "guide")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	entries, err := svc.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "guide", entries[0].Slug)

	doc, err := svc.Restore(ctx, "guide")
	require.NoError(t, err)
	require.Equal(t, "# Guide\n\nHello v2", doc.Content)

	// history survives the trash roundtrip
	versions, err := svc.GetVersions(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, "# Guide\n\nHello", versions[0].Content)
}

func TestService_RapidDeleteRestoreDeleteKeepsDistinctStamps(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "guide", "Guide", "", "one")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "guide"))
	_, err = svc.Create(ctx, "guide", "Guide", "", "two")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "guide"))

	entries, err := svc.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotEqual(t, entries[0].TrashedAt, entries[1].TrashedAt)
}

func TestService_RestoreConflictWithActiveDocument(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "guide", "Guide", "", "old")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "guide"))
	_, err = svc.Create(ctx, "guide", "Guide", "", "new")
	require.NoError(t, err)

	_, err = svc.Restore(ctx, "guide")
	require.ErrorIs(t, err, docstore.ErrConflict)

	_, err = svc.Restore(ctx, "never-existed")
	require.ErrorIs(t, err, docstore.ErrNotFoundInTrash)
}

func TestService_Revert(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, "guide", "Guide", "", "v1")
	require.NoError(t, err)
	_, err = svc.Update(ctx, "guide", "v2", "m1", "")
	require.NoError(t, err)
	_, err = svc.Update(ctx, "guide", "v3", "m2", "")
	require.NoError(t, err)

	versions, err := svc.GetVersions(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, versions, 2)

	// the oldest snapshot holds the original content
	target := versions[1]
	require.Equal(t, "v1", target.Content)

	doc, err := svc.Revert(ctx, "guide", target.ID)
	require.NoError(t, err)
	require.Equal(t, "v1", doc.Content)

	versions, err = svc.GetVersions(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, "v1", versions[0].Content)
	require.NotNil(t, versions[0].ParentID)
	require.Equal(t, target.ID, *versions[0].ParentID)
	require.Contains(t, versions[0].Message, "revert to version")

	_, err = svc.Revert(ctx, "guide", 999)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

// appendFailingBackend fails version appends after the first n succeed.
type appendFailingBackend struct {
	repository.Backend
	appends int
	allow   int
}

func (b *appendFailingBackend) AppendVersion(ctx context.Context, v *docstore.Version) error {
	b.appends++
	if b.appends > b.allow {
		return errors.New("version log full")
	}
	return b.Backend.AppendVersion(ctx, v)
}

func TestService_RevertLeavesContentUntouchedWhenAppendFails(t *testing.T) {
	fs, err := repository.NewFSStore(t.TempDir())
	require.NoError(t, err)
	backend := &appendFailingBackend{Backend: fs, allow: 1}
	svc := New(backend, Options{Backend: "filesystem", Timeout: 5 * time.Second})
	ctx := context.Background()

	_, err = svc.Create(ctx, "guide", "Guide", "", "v1")
	require.NoError(t, err)
	_, err = svc.Update(ctx, "guide", "v2", "edit", "")
	require.NoError(t, err)

	versions, err := svc.GetVersions(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, versions, 1)

	// the revert marker cannot be written, so the content must not change
	_, err = svc.Revert(ctx, "guide", versions[0].ID)
	require.Error(t, err)

	doc, err := svc.Get(ctx, "guide")
	require.NoError(t, err)
	require.Equal(t, "v2", doc.Content)

	versions, err = svc.GetVersions(ctx, "guide")
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestService_ConcurrentCreateSingleWinner(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, "guide", "Guide", "", "content")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, docstore.ErrConflict)
		}
	}
	require.Equal(t, 1, ok)
}

type recordingArchiver struct {
	entries []*docstore.TrashEntry
	fail    bool
}

func (a *recordingArchiver) ArchiveTrashEntry(_ context.Context, e *docstore.TrashEntry) error {
	if a.fail {
		return errors.New("object store unreachable")
	}
	a.entries = append(a.entries, e)
	return nil
}

func TestService_PurgeArchivesFirst(t *testing.T) {
	arch := &recordingArchiver{}
	svc := newTestService(t, Options{Archiver: arch})
	ctx := context.Background()

	_, err := svc.Create(ctx, "guide", "Guide", "", "keep a copy")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "guide"))

	entries, err := svc.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, svc.DeleteFromTrash(ctx, "guide", entries[0].TrashedAt))
	require.Len(t, arch.entries, 1)
	require.Equal(t, "keep a copy", arch.entries[0].Content)

	// purge is permanent
	err = svc.DeleteFromTrash(ctx, "guide", entries[0].TrashedAt)
	require.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = svc.Restore(ctx, "guide")
	require.ErrorIs(t, err, docstore.ErrNotFoundInTrash)
}

func TestService_ArchiveFailureAbortsPurge(t *testing.T) {
	arch := &recordingArchiver{fail: true}
	svc := newTestService(t, Options{Archiver: arch})
	ctx := context.Background()

	_, err := svc.Create(ctx, "guide", "Guide", "", "precious")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "guide"))

	entries, err := svc.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	err = svc.DeleteFromTrash(ctx, "guide", entries[0].TrashedAt)
	require.Error(t, err)

	// the entry must still be in the trash
	entries, err = svc.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestService_PingAndBackendName(t *testing.T) {
	svc := newTestService(t, Options{Backend: "filesystem"})
	require.NoError(t, svc.Ping(context.Background()))
	require.Equal(t, "filesystem", svc.Backend())
}
