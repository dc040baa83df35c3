package repository

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mdvault/mdvault/internal/docstore"
)

func TestFSStore_Layout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "# Guide")))

	// content is a plain markdown file, metadata a JSON sidecar
	b, err := os.ReadFile(filepath.Join(root, "guide.md"))
	require.NoError(t, err)
	require.Equal(t, "# Guide", string(b))
	require.FileExists(t, filepath.Join(root, ".meta", "guide.json"))

	ts := time.Now().UnixMilli()
	require.NoError(t, s.MoveToTrash(ctx, "guide", ts))
	require.NoFileExists(t, filepath.Join(root, "guide.md"))
	entries, err := os.ReadDir(filepath.Join(root, ".trash"))
	require.NoError(t, err)
	found := false
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
			found = true
		}
	}
	require.True(t, found, "trashed content file missing")
}

func TestFSStore_ReopenSeesExistingDocuments(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "persisted")))

	// a fresh store over the same root sees the same state
	s2, err := NewFSStore(root)
	require.NoError(t, err)
	doc, err := s2.GetDoc(ctx, "guide")
	require.NoError(t, err)
	require.Equal(t, "persisted", doc.Content)
	id, err := s.NextVersionID(ctx, "guide")
	require.NoError(t, err)
	id2, err := s2.NextVersionID(ctx, "guide")
	require.NoError(t, err)
	require.Greater(t, id2, id)
}

func TestFSStore_ConflictingCreateKeepsMetadata(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	first := newDoc("guide", "Original", "first")
	require.NoError(t, s.CreateDoc(ctx, first))
	require.ErrorIs(t, s.CreateDoc(ctx, newDoc("guide", "Clobber", "second")), docstore.ErrConflict)

	doc, err := s.GetDoc(ctx, "guide")
	require.NoError(t, err)
	require.Equal(t, "Original", doc.Title)
}

func TestFSStore_MissingTrashContentIsNotFound(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "gone")))
	ts := time.Now().UnixMilli()
	require.NoError(t, s.MoveToTrash(ctx, "guide", ts))

	// remove the trashed content, leaving the sidecar as crash residue
	require.NoError(t, os.Remove(filepath.Join(root, ".trash", "guide_"+strconv.FormatInt(ts, 10)+".md")))

	_, err = s.GetTrashEntry(ctx, "guide", ts)
	require.ErrorIs(t, err, docstore.ErrNotFound)

	entries, err := s.ListTrash(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFSStore_ListSkipsStaleSidecars(t *testing.T) {
	root := t.TempDir()
	s, err := NewFSStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "ok")))

	// a sidecar whose content file is gone is crash residue, not a document
	require.NoError(t, os.WriteFile(filepath.Join(root, ".meta", "ghost.json"),
		[]byte(`{"slug":"ghost","title":"Ghost"}`), 0o644))

	metas, err := s.ListDocs(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "guide", metas[0].Slug)
}
