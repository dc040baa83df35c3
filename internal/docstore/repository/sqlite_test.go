package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLStore_ReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	s, err := NewSQLStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "persisted")))
	ts := time.Now().UnixMilli()
	require.NoError(t, s.CreateDoc(ctx, newDoc("scratch", "Scratch", "bin me")))
	require.NoError(t, s.MoveToTrash(ctx, "scratch", ts))
	id, err := s.NextVersionID(ctx, "guide")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLStore(path)
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.GetDoc(ctx, "guide")
	require.NoError(t, err)
	require.Equal(t, "persisted", doc.Content)

	entry, err := s.GetTrashEntry(ctx, "scratch", ts)
	require.NoError(t, err)
	require.Equal(t, "bin me", entry.Content)

	id2, err := s.NextVersionID(ctx, "guide")
	require.NoError(t, err)
	require.Greater(t, id2, id)
}

func TestSQLStore_TimestampRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := NewSQLStore(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	doc := newDoc("guide", "Guide", "content")
	require.NoError(t, s.CreateDoc(ctx, doc))

	got, err := s.GetDoc(ctx, "guide")
	require.NoError(t, err)
	// stored at millisecond resolution
	require.Equal(t, doc.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
	require.Equal(t, doc.UpdatedAt.UnixMilli(), got.UpdatedAt.UnixMilli())
}
