package repository

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mdvault/mdvault/internal/docstore"
)

func newRedisTestStore(t *testing.T, prefix string) (*RedisStore, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return NewRedisStore(client, prefix), m
}

func TestRedisStore_IndexTracksRecords(t *testing.T) {
	s, m := newRedisTestStore(t, "test:")
	ctx := context.Background()

	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "hello")))
	require.True(t, m.Exists("test:doc:guide"))
	members, err := m.SMembers("test:docs:list")
	require.NoError(t, err)
	require.Equal(t, []string{"test:doc:guide"}, members)

	ts := time.Now().UnixMilli()
	require.NoError(t, s.MoveToTrash(ctx, "guide", ts))
	require.False(t, m.Exists("test:doc:guide"))
	members, err = m.SMembers("test:docs:list")
	require.NoError(t, err)
	require.Empty(t, members)
	require.True(t, m.Exists("test:trash:list"))

	_, err = s.RestoreFromTrash(ctx, "guide", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, m.Exists("test:doc:guide"))
	require.False(t, m.Exists("test:trash:list"))
}

func TestRedisStore_SkipsDanglingIndexMembers(t *testing.T) {
	s, m := newRedisTestStore(t, "test:")
	ctx := context.Background()

	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "hello")))

	// simulate a record lost out-of-band; the listing must not fail
	m.SetAdd("test:docs:list", "test:doc:ghost")
	metas, err := s.ListDocs(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "guide", metas[0].Slug)
}

func TestRedisStore_PrefixIsolation(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	a := NewRedisStore(client, "a:")
	b := NewRedisStore(client, "b:")
	ctx := context.Background()

	require.NoError(t, a.CreateDoc(ctx, newDoc("guide", "Guide", "hello")))
	metas, err := b.ListDocs(ctx)
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestRedisStore_UnreachableBackendFailsLoudly(t *testing.T) {
	s, m := newRedisTestStore(t, "test:")
	ctx := context.Background()
	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "hello")))

	// an unreachable backend must be an error, never an empty listing
	m.Close()
	metas, err := s.ListDocs(ctx)
	require.ErrorIs(t, err, docstore.ErrBackendUnavailable)
	require.Nil(t, metas)

	_, err = s.GetDoc(ctx, "guide")
	require.ErrorIs(t, err, docstore.ErrBackendUnavailable)
	require.ErrorIs(t, s.Ping(ctx), docstore.ErrBackendUnavailable)
}

func TestRedisStore_ExpiredDeadlineIsTimeout(t *testing.T) {
	s, _ := newRedisTestStore(t, "test:")

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.ListDocs(ctx)
	require.ErrorIs(t, err, docstore.ErrTimeout)
	require.NotErrorIs(t, err, docstore.ErrBackendUnavailable)
}

func TestRedisStore_VersionCounterSurvivesTrash(t *testing.T) {
	s, _ := newRedisTestStore(t, "test:")
	ctx := context.Background()

	require.NoError(t, s.CreateDoc(ctx, newDoc("guide", "Guide", "hello")))
	id1, err := s.NextVersionID(ctx, "guide")
	require.NoError(t, err)
	require.NoError(t, s.MoveToTrash(ctx, "guide", time.Now().UnixMilli()))

	// ids keep increasing across the document's lifecycle
	id2, err := s.NextVersionID(ctx, "guide")
	require.NoError(t, err)
	require.Greater(t, id2, id1)
}
