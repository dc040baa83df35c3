package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mdvault/mdvault/internal/docstore"
)

// RedisStore implements Backend on a key-value store. Records are JSON blobs
// under per-entity keys; because the primitive is a point lookup, explicit
// index sets are maintained alongside the records:
//
//	<prefix>doc:<slug>            active document record
//	<prefix>docs:list             set of active document record keys
//	<prefix>trash:<slug>:<ms>     trash record
//	<prefix>trash:list            set of trash record keys
//	<prefix>version:<slug>:<id>   version record
//	<prefix>versions:<slug>       list of version record keys, append order
//	<prefix>verseq:<slug>         monotonic version counter (INCR)
//
// Index members are complete record keys used opaquely for MGET; the slug and
// timestamp of an entry are always read from the decoded record, never parsed
// out of a key. Record and index are written together in a MULTI/EXEC
// pipeline so index membership tracks record existence.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a redis-backed store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mdvault:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) docKey(slug string) string { return r.prefix + "doc:" + slug }
func (r *RedisStore) docsIndex() string         { return r.prefix + "docs:list" }
func (r *RedisStore) trashKey(slug string, ts int64) string {
	return r.prefix + "trash:" + slug + ":" + strconv.FormatInt(ts, 10)
}
func (r *RedisStore) trashIndex() string { return r.prefix + "trash:list" }
func (r *RedisStore) versionKey(slug string, id int64) string {
	return r.prefix + "version:" + slug + ":" + strconv.FormatInt(id, 10)
}
func (r *RedisStore) versionsIndex(slug string) string { return r.prefix + "versions:" + slug }
func (r *RedisStore) versionSeq(slug string) string    { return r.prefix + "verseq:" + slug }

func (r *RedisStore) CreateDoc(ctx context.Context, doc *docstore.Document) error {
	n, err := r.client.Exists(ctx, r.docKey(doc.Slug)).Result()
	if err != nil {
		return wrapErr("redis exists", err)
	}
	if n > 0 {
		return docstore.ErrConflict
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return wrapErr("redis encode document", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.docKey(doc.Slug), b, 0)
		p.SAdd(ctx, r.docsIndex(), r.docKey(doc.Slug))
		return nil
	})
	if err != nil {
		return wrapErr("redis create", err)
	}
	return nil
}

func (r *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return docstore.ErrNotFound
	}
	if err != nil {
		return wrapErr("redis get", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return wrapErr("redis decode", err)
	}
	return nil
}

func (r *RedisStore) GetDoc(ctx context.Context, slug string) (*docstore.Document, error) {
	var d docstore.Document
	if err := r.getJSON(ctx, r.docKey(slug), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *RedisStore) PutDoc(ctx context.Context, doc *docstore.Document) error {
	n, err := r.client.Exists(ctx, r.docKey(doc.Slug)).Result()
	if err != nil {
		return wrapErr("redis exists", err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return wrapErr("redis encode document", err)
	}
	if err := r.client.Set(ctx, r.docKey(doc.Slug), b, 0).Err(); err != nil {
		return wrapErr("redis put", err)
	}
	return nil
}

// mgetJSON fetches every indexed record and decodes it into out, one element
// per non-missing key.
func mgetJSON[T any](ctx context.Context, r *RedisStore, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return []T{}, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr("redis mget", err)
	}
	out := make([]T, 0, len(vals))
	for _, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue // index member without a record: skip, do not fail the listing
		}
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, wrapErr("redis decode", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *RedisStore) ListDocs(ctx context.Context) ([]docstore.DocumentMeta, error) {
	keys, err := r.client.SMembers(ctx, r.docsIndex()).Result()
	if err != nil {
		return nil, wrapErr("redis list documents", err)
	}
	docs, err := mgetJSON[docstore.Document](ctx, r, keys)
	if err != nil {
		return nil, err
	}
	out := make([]docstore.DocumentMeta, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].Meta())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RedisStore) MoveToTrash(ctx context.Context, slug string, trashedAt int64) error {
	doc, err := r.GetDoc(ctx, slug)
	if err != nil {
		return err
	}
	entry := docstore.TrashEntry{Document: *doc, TrashedAt: trashedAt}
	b, err := json.Marshal(&entry)
	if err != nil {
		return wrapErr("redis encode trash entry", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.trashKey(slug, trashedAt), b, 0)
		p.SAdd(ctx, r.trashIndex(), r.trashKey(slug, trashedAt))
		p.Del(ctx, r.docKey(slug))
		p.SRem(ctx, r.docsIndex(), r.docKey(slug))
		return nil
	})
	if err != nil {
		return wrapErr("redis trash", err)
	}
	return nil
}

func (r *RedisStore) listTrash(ctx context.Context) ([]docstore.TrashEntry, error) {
	keys, err := r.client.SMembers(ctx, r.trashIndex()).Result()
	if err != nil {
		return nil, wrapErr("redis list trash", err)
	}
	return mgetJSON[docstore.TrashEntry](ctx, r, keys)
}

func (r *RedisStore) ListTrash(ctx context.Context) ([]docstore.TrashEntry, error) {
	out, err := r.listTrash(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrashedAt > out[j].TrashedAt })
	return out, nil
}

func (r *RedisStore) GetTrashEntry(ctx context.Context, slug string, trashedAt int64) (*docstore.TrashEntry, error) {
	var e docstore.TrashEntry
	if err := r.getJSON(ctx, r.trashKey(slug, trashedAt), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RedisStore) RestoreFromTrash(ctx context.Context, slug string, now time.Time) (*docstore.Document, error) {
	entries, err := r.listTrash(ctx)
	if err != nil {
		return nil, err
	}
	var found *docstore.TrashEntry
	for i := range entries {
		if entries[i].Slug == slug {
			found = &entries[i]
			break
		}
	}
	if found == nil {
		return nil, docstore.ErrNotFoundInTrash
	}
	n, err := r.client.Exists(ctx, r.docKey(slug)).Result()
	if err != nil {
		return nil, wrapErr("redis exists", err)
	}
	if n > 0 {
		return nil, docstore.ErrConflict
	}
	doc := found.Document
	doc.UpdatedAt = now
	b, err := json.Marshal(&doc)
	if err != nil {
		return nil, wrapErr("redis encode document", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.docKey(slug), b, 0)
		p.SAdd(ctx, r.docsIndex(), r.docKey(slug))
		p.Del(ctx, r.trashKey(slug, found.TrashedAt))
		p.SRem(ctx, r.trashIndex(), r.trashKey(slug, found.TrashedAt))
		return nil
	})
	if err != nil {
		return nil, wrapErr("redis restore", err)
	}
	return &doc, nil
}

func (r *RedisStore) PurgeTrash(ctx context.Context, slug string, trashedAt int64) error {
	n, err := r.client.Exists(ctx, r.trashKey(slug, trashedAt)).Result()
	if err != nil {
		return wrapErr("redis exists", err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.trashKey(slug, trashedAt))
		p.SRem(ctx, r.trashIndex(), r.trashKey(slug, trashedAt))
		return nil
	})
	if err != nil {
		return wrapErr("redis purge", err)
	}
	return nil
}

func (r *RedisStore) AppendVersion(ctx context.Context, v *docstore.Version) error {
	b, err := json.Marshal(v)
	if err != nil {
		return wrapErr("redis encode version", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.versionKey(v.Slug, v.ID), b, 0)
		p.RPush(ctx, r.versionsIndex(v.Slug), r.versionKey(v.Slug, v.ID))
		return nil
	})
	if err != nil {
		return wrapErr("redis append version", err)
	}
	return nil
}

func (r *RedisStore) ListVersions(ctx context.Context, slug string) ([]docstore.Version, error) {
	keys, err := r.client.LRange(ctx, r.versionsIndex(slug), 0, -1).Result()
	if err != nil {
		return nil, wrapErr("redis list versions", err)
	}
	out, err := mgetJSON[docstore.Version](ctx, r, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *RedisStore) GetVersion(ctx context.Context, slug string, id int64) (*docstore.Version, error) {
	var v docstore.Version
	if err := r.getJSON(ctx, r.versionKey(slug, id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *RedisStore) NextVersionID(ctx context.Context, slug string) (int64, error) {
	id, err := r.client.Incr(ctx, r.versionSeq(slug)).Result()
	if err != nil {
		return 0, wrapErr("redis version counter", err)
	}
	return id, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", docstore.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

var _ Backend = (*RedisStore)(nil)
