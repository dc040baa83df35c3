package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mdvault/mdvault/internal/docstore"
)

// FSStore persists documents as plain files under a single docs directory:
//
//	<root>/<slug>.md                    raw content
//	<root>/.meta/<slug>.json            metadata sidecar (written before content)
//	<root>/.trash/<slug>_<ms>.md        trashed content
//	<root>/.trash/.meta/<slug>_<ms>.json
//	<root>/.versions/<slug>/<id>.json   version snapshots
//	<root>/.versions/<slug>/seq         monotonic version counter
//
// A document is active exactly when its content file exists; rename of the
// content file is the commit point for every transition, so readers never
// observe partial state. Metadata is decoded from the JSON sidecars, never
// derived from content or filenames.
type FSStore struct {
	root string
}

const (
	metaDir     = ".meta"
	trashDir    = ".trash"
	versionsDir = ".versions"
	seqFile     = "seq"
)

type docMeta struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type trashMeta struct {
	docMeta
	TrashedAt int64 `json:"trashedAt"`
}

// NewFSStore creates the directory layout under root and returns the store.
func NewFSStore(root string) (*FSStore, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, metaDir),
		filepath.Join(root, trashDir),
		filepath.Join(root, trashDir, metaDir),
		filepath.Join(root, versionsDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrapErr("fs mkdir", err)
		}
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) docPath(slug string) string {
	return filepath.Join(s.root, slug+".md")
}

func (s *FSStore) docMetaPath(slug string) string {
	return filepath.Join(s.root, metaDir, slug+".json")
}

func (s *FSStore) trashPath(slug string, ts int64) string {
	return filepath.Join(s.root, trashDir, slug+"_"+strconv.FormatInt(ts, 10)+".md")
}

func (s *FSStore) trashMetaPath(slug string, ts int64) string {
	return filepath.Join(s.root, trashDir, metaDir, slug+"_"+strconv.FormatInt(ts, 10)+".json")
}

func (s *FSStore) versionDir(slug string) string {
	return filepath.Join(s.root, versionsDir, slug)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place, replacing any existing file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// writeFileExclusive publishes data at path only if path does not yet exist.
// The content is written to a temp file and hard-linked into place: link
// fails with EEXIST when the target exists, which makes the existence check
// and the (full-content) publish a single atomic step.
func writeFileExclusive(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Link(name, path)
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, b)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *FSStore) CreateDoc(ctx context.Context, doc *docstore.Document) error {
	// check before touching the sidecar so a conflicting create cannot
	// clobber the existing document's metadata
	if _, err := os.Stat(s.docPath(doc.Slug)); err == nil {
		return docstore.ErrConflict
	} else if !errors.Is(err, os.ErrNotExist) {
		return wrapErr("fs stat content", err)
	}
	meta := docMeta{
		Slug:        doc.Slug,
		Title:       doc.Title,
		Description: doc.Description,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if err := writeJSONAtomic(s.docMetaPath(doc.Slug), meta); err != nil {
		return wrapErr("fs write metadata", err)
	}
	err := writeFileExclusive(s.docPath(doc.Slug), []byte(doc.Content))
	if errors.Is(err, os.ErrExist) {
		return docstore.ErrConflict
	}
	if err != nil {
		return wrapErr("fs write content", err)
	}
	return nil
}

func (s *FSStore) GetDoc(ctx context.Context, slug string) (*docstore.Document, error) {
	content, err := os.ReadFile(s.docPath(slug))
	if errors.Is(err, os.ErrNotExist) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("fs read content", err)
	}
	var meta docMeta
	if err := readJSON(s.docMetaPath(slug), &meta); err != nil {
		return nil, wrapErr("fs read metadata", err)
	}
	return &docstore.Document{
		Slug:        meta.Slug,
		Title:       meta.Title,
		Description: meta.Description,
		Content:     string(content),
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
	}, nil
}

func (s *FSStore) PutDoc(ctx context.Context, doc *docstore.Document) error {
	if _, err := os.Stat(s.docPath(doc.Slug)); errors.Is(err, os.ErrNotExist) {
		return docstore.ErrNotFound
	} else if err != nil {
		return wrapErr("fs stat content", err)
	}
	meta := docMeta{
		Slug:        doc.Slug,
		Title:       doc.Title,
		Description: doc.Description,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if err := writeJSONAtomic(s.docMetaPath(doc.Slug), meta); err != nil {
		return wrapErr("fs write metadata", err)
	}
	if err := writeFileAtomic(s.docPath(doc.Slug), []byte(doc.Content)); err != nil {
		return wrapErr("fs write content", err)
	}
	return nil
}

func (s *FSStore) ListDocs(ctx context.Context) ([]docstore.DocumentMeta, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, metaDir))
	if err != nil {
		return nil, wrapErr("fs list metadata", err)
	}
	out := make([]docstore.DocumentMeta, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var meta docMeta
		if err := readJSON(filepath.Join(s.root, metaDir, e.Name()), &meta); err != nil {
			return nil, wrapErr("fs read metadata", err)
		}
		// a sidecar without content is a leftover from a crashed transition
		fi, err := os.Stat(s.docPath(meta.Slug))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, wrapErr("fs stat content", err)
		}
		out = append(out, docstore.DocumentMeta{
			Slug:        meta.Slug,
			Title:       meta.Title,
			Description: meta.Description,
			Size:        fi.Size(),
			CreatedAt:   meta.CreatedAt,
			UpdatedAt:   meta.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *FSStore) MoveToTrash(ctx context.Context, slug string, trashedAt int64) error {
	var meta docMeta
	if err := readJSON(s.docMetaPath(slug), &meta); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return docstore.ErrNotFound
		}
		return wrapErr("fs read metadata", err)
	}
	tm := trashMeta{docMeta: meta, TrashedAt: trashedAt}
	if err := writeJSONAtomic(s.trashMetaPath(slug, trashedAt), tm); err != nil {
		return wrapErr("fs write trash metadata", err)
	}
	// the rename is the commit point: the document leaves the active set and
	// enters the trash in one step
	err := os.Rename(s.docPath(slug), s.trashPath(slug, trashedAt))
	if errors.Is(err, os.ErrNotExist) {
		os.Remove(s.trashMetaPath(slug, trashedAt))
		return docstore.ErrNotFound
	}
	if err != nil {
		return wrapErr("fs trash rename", err)
	}
	os.Remove(s.docMetaPath(slug))
	return nil
}

// listTrashMeta decodes every trash sidecar whose content file still exists.
func (s *FSStore) listTrashMeta() ([]trashMeta, error) {
	dir := filepath.Join(s.root, trashDir, metaDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapErr("fs list trash", err)
	}
	out := make([]trashMeta, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var tm trashMeta
		if err := readJSON(filepath.Join(dir, e.Name()), &tm); err != nil {
			return nil, wrapErr("fs read trash metadata", err)
		}
		if _, err := os.Stat(s.trashPath(tm.Slug, tm.TrashedAt)); errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, wrapErr("fs stat trash content", err)
		}
		out = append(out, tm)
	}
	return out, nil
}

// trashEntry reads the entry's content file. The raw read error is returned
// so callers can distinguish a missing file from an I/O failure.
func (s *FSStore) trashEntry(tm trashMeta) (*docstore.TrashEntry, error) {
	content, err := os.ReadFile(s.trashPath(tm.Slug, tm.TrashedAt))
	if err != nil {
		return nil, err
	}
	return &docstore.TrashEntry{
		Document: docstore.Document{
			Slug:        tm.Slug,
			Title:       tm.Title,
			Description: tm.Description,
			Content:     string(content),
			CreatedAt:   tm.CreatedAt,
			UpdatedAt:   tm.UpdatedAt,
		},
		TrashedAt: tm.TrashedAt,
	}, nil
}

func (s *FSStore) ListTrash(ctx context.Context) ([]docstore.TrashEntry, error) {
	metas, err := s.listTrashMeta()
	if err != nil {
		return nil, err
	}
	out := make([]docstore.TrashEntry, 0, len(metas))
	for _, tm := range metas {
		e, err := s.trashEntry(tm)
		if errors.Is(err, os.ErrNotExist) {
			// entry purged between the sidecar scan and the content read
			continue
		}
		if err != nil {
			return nil, wrapErr("fs read trash content", err)
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrashedAt > out[j].TrashedAt })
	return out, nil
}

func (s *FSStore) GetTrashEntry(ctx context.Context, slug string, trashedAt int64) (*docstore.TrashEntry, error) {
	var tm trashMeta
	if err := readJSON(s.trashMetaPath(slug, trashedAt), &tm); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, docstore.ErrNotFound
		}
		return nil, wrapErr("fs read trash metadata", err)
	}
	e, err := s.trashEntry(tm)
	if errors.Is(err, os.ErrNotExist) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("fs read trash content", err)
	}
	return e, nil
}

func (s *FSStore) RestoreFromTrash(ctx context.Context, slug string, now time.Time) (*docstore.Document, error) {
	metas, err := s.listTrashMeta()
	if err != nil {
		return nil, err
	}
	var found *trashMeta
	for i := range metas {
		if metas[i].Slug == slug {
			found = &metas[i]
			break
		}
	}
	if found == nil {
		return nil, docstore.ErrNotFoundInTrash
	}
	if _, err := os.Stat(s.docPath(slug)); err == nil {
		return nil, docstore.ErrConflict
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, wrapErr("fs stat content", err)
	}
	meta := found.docMeta
	meta.UpdatedAt = now
	if err := writeJSONAtomic(s.docMetaPath(slug), meta); err != nil {
		return nil, wrapErr("fs write metadata", err)
	}
	if err := os.Rename(s.trashPath(slug, found.TrashedAt), s.docPath(slug)); err != nil {
		return nil, wrapErr("fs restore rename", err)
	}
	os.Remove(s.trashMetaPath(slug, found.TrashedAt))
	return s.GetDoc(ctx, slug)
}

func (s *FSStore) PurgeTrash(ctx context.Context, slug string, trashedAt int64) error {
	err := os.Remove(s.trashPath(slug, trashedAt))
	if errors.Is(err, os.ErrNotExist) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return wrapErr("fs purge", err)
	}
	os.Remove(s.trashMetaPath(slug, trashedAt))
	return nil
}

func (s *FSStore) AppendVersion(ctx context.Context, v *docstore.Version) error {
	dir := s.versionDir(v.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapErr("fs mkdir versions", err)
	}
	path := filepath.Join(dir, strconv.FormatInt(v.ID, 10)+".json")
	b, err := json.Marshal(v)
	if err != nil {
		return wrapErr("fs encode version", err)
	}
	// versions are immutable: refuse to replace an existing snapshot
	if err := writeFileExclusive(path, b); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: fs version %d already written", docstore.ErrBackendUnavailable, v.ID)
		}
		return wrapErr("fs write version", err)
	}
	return nil
}

func (s *FSStore) ListVersions(ctx context.Context, slug string) ([]docstore.Version, error) {
	entries, err := os.ReadDir(s.versionDir(slug))
	if errors.Is(err, os.ErrNotExist) {
		return []docstore.Version{}, nil
	}
	if err != nil {
		return nil, wrapErr("fs list versions", err)
	}
	out := make([]docstore.Version, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var v docstore.Version
		if err := readJSON(filepath.Join(s.versionDir(slug), e.Name()), &v); err != nil {
			return nil, wrapErr("fs read version", err)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *FSStore) GetVersion(ctx context.Context, slug string, id int64) (*docstore.Version, error) {
	var v docstore.Version
	err := readJSON(filepath.Join(s.versionDir(slug), strconv.FormatInt(id, 10)+".json"), &v)
	if errors.Is(err, os.ErrNotExist) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("fs read version", err)
	}
	return &v, nil
}

func (s *FSStore) NextVersionID(ctx context.Context, slug string) (int64, error) {
	dir := s.versionDir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, wrapErr("fs mkdir versions", err)
	}
	path := filepath.Join(dir, seqFile)
	var cur int64
	b, err := os.ReadFile(path)
	if err == nil {
		cur, err = strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			return 0, wrapErr("fs parse version counter", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, wrapErr("fs read version counter", err)
	}
	next := cur + 1
	if err := writeFileAtomic(path, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, wrapErr("fs write version counter", err)
	}
	return next, nil
}

func (s *FSStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return wrapErr("fs ping", err)
	}
	return nil
}

func (s *FSStore) Close() error { return nil }

var _ Backend = (*FSStore)(nil)
