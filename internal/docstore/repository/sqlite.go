package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// register the pure-Go sqlite driver
	_ "modernc.org/sqlite"

	"github.com/mdvault/mdvault/internal/docstore"
)

// SQLStore implements Backend on SQLite. Documents, trash entries and
// versions live in explicit tables; transitions that touch two tables run
// inside a transaction. WAL mode lets readers proceed while a writer holds
// the database, and the busy timeout prevents spurious "database is locked"
// failures under concurrent access.
type SQLStore struct {
	db *sql.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS documents (
	slug        TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trash (
	slug        TEXT NOT NULL,
	trashed_at  INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (slug, trashed_at)
);
CREATE TABLE IF NOT EXISTS versions (
	slug       TEXT NOT NULL,
	id         INTEGER NOT NULL,
	content    TEXT NOT NULL,
	message    TEXT NOT NULL DEFAULT '',
	author     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	parent_id  INTEGER,
	PRIMARY KEY (slug, id)
);
CREATE TABLE IF NOT EXISTS version_counters (
	slug TEXT PRIMARY KEY,
	seq  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trash_slug ON trash(slug);
`

// NewSQLStore opens (or creates) the SQLite database at path, applies the
// pragmas and ensures the schema exists.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapErr("sqlite open", err)
	}
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`PRAGMA synchronous=NORMAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, wrapErr("sqlite pragma", err)
		}
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, wrapErr("sqlite schema", err)
	}
	return &SQLStore{db: db}, nil
}

// tx runs fn inside a transaction, committing on nil and rolling back on
// error or panic.
func (s *SQLStore) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("sqlite begin", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr("sqlite commit", err)
	}
	return nil
}

func (s *SQLStore) CreateDoc(ctx context.Context, doc *docstore.Document) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE slug = ?`, doc.Slug).Scan(&exists)
		if err != nil {
			return wrapErr("sqlite create check", err)
		}
		if exists > 0 {
			return docstore.ErrConflict
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO documents (slug, title, description, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			doc.Slug, doc.Title, doc.Description, doc.Content,
			doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli())
		if err != nil {
			return wrapErr("sqlite insert document", err)
		}
		return nil
	})
}

type docScanner interface {
	Scan(dest ...any) error
}

func scanSQLDoc(sc docScanner) (docstore.Document, error) {
	var d docstore.Document
	var created, updated int64
	if err := sc.Scan(&d.Slug, &d.Title, &d.Description, &d.Content, &created, &updated); err != nil {
		return d, err
	}
	d.CreatedAt = time.UnixMilli(created).UTC()
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return d, nil
}

func (s *SQLStore) GetDoc(ctx context.Context, slug string) (*docstore.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT slug, title, description, content, created_at, updated_at
		FROM documents WHERE slug = ?`, slug)
	d, err := scanSQLDoc(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("sqlite get document", err)
	}
	return &d, nil
}

func (s *SQLStore) PutDoc(ctx context.Context, doc *docstore.Document) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET title = ?, description = ?, content = ?, created_at = ?, updated_at = ?
		WHERE slug = ?`,
		doc.Title, doc.Description, doc.Content,
		doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli(), doc.Slug)
	if err != nil {
		return wrapErr("sqlite update document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("sqlite update document", err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListDocs(ctx context.Context) ([]docstore.DocumentMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, title, description, LENGTH(content), created_at, updated_at
		FROM documents ORDER BY created_at DESC, slug`)
	if err != nil {
		return nil, wrapErr("sqlite list documents", err)
	}
	defer rows.Close()
	out := []docstore.DocumentMeta{}
	for rows.Next() {
		var m docstore.DocumentMeta
		var created, updated int64
		if err := rows.Scan(&m.Slug, &m.Title, &m.Description, &m.Size, &created, &updated); err != nil {
			return nil, wrapErr("sqlite scan document", err)
		}
		m.CreatedAt = time.UnixMilli(created).UTC()
		m.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("sqlite list documents", err)
	}
	return out, nil
}

func (s *SQLStore) MoveToTrash(ctx context.Context, slug string, trashedAt int64) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO trash (slug, trashed_at, title, description, content, created_at, updated_at)
			SELECT slug, ?, title, description, content, created_at, updated_at FROM documents WHERE slug = ?`,
			trashedAt, slug)
		if err != nil {
			return wrapErr("sqlite trash insert", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapErr("sqlite trash insert", err)
		}
		if n == 0 {
			return docstore.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE slug = ?`, slug); err != nil {
			return wrapErr("sqlite trash delete", err)
		}
		return nil
	})
}

func scanSQLTrash(sc docScanner) (docstore.TrashEntry, error) {
	var e docstore.TrashEntry
	var created, updated int64
	if err := sc.Scan(&e.Slug, &e.TrashedAt, &e.Title, &e.Description, &e.Content, &created, &updated); err != nil {
		return e, err
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updated).UTC()
	return e, nil
}

const trashColumns = `slug, trashed_at, title, description, content, created_at, updated_at`

func (s *SQLStore) ListTrash(ctx context.Context) ([]docstore.TrashEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trashColumns+` FROM trash ORDER BY trashed_at DESC, slug`)
	if err != nil {
		return nil, wrapErr("sqlite list trash", err)
	}
	defer rows.Close()
	out := []docstore.TrashEntry{}
	for rows.Next() {
		e, err := scanSQLTrash(rows)
		if err != nil {
			return nil, wrapErr("sqlite scan trash", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("sqlite list trash", err)
	}
	return out, nil
}

func (s *SQLStore) GetTrashEntry(ctx context.Context, slug string, trashedAt int64) (*docstore.TrashEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trashColumns+` FROM trash WHERE slug = ? AND trashed_at = ?`, slug, trashedAt)
	e, err := scanSQLTrash(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("sqlite get trash entry", err)
	}
	return &e, nil
}

func (s *SQLStore) RestoreFromTrash(ctx context.Context, slug string, now time.Time) (*docstore.Document, error) {
	var doc *docstore.Document
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM documents WHERE slug = ?`, slug).Scan(&active); err != nil {
			return wrapErr("sqlite restore check", err)
		}
		row := tx.QueryRowContext(ctx, `SELECT `+trashColumns+` FROM trash WHERE slug = ? ORDER BY trashed_at DESC LIMIT 1`, slug)
		e, err := scanSQLTrash(row)
		if errors.Is(err, sql.ErrNoRows) {
			return docstore.ErrNotFoundInTrash
		}
		if err != nil {
			return wrapErr("sqlite restore select", err)
		}
		if active > 0 {
			return docstore.ErrConflict
		}
		d := e.Document
		d.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents (slug, title, description, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.Slug, d.Title, d.Description, d.Content, d.CreatedAt.UnixMilli(), d.UpdatedAt.UnixMilli()); err != nil {
			return wrapErr("sqlite restore insert", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM trash WHERE slug = ? AND trashed_at = ?`, slug, e.TrashedAt); err != nil {
			return wrapErr("sqlite restore delete", err)
		}
		doc = &d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLStore) PurgeTrash(ctx context.Context, slug string, trashedAt int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trash WHERE slug = ? AND trashed_at = ?`, slug, trashedAt)
	if err != nil {
		return wrapErr("sqlite purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("sqlite purge", err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *SQLStore) AppendVersion(ctx context.Context, v *docstore.Version) error {
	var parent any
	if v.ParentID != nil {
		parent = *v.ParentID
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO versions (slug, id, content, message, author, created_at, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.Slug, v.ID, v.Content, v.Message, v.Author, v.CreatedAt.UnixMilli(), parent)
	if err != nil {
		return wrapErr("sqlite append version", err)
	}
	return nil
}

func scanSQLVersion(sc docScanner) (docstore.Version, error) {
	var v docstore.Version
	var created int64
	var parent sql.NullInt64
	if err := sc.Scan(&v.Slug, &v.ID, &v.Content, &v.Message, &v.Author, &created, &parent); err != nil {
		return v, err
	}
	v.CreatedAt = time.UnixMilli(created).UTC()
	if parent.Valid {
		v.ParentID = &parent.Int64
	}
	return v, nil
}

const versionColumns = `slug, id, content, message, author, created_at, parent_id`

func (s *SQLStore) ListVersions(ctx context.Context, slug string) ([]docstore.Version, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE slug = ? ORDER BY id DESC`, slug)
	if err != nil {
		return nil, wrapErr("sqlite list versions", err)
	}
	defer rows.Close()
	out := []docstore.Version{}
	for rows.Next() {
		v, err := scanSQLVersion(rows)
		if err != nil {
			return nil, wrapErr("sqlite scan version", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("sqlite list versions", err)
	}
	return out, nil
}

func (s *SQLStore) GetVersion(ctx context.Context, slug string, id int64) (*docstore.Version, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE slug = ? AND id = ?`, slug, id)
	v, err := scanSQLVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, wrapErr("sqlite get version", err)
	}
	return &v, nil
}

func (s *SQLStore) NextVersionID(ctx context.Context, slug string) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO version_counters (slug, seq) VALUES (?, 1)
		ON CONFLICT(slug) DO UPDATE SET seq = seq + 1
		RETURNING seq`, slug).Scan(&next)
	if err != nil {
		return 0, wrapErr("sqlite version counter", err)
	}
	return next, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: sqlite ping: %v", docstore.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

var _ Backend = (*SQLStore)(nil)
