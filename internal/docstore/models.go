// Package docstore defines the persistent document model shared by every
// storage backend: active documents, trash entries and version snapshots.
package docstore

import "time"

// Document is a slug-addressed text document. Slug uniqueness holds only
// among active (non-trashed) documents; metadata is computed at write time
// and persisted alongside the content by every backend.
type Document struct {
	Slug        string    `json:"slug" bson:"slug"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Content     string    `json:"content,omitempty" bson:"content"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// DocumentMeta carries listing metadata without content.
type DocumentMeta struct {
	Slug        string    `json:"slug" bson:"slug"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Size        int64     `json:"size" bson:"size"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// TrashEntry is a soft-deleted document. Its identity is the composite key
// (Slug, TrashedAt): the same slug can be deleted, restored and deleted again,
// producing multiple entries that are addressed independently.
type TrashEntry struct {
	Document  `bson:",inline"`
	TrashedAt int64 `json:"trashedAt" bson:"trashedAt"` // unix milliseconds
}

// Version is one immutable snapshot in a document's append-only history.
// IDs increase monotonically per document; ParentID is set only on versions
// appended by a revert and points at the version whose content was restored.
type Version struct {
	ID        int64     `json:"id" bson:"id"`
	Slug      string    `json:"slug" bson:"slug"`
	Content   string    `json:"content,omitempty" bson:"content"`
	Message   string    `json:"message,omitempty" bson:"message,omitempty"`
	Author    string    `json:"author,omitempty" bson:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	ParentID  *int64    `json:"parentId,omitempty" bson:"parentId,omitempty"`
}

// Meta derives listing metadata from a full document.
func (d *Document) Meta() DocumentMeta {
	return DocumentMeta{
		Slug:        d.Slug,
		Title:       d.Title,
		Description: d.Description,
		Size:        int64(len(d.Content)),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
