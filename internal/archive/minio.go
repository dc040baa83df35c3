// Package archive copies purged trash entries to object storage so that a
// "permanent" purge still leaves an operator-recoverable audit object
// out-of-band. Archival is optional; the store runs without it.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mdvault/mdvault/internal/docstore"
)

// MinIOArchiver uploads trash entries to a MinIO/S3 bucket.
type MinIOArchiver struct {
	client *minio.Client
	bucket string
}

// Config holds object-storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewMinIOArchiver creates the client and ensures the bucket exists.
func NewMinIOArchiver(cfg Config) (*MinIOArchiver, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	a := &MinIOArchiver{client: mc, bucket: cfg.Bucket}
	// ensure bucket exists (idempotent)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, a.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return a, nil
}

// ArchiveTrashEntry uploads the entry as JSON under
// trash/<slug>_<trashedAt>.json. Failures propagate to the caller, which
// aborts the purge rather than destroy the only copy.
func (a *MinIOArchiver) ArchiveTrashEntry(ctx context.Context, e *docstore.TrashEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode trash entry: %w", err)
	}
	key := "trash/" + e.Slug + "_" + strconv.FormatInt(e.TrashedAt, 10) + ".json"
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}
