package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Metadata describes a stored feed snapshot
type Metadata struct {
	ContentType  string            `json:"contentType,omitempty"`
	OriginalName string            `json:"originalName,omitempty"`
	TenantID     string            `json:"tenantId,omitempty"`
	FeedID       string            `json:"feedId,omitempty"`
	SourceURL    string            `json:"sourceUrl,omitempty"`
	RetrievedAt  time.Time         `json:"retrievedAt,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// Storage defines the operations the snapshot archive needs.
// Implementations are the local filesystem and S3.
type Storage interface {
	// Put stores content at the given key with optional metadata
	Put(ctx context.Context, key string, content []byte, metadata *Metadata) error

	// Get retrieves content from the given key
	Get(ctx context.Context, key string) ([]byte, error)

	Exists(ctx context.Context, key string) (bool, error)

	Delete(ctx context.Context, key string) error

	// List returns all keys under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)
}

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// SnapshotKey builds the archive key of a retrieved payload:
// feeds/<tenant>/<feed>/<yyyy>/<mm>/<dd>/<unix>.<ext>
func SnapshotKey(tenantID, feedID string, at time.Time, ext string) string {
	at = at.UTC()
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("feeds", tenantID, feedID, at.Format("2006/01/02"), fmt.Sprintf("%d%s", at.Unix(), ext))
}

// FeedPrefix is the key prefix of every snapshot of one feed.
func FeedPrefix(tenantID, feedID string) string {
	return path.Join("feeds", tenantID, feedID) + "/"
}
