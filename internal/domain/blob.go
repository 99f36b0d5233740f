package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// OrderArchiver moves orders that left the book to cold storage.
type OrderArchiver interface {
	// ArchiveOrders writes orders under reason and returns the object path.
	ArchiveOrders(ctx context.Context, reason string, orders []Order) (string, error)
	ListArchives(ctx context.Context, reason string) ([]BlobInfo, error)
	// ReadArchive decodes the orders stored at path. Paths outside the
	// archive yield ErrNotFound.
	ReadArchive(ctx context.Context, path string) ([]Order, error)
}
