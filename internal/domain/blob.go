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
	LastModified time.Time `json:"last_modified"`
}

// BlobStore is the object storage holding alert archives and rendered
// charts. PutLarge streams bodies too big for a single request.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	PutLarge(ctx context.Context, key string, body io.Reader, contentType string) error
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Archiver copies alerts older than a cutoff to cold storage and reports
// how many it wrote. Deleting them is left to the caller.
type Archiver interface {
	ArchiveAlerts(ctx context.Context, before time.Time) (int64, error)
}

// ChartRenderer draws a trend chart for the given symbols as PNG bytes.
type ChartRenderer interface {
	Render(ctx context.Context, period Period, symbols []string) ([]byte, error)
}
