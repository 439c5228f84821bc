package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore persists stage artifacts under a flat directory.
type BlobStore interface {
	Exists(name string) (bool, error)
	PutObject(ctx context.Context, name string, data []byte) (string, error)
}

// ArtifactStore is a BlobStore that can also enumerate, read and delete its
// artifacts.
type ArtifactStore interface {
	BlobStore
	ReadObject(name string) ([]byte, error)
	List(ext string) ([]string, error)
	Remove(name string) error
}

// RetryPolicy decides whether and when a failed fetch is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Pauser blocks for politeness delays between requests.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
