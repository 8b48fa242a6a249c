package blobstore

import (
	"context"
	"io"
	"time"
)

// Blob describes one stored object: the provider-tracked attributes plus the
// user-defined metadata map. The JSON shape is the API wire format.
type Blob struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Size            int64             `json:"size"`
	ContentType     string            `json:"contentType"`
	ContentEncoding string            `json:"contentEncoding"`
	ContentLanguage string            `json:"contentLanguage"`
	CacheControl    string            `json:"cacheControl"`
	BlobType        string            `json:"blobType"`
	LastModified    *time.Time        `json:"lastModified"`
	CreationTime    *time.Time        `json:"creationTime"`
	ETag            string            `json:"etag"`
	Metadata        map[string]string `json:"metadata"`
	BlobPath        string            `json:"blob_path"`
}

// Store is the storage client adapter: it translates API operations into
// calls against one configured container of an external blob store.
// Implementations must be safe for concurrent use; every call is a direct
// pass-through with no caching or retries beyond the provider SDK's own.
type Store interface {
	// List returns every blob in the container with attributes and metadata.
	List(ctx context.Context) ([]Blob, error)

	// Get returns one blob's attributes and metadata.
	Get(ctx context.Context, name string) (Blob, error)

	// Upload creates or overwrites the named blob from the reader.
	// Overwriting replaces content AND resets metadata.
	Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Blob, error)

	// SetMetadata replaces the blob's entire metadata map. Keys not present in
	// md are removed; content bytes and content type are untouched.
	SetMetadata(ctx context.Context, name string, md map[string]string) (Blob, error)

	// Open returns the blob content stream along with its attributes.
	// The caller must close the reader.
	Open(ctx context.Context, name string) (io.ReadCloser, Blob, error)

	// Delete removes the blob and all its metadata. Deleting an absent blob
	// is an error (not found), not a no-op.
	Delete(ctx context.Context, name string) error

	// SignedURL returns a time-limited read URL for the blob's bytes.
	SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error)

	// Ping performs a lightweight storage call to verify connectivity.
	Ping(ctx context.Context) error

	// EnsureContainer creates the configured container if it does not exist.
	EnsureContainer(ctx context.Context) error

	// Container returns the configured container name.
	Container() string
}
