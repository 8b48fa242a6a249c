package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/errors"
)

type memoryBlob struct {
	data        []byte
	contentType string
	metadata    map[string]string
	etag        string
	created     time.Time
	modified    time.Time
}

// MemoryStore is an in-memory Store implementation used for local development
// without a storage account and as the test double for the Azure store.
// It mirrors provider semantics: overwrite resets metadata, metadata updates
// replace the whole map, deleting an absent blob is not found.
type MemoryStore struct {
	mu        sync.RWMutex
	blobs     map[string]*memoryBlob
	container string
	failErr   error
}

// NewMemoryStore creates an empty in-memory store for the given container name.
func NewMemoryStore(containerName string) *MemoryStore {
	return &MemoryStore{
		blobs:     make(map[string]*memoryBlob),
		container: containerName,
	}
}

// FailWith makes every subsequent call return err, simulating a storage
// outage. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MemoryStore) outage() error {
	if m.failErr != nil {
		return apperrors.NewStorageUnavailableError("Storage is unavailable", m.failErr)
	}
	return nil
}

// Container returns the configured container name.
func (m *MemoryStore) Container() string {
	return m.container
}

func (m *MemoryStore) record(name string, b *memoryBlob) Blob {
	created := b.created
	modified := b.modified
	return Blob{
		ID:           name,
		Name:         path.Base(name),
		Size:         int64(len(b.data)),
		ContentType:  b.contentType,
		BlobType:     "BlockBlob",
		LastModified: &modified,
		CreationTime: &created,
		ETag:         b.etag,
		Metadata:     copyMetadata(b.metadata),
		BlobPath:     fmt.Sprintf("%s/%s", m.container, name),
	}
}

// List returns all blobs sorted by name.
func (m *MemoryStore) List(ctx context.Context) ([]Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.outage(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	sort.Strings(names)

	blobs := make([]Blob, 0, len(names))
	for _, name := range names {
		blobs = append(blobs, m.record(name, m.blobs[name]))
	}
	return blobs, nil
}

// Get returns one blob's attributes and metadata.
func (m *MemoryStore) Get(ctx context.Context, name string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.outage(); err != nil {
		return Blob{}, err
	}

	b, ok := m.blobs[name]
	if !ok {
		return Blob{}, apperrors.NewNotFoundError(fmt.Sprintf("Blob %q not found", name))
	}
	return m.record(name, b), nil
}

// Upload creates or overwrites the blob. Overwriting resets metadata,
// matching provider behavior.
func (m *MemoryStore) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Blob, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Blob{}, apperrors.FromError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.outage(); err != nil {
		return Blob{}, err
	}

	now := time.Now().UTC()
	created := now
	if prev, ok := m.blobs[name]; ok {
		created = prev.created
	}
	b := &memoryBlob{
		data:        data,
		contentType: contentType,
		metadata:    map[string]string{},
		etag:        uuid.New().String(),
		created:     created,
		modified:    now,
	}
	m.blobs[name] = b
	return m.record(name, b), nil
}

// SetMetadata replaces the blob's metadata map wholesale.
func (m *MemoryStore) SetMetadata(ctx context.Context, name string, md map[string]string) (Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.outage(); err != nil {
		return Blob{}, err
	}

	b, ok := m.blobs[name]
	if !ok {
		return Blob{}, apperrors.NewNotFoundError(fmt.Sprintf("Blob %q not found", name))
	}
	b.metadata = copyMetadata(md)
	b.etag = uuid.New().String()
	b.modified = time.Now().UTC()
	return m.record(name, b), nil
}

// Open returns the content stream and attributes.
func (m *MemoryStore) Open(ctx context.Context, name string) (io.ReadCloser, Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.outage(); err != nil {
		return nil, Blob{}, err
	}

	b, ok := m.blobs[name]
	if !ok {
		return nil, Blob{}, apperrors.NewNotFoundError(fmt.Sprintf("Blob %q not found", name))
	}
	return io.NopCloser(bytes.NewReader(b.data)), m.record(name, b), nil
}

// Delete removes the blob; absent blobs report not found.
func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.outage(); err != nil {
		return err
	}

	if _, ok := m.blobs[name]; !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("Blob %q not found", name))
	}
	delete(m.blobs, name)
	return nil
}

// SignedURL returns a fake time-limited URL.
func (m *MemoryStore) SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.outage(); err != nil {
		return "", err
	}

	if _, ok := m.blobs[name]; !ok {
		return "", apperrors.NewNotFoundError(fmt.Sprintf("Blob %q not found", name))
	}
	exp := time.Now().UTC().Add(expiry).Unix()
	return fmt.Sprintf("memory://%s/%s?se=%d&sp=r", m.container, name, exp), nil
}

// Ping reports the simulated outage if one is set.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outage()
}

// EnsureContainer is a no-op for the in-memory store.
func (m *MemoryStore) EnsureContainer(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.outage()
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
