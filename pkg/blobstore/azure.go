package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	apperrors "github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/errors"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
)

// AzureStore implements Store against Azure Blob Storage. It holds one
// long-lived authenticated client scoped to a single container; the SDK
// client is safe for concurrent use.
type AzureStore struct {
	client    *azblob.Client
	container string
	logger    logging.Logger
}

// NewAzureStoreFromConnectionString creates a store from a storage account
// connection string (also how Azurite is reached in local development).
func NewAzureStoreFromConnectionString(connStr, containerName string, logger logging.Logger) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}
	return &AzureStore{client: client, container: containerName, logger: logger}, nil
}

// NewAzureStore creates a store from an account name and optional key.
// With an empty key it falls back to DefaultAzureCredential, which covers
// managed identity in Azure environments.
func NewAzureStore(accountName, accountKey, containerName string, logger logging.Logger) (*AzureStore, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)

	var client *azblob.Client
	if accountKey == "" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
	} else {
		cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
	}

	return &AzureStore{client: client, container: containerName, logger: logger}, nil
}

// Container returns the configured container name.
func (s *AzureStore) Container() string {
	return s.container
}

func (s *AzureStore) containerClient() *container.Client {
	return s.client.ServiceClient().NewContainerClient(s.container)
}

func (s *AzureStore) blobClient(name string) *blob.Client {
	return s.containerClient().NewBlobClient(name)
}

// mapError translates provider error codes into the API error taxonomy.
func (s *AzureStore) mapError(err error, name string) error {
	if err == nil {
		return nil
	}
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return apperrors.NewNotFoundError(fmt.Sprintf("Blob %q not found", name))
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure, bloberror.ServerBusy):
		return apperrors.NewStorageUnavailableError("Storage is unavailable", err)
	}

	// Without a ResponseError the service was never reached: dial failures,
	// DNS errors, and timeouts all land here.
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return apperrors.NewStorageUnavailableError("Storage is unavailable", err)
	}

	return apperrors.FromError(err)
}

// List returns all blobs in the container with their metadata.
func (s *AzureStore) List(ctx context.Context) ([]Blob, error) {
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Include: azblob.ListBlobsInclude{Metadata: true},
	})

	blobs := []Blob{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			s.logger.Error("Failed to list blobs", logging.NewField("error", err))
			return nil, s.mapError(err, "")
		}

		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			b := Blob{
				ID:       *item.Name,
				Name:     path.Base(*item.Name),
				Metadata: fromAzureMetadata(item.Metadata),
				BlobPath: fmt.Sprintf("%s/%s", s.container, *item.Name),
			}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					b.Size = *p.ContentLength
				}
				b.ContentType = deref(p.ContentType)
				b.ContentEncoding = deref(p.ContentEncoding)
				b.ContentLanguage = deref(p.ContentLanguage)
				b.CacheControl = deref(p.CacheControl)
				b.LastModified = p.LastModified
				b.CreationTime = p.CreationTime
				if p.ETag != nil {
					b.ETag = string(*p.ETag)
				}
				if p.BlobType != nil {
					b.BlobType = string(*p.BlobType)
				}
			}
			blobs = append(blobs, b)
		}
	}

	return blobs, nil
}

// Get returns one blob's attributes and metadata.
func (s *AzureStore) Get(ctx context.Context, name string) (Blob, error) {
	props, err := s.blobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return Blob{}, s.mapError(err, name)
	}

	b := Blob{
		ID:              name,
		Name:            path.Base(name),
		ContentType:     deref(props.ContentType),
		ContentEncoding: deref(props.ContentEncoding),
		ContentLanguage: deref(props.ContentLanguage),
		CacheControl:    deref(props.CacheControl),
		LastModified:    props.LastModified,
		CreationTime:    props.CreationTime,
		Metadata:        fromAzureMetadata(props.Metadata),
		BlobPath:        fmt.Sprintf("%s/%s", s.container, name),
	}
	if props.ContentLength != nil {
		b.Size = *props.ContentLength
	}
	if props.ETag != nil {
		b.ETag = string(*props.ETag)
	}
	if props.BlobType != nil {
		b.BlobType = string(*props.BlobType)
	}
	return b, nil
}

// Upload streams content into the named blob, creating or overwriting it.
// Size is advisory; the stream is chunked by the SDK.
func (s *AzureStore) Upload(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Blob, error) {
	logger := s.logger.With(
		logging.NewField("operation", "blob.upload"),
		logging.NewField("blob", name),
		logging.NewField("size", size),
	)

	_, err := s.client.UploadStream(ctx, s.container, name, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		logger.Error("Failed to upload blob", logging.NewField("error", err))
		return Blob{}, s.mapError(err, name)
	}

	logger.Info("Blob uploaded")
	return s.Get(ctx, name)
}

// SetMetadata replaces the blob's metadata map in full. Content bytes and
// content type are not touched by the provider's Set Blob Metadata call.
func (s *AzureStore) SetMetadata(ctx context.Context, name string, md map[string]string) (Blob, error) {
	_, err := s.blobClient(name).SetMetadata(ctx, toAzureMetadata(md), nil)
	if err != nil {
		s.logger.Error("Failed to set blob metadata",
			logging.NewField("blob", name),
			logging.NewField("error", err),
		)
		return Blob{}, s.mapError(err, name)
	}
	return s.Get(ctx, name)
}

// Open returns the blob's content stream with its attributes.
func (s *AzureStore) Open(ctx context.Context, name string) (io.ReadCloser, Blob, error) {
	resp, err := s.blobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, Blob{}, s.mapError(err, name)
	}

	b := Blob{
		ID:              name,
		Name:            path.Base(name),
		ContentType:     deref(resp.ContentType),
		ContentEncoding: deref(resp.ContentEncoding),
		ContentLanguage: deref(resp.ContentLanguage),
		CacheControl:    deref(resp.CacheControl),
		LastModified:    resp.LastModified,
		Metadata:        fromAzureMetadata(resp.Metadata),
		BlobPath:        fmt.Sprintf("%s/%s", s.container, name),
	}
	if resp.ContentLength != nil {
		b.Size = *resp.ContentLength
	}
	if resp.ETag != nil {
		b.ETag = string(*resp.ETag)
	}
	if resp.BlobType != nil {
		b.BlobType = string(*resp.BlobType)
	}
	return resp.Body, b, nil
}

// Delete removes the blob. An absent blob surfaces as not found.
func (s *AzureStore) Delete(ctx context.Context, name string) error {
	_, err := s.blobClient(name).Delete(ctx, nil)
	if err != nil {
		return s.mapError(err, name)
	}
	s.logger.Info("Blob deleted", logging.NewField("blob", name))
	return nil
}

// SignedURL returns a read-only SAS URL. Requires the client to hold shared
// key credentials; token-credential clients cannot sign account SAS.
func (s *AzureStore) SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	url, err := s.blobClient(name).GetSASURL(
		sas.BlobPermissions{Read: true},
		time.Now().UTC().Add(expiry),
		nil,
	)
	if err != nil {
		return "", apperrors.FromError(err)
	}
	return url, nil
}

// Ping verifies connectivity with a lightweight container properties call.
func (s *AzureStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := s.containerClient().GetProperties(ctx, nil); err != nil {
		return apperrors.NewStorageUnavailableError("Storage is unreachable", err)
	}
	return nil
}

// EnsureContainer creates the container if missing.
func (s *AzureStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil
		}
		return s.mapError(err, s.container)
	}
	s.logger.Info("Container created", logging.NewField("container", s.container))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toAzureMetadata(md map[string]string) map[string]*string {
	out := make(map[string]*string, len(md))
	for k, v := range md {
		v := v
		out[k] = &v
	}
	return out
}

func fromAzureMetadata(md map[string]*string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}
