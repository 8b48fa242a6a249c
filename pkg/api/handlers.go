package api

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/blobstore"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/errors"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/httpservice"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
)

// BlobHandler exposes the blob CRUD REST API over a Store.
type BlobHandler struct {
	store          blobstore.Store
	logger         logging.Logger
	maxUploadBytes int64
	sasExpiry      time.Duration
	appName        string
	appVersion     string
}

// BlobHandlerConfig configures the blob API handler.
type BlobHandlerConfig struct {
	Store          blobstore.Store
	Logger         logging.Logger
	MaxUploadBytes int64
	SASExpiry      time.Duration
	AppName        string
	AppVersion     string
}

// NewBlobHandler creates the blob API handler.
func NewBlobHandler(cfg BlobHandlerConfig) *BlobHandler {
	return &BlobHandler{
		store:          cfg.Store,
		logger:         cfg.Logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		sasExpiry:      cfg.SASExpiry,
		appName:        cfg.AppName,
		appVersion:     cfg.AppVersion,
	}
}

// Register implements the httpservice.Handler interface.
func (h *BlobHandler) Register(router *gin.Engine) {
	router.GET("/", h.index)
	router.GET("/health/storage", h.storageHealth)

	// Blob keys may contain slashes (virtual directories), so the remainder
	// of the path is matched as a whole and the action suffix split off in
	// the dispatchers.
	api := router.Group("/api")
	{
		api.GET("/blobs", h.list)
		api.POST("/blobs", h.upload)
		api.GET("/blobs/*name", h.getDispatch)
		api.PUT("/blobs/*name", h.putDispatch)
		api.DELETE("/blobs/*name", h.deleteDispatch)
	}
}

// getDispatch routes GET /api/blobs/<name>[/view|/url] on the path suffix.
func (h *BlobHandler) getDispatch(c *gin.Context) {
	raw := strings.TrimPrefix(c.Param("name"), "/")
	switch {
	case strings.HasSuffix(raw, "/view"):
		h.view(c, strings.TrimSuffix(raw, "/view"))
	case strings.HasSuffix(raw, "/url"):
		h.signedURL(c, strings.TrimSuffix(raw, "/url"))
	default:
		h.get(c, raw)
	}
}

// putDispatch accepts only the /metadata action.
func (h *BlobHandler) putDispatch(c *gin.Context) {
	raw := strings.TrimPrefix(c.Param("name"), "/")
	name, found := strings.CutSuffix(raw, "/metadata")
	if !found {
		httpservice.HandleError(c, errors.NewNotFoundError("Resource not found"))
		return
	}
	h.updateMetadata(c, name)
}

func (h *BlobHandler) deleteDispatch(c *gin.Context) {
	h.delete(c, strings.TrimPrefix(c.Param("name"), "/"))
}

// index returns the API directory.
func (h *BlobHandler) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": h.appName,
		"version": h.appVersion,
		"endpoints": gin.H{
			"list_blobs":      "GET /api/blobs",
			"upload_blob":     "POST /api/blobs",
			"get_blob":        "GET /api/blobs/<name>",
			"update_metadata": "PUT /api/blobs/<name>/metadata",
			"view_blob":       "GET /api/blobs/<name>/view",
			"get_blob_url":    "GET /api/blobs/<name>/url",
			"delete_blob":     "DELETE /api/blobs/<name>",
		},
	})
}

// storageHealth verifies the container exists and is reachable, bounded by a
// 3s deadline so a hung provider cannot stall the health endpoint. The error
// detail stays in the log; the response carries only a generic message.
func (h *BlobHandler) storageHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.store.EnsureContainer(ctx); err != nil {
		httpservice.LogError(c, "Storage health check failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "storage unreachable"})
		return
	}
	if err := h.store.Ping(ctx); err != nil {
		httpservice.LogError(c, "Storage health check failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "storage unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "container": h.store.Container()})
}

// list returns every blob in the container with attributes and metadata.
// An empty container yields an empty list, not an error.
func (h *BlobHandler) list(c *gin.Context) {
	blobs, err := h.store.List(c.Request.Context())
	if err != nil {
		httpservice.RespondErrorWithLog(c, "Failed to list blobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blobs": blobs})
}

// upload creates or overwrites a blob from a multipart "file" field.
// Overwriting replaces content and resets metadata.
func (h *BlobHandler) upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		httpservice.HandleError(c, errors.NewInvalidInputError("No file provided"))
		return
	}

	name, err := blobstore.SanitizeUploadName(file.Filename)
	if err != nil {
		httpservice.HandleError(c, err)
		return
	}
	if file.Size == 0 {
		httpservice.HandleError(c, errors.NewInvalidInputError("Empty file"))
		return
	}
	if file.Size > h.maxUploadBytes {
		httpservice.HandleError(c, errors.NewPayloadTooLargeError("File exceeds the maximum upload size"))
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = file.Header.Get("Content-Type")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	src, err := file.Open()
	if err != nil {
		httpservice.RespondErrorWithLog(c, "Failed to open uploaded file", err)
		return
	}
	defer src.Close()

	blob, err := h.store.Upload(c.Request.Context(), name, src, file.Size, contentType)
	if err != nil {
		httpservice.RespondErrorWithLog(c, "Failed to upload blob", err,
			logging.NewField("blob", name),
		)
		return
	}

	c.JSON(http.StatusCreated, blob)
}

// get returns one blob's attributes and metadata.
func (h *BlobHandler) get(c *gin.Context, name string) {
	if !h.validName(c, name) {
		return
	}

	blob, err := h.store.Get(c.Request.Context(), name)
	if err != nil {
		httpservice.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, blob)
}

// UpdateMetadataRequest carries the replacement metadata map.
type UpdateMetadataRequest struct {
	Metadata map[string]string `json:"metadata"`
}

// updateMetadata replaces the blob's metadata map. This is replace, not
// merge: keys absent from the request are removed. Callers must resend every
// key they want retained.
func (h *BlobHandler) updateMetadata(c *gin.Context, name string) {
	if !h.validName(c, name) {
		return
	}

	var req UpdateMetadataRequest
	if !httpservice.ValidateJSON(c, &req) {
		return
	}
	if req.Metadata == nil {
		req.Metadata = map[string]string{}
	}
	if err := blobstore.ValidateMetadata(req.Metadata); err != nil {
		httpservice.HandleError(c, err)
		return
	}

	blob, err := h.store.SetMetadata(c.Request.Context(), name, req.Metadata)
	if err != nil {
		httpservice.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, blob)
}

// view streams the blob inline so browsers render images and PDFs instead of
// downloading them.
func (h *BlobHandler) view(c *gin.Context, name string) {
	if !h.validName(c, name) {
		return
	}

	rc, blob, err := h.store.Open(c.Request.Context(), name)
	if err != nil {
		httpservice.HandleError(c, err)
		return
	}
	defer rc.Close()

	// Stored content type first, a mime_type metadata override wins, and the
	// filename extension is the fallback.
	contentType := blob.ContentType
	if mt, ok := blob.Metadata["mime_type"]; ok && mt != "" {
		contentType = mt
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	extraHeaders := map[string]string{
		"Content-Disposition": `inline; filename="` + blob.Name + `"; filename*=UTF-8''` + url.PathEscape(blob.Name),
		"Cache-Control":       "public, max-age=3600",
	}
	c.DataFromReader(http.StatusOK, blob.Size, contentType, rc, extraHeaders)
}

// signedURL returns a time-limited read URL for the blob's bytes.
func (h *BlobHandler) signedURL(c *gin.Context, name string) {
	if !h.validName(c, name) {
		return
	}

	signed, err := h.store.SignedURL(c.Request.Context(), name, h.sasExpiry)
	if err != nil {
		httpservice.RespondErrorWithLog(c, "Failed to generate signed URL", err,
			logging.NewField("blob", name),
		)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signed})
}

// delete removes the blob and all its metadata. Deleting an absent blob is
// 404, not success.
func (h *BlobHandler) delete(c *gin.Context, name string) {
	if !h.validName(c, name) {
		return
	}

	if err := h.store.Delete(c.Request.Context(), name); err != nil {
		httpservice.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// validName rejects invalid blob names with a 400 response.
func (h *BlobHandler) validName(c *gin.Context, name string) bool {
	if err := blobstore.ValidateName(name); err != nil {
		httpservice.HandleError(c, err)
		return false
	}
	return true
}
