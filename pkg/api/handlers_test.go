package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/blobstore"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
)

// MockLogger implements logging.Logger for testing
type MockLogger struct{}

func (m *MockLogger) Info(msg string, fields ...logging.Field)    {}
func (m *MockLogger) Error(msg string, fields ...logging.Field)   {}
func (m *MockLogger) Debug(msg string, fields ...logging.Field)   {}
func (m *MockLogger) Warn(msg string, fields ...logging.Field)    {}
func (m *MockLogger) Fatal(msg string, fields ...logging.Field)   {}
func (m *MockLogger) With(fields ...logging.Field) logging.Logger { return m }
func (m *MockLogger) WithError(err error) logging.Logger          { return m }

func newTestRouter(store blobstore.Store, maxUpload int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewBlobHandler(BlobHandlerConfig{
		Store:          store,
		Logger:         &MockLogger{},
		MaxUploadBytes: maxUpload,
		SASExpiry:      5 * time.Minute,
		AppName:        "blobmeta-api",
		AppVersion:     "test",
	})
	handler.Register(router)
	return router
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func uploadBlob(t *testing.T, router *gin.Engine, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, "file", filename, content)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/blobs", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)
	return w
}

func TestUpload_ThenVisibleInList(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	w := uploadBlob(t, router, "report.json", `{"rows":3}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created blobstore.Blob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "report.json", created.Name)
	assert.Equal(t, int64(10), created.Size)
	assert.Equal(t, "application/json", created.ContentType)
	assert.NotEmpty(t, created.ETag)
	assert.Equal(t, "uploads/report.json", created.BlobPath)

	w = httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Blobs []blobstore.Blob `json:"blobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Blobs, 1)
	assert.Equal(t, "report.json", listResp.Blobs[0].Name)
}

func TestUpload_StripsDirectoryComponents(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	w := uploadBlob(t, router, `C:\Users\me\photo.png`, "fakepng")
	require.Equal(t, http.StatusCreated, w.Code)

	var created blobstore.Blob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "photo.png", created.Name)
}

func TestUpload_Reupload_ResetsMetadata(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "v1").Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/blobs/a.txt/metadata",
		strings.NewReader(`{"metadata":{"author":"alice"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "v2").Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/blobs/a.txt", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got blobstore.Blob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Empty(t, got.Metadata)
	assert.Equal(t, int64(2), got.Size)
}

func TestUpload_Rejections(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 16)

	t.Run("Missing File Field", func(t *testing.T) {
		body, contentType := multipartBody(t, "document", "a.txt", "x")
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/blobs", body)
		req.Header.Set("Content-Type", contentType)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Empty File", func(t *testing.T) {
		w := uploadBlob(t, router, "empty.txt", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Oversize File", func(t *testing.T) {
		w := uploadBlob(t, router, "big.txt", strings.Repeat("x", 17))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "PAYLOAD_TOO_LARGE")
	})

	// None of the rejected uploads may create a blob.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"blobs":[]}`, w.Body.String())
}

func TestGet_AbsentBlob(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs/nope.txt", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestUpdateMetadata_ReplacesNotMerges(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "data").Code)

	putMetadata := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/blobs/a.txt/metadata", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	w := putMetadata(`{"metadata":{"author":"alice","team":"data"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = putMetadata(`{"metadata":{"team":"platform"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got blobstore.Blob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, map[string]string{"team": "platform"}, got.Metadata)

	// Content is untouched by metadata updates.
	w = httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs/a.txt/view", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data", w.Body.String())
}

func TestUpdateMetadata_EmptyMapClears(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "data").Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/blobs/a.txt/metadata",
		strings.NewReader(`{"metadata":{"author":"alice"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PUT", "/api/blobs/a.txt/metadata", strings.NewReader(`{"metadata":{}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got blobstore.Blob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Empty(t, got.Metadata)
}

func TestUpdateMetadata_Rejections(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "data").Code)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"Invalid Key", "/api/blobs/a.txt/metadata", `{"metadata":{"bad-key":"v"}}`, http.StatusBadRequest},
		{"Non String Value", "/api/blobs/a.txt/metadata", `{"metadata":{"n":1}}`, http.StatusBadRequest},
		{"Malformed JSON", "/api/blobs/a.txt/metadata", `{"metadata":`, http.StatusBadRequest},
		{"Absent Blob", "/api/blobs/nope.txt/metadata", `{"metadata":{"a":"b"}}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("PUT", tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestView_StreamsExactBytes(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	content := "\x89PNG\r\n\x1a\n\x00\x01\x02binary"
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "pic.png", content).Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs/pic.png/view", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf("%d", len(content)), w.Header().Get("Content-Length"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `inline; filename="pic.png"`)
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
}

func TestView_MetadataMimeTypeOverride(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "blob.bin", "raw").Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/blobs/blob.bin/metadata",
		strings.NewReader(`{"metadata":{"mime_type":"application/pdf"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/blobs/blob.bin/view", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestDelete_ThenGone(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "data").Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/blobs/a.txt", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	for _, path := range []string{"/api/blobs/a.txt", "/api/blobs/a.txt/view"} {
		w = httptest.NewRecorder()
		req, _ = http.NewRequest("GET", path, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	// Deleting again is not a no-op.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/blobs/a.txt", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignedURL(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "data").Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs/a.txt/url", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.URL, "a.txt")
	assert.Contains(t, resp.URL, "sp=r")

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/blobs/nope.txt/url", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNestedBlobNames_Addressable(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	// Other tooling can place blobs in virtual directories; every route must
	// still reach them.
	_, err := store.Upload(context.Background(), "photos/cat.jpg", strings.NewReader("jpegbytes"), 9, "image/jpeg")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Blobs []blobstore.Blob `json:"blobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Blobs, 1)
	assert.Equal(t, "photos/cat.jpg", listResp.Blobs[0].ID)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/blobs/photos/cat.jpg", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var got blobstore.Blob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "photos/cat.jpg", got.ID)
	assert.Equal(t, "cat.jpg", got.Name)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/blobs/photos/cat.jpg/view", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpegbytes", w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/blobs/photos/cat.jpg/url", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "photos/cat.jpg")

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("PUT", "/api/blobs/photos/cat.jpg/metadata",
		strings.NewReader(`{"metadata":{"album":"pets"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, map[string]string{"album": "pets"}, got.Metadata)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/blobs/photos/cat.jpg", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/blobs/photos/cat.jpg", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutWithoutMetadataAction(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	require.Equal(t, http.StatusCreated, uploadBlob(t, router, "a.txt", "data").Code)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/blobs/a.txt", strings.NewReader(`{"metadata":{}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// deadlineProbeStore records whether storage calls carry a deadline.
type deadlineProbeStore struct {
	*blobstore.MemoryStore
	ensureHadDeadline bool
	pingHadDeadline   bool
}

func (s *deadlineProbeStore) EnsureContainer(ctx context.Context) error {
	_, s.ensureHadDeadline = ctx.Deadline()
	return s.MemoryStore.EnsureContainer(ctx)
}

func (s *deadlineProbeStore) Ping(ctx context.Context) error {
	_, s.pingHadDeadline = ctx.Deadline()
	return s.MemoryStore.Ping(ctx)
}

func TestStorageHealth_BoundedByDeadline(t *testing.T) {
	store := &deadlineProbeStore{MemoryStore: blobstore.NewMemoryStore("uploads")}
	router := newTestRouter(store, 1<<20)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health/storage", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, store.ensureHadDeadline, "container check must be bounded")
	assert.True(t, store.pingHadDeadline, "reachability probe must be bounded")
}

func TestStorageHealth(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health/storage", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"container":"uploads"}`, w.Body.String())

	store.FailWith(assert.AnError)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/health/storage", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestList_StorageOutage(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)
	store.FailWith(assert.AnError)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/blobs", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "STORAGE_UNAVAILABLE")
}

func TestIndex(t *testing.T) {
	store := blobstore.NewMemoryStore("uploads")
	router := newTestRouter(store, 1<<20)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "endpoints")
	assert.Contains(t, w.Body.String(), "GET /api/blobs")
}
