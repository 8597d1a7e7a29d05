package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/blob"
	"arena/internal/http/v1/middleware"
)

func filesRouter(store blob.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	h := NewFilesHandler(store)
	r.GET("/files/:digest", h.Get)
	r.GET("/files/:digest/:filename", h.Get)
	r.PUT("/files", h.Put)
	return r
}

func TestFilesPutThenGet(t *testing.T) {
	store := blob.NewMemory()
	r := filesRouter(store)
	content := []byte("testcase input\n")

	req := httptest.NewRequest(http.MethodPut, "/files", bytes.NewReader(content))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, blob.Digest(content), body["digest"])

	req = httptest.NewRequest(http.MethodGet, "/files/"+body["digest"], nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content, rec.Body.Bytes())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
}

func TestFilesGetWithFilename(t *testing.T) {
	store := blob.NewMemory()
	digest, err := store.Put(context.Background(), []byte("statement pdf bytes"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/files/"+digest+"/statement.pdf", nil)
	rec := httptest.NewRecorder()
	filesRouter(store).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="statement.pdf"`, rec.Header().Get("Content-Disposition"))
}

func TestFilesGetMissingIs404(t *testing.T) {
	r := filesRouter(blob.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/files/"+blob.Digest([]byte("nope")), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilesGetBadDigestIs404(t *testing.T) {
	// Malformed digests are indistinguishable from absent content.
	r := filesRouter(blob.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/files/WHATEVER", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilesPutIsIdempotent(t *testing.T) {
	r := filesRouter(blob.NewMemory())
	content := []byte("same bytes")

	var first string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPut, "/files", bytes.NewReader(content))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		if first == "" {
			first = body["digest"]
		} else {
			assert.Equal(t, first, body["digest"])
		}
	}
}
