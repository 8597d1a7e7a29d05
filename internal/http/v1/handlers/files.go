package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"arena/internal/blob"
	"arena/internal/core/apperror"
)

// maxFileSize bounds uploaded file bodies (testcases and statements).
const maxFileSize = 64 << 20

// FilesHandler serves the content-addressed file store.
type FilesHandler struct {
	*BaseHandler
	store blob.Store
}

// NewFilesHandler creates the handler.
func NewFilesHandler(store blob.Store) *FilesHandler {
	return &FilesHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
	}
}

// Get streams the content with the given digest. An optional trailing
// filename path segment sets the download name.
func (h *FilesHandler) Get(c *gin.Context) {
	digest := c.Param("digest")
	data, err := h.store.Get(c.Request.Context(), digest)
	if err != nil {
		switch {
		case errors.Is(err, blob.ErrNotFound):
			h.Error(c, apperror.NewNotFound("file", digest))
		case errors.Is(err, blob.ErrBadDigest):
			h.Error(c, apperror.NewNotFound("file", digest))
		default:
			h.Error(c, apperror.NewInternal(err))
		}
		return
	}
	if filename := c.Param("filename"); filename != "" {
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// Put stores the request body and returns its digest. Storing the same
// content twice is a no-op, so retries are safe.
func (h *FilesHandler) Put(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFileSize+1))
	if err != nil {
		h.Error(c, apperror.NewMalformedInput("cannot read request body"))
		return
	}
	if len(data) > maxFileSize {
		h.Error(c, apperror.NewMalformedInput("file too large"))
		return
	}
	digest, err := h.store.Put(c.Request.Context(), data)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.OK(c, gin.H{"digest": digest})
}
