// Package handlers contains the HTTP handlers of the v1 API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"arena/internal/core/apperror"
	appctx "arena/internal/core/context"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// DecodeBody reads the request body as a JSON object, keeping numbers as
// json.Number so integer and floating-point values stay distinguishable.
func (h *BaseHandler) DecodeBody(c *gin.Context) (map[string]any, bool) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var content map[string]any
	if err := dec.Decode(&content); err != nil {
		h.Error(c, apperror.NewMalformedInput("request body is not a JSON object").
			WithDetail("error", err.Error()))
		return nil, false
	}
	return content, true
}

// Error registers error on Gin context and aborts request. The JSON response
// is produced by middleware.ErrorHandler (single source of truth).
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseIntQuery parses integer query parameter with default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseIntList parses every occurrence of an integer query parameter,
// silently dropping values that are not integers.
func (h *BaseHandler) ParseIntList(c *gin.Context, key string) []int64 {
	var out []int64
	for _, val := range c.QueryArray(key) {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out
}

// GetUserID extracts user ID from request context.
func (h *BaseHandler) GetUserID(c *gin.Context) string {
	return appctx.GetUserID(c.Request.Context())
}

// Created sends 201 with the Location of the new resource.
func (h *BaseHandler) Created(c *gin.Context, location, ref string) {
	c.Header("Location", location)
	c.JSON(http.StatusCreated, gin.H{"_ref": ref})
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
