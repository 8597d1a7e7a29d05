package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"arena/internal/core/apperror"
	"arena/internal/submissions"
)

// SubmissionsHandler serves the aggregated submission view.
type SubmissionsHandler struct {
	*BaseHandler
	svc *submissions.Service
}

// NewSubmissionsHandler creates the handler.
func NewSubmissionsHandler(svc *submissions.Service) *SubmissionsHandler {
	return &SubmissionsHandler{
		BaseHandler: NewBaseHandler(),
		svc:         svc,
	}
}

// List returns submission summaries matching the query filters. Repeating a
// filter parameter ORs its values; distinct parameters are ANDed.
func (h *SubmissionsHandler) List(c *gin.Context) {
	filters := submissions.Filters{
		ContestIDs: h.ParseIntList(c, "contest_id"),
		UserIDs:    h.ParseIntList(c, "user_id"),
		TaskIDs:    h.ParseIntList(c, "task_id"),
		DatasetIDs: h.ParseIntList(c, "dataset_id"),
	}
	out, err := h.svc.List(c.Request.Context(), filters)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, out)
}

// Get returns the full record of one submission, judged on the dataset named
// by the dataset_id parameter or on the task's active dataset.
func (h *SubmissionsHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("ref"), 10, 64)
	if err != nil {
		h.Error(c, apperror.NewNotFound("submission", c.Param("ref")))
		return
	}

	// An unparsable dataset_id is treated as absent, so judging falls back
	// to the task's active dataset instead of failing the request.
	var datasetID *int64
	if raw := c.Query("dataset_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			datasetID = &parsed
		}
	}

	out, err := h.svc.Get(c.Request.Context(), id, datasetID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, out)
}
