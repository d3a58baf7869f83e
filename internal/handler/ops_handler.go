package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appErrors "github.com/opencampus/registrar-api/pkg/errors"
	"github.com/opencampus/registrar-api/pkg/jobs"
	"github.com/opencampus/registrar-api/pkg/response"
)

// OpsHandler exposes registrar term-close operations that run through the
// background job queue: lock the attendance ledger, archive the grade
// batch, then mark the remaining active enrollments completed. Every step
// is idempotent so retries are safe.
type OpsHandler struct {
	termClose *jobs.Queue
}

// NewOpsHandler constructs OpsHandler.
func NewOpsHandler(termClose *jobs.Queue) *OpsHandler {
	return &OpsHandler{termClose: termClose}
}

// CloseSection godoc
// @Summary Queue term-close for a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 202 {object} response.Envelope
// @Router /sections/{id}/close [post]
func (h *OpsHandler) CloseSection(c *gin.Context) {
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "term_close",
		Payload: c.Param("id"),
	}
	if err := h.termClose.Enqueue(job); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue term close"))
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": job.ID, "section_id": c.Param("id")}, nil)
}
