package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opencampus/registrar-api/internal/models"
	"github.com/opencampus/registrar-api/internal/service"
	appErrors "github.com/opencampus/registrar-api/pkg/errors"
	"github.com/opencampus/registrar-api/pkg/response"
)

// SectionHandler exposes the catalog endpoints.
type SectionHandler struct {
	sections *service.SectionService
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(sections *service.SectionService) *SectionHandler {
	return &SectionHandler{sections: sections}
}

// List godoc
// @Summary List sections
// @Tags Sections
// @Produce json
// @Param termId query string false "Filter by term"
// @Param courseCode query string false "Filter by course"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *SectionHandler) List(c *gin.Context) {
	var filter models.SectionFilter
	filter.TermID = c.Query("termId")
	filter.CourseCode = c.Query("courseCode")
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	sections, pagination, err := h.sections.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, pagination)
}

// Get godoc
// @Summary Get section detail with schedule blocks
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *SectionHandler) Get(c *gin.Context) {
	section, err := h.sections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// RoomSchedule godoc
// @Summary Weekly schedule of a room for a term
// @Tags Sections
// @Produce json
// @Param room path string true "Room"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/rooms/{room} [get]
func (h *SectionHandler) RoomSchedule(c *gin.Context) {
	blocks, err := h.sections.RoomSchedule(c.Request.Context(), c.Query("termId"), c.Param("room"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

// InstructorSchedule godoc
// @Summary Weekly schedule of an instructor for a term
// @Tags Sections
// @Produce json
// @Param id path string true "Instructor ID"
// @Param termId query string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/instructors/{id} [get]
func (h *SectionHandler) InstructorSchedule(c *gin.Context) {
	blocks, err := h.sections.InstructorSchedule(c.Request.Context(), c.Query("termId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, blocks, nil)
}

// CheckBlock godoc
// @Summary Dry-run conflict check for a candidate schedule block
// @Tags Sections
// @Accept json
// @Produce json
// @Param payload body service.CheckBlockRequest true "Candidate block"
// @Success 200 {object} response.Envelope
// @Router /sections/check-block [post]
func (h *SectionHandler) CheckBlock(c *gin.Context) {
	var req service.CheckBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.sections.CheckBlock(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
