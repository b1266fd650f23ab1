package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/service"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// GradeReviewHandler exposes the two-step grading workflow.
type GradeReviewHandler struct {
	grades *service.GradeReviewService
}

// NewGradeReviewHandler constructs GradeReviewHandler.
func NewGradeReviewHandler(grades *service.GradeReviewService) *GradeReviewHandler {
	return &GradeReviewHandler{grades: grades}
}

// Grade godoc
// @Summary Grade a submission
// @Description Record a provisional grade awaiting admin review
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.GradeInput true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *GradeReviewHandler) Grade(c *gin.Context) {
	var input service.GradeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	submission, err := h.grades.Grade(c.Request.Context(), c.Param("id"), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// ListPending godoc
// @Summary List grades awaiting review
// @Tags Grading
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grades/pending [get]
func (h *GradeReviewHandler) ListPending(c *gin.Context) {
	var filter models.SubmissionFilter
	filter.AssignmentID = c.Query("assignmentId")
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	submissions, pagination, err := h.grades.ListPendingReview(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// Approve godoc
// @Summary Approve a provisional grade
// @Tags Grading
// @Produce json
// @Param id path string true "Submission ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/grade/approve [post]
func (h *GradeReviewHandler) Approve(c *gin.Context) {
	if err := h.grades.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reject godoc
// @Summary Reject a provisional grade
// @Description Clears the grade and returns the submission to the teacher
// @Tags Grading
// @Produce json
// @Param id path string true "Submission ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/grade/reject [post]
func (h *GradeReviewHandler) Reject(c *gin.Context) {
	if err := h.grades.Reject(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
