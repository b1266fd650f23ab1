package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/service"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// SubmissionHandler exposes submission and comment endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

// NewSubmissionHandler constructs SubmissionHandler.
func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Submit godoc
// @Summary Submit or resubmit work for an assignment
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body service.SubmissionInput true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	var input service.SubmissionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	submission, err := h.submissions.Submit(c.Request.Context(), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param studentId query string false "Filter by student"
// @Param needsReview query bool false "Filter by review flag"
// @Param graded query bool false "Filter by graded state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.SubmissionFilter
	filter.AssignmentID = c.Query("assignmentId")
	filter.StudentID = c.Query("studentId")
	filter.NeedsReview = boolQuery(c, "needsReview")
	filter.Graded = boolQuery(c, "graded")
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	// Students only ever see their own submissions.
	if claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}

	submissions, pagination, err := h.submissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// Get godoc
// @Summary Get submission detail
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Delete godoc
// @Summary Delete an ungraded submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	if err := h.submissions.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddComment godoc
// @Summary Add a comment on a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.CommentInput true "Comment payload"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/comments [post]
func (h *SubmissionHandler) AddComment(c *gin.Context) {
	var input service.CommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	comment, err := h.submissions.AddComment(c.Request.Context(), c.Param("id"), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// ListComments godoc
// @Summary List comments on a submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/comments [get]
func (h *SubmissionHandler) ListComments(c *gin.Context) {
	comments, err := h.submissions.ListComments(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// DeleteComment godoc
// @Summary Delete own comment
// @Tags Submissions
// @Produce json
// @Param commentId path string true "Comment ID"
// @Success 204 {object} response.Envelope
// @Router /comments/{commentId} [delete]
func (h *SubmissionHandler) DeleteComment(c *gin.Context) {
	if err := h.submissions.DeleteComment(c.Request.Context(), c.Param("commentId"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
