package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/service"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// TeacherRequestHandler exposes the student-to-teacher upgrade workflow.
type TeacherRequestHandler struct {
	requests *service.TeacherRequestService
}

// NewTeacherRequestHandler constructs TeacherRequestHandler.
func NewTeacherRequestHandler(requests *service.TeacherRequestService) *TeacherRequestHandler {
	return &TeacherRequestHandler{requests: requests}
}

// Apply godoc
// @Summary Apply for the teacher role
// @Tags TeacherRequests
// @Accept json
// @Produce json
// @Param payload body service.TeacherRequestInput true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher-requests [post]
func (h *TeacherRequestHandler) Apply(c *gin.Context) {
	var input service.TeacherRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	request, err := h.requests.Apply(c.Request.Context(), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ListPending godoc
// @Summary List pending teacher requests
// @Tags TeacherRequests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teacher-requests/pending [get]
func (h *TeacherRequestHandler) ListPending(c *gin.Context) {
	requests, err := h.requests.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Approve godoc
// @Summary Approve a teacher request
// @Tags TeacherRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher-requests/{id}/approve [post]
func (h *TeacherRequestHandler) Approve(c *gin.Context) {
	if err := h.requests.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reject godoc
// @Summary Reject a teacher request
// @Tags TeacherRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Router /teacher-requests/{id}/reject [post]
func (h *TeacherRequestHandler) Reject(c *gin.Context) {
	if err := h.requests.Reject(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
