package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/service"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// EnrollmentHandler exposes the enrollment request workflow and enrollments.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Request godoc
// @Summary File an enrollment request
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollmentRequestInput true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/requests [post]
func (h *EnrollmentHandler) Request(c *gin.Context) {
	var input service.EnrollmentRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	request, err := h.enrollments.Request(c.Request.Context(), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// ListRequests godoc
// @Summary List enrollment requests
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments/requests [get]
func (h *EnrollmentHandler) ListRequests(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.EnrollmentRequestFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Status = models.EnrollmentRequestStatus(c.Query("status"))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	// Students only ever see their own requests.
	if claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}

	requests, pagination, err := h.enrollments.ListRequests(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Approve godoc
// @Summary Approve an enrollment request
// @Tags Enrollments
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/requests/{id}/approve [post]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	enrollment, err := h.enrollments.Approve(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reject godoc
// @Summary Reject an enrollment request
// @Tags Enrollments
// @Produce json
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Router /enrollments/requests/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	if err := h.enrollments.Reject(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Cancel own pending enrollment request
// @Tags Enrollments
// @Produce json
// @Param id path string true "Request ID"
// @Success 204 {object} response.Envelope
// @Router /enrollments/requests/{id} [delete]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	if err := h.enrollments.CancelRequest(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DirectEnroll godoc
// @Summary Enroll a student directly
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body map[string]string true "Student and course IDs"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) DirectEnroll(c *gin.Context) {
	var payload struct {
		StudentID string `json:"student_id" binding:"required,uuid4"`
		CourseID  string `json:"course_id" binding:"required,uuid4"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.enrollments.DirectEnroll(c.Request.Context(), payload.StudentID, payload.CourseID, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param courseId query string false "Filter by course"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.StudentID = c.Query("studentId")
	filter.CourseID = c.Query("courseId")
	filter.Status = models.EnrollmentStatus(c.Query("status"))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// ListMine godoc
// @Summary List own enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollments, err := h.enrollments.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Drop godoc
// @Summary Drop an active enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	if err := h.enrollments.Drop(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Complete godoc
// @Summary Mark an enrollment completed
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body map[string]string false "Final grade"
// @Success 204 {object} response.Envelope
// @Router /enrollments/{id}/complete [post]
func (h *EnrollmentHandler) Complete(c *gin.Context) {
	var payload struct {
		Grade *string `json:"grade"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	if err := h.enrollments.Complete(c.Request.Context(), c.Param("id"), payload.Grade); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
