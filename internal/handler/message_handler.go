package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/service"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// MessageHandler exposes the global and course chat feeds.
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler constructs MessageHandler.
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Post godoc
// @Summary Post a message
// @Description Post to the global feed, or a course feed when course_id is set
// @Tags Messages
// @Accept json
// @Produce json
// @Param payload body service.MessageInput true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /messages [post]
func (h *MessageHandler) Post(c *gin.Context) {
	var input service.MessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	message, err := h.messages.Post(c.Request.Context(), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, message)
}

// List godoc
// @Summary Load message history
// @Tags Messages
// @Produce json
// @Param courseId query string false "Course feed; omit for the global feed"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	var filter models.MessageFilter
	if courseID := c.Query("courseId"); courseID != "" {
		filter.CourseID = &courseID
	}
	filter.Page, filter.PageSize = pageParams(c)

	messages, pagination, err := h.messages.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, pagination)
}
