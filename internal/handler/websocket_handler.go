package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/realtime"
	"github.com/edutrack/edutrack-api/internal/service"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// WebsocketHandler upgrades connections and attaches them to the realtime hub.
type WebsocketHandler struct {
	hub      *realtime.Hub
	messages *service.MessageService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebsocketHandler constructs WebsocketHandler.
func NewWebsocketHandler(hub *realtime.Hub, messages *service.MessageService, logger *zap.Logger) *WebsocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebsocketHandler{
		hub:      hub,
		messages: messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the CORS middleware on the
			// HTTP surface; the upgrade itself accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Notifications godoc
// @Summary Subscribe to personal notification events
// @Tags Realtime
// @Param token query string false "Access token (alternative to Authorization header)"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws/notifications [get]
func (h *WebsocketHandler) Notifications(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.RegisterUser(claims.UserID, conn)
}

// CourseFeed godoc
// @Summary Subscribe to a course message feed
// @Tags Realtime
// @Param courseId path string true "Course ID"
// @Param token query string false "Access token (alternative to Authorization header)"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws/courses/{courseId} [get]
func (h *WebsocketHandler) CourseFeed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	courseID := c.Param("courseId")
	if err := h.messages.CheckCourseAccess(c.Request.Context(), claims, courseID); err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.RegisterTopic(service.MessageTopic(&courseID), conn)
}

// GlobalFeed godoc
// @Summary Subscribe to the global message feed
// @Tags Realtime
// @Param token query string false "Access token (alternative to Authorization header)"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws/messages [get]
func (h *WebsocketHandler) GlobalFeed(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.RegisterTopic(service.MessageTopic(nil), conn)
}
