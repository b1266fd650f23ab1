package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/service"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// MetricsHandler exposes an operational snapshot alongside the Prometheus endpoint.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs MetricsHandler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot godoc
// @Summary System metrics snapshot
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/metrics [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}
