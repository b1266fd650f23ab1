package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/service"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// ReportHandler exposes transcript and grade sheet exports.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Transcript godoc
// @Summary Export a student transcript
// @Tags Reports
// @Produce octet-stream
// @Param id path string true "Student ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} binary
// @Router /reports/transcript/{id} [get]
func (h *ReportHandler) Transcript(c *gin.Context) {
	format := service.ReportFormat(c.Query("format"))

	report, err := h.reports.Transcript(c.Request.Context(), c.Param("id"), format, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+report.Filename+"\"")
	c.Data(http.StatusOK, report.ContentType, report.Data)
}

// GradeSheet godoc
// @Summary Export a grade sheet for an assignment
// @Tags Reports
// @Produce octet-stream
// @Param id path string true "Assignment ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {file} binary
// @Router /reports/grade-sheet/{id} [get]
func (h *ReportHandler) GradeSheet(c *gin.Context) {
	format := service.ReportFormat(c.Query("format"))

	report, err := h.reports.GradeSheet(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+report.Filename+"\"")
	c.Data(http.StatusOK, report.ContentType, report.Data)
}
