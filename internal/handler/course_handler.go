package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/service"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/response"
)

// CourseHandler exposes course catalog and material endpoints.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param department query string false "Filter by department"
// @Param instructorId query string false "Filter by instructor"
// @Param semester query string false "Filter by semester"
// @Param year query int false "Filter by year"
// @Param search query string false "Search by title or code"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	var filter models.CourseFilter
	filter.Department = c.Query("department")
	filter.InstructorID = c.Query("instructorId")
	filter.Semester = c.Query("semester")
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.Year = year
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	courses, pagination, err := h.courses.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course detail
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CourseInput true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var input service.CourseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	course, err := h.courses.Create(c.Request.Context(), input, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseInput true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var input service.CourseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), input, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadMaterial godoc
// @Summary Upload course material
// @Tags Courses
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Course ID"
// @Param title formData string true "Material title"
// @Param file formData file true "Material file"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/materials [post]
func (h *CourseHandler) UploadMaterial(c *gin.Context) {
	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "title required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer file.Close()

	material, err := h.courses.UploadMaterial(
		c.Request.Context(),
		c.Param("id"),
		title,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
		claimsFromContext(c),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// ListMaterials godoc
// @Summary List course materials
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/materials [get]
func (h *CourseHandler) ListMaterials(c *gin.Context) {
	materials, err := h.courses.ListMaterials(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, materials, nil)
}

// DownloadMaterial godoc
// @Summary Download a course material file
// @Tags Courses
// @Produce octet-stream
// @Param materialId path string true "Material ID"
// @Success 200 {file} binary
// @Router /materials/{materialId}/download [get]
func (h *CourseHandler) DownloadMaterial(c *gin.Context) {
	material, reader, err := h.courses.OpenMaterial(c.Request.Context(), c.Param("materialId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", "attachment; filename=\""+material.Title+"\"")
	c.DataFromReader(http.StatusOK, material.SizeBytes, material.ContentType, reader, nil)
}

// DeleteMaterial godoc
// @Summary Delete a course material
// @Tags Courses
// @Produce json
// @Param materialId path string true "Material ID"
// @Success 204 {object} response.Envelope
// @Router /materials/{materialId} [delete]
func (h *CourseHandler) DeleteMaterial(c *gin.Context) {
	if err := h.courses.DeleteMaterial(c.Request.Context(), c.Param("materialId"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
