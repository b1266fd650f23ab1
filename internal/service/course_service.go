package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/storage"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	CodeExists(ctx context.Context, code, excludeID string) (bool, error)
	CreateMaterial(ctx context.Context, material *models.CourseMaterial) error
	ListMaterials(ctx context.Context, courseID string) ([]models.CourseMaterial, error)
	FindMaterial(ctx context.Context, id string) (*models.CourseMaterial, error)
	DeleteMaterial(ctx context.Context, id string) error
}

type profileDirectory interface {
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.Profile, error)
}

// CourseInput is the payload for creating or updating a course.
type CourseInput struct {
	Title        string `json:"title" validate:"required,max=200"`
	Code         string `json:"code" validate:"required,max=20"`
	Department   string `json:"department" validate:"required,max=100"`
	Credits      int    `json:"credits" validate:"required,min=1,max=30"`
	Description  string `json:"description" validate:"max=5000"`
	InstructorID string `json:"instructor_id" validate:"required,uuid4"`
	Semester     string `json:"semester" validate:"required,oneof=FALL SPRING SUMMER"`
	Year         int    `json:"year" validate:"required,min=2000,max=2100"`
	Capacity     int    `json:"capacity" validate:"min=0"`
}

// CourseService manages the course catalog and attached materials.
type CourseService struct {
	repo      courseRepository
	directory profileDirectory
	notifier  notificationDispatcher
	cache     *CacheService
	storage   *storage.LocalStorage
	validator *validator.Validate
	logger    *zap.Logger
	listTTL   time.Duration
}

// NewCourseService constructs a CourseService instance.
func NewCourseService(repo courseRepository, directory profileDirectory, notifier notificationDispatcher, cache *CacheService, store *storage.LocalStorage, validate *validator.Validate, logger *zap.Logger, listTTL time.Duration) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if listTTL <= 0 {
		listTTL = 5 * time.Minute
	}
	return &CourseService{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		cache:     cache,
		storage:   store,
		validator: validate,
		logger:    logger,
		listTTL:   listTTL,
	}
}

type cachedCourseList struct {
	Courses    []models.CourseDetail `json:"courses"`
	Pagination models.Pagination     `json:"pagination"`
}

// List returns the course catalog. The unfiltered first pages are hot and
// served from cache.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	key := courseListKey(filter)
	if key != "" {
		var cached cachedCourseList
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Courses, &cached.Pagination, nil
		}
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := models.Pagination{Page: page, PageSize: size, TotalCount: total}

	if key != "" {
		if err := s.cache.Set(ctx, key, cachedCourseList{Courses: courses, Pagination: pagination}, s.listTTL); err != nil {
			s.logger.Warn("failed to cache course list", zap.Error(err))
		}
	}
	return courses, &pagination, nil
}

// Get returns one course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a course and tells every admin about the new offering.
func (s *CourseService) Create(ctx context.Context, input CourseInput, actor *models.JWTClaims) (*models.Course, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	exists, err := s.repo.CodeExists(ctx, input.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	}

	instructor, err := s.directory.FindByID(ctx, input.InstructorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if instructor.Role != models.RoleTeacher && instructor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instructor must hold the teacher role")
	}

	course := &models.Course{
		Title:        input.Title,
		Code:         input.Code,
		Department:   input.Department,
		Credits:      input.Credits,
		Description:  input.Description,
		InstructorID: input.InstructorID,
		Semester:     input.Semester,
		Year:         input.Year,
		Capacity:     input.Capacity,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateListCache(ctx)
	s.notifyAdmins(ctx, course)
	return course, nil
}

// Update edits a course. Instructors may edit their own; admins any.
func (s *CourseService) Update(ctx context.Context, id string, input CourseInput, actor *models.JWTClaims) (*models.Course, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}

	if input.Code != course.Code {
		exists, err := s.repo.CodeExists(ctx, input.Code, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
		}
	}

	course.Title = input.Title
	course.Code = input.Code
	course.Department = input.Department
	course.Credits = input.Credits
	course.Description = input.Description
	course.InstructorID = input.InstructorID
	course.Semester = input.Semester
	course.Year = input.Year
	course.Capacity = input.Capacity

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidateListCache(ctx)
	return course, nil
}

// Delete removes a course. Admin only; the handler enforces the role.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidateListCache(ctx)
	return nil
}

// UploadMaterial stores a file under the course and records its metadata.
func (s *CourseService) UploadMaterial(ctx context.Context, courseID, title, filename, contentType string, size int64, r io.Reader, actor *models.JWTClaims) (*models.CourseMaterial, error) {
	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}

	stored := fmt.Sprintf("%s/%s%s", courseID, uuid.NewString(), filepath.Ext(filename))
	relPath, err := s.storage.SaveStream(storage.BucketMaterials, stored, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store material")
	}

	material := &models.CourseMaterial{
		CourseID:    courseID,
		Title:       title,
		FilePath:    relPath,
		ContentType: contentType,
		SizeBytes:   size,
		UploadedBy:  actor.UserID,
	}
	if err := s.repo.CreateMaterial(ctx, material); err != nil {
		if delErr := s.storage.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to remove orphaned material file", zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record material")
	}
	return material, nil
}

// ListMaterials returns the materials attached to a course.
func (s *CourseService) ListMaterials(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	materials, err := s.repo.ListMaterials(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	return materials, nil
}

// GetMaterial returns one material record.
func (s *CourseService) GetMaterial(ctx context.Context, id string) (*models.CourseMaterial, error) {
	material, err := s.repo.FindMaterial(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	return material, nil
}

// DeleteMaterial removes a material record and its stored file.
func (s *CourseService) DeleteMaterial(ctx context.Context, id string, actor *models.JWTClaims) error {
	material, err := s.repo.FindMaterial(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	course, err := s.repo.FindByID(ctx, material.CourseID)
	if err == nil && actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}
	if err := s.repo.DeleteMaterial(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete material")
	}
	if err := s.storage.Delete(material.FilePath); err != nil {
		s.logger.Warn("failed to remove material file", zap.Error(err))
	}
	return nil
}

// OpenMaterial returns a reader over the stored material file.
func (s *CourseService) OpenMaterial(ctx context.Context, id string) (*models.CourseMaterial, io.ReadCloser, error) {
	material, err := s.GetMaterial(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	file, err := s.storage.Open(material.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open material file")
	}
	return material, file, nil
}

func (s *CourseService) notifyAdmins(ctx context.Context, course *models.Course) {
	adminIDs, err := s.directory.ListIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Warn("failed to list admins for course notification", zap.Error(err))
		return
	}
	notifications := make([]models.Notification, 0, len(adminIDs))
	message := fmt.Sprintf("%s (%s) was added to the catalog.", course.Title, course.Code)
	for _, id := range adminIDs {
		notifications = append(notifications, models.Notification{
			UserID:    id,
			Title:     "New course created",
			Message:   message,
			Type:      models.NotificationCourseCreated,
			RelatedID: &course.ID,
		})
	}
	if err := s.notifier.Dispatch(ctx, notifications); err != nil {
		s.logger.Warn("failed to dispatch course notifications", zap.Error(err))
	}
}

func (s *CourseService) invalidateListCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "courses:list:*"); err != nil {
		s.logger.Warn("failed to invalidate course list cache", zap.Error(err))
	}
}

// courseListKey caches only unfiltered catalog pages; filtered queries go to
// the database every time.
func courseListKey(filter models.CourseFilter) string {
	if filter.Department != "" || filter.InstructorID != "" || filter.Semester != "" ||
		filter.Year != 0 || filter.Search != "" || filter.SortBy != "" || filter.SortOrder != "" {
		return ""
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return fmt.Sprintf("courses:list:%d:%d", page, size)
}
