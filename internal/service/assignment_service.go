package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

type assignmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrolledStudentLister interface {
	ListStudentIDsByCourse(ctx context.Context, courseID string) ([]string, error)
}

// AssignmentInput is the payload for creating or updating an assignment.
type AssignmentInput struct {
	CourseID    string    `json:"course_id" validate:"required,uuid4"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=10000"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	Points      float64   `json:"points" validate:"required,gt=0"`
	FileURL     *string   `json:"file_url" validate:"omitempty,max=500"`
}

// AssignmentService manages coursework published on courses.
type AssignmentService struct {
	repo        assignmentRepository
	courses     assignmentCourseRepository
	enrollments enrolledStudentLister
	notifier    notificationDispatcher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs an AssignmentService instance.
func NewAssignmentService(repo assignmentRepository, courses assignmentCourseRepository, enrollments enrolledStudentLister, notifier notificationDispatcher, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{
		repo:        repo,
		courses:     courses,
		enrollments: enrollments,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
	}
}

// List returns assignments matching the filter.
func (s *AssignmentService) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, *models.Pagination, error) {
	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return assignments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one assignment by ID.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// Create publishes an assignment and notifies the enrolled cohort.
func (s *AssignmentService) Create(ctx context.Context, input AssignmentInput, actor *models.JWTClaims) (*models.Assignment, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	course, err := s.courses.FindByID(ctx, input.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}

	assignment := &models.Assignment{
		CourseID:    input.CourseID,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Points:      input.Points,
		FileURL:     input.FileURL,
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}

	s.notifyCohort(ctx, course, assignment)
	return assignment, nil
}

// Update edits an assignment.
func (s *AssignmentService) Update(ctx context.Context, id string, input AssignmentInput, actor *models.JWTClaims) (*models.Assignment, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	course, err := s.courses.FindByID(ctx, assignment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}

	assignment.Title = input.Title
	assignment.Description = input.Description
	assignment.DueDate = input.DueDate
	assignment.Points = input.Points
	assignment.FileURL = input.FileURL

	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Delete removes an assignment.
func (s *AssignmentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	course, err := s.courses.FindByID(ctx, assignment.CourseID)
	if err == nil && actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}

func (s *AssignmentService) notifyCohort(ctx context.Context, course *models.Course, assignment *models.Assignment) {
	studentIDs, err := s.enrollments.ListStudentIDsByCourse(ctx, course.ID)
	if err != nil {
		s.logger.Warn("failed to list enrolled students for assignment notification", zap.Error(err))
		return
	}
	notifications := make([]models.Notification, 0, len(studentIDs))
	message := fmt.Sprintf("%q was posted in %s, due %s.", assignment.Title, course.Code, assignment.DueDate.Format("Jan 2, 2006"))
	for _, id := range studentIDs {
		notifications = append(notifications, models.Notification{
			UserID:    id,
			Title:     "New assignment",
			Message:   message,
			Type:      models.NotificationNewAssignment,
			RelatedID: &assignment.ID,
		})
	}
	if err := s.notifier.Dispatch(ctx, notifications); err != nil {
		s.logger.Warn("failed to dispatch assignment notifications", zap.Error(err))
	}
}
