package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/repository"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type enrollmentRepository interface {
	ListRequests(ctx context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequestDetail, int, error)
	FindRequestByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	PendingRequestExists(ctx context.Context, studentID, courseID string) (bool, error)
	CreateRequest(ctx context.Context, request *models.EnrollmentRequest) error
	ApproveRequestTx(ctx context.Context, requestID, deciderID string) (*models.Enrollment, error)
	UpdateRequestStatus(ctx context.Context, id string, status models.EnrollmentRequestStatus, deciderID string) error
	DeleteRequest(ctx context.Context, id string) error
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	UpdateGrade(ctx context.Context, id string, grade *string) error
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type enrollmentCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type adminDirectory interface {
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

type notificationDispatcher interface {
	Dispatch(ctx context.Context, notifications []models.Notification) error
}

// EnrollmentRequestInput is the payload for filing a request.
type EnrollmentRequestInput struct {
	CourseID string `json:"course_id" validate:"required,uuid4"`
}

// EnrollmentService owns the request/approve/reject workflow and the realized
// enrollments behind it.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   enrollmentCourseRepository
	directory adminDirectory
	notifier  notificationDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService instance.
func NewEnrollmentService(repo enrollmentRepository, courses enrollmentCourseRepository, directory adminDirectory, notifier notificationDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{
		repo:      repo,
		courses:   courses,
		directory: directory,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Request files a pending enrollment request for the acting student. Duplicate
// live enrollments and duplicate open requests are both refused; a student may
// re-request a course after a rejection.
func (s *EnrollmentService) Request(ctx context.Context, student *models.JWTClaims, input EnrollmentRequestInput) (*models.EnrollmentRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request payload")
	}

	course, err := s.courses.FindByID(ctx, input.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrolled, err := s.repo.Exists(ctx, student.UserID, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	pending, err := s.repo.PendingRequestExists(ctx, student.UserID, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an enrollment request for this course is already pending")
	}

	request := &models.EnrollmentRequest{
		StudentID: student.UserID,
		CourseID:  course.ID,
		Status:    models.RequestStatusPending,
	}
	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment request")
	}

	s.notifyRequestFiled(ctx, student, course, request)
	return request, nil
}

// ListRequests returns requests matching the filter. Students only ever see
// their own; the handler pins the filter before calling.
func (s *EnrollmentService) ListRequests(ctx context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequestDetail, *models.Pagination, error) {
	requests, total, err := s.repo.ListRequests(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Approve transitions a pending request to APPROVED and creates the
// enrollment in the same transaction. Both rows change or neither does.
// Teachers may decide requests for their own courses; admins for any.
func (s *EnrollmentService) Approve(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.Enrollment, error) {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment request")
	}
	if err := s.authorizeDecider(ctx, request.CourseID, actor); err != nil {
		return nil, err
	}

	enrolled, err := s.repo.Exists(ctx, request.StudentID, request.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	enrollment, err := s.repo.ApproveRequestTx(ctx, requestID, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotPending) {
			return nil, appErrors.Clone(appErrors.ErrNotPending, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve enrollment request")
	}

	if s.metrics != nil {
		s.metrics.RecordWorkflowDecision("enrollment", "approved")
	}
	s.notifyDecision(ctx, request, models.NotificationEnrollmentApproved, "Enrollment approved",
		"Your enrollment request was approved. You are now enrolled.")
	return enrollment, nil
}

// Reject transitions a pending request to REJECTED. The rejected row is kept
// so the student can see the outcome and request again later. Teachers may
// decide requests for their own courses; admins for any.
func (s *EnrollmentService) Reject(ctx context.Context, requestID string, actor *models.JWTClaims) error {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment request")
	}
	if err := s.authorizeDecider(ctx, request.CourseID, actor); err != nil {
		return err
	}
	if request.Status != models.RequestStatusPending {
		return appErrors.Clone(appErrors.ErrNotPending, "")
	}

	if err := s.repo.UpdateRequestStatus(ctx, requestID, models.RequestStatusRejected, actor.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject enrollment request")
	}

	if s.metrics != nil {
		s.metrics.RecordWorkflowDecision("enrollment", "rejected")
	}
	s.notifyDecision(ctx, request, models.NotificationEnrollmentRejected, "Enrollment rejected",
		"Your enrollment request was rejected. You may request again.")
	return nil
}

// CancelRequest lets a student withdraw their own pending request.
func (s *EnrollmentService) CancelRequest(ctx context.Context, requestID string, student *models.JWTClaims) error {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment request")
	}
	if request.StudentID != student.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another student")
	}
	if request.Status != models.RequestStatusPending {
		return appErrors.Clone(appErrors.ErrNotPending, "")
	}
	if err := s.repo.DeleteRequest(ctx, requestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment request")
	}
	return nil
}

// DirectEnroll enrolls a student without the request workflow. Teachers may
// enroll into their own courses; admins into any.
func (s *EnrollmentService) DirectEnroll(ctx context.Context, studentID, courseID string, actor *models.JWTClaims) (*models.Enrollment, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if actor.Role != models.RoleAdmin && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}

	enrolled, err := s.repo.Exists(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	}

	enrollment := &models.Enrollment{
		StudentID: studentID,
		CourseID:  courseID,
		Status:    models.EnrollmentStatusActive,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if err := s.notifier.Dispatch(ctx, []models.Notification{{
		UserID:    studentID,
		Title:     "Enrolled in course",
		Message:   fmt.Sprintf("You were enrolled in %s (%s).", course.Title, course.Code),
		Type:      models.NotificationEnrollmentCreated,
		RelatedID: &enrollment.ID,
	}}); err != nil {
		s.logger.Warn("failed to dispatch enrollment notification", zap.Error(err))
	}
	return enrollment, nil
}

// List returns enrollments matching the filter with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListByStudent returns all enrollments for one student.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student enrollments")
	}
	return enrollments, nil
}

// Drop marks an enrollment dropped. Students may drop their own; admins any.
func (s *EnrollmentService) Drop(ctx context.Context, enrollmentID string, actor *models.JWTClaims) error {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if actor.Role != models.RoleAdmin && enrollment.StudentID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.Clone(appErrors.ErrConflict, "only active enrollments can be dropped")
	}
	if err := s.repo.UpdateStatus(ctx, enrollmentID, models.EnrollmentStatusDropped); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	return nil
}

// Complete finalises an enrollment with a letter grade.
func (s *EnrollmentService) Complete(ctx context.Context, enrollmentID string, grade *string) error {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.Clone(appErrors.ErrConflict, "only active enrollments can be completed")
	}
	if err := s.repo.UpdateStatus(ctx, enrollmentID, models.EnrollmentStatusCompleted); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete enrollment")
	}
	if grade != nil {
		if err := s.repo.UpdateGrade(ctx, enrollmentID, grade); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record final grade")
		}
	}
	return nil
}

// authorizeDecider gates request decisions: an admin may decide any request,
// a teacher only those for courses they instruct.
func (s *EnrollmentService) authorizeDecider(ctx context.Context, courseID string, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.InstructorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
	}
	return nil
}

func (s *EnrollmentService) notifyRequestFiled(ctx context.Context, student *models.JWTClaims, course *models.Course, request *models.EnrollmentRequest) {
	recipients := map[string]struct{}{}
	if course.InstructorID != "" {
		recipients[course.InstructorID] = struct{}{}
	}
	adminIDs, err := s.directory.ListIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Warn("failed to list admins for request notification", zap.Error(err))
	}
	for _, id := range adminIDs {
		recipients[id] = struct{}{}
	}

	notifications := make([]models.Notification, 0, len(recipients))
	message := fmt.Sprintf("%s requested to enroll in %s (%s).", student.FullName, course.Title, course.Code)
	for id := range recipients {
		notifications = append(notifications, models.Notification{
			UserID:    id,
			Title:     "New enrollment request",
			Message:   message,
			Type:      models.NotificationEnrollmentRequested,
			RelatedID: &request.ID,
		})
	}
	if err := s.notifier.Dispatch(ctx, notifications); err != nil {
		s.logger.Warn("failed to dispatch request notifications", zap.Error(err))
	}
}

func (s *EnrollmentService) notifyDecision(ctx context.Context, request *models.EnrollmentRequest, kind, title, message string) {
	if err := s.notifier.Dispatch(ctx, []models.Notification{{
		UserID:    request.StudentID,
		Title:     title,
		Message:   message,
		Type:      kind,
		RelatedID: &request.ID,
	}}); err != nil {
		s.logger.Warn("failed to dispatch decision notification", zap.Error(err))
	}
}
