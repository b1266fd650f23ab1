package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type gradeSubmissionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	SetGrade(ctx context.Context, id string, grade float64, feedback string, gradedBy string, gradedAt time.Time) error
	ClearReviewFlag(ctx context.Context, id string) error
	ClearGrade(ctx context.Context, id string) error
}

type gradeAssignmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type gradeCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type gradeAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

// GradeInput is the payload a teacher submits when grading.
type GradeInput struct {
	Grade    float64 `json:"grade" validate:"min=0"`
	Feedback string  `json:"feedback" validate:"max=2000"`
}

// GradeReviewService runs the two-step grading workflow. A teacher grade is
// provisional until an admin approves it; rejection destroys the grade and
// sends the submission back to the teacher.
type GradeReviewService struct {
	submissions gradeSubmissionRepository
	assignments gradeAssignmentRepository
	courses     gradeCourseRepository
	profiles    gradeAuditor
	notifier    notificationDispatcher
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeReviewService constructs a GradeReviewService instance.
func NewGradeReviewService(submissions gradeSubmissionRepository, assignments gradeAssignmentRepository, courses gradeCourseRepository, profiles gradeAuditor, notifier notificationDispatcher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GradeReviewService{
		submissions: submissions,
		assignments: assignments,
		courses:     courses,
		profiles:    profiles,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// Grade records a teacher's grade on a submission and flags it for review.
// Only the instructor of the submission's course may grade it. The grade must
// fall within the assignment's point range. Re-grading a submission already
// awaiting review simply replaces the provisional grade.
func (s *GradeReviewService) Grade(ctx context.Context, submissionID string, teacher *models.JWTClaims, input GradeInput) (*models.Submission, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if teacher.Role != models.RoleAdmin {
		course, err := s.courses.FindByID(ctx, assignment.CourseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
		}
		if course.InstructorID != teacher.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another instructor")
		}
	}
	if input.Grade > assignment.Points {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("grade exceeds assignment maximum of %.1f", assignment.Points))
	}

	gradedAt := time.Now().UTC()
	if err := s.submissions.SetGrade(ctx, submissionID, input.Grade, input.Feedback, teacher.UserID, gradedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	if s.metrics != nil {
		s.metrics.RecordWorkflowDecision("grade_review", "submitted")
	}
	s.notifyAdmins(ctx, submission, assignment)

	submission.Grade = &input.Grade
	submission.Feedback = &input.Feedback
	submission.GradedAt = &gradedAt
	submission.GradedBy = &teacher.UserID
	submission.NeedsReview = true
	return submission, nil
}

// ListPendingReview returns submissions awaiting admin review.
func (s *GradeReviewService) ListPendingReview(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error) {
	needsReview := true
	filter.NeedsReview = &needsReview
	submissions, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions awaiting review")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return submissions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Approve finalises a provisional grade. The grade fields stay as the teacher
// set them; only the review flag drops.
func (s *GradeReviewService) Approve(ctx context.Context, submissionID string, admin *models.JWTClaims) error {
	submission, err := s.loadAwaitingReview(ctx, submissionID)
	if err != nil {
		return err
	}

	if err := s.submissions.ClearReviewFlag(ctx, submissionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve grade")
	}

	if s.metrics != nil {
		s.metrics.RecordWorkflowDecision("grade_review", "approved")
	}
	if err := s.notifier.Dispatch(ctx, []models.Notification{{
		UserID:    submission.StudentID,
		Title:     "Grade published",
		Message:   "A grade on your submission has been finalised.",
		Type:      models.NotificationGradeApproved,
		RelatedID: &submission.ID,
	}}); err != nil {
		s.logger.Warn("failed to dispatch grade approval notification", zap.Error(err))
	}
	return nil
}

// Reject wipes the provisional grade and returns the submission to the
// ungraded state. The destroyed values are kept in the audit log, and the
// grading teacher is told to re-grade.
func (s *GradeReviewService) Reject(ctx context.Context, submissionID string, admin *models.JWTClaims) error {
	submission, err := s.loadAwaitingReview(ctx, submissionID)
	if err != nil {
		return err
	}

	oldValues, err := json.Marshal(map[string]interface{}{
		"grade":     submission.Grade,
		"feedback":  submission.Feedback,
		"graded_at": submission.GradedAt,
		"graded_by": submission.GradedBy,
	})
	if err != nil {
		oldValues = nil
	}

	if err := s.submissions.ClearGrade(ctx, submissionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject grade")
	}

	if err := s.profiles.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &admin.UserID,
		Action:     models.AuditActionGradeCleared,
		Resource:   "submission",
		ResourceID: &submission.ID,
		OldValues:  oldValues,
	}); err != nil {
		s.logger.Warn("failed to record grade rejection audit log", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordWorkflowDecision("grade_review", "rejected")
	}

	notifications := []models.Notification{{
		UserID:    submission.StudentID,
		Title:     "Grade withdrawn",
		Message:   "A provisional grade on your submission was withdrawn pending re-grading.",
		Type:      models.NotificationGradeRejected,
		RelatedID: &submission.ID,
	}}
	if submission.GradedBy != nil {
		notifications = append(notifications, models.Notification{
			UserID:    *submission.GradedBy,
			Title:     "Grade rejected",
			Message:   "An administrator rejected your grade. Please re-grade the submission.",
			Type:      models.NotificationGradeRejected,
			RelatedID: &submission.ID,
		})
	}
	if err := s.notifier.Dispatch(ctx, notifications); err != nil {
		s.logger.Warn("failed to dispatch grade rejection notifications", zap.Error(err))
	}
	return nil
}

func (s *GradeReviewService) loadAwaitingReview(ctx context.Context, submissionID string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if !submission.NeedsReview {
		return nil, appErrors.Clone(appErrors.ErrNotAwaitingReview, "")
	}
	return submission, nil
}

func (s *GradeReviewService) notifyAdmins(ctx context.Context, submission *models.Submission, assignment *models.Assignment) {
	adminIDs, err := s.profiles.ListIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Warn("failed to list admins for grade review notification", zap.Error(err))
		return
	}
	notifications := make([]models.Notification, 0, len(adminIDs))
	message := fmt.Sprintf("A grade on %q is awaiting review.", assignment.Title)
	for _, id := range adminIDs {
		notifications = append(notifications, models.Notification{
			UserID:    id,
			Title:     "Grade awaiting review",
			Message:   message,
			Type:      models.NotificationGradeSubmitted,
			RelatedID: &submission.ID,
		})
	}
	if err := s.notifier.Dispatch(ctx, notifications); err != nil {
		s.logger.Warn("failed to dispatch grade review notifications", zap.Error(err))
	}
}
