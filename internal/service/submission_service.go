package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type submissionRepository interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateContent(ctx context.Context, id, content string, fileURL *string, submittedAt time.Time, late bool) error
	Delete(ctx context.Context, id string) error
	CreateComment(ctx context.Context, comment *models.SubmissionComment) error
	ListComments(ctx context.Context, submissionID string) ([]models.SubmissionComment, error)
	DeleteComment(ctx context.Context, id, authorID string) error
}

type submissionEnrollmentChecker interface {
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
}

// SubmissionInput is the payload for handing in work.
type SubmissionInput struct {
	AssignmentID string  `json:"assignment_id" validate:"required,uuid4"`
	Content      string  `json:"content" validate:"required,max=50000"`
	FileURL      *string `json:"file_url" validate:"omitempty,max=500"`
}

// CommentInput is the payload for a submission comment.
type CommentInput struct {
	Content string `json:"content" validate:"required,max=5000"`
}

// SubmissionService handles student work and its comment threads. Lateness
// is computed here against the assignment due date; the client never
// supplies it.
type SubmissionService struct {
	repo        submissionRepository
	assignments gradeAssignmentRepository
	enrollments submissionEnrollmentChecker
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(repo submissionRepository, assignments gradeAssignmentRepository, enrollments submissionEnrollmentChecker, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionService{
		repo:        repo,
		assignments: assignments,
		enrollments: enrollments,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit hands in work for an assignment. One submission per student per
// assignment; resubmitting replaces content and recomputes lateness but
// never touches grading fields.
func (s *SubmissionService) Submit(ctx context.Context, student *models.JWTClaims, input SubmissionInput) (*models.Submission, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.assignments.FindByID(ctx, input.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	enrolled, err := s.enrollments.Exists(ctx, student.UserID, assignment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not enrolled in this course")
	}

	submittedAt := s.now()
	late := submittedAt.After(assignment.DueDate)

	existing, err := s.repo.FindByAssignmentAndStudent(ctx, input.AssignmentID, student.UserID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submission")
	}

	if existing != nil {
		if err := s.repo.UpdateContent(ctx, existing.ID, input.Content, input.FileURL, submittedAt, late); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
		}
		existing.Content = input.Content
		existing.FileURL = input.FileURL
		existing.SubmittedAt = submittedAt
		existing.Late = late
		return existing, nil
	}

	submission := &models.Submission{
		AssignmentID: input.AssignmentID,
		StudentID:    student.UserID,
		Content:      input.Content,
		FileURL:      input.FileURL,
		SubmittedAt:  submittedAt,
		Late:         late,
	}
	if err := s.repo.Create(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// List returns submissions matching the filter.
func (s *SubmissionService) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, *models.Pagination, error) {
	submissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
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

// Get returns one submission. Students only see their own; teachers and
// admins see any.
func (s *SubmissionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Submission, error) {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if actor.Role == models.RoleStudent && submission.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
	}
	return submission, nil
}

// Delete removes a submission. Students may delete their own ungraded work.
func (s *SubmissionService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	submission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if actor.Role != models.RoleAdmin {
		if submission.StudentID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
		}
		if submission.Grade != nil || submission.NeedsReview {
			return appErrors.Clone(appErrors.ErrConflict, "graded submissions cannot be deleted")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete submission")
	}
	return nil
}

// AddComment appends a comment to a submission thread.
func (s *SubmissionService) AddComment(ctx context.Context, submissionID string, author *models.JWTClaims, input CommentInput) (*models.SubmissionComment, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	submission, err := s.repo.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if author.Role == models.RoleStudent && submission.StudentID != author.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
	}

	comment := &models.SubmissionComment{
		SubmissionID: submissionID,
		AuthorID:     author.UserID,
		Content:      input.Content,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}

// ListComments returns the comment thread for a submission.
func (s *SubmissionService) ListComments(ctx context.Context, submissionID string, actor *models.JWTClaims) ([]models.SubmissionComment, error) {
	submission, err := s.repo.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if actor.Role == models.RoleStudent && submission.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "submission belongs to another student")
	}
	comments, err := s.repo.ListComments(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// DeleteComment removes a comment authored by the actor.
func (s *SubmissionService) DeleteComment(ctx context.Context, commentID string, actor *models.JWTClaims) error {
	if err := s.repo.DeleteComment(ctx, commentID, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	return nil
}
