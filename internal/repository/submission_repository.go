package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutrack/edutrack-api/internal/models"
)

// SubmissionRepository handles persistence of submissions and their comments.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `s.id, s.assignment_id, s.student_id, s.content, s.file_url, s.submitted_at, s.late,
        s.grade, s.feedback, s.graded_at, s.graded_by, s.needs_review, s.created_at, s.updated_at`

// List returns submissions filtered by the provided criteria.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	base := `FROM submissions s
LEFT JOIN profiles p ON p.id = s.student_id
LEFT JOIN assignments a ON a.id = s.assignment_id`
	var conditions []string
	var args []interface{}

	if filter.AssignmentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.NeedsReview != nil {
		conditions = append(conditions, fmt.Sprintf("s.needs_review = $%d", len(args)+1))
		args = append(args, *filter.NeedsReview)
	}
	if filter.Graded != nil {
		if *filter.Graded {
			conditions = append(conditions, "s.grade IS NOT NULL")
		} else {
			conditions = append(conditions, "s.grade IS NULL")
		}
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"submitted_at": "s.submitted_at",
		"student_name": "p.last_name",
		"graded_at":    "s.graded_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.submitted_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS student_name,
        COALESCE(a.title, '') AS assignment_title, COALESCE(a.points, 0) AS assignment_points,
        COALESCE(a.course_id, '') AS course_id
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, submissionColumns, base+clause, orderBy, order, size, offset)

	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}

// FindByID returns a submission by its ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content, file_url, submitted_at, late, grade, feedback,
        graded_at, graded_by, needs_review, created_at, updated_at FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns the student's submission for an assignment, if any.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content, file_url, submitted_at, late, grade, feedback,
        graded_at, graded_by, needs_review, created_at, updated_at
        FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Create persists a new submission record.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = now
	}
	submission.UpdatedAt = now
	const query = `INSERT INTO submissions (id, assignment_id, student_id, content, file_url, submitted_at, late, needs_review, created_at, updated_at)
        VALUES (:id, :assignment_id, :student_id, :content, :file_url, :submitted_at, :late, :needs_review, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// UpdateContent replaces student-authored fields only. Grading fields are
// untouchable from this path.
func (r *SubmissionRepository) UpdateContent(ctx context.Context, id, content string, fileURL *string, submittedAt time.Time, late bool) error {
	const query = `UPDATE submissions SET content = $2, file_url = $3, submitted_at = $4, late = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, content, fileURL, submittedAt, late, time.Now().UTC()); err != nil {
		return fmt.Errorf("update submission content: %w", err)
	}
	return nil
}

// SetGrade records a teacher grade and flags the submission for admin review.
func (r *SubmissionRepository) SetGrade(ctx context.Context, id string, grade float64, feedback string, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE submissions SET grade = $2, feedback = $3, graded_by = $4, graded_at = $5,
        needs_review = true, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade, feedback, gradedBy, gradedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("set submission grade: %w", err)
	}
	return nil
}

// ClearReviewFlag finalises an approved grade, leaving grade fields untouched.
func (r *SubmissionRepository) ClearReviewFlag(ctx context.Context, id string) error {
	const query = `UPDATE submissions SET needs_review = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear review flag: %w", err)
	}
	return nil
}

// ClearGrade wipes grade, feedback and graded_at after an admin rejection.
func (r *SubmissionRepository) ClearGrade(ctx context.Context, id string) error {
	const query = `UPDATE submissions SET grade = NULL, feedback = NULL, graded_at = NULL, graded_by = NULL,
        needs_review = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("clear submission grade: %w", err)
	}
	return nil
}

// Delete removes a submission by id.
func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM submissions WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	return nil
}

// CreateComment appends a comment to a submission.
func (r *SubmissionRepository) CreateComment(ctx context.Context, comment *models.SubmissionComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submission_comments (id, submission_id, author_id, content, created_at)
        VALUES (:id, :submission_id, :author_id, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create submission comment: %w", err)
	}
	return nil
}

// ListComments returns comments for a submission, oldest first.
func (r *SubmissionRepository) ListComments(ctx context.Context, submissionID string) ([]models.SubmissionComment, error) {
	const query = `SELECT id, submission_id, author_id, content, created_at
        FROM submission_comments WHERE submission_id = $1 ORDER BY created_at ASC`
	var comments []models.SubmissionComment
	if err := r.db.SelectContext(ctx, &comments, query, submissionID); err != nil {
		return nil, fmt.Errorf("list submission comments: %w", err)
	}
	return comments, nil
}

// DeleteComment removes a comment when authored by the given user.
func (r *SubmissionRepository) DeleteComment(ctx context.Context, id, authorID string) error {
	const query = `DELETE FROM submission_comments WHERE id = $1 AND author_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, authorID)
	if err != nil {
		return fmt.Errorf("delete submission comment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
