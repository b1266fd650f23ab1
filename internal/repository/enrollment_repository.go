package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutrack/edutrack-api/internal/models"
)

// ErrRequestNotPending is returned when a decision targets a request that has
// already been decided.
var ErrRequestNotPending = errors.New("enrollment request is not pending")

// EnrollmentRepository handles persistence of enrollment requests and enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListRequests returns enrollment requests filtered by the provided criteria.
func (r *EnrollmentRepository) ListRequests(ctx context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequestDetail, int, error) {
	base := `FROM enrollment_requests er
LEFT JOIN profiles p ON p.id = er.student_id
LEFT JOIN courses c ON c.id = er.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("er.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("er.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("er.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "er.created_at",
		"student_name": "p.last_name",
		"course_code":  "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "er.created_at"
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

	query := fmt.Sprintf(`SELECT er.id, er.student_id, er.course_id, er.status, er.decided_by, er.decided_at, er.created_at,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS student_name,
        COALESCE(c.title, '') AS course_title, COALESCE(c.code, '') AS course_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var requests []models.EnrollmentRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment requests: %w", err)
	}
	return requests, total, nil
}

// FindRequestByID returns an enrollment request by its ID.
func (r *EnrollmentRepository) FindRequestByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	const query = `SELECT id, student_id, course_id, status, decided_by, decided_at, created_at FROM enrollment_requests WHERE id = $1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// PendingRequestExists checks for an open request for the student/course pair.
func (r *EnrollmentRepository) PendingRequestExists(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollment_requests WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.RequestStatusPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return true, nil
}

// CreateRequest persists a new pending enrollment request.
func (r *EnrollmentRepository) CreateRequest(ctx context.Context, request *models.EnrollmentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	const query = `INSERT INTO enrollment_requests (id, student_id, course_id, status, created_at)
        VALUES (:id, :student_id, :course_id, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create enrollment request: %w", err)
	}
	return nil
}

// ApproveRequestTx marks a pending request approved and creates the resulting
// enrollment in a single transaction, so a failed enrollment insert can never
// leave an approved request behind.
func (r *EnrollmentRepository) ApproveRequestTx(ctx context.Context, requestID, deciderID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var request models.EnrollmentRequest
	if err := tx.GetContext(ctx, &request,
		`SELECT id, student_id, course_id, status, decided_by, decided_at, created_at
         FROM enrollment_requests WHERE id = $1 FOR UPDATE`, requestID); err != nil {
		return nil, err
	}
	if request.Status != models.RequestStatusPending {
		return nil, ErrRequestNotPending
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollment_requests SET status = $2, decided_by = $3, decided_at = $4 WHERE id = $1`,
		requestID, models.RequestStatusApproved, deciderID, now); err != nil {
		return nil, fmt.Errorf("approve request: %w", err)
	}

	enrollment := &models.Enrollment{
		ID:        uuid.NewString(),
		StudentID: request.StudentID,
		CourseID:  request.CourseID,
		Status:    models.EnrollmentStatusActive,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO enrollments (id, student_id, course_id, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		enrollment.ID, enrollment.StudentID, enrollment.CourseID, enrollment.Status, enrollment.CreatedAt); err != nil {
		return nil, fmt.Errorf("create enrollment from request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approve tx: %w", err)
	}
	return enrollment, nil
}

// UpdateRequestStatus records a rejection (or other terminal decision) on a request.
func (r *EnrollmentRepository) UpdateRequestStatus(ctx context.Context, id string, status models.EnrollmentRequestStatus, deciderID string) error {
	const query = `UPDATE enrollment_requests SET status = $2, decided_by = $3, decided_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, deciderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

// DeleteRequest removes a request row (student cancellation).
func (r *EnrollmentRepository) DeleteRequest(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollment_requests WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment request: %w", err)
	}
	return nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN profiles p ON p.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "p.last_name",
		"course_code":  "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.status, e.grade, e.created_at,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS student_name,
        COALESCE(c.title, '') AS course_title, COALESCE(c.code, '') AS course_code
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, status, grade, created_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether a live enrollment exists for the student/course pair.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusDropped); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record (direct enroll path).
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, status, grade, created_at)
        VALUES (:id, :student_id, :course_id, :status, :grade, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates an enrollment's lifecycle status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdateGrade records the final course grade on an enrollment.
func (r *EnrollmentRepository) UpdateGrade(ctx context.Context, id string, grade *string) error {
	const query = `UPDATE enrollments SET grade = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, grade); err != nil {
		return fmt.Errorf("update enrollment grade: %w", err)
	}
	return nil
}

// ListStudentIDsByCourse returns IDs of students actively enrolled in a course.
func (r *EnrollmentRepository) ListStudentIDsByCourse(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT student_id FROM enrollments WHERE course_id = $1 AND status = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list enrolled student ids: %w", err)
	}
	return ids, nil
}

// ListByStudent returns all enrollments for a student with course context.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.status, e.grade, e.created_at,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS student_name,
        COALESCE(c.title, '') AS course_title, COALESCE(c.code, '') AS course_code
        FROM enrollments e
        LEFT JOIN profiles p ON p.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 ORDER BY e.created_at DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}
