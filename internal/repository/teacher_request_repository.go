package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutrack/edutrack-api/internal/models"
)

// TeacherRequestRepository handles persistence of teacher role requests.
type TeacherRequestRepository struct {
	db *sqlx.DB
}

// NewTeacherRequestRepository constructs the repository.
func NewTeacherRequestRepository(db *sqlx.DB) *TeacherRequestRepository {
	return &TeacherRequestRepository{db: db}
}

// Create persists a new pending teacher request.
func (r *TeacherRequestRepository) Create(ctx context.Context, request *models.TeacherRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.TeacherRequestPending
	}
	const query = `INSERT INTO teacher_requests (id, user_id, motivation, status, created_at)
        VALUES (:id, :user_id, :motivation, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create teacher request: %w", err)
	}
	return nil
}

// FindByID returns a teacher request by its ID.
func (r *TeacherRequestRepository) FindByID(ctx context.Context, id string) (*models.TeacherRequest, error) {
	const query = `SELECT id, user_id, motivation, status, decided_by, decided_at, created_at FROM teacher_requests WHERE id = $1`
	var request models.TeacherRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// PendingExists checks for an open request from the user.
func (r *TeacherRequestRepository) PendingExists(ctx context.Context, userID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_requests WHERE user_id = $1 AND status = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, userID, models.TeacherRequestPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending teacher request: %w", err)
	}
	return true, nil
}

// ListPending returns all undecided requests with applicant context, oldest first.
func (r *TeacherRequestRepository) ListPending(ctx context.Context) ([]models.TeacherRequestDetail, error) {
	const query = `SELECT tr.id, tr.user_id, tr.motivation, tr.status, tr.decided_by, tr.decided_at, tr.created_at,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS applicant_name,
        COALESCE(p.email, '') AS applicant_email
        FROM teacher_requests tr
        LEFT JOIN profiles p ON p.id = tr.user_id
        WHERE tr.status = $1 ORDER BY tr.created_at ASC`
	var requests []models.TeacherRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, models.TeacherRequestPending); err != nil {
		return nil, fmt.Errorf("list pending teacher requests: %w", err)
	}
	return requests, nil
}

// UpdateStatus records the admin decision on a request.
func (r *TeacherRequestRepository) UpdateStatus(ctx context.Context, id string, status models.TeacherRequestStatus, deciderID string) error {
	const query = `UPDATE teacher_requests SET status = $2, decided_by = $3, decided_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, deciderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update teacher request status: %w", err)
	}
	return nil
}
