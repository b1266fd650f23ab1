package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edutrack/edutrack-api/internal/models"
)

// MessageRepository handles the append-only messages table.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends a message.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, content, course_id, created_at)
        VALUES (:id, :sender_id, :content, :course_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// List returns messages for a course feed (nil course = global feed), newest first.
func (r *MessageRepository) List(ctx context.Context, filter models.MessageFilter) ([]models.MessageDetail, int, error) {
	base := `FROM messages m LEFT JOIN profiles p ON p.id = m.sender_id`
	clause := " WHERE m.course_id IS NULL"
	var args []interface{}
	if filter.CourseID != nil {
		clause = " WHERE m.course_id = $1"
		args = append(args, *filter.CourseID)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT m.id, m.sender_id, m.content, m.course_id, m.created_at,
        COALESCE(p.first_name || ' ' || p.last_name, '') AS sender_name
        %s ORDER BY m.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var messages []models.MessageDetail
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}
	return messages, total, nil
}
