package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/edutrack/edutrack-api/internal/models"
)

func newNotificationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestNotificationRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now().UTC()
	batch := []models.Notification{
		{ID: "ntf-1", UserID: "usr-1", Title: "Enrollment approved", Message: "You are in", Type: models.NotificationEnrollmentApproved, CreatedAt: now},
		{ID: "ntf-2", UserID: "usr-2", Title: "Enrollment approved", Message: "You are in", Type: models.NotificationEnrollmentApproved, CreatedAt: now},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications (id, user_id, title, message, type, link, related_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8), ($9, $10, $11, $12, $13, $14, $15, $16)")).
		WithArgs(
			"ntf-1", "usr-1", "Enrollment approved", "You are in", models.NotificationEnrollmentApproved, nil, nil, now,
			"ntf-2", "usr-2", "Enrollment approved", "You are in", models.NotificationEnrollmentApproved, nil, nil, now,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.CreateBatch(context.Background(), batch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateBatchEmpty(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	require.NoError(t, repo.CreateBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadNotOwned(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2")).
		WithArgs("ntf-1", "usr-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.MarkRead(context.Background(), "ntf-1", "usr-2")
	require.NoError(t, err)
	require.False(t, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCountUnread(t *testing.T) {
	db, mock, cleanup := newNotificationRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false")).
		WithArgs("usr-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountUnread(context.Background(), "usr-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
