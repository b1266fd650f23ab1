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

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryPendingRequestExists(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollment_requests WHERE student_id = $1 AND course_id = $2 AND status = $3 LIMIT 1")).
		WithArgs("stu-1", "crs-1", models.RequestStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.PendingRequestExists(context.Background(), "stu-1", "crs-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApproveRequestTx(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "status", "decided_by", "decided_at", "created_at"}).
		AddRow("req-1", "stu-1", "crs-1", models.RequestStatusPending, nil, nil, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollment_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET status = $2, decided_by = $3, decided_at = $4 WHERE id = $1")).
		WithArgs("req-1", models.RequestStatusApproved, "adm-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments (id, student_id, course_id, status, created_at) VALUES ($1, $2, $3, $4, $5)")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "crs-1", models.EnrollmentStatusActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.ApproveRequestTx(context.Background(), "req-1", "adm-1")
	require.NoError(t, err)
	require.Equal(t, "stu-1", enrollment.StudentID)
	require.Equal(t, "crs-1", enrollment.CourseID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryApproveRequestTxNotPending(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "status", "decided_by", "decided_at", "created_at"}).
		AddRow("req-1", "stu-1", "crs-1", models.RequestStatusRejected, "adm-1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollment_requests WHERE id = $1 FOR UPDATE")).
		WithArgs("req-1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	enrollment, err := repo.ApproveRequestTx(context.Background(), "req-1", "adm-1")
	require.ErrorIs(t, err, ErrRequestNotPending)
	require.Nil(t, enrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status <> $3 LIMIT 1")).
		WithArgs("stu-1", "crs-1", models.EnrollmentStatusDropped).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.Exists(context.Background(), "stu-1", "crs-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
