package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newSubmissionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSubmissionRepositorySetGradeFlagsReview(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	gradedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET grade = $2, feedback = $3, graded_by = $4, graded_at = $5")).
		WithArgs("sub-1", 87.5, "Good work", "tch-1", gradedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetGrade(context.Background(), "sub-1", 87.5, "Good work", "tch-1", gradedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryClearGrade(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submissions SET grade = NULL, feedback = NULL, graded_at = NULL, graded_by = NULL")).
		WithArgs("sub-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ClearGrade(context.Background(), "sub-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionRepositoryDeleteCommentNotAuthor(t *testing.T) {
	db, mock, cleanup := newSubmissionRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submission_comments WHERE id = $1 AND author_id = $2")).
		WithArgs("cmt-1", "usr-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteComment(context.Background(), "cmt-1", "usr-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
