package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

const validAssignmentID = "7c1d2e3f-4a5b-4c6d-8e9f-0a1b2c3d4e5f"

type mockFullSubmissionRepo struct {
	byPair   map[string]models.Submission
	byID     map[string]models.Submission
	updated  []string
	comments []models.SubmissionComment
}

func (m *mockFullSubmissionRepo) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockFullSubmissionRepo) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if s, ok := m.byID[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFullSubmissionRepo) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	if s, ok := m.byPair[assignmentID+"/"+studentID]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFullSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = "new-submission"
	}
	if m.byID == nil {
		m.byID = make(map[string]models.Submission)
	}
	if m.byPair == nil {
		m.byPair = make(map[string]models.Submission)
	}
	m.byID[submission.ID] = *submission
	m.byPair[submission.AssignmentID+"/"+submission.StudentID] = *submission
	return nil
}

func (m *mockFullSubmissionRepo) UpdateContent(ctx context.Context, id, content string, fileURL *string, submittedAt time.Time, late bool) error {
	m.updated = append(m.updated, id)
	if s, ok := m.byID[id]; ok {
		s.Content = content
		s.FileURL = fileURL
		s.SubmittedAt = submittedAt
		s.Late = late
		m.byID[id] = s
	}
	return nil
}

func (m *mockFullSubmissionRepo) Delete(ctx context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

func (m *mockFullSubmissionRepo) CreateComment(ctx context.Context, comment *models.SubmissionComment) error {
	if comment.ID == "" {
		comment.ID = "new-comment"
	}
	m.comments = append(m.comments, *comment)
	return nil
}

func (m *mockFullSubmissionRepo) ListComments(ctx context.Context, submissionID string) ([]models.SubmissionComment, error) {
	return m.comments, nil
}

func (m *mockFullSubmissionRepo) DeleteComment(ctx context.Context, id, authorID string) error {
	for _, c := range m.comments {
		if c.ID == id && c.AuthorID == authorID {
			return nil
		}
	}
	return sql.ErrNoRows
}

type mockEnrollmentChecker struct {
	enrolled map[string]bool
}

func (m *mockEnrollmentChecker) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.enrolled[studentID+"/"+courseID], nil
}

func newSubmissionFixture(due time.Time, now time.Time) (*SubmissionService, *mockFullSubmissionRepo) {
	repo := &mockFullSubmissionRepo{}
	assignments := &mockAssignmentReader{assignments: map[string]*models.Assignment{
		validAssignmentID: {ID: validAssignmentID, CourseID: validCourseID, Title: "Essay", Points: 100, DueDate: due},
	}}
	checker := &mockEnrollmentChecker{enrolled: map[string]bool{"stu-1/" + validCourseID: true}}
	svc := NewSubmissionService(repo, assignments, checker, validator.New(), zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, repo
}

func TestSubmissionServiceSubmitOnTime(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc, _ := newSubmissionFixture(due, due.Add(-time.Hour))

	submission, err := svc.Submit(context.Background(), studentClaims("stu-1"), SubmissionInput{
		AssignmentID: validAssignmentID,
		Content:      "my essay",
	})
	require.NoError(t, err)
	assert.False(t, submission.Late)
	assert.Equal(t, "stu-1", submission.StudentID)
}

func TestSubmissionServiceSubmitLate(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc, _ := newSubmissionFixture(due, due.Add(time.Minute))

	submission, err := svc.Submit(context.Background(), studentClaims("stu-1"), SubmissionInput{
		AssignmentID: validAssignmentID,
		Content:      "my essay",
	})
	require.NoError(t, err)
	assert.True(t, submission.Late)
}

func TestSubmissionServiceResubmitReplacesContent(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc, repo := newSubmissionFixture(due, due.Add(-time.Hour))

	first, err := svc.Submit(context.Background(), studentClaims("stu-1"), SubmissionInput{
		AssignmentID: validAssignmentID,
		Content:      "draft",
	})
	require.NoError(t, err)

	second, err := svc.Submit(context.Background(), studentClaims("stu-1"), SubmissionInput{
		AssignmentID: validAssignmentID,
		Content:      "final",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "final", second.Content)
	assert.Contains(t, repo.updated, first.ID)
}

func TestSubmissionServiceSubmitNotEnrolled(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc, _ := newSubmissionFixture(due, due.Add(-time.Hour))

	_, err := svc.Submit(context.Background(), studentClaims("stu-2"), SubmissionInput{
		AssignmentID: validAssignmentID,
		Content:      "sneaky",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceStudentCannotReadOthers(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc, repo := newSubmissionFixture(due, due)
	repo.byID = map[string]models.Submission{
		"sub-1": {ID: "sub-1", AssignmentID: validAssignmentID, StudentID: "stu-1"},
	}

	_, err := svc.Get(context.Background(), "sub-1", studentClaims("stu-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	got, err := svc.Get(context.Background(), "sub-1", teacherClaims("tch-1"))
	require.NoError(t, err)
	assert.Equal(t, "sub-1", got.ID)
}

func TestSubmissionServiceDeleteGradedRefused(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc, repo := newSubmissionFixture(due, due)
	grade := 80.0
	repo.byID = map[string]models.Submission{
		"sub-1": {ID: "sub-1", AssignmentID: validAssignmentID, StudentID: "stu-1", Grade: &grade},
	}

	err := svc.Delete(context.Background(), "sub-1", studentClaims("stu-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
