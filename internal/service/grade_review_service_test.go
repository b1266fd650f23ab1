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

type mockSubmissionRepo struct {
	submissions map[string]models.Submission
	cleared     []string
	approved    []string
}

func (m *mockSubmissionRepo) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if s, ok := m.submissions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSubmissionRepo) SetGrade(ctx context.Context, id string, grade float64, feedback string, gradedBy string, gradedAt time.Time) error {
	s := m.submissions[id]
	s.Grade = &grade
	s.Feedback = &feedback
	s.GradedBy = &gradedBy
	s.GradedAt = &gradedAt
	s.NeedsReview = true
	m.submissions[id] = s
	return nil
}

func (m *mockSubmissionRepo) ClearReviewFlag(ctx context.Context, id string) error {
	s := m.submissions[id]
	s.NeedsReview = false
	m.submissions[id] = s
	m.approved = append(m.approved, id)
	return nil
}

func (m *mockSubmissionRepo) ClearGrade(ctx context.Context, id string) error {
	s := m.submissions[id]
	s.Grade = nil
	s.Feedback = nil
	s.GradedAt = nil
	s.GradedBy = nil
	s.NeedsReview = false
	m.submissions[id] = s
	m.cleared = append(m.cleared, id)
	return nil
}

type mockAssignmentReader struct {
	assignments map[string]*models.Assignment
}

func (m *mockAssignmentReader) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

type mockAuditor struct {
	admins []string
	logs   []models.AuditLog
}

func (m *mockAuditor) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func (m *mockAuditor) ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	if role == models.RoleAdmin {
		return m.admins, nil
	}
	return nil, nil
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher, FullName: "Test Teacher"}
}

func newGradeReviewFixture() (*GradeReviewService, *mockSubmissionRepo, *mockAuditor, *mockNotifier) {
	submissions := &mockSubmissionRepo{submissions: map[string]models.Submission{
		"sub-1": {ID: "sub-1", AssignmentID: "asg-1", StudentID: "stu-1"},
	}}
	assignments := &mockAssignmentReader{assignments: map[string]*models.Assignment{
		"asg-1": {ID: "asg-1", CourseID: validCourseID, Title: "Problem Set 1", Points: 100},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		validCourseID: {ID: validCourseID, Title: "Algorithms", Code: "CS301", InstructorID: "tch-1"},
	}}
	auditor := &mockAuditor{admins: []string{"admin-1"}}
	notifier := &mockNotifier{}
	svc := NewGradeReviewService(submissions, assignments, courses, auditor, notifier, nil, validator.New(), zap.NewNop())
	return svc, submissions, auditor, notifier
}

func TestGradeReviewServiceGrade(t *testing.T) {
	svc, submissions, _, notifier := newGradeReviewFixture()

	graded, err := svc.Grade(context.Background(), "sub-1", teacherClaims("tch-1"), GradeInput{Grade: 87.5, Feedback: "Solid work"})
	require.NoError(t, err)
	assert.True(t, graded.NeedsReview)
	require.NotNil(t, graded.Grade)
	assert.InDelta(t, 87.5, *graded.Grade, 0.001)

	stored := submissions.submissions["sub-1"]
	assert.True(t, stored.NeedsReview)
	require.NotNil(t, stored.GradedBy)
	assert.Equal(t, "tch-1", *stored.GradedBy)

	all := notifier.all()
	require.Len(t, all, 1)
	assert.Equal(t, "admin-1", all[0].UserID)
	assert.Equal(t, models.NotificationGradeSubmitted, all[0].Type)
}

func TestGradeReviewServiceGradeOtherInstructorForbidden(t *testing.T) {
	svc, submissions, _, notifier := newGradeReviewFixture()

	_, err := svc.Grade(context.Background(), "sub-1", teacherClaims("tch-2"), GradeInput{Grade: 50})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, submissions.submissions["sub-1"].Grade)
	assert.Empty(t, notifier.all())
}

func TestGradeReviewServiceGradeExceedsPoints(t *testing.T) {
	svc, submissions, _, _ := newGradeReviewFixture()

	_, err := svc.Grade(context.Background(), "sub-1", teacherClaims("tch-1"), GradeInput{Grade: 150})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, submissions.submissions["sub-1"].Grade)
}

func TestGradeReviewServiceApproveKeepsGrade(t *testing.T) {
	svc, submissions, _, notifier := newGradeReviewFixture()
	grade := 90.0
	teacher := "tch-1"
	now := time.Now()
	submissions.submissions["sub-1"] = models.Submission{
		ID: "sub-1", AssignmentID: "asg-1", StudentID: "stu-1",
		Grade: &grade, GradedBy: &teacher, GradedAt: &now, NeedsReview: true,
	}

	require.NoError(t, svc.Approve(context.Background(), "sub-1", adminClaims("admin-1")))

	stored := submissions.submissions["sub-1"]
	assert.False(t, stored.NeedsReview)
	require.NotNil(t, stored.Grade)
	assert.InDelta(t, 90.0, *stored.Grade, 0.001)

	all := notifier.all()
	require.Len(t, all, 1)
	assert.Equal(t, "stu-1", all[0].UserID)
	assert.Equal(t, models.NotificationGradeApproved, all[0].Type)
}

func TestGradeReviewServiceRejectClearsGrade(t *testing.T) {
	svc, submissions, auditor, notifier := newGradeReviewFixture()
	grade := 42.0
	feedback := "Needs work"
	teacher := "tch-1"
	now := time.Now()
	submissions.submissions["sub-1"] = models.Submission{
		ID: "sub-1", AssignmentID: "asg-1", StudentID: "stu-1",
		Grade: &grade, Feedback: &feedback, GradedBy: &teacher, GradedAt: &now, NeedsReview: true,
	}

	require.NoError(t, svc.Reject(context.Background(), "sub-1", adminClaims("admin-1")))

	stored := submissions.submissions["sub-1"]
	assert.Nil(t, stored.Grade)
	assert.Nil(t, stored.Feedback)
	assert.Nil(t, stored.GradedAt)
	assert.Nil(t, stored.GradedBy)
	assert.False(t, stored.NeedsReview)

	require.Len(t, auditor.logs, 1)
	assert.Equal(t, models.AuditActionGradeCleared, auditor.logs[0].Action)
	assert.NotEmpty(t, auditor.logs[0].OldValues)

	all := notifier.all()
	require.Len(t, all, 2)
	recipients := map[string]bool{}
	for _, n := range all {
		assert.Equal(t, models.NotificationGradeRejected, n.Type)
		recipients[n.UserID] = true
	}
	assert.True(t, recipients["stu-1"])
	assert.True(t, recipients["tch-1"])
}

func TestGradeReviewServiceApproveNotAwaitingReview(t *testing.T) {
	svc, _, _, _ := newGradeReviewFixture()

	err := svc.Approve(context.Background(), "sub-1", adminClaims("admin-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotAwaitingReview.Code, appErrors.FromError(err).Code)
}
