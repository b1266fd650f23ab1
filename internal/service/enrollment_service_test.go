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
	"github.com/edutrack/edutrack-api/internal/repository"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	requests    map[string]models.EnrollmentRequest
	enrollments map[string]models.Enrollment
	enrolled    map[string]bool
	pending     map[string]bool
	created     *models.Enrollment
	approvedTx  []string
	statuses    map[string]models.EnrollmentRequestStatus
}

func pairKey(studentID, courseID string) string { return studentID + "/" + courseID }

func (m *mockEnrollmentRepo) ListRequests(ctx context.Context, filter models.EnrollmentRequestFilter) ([]models.EnrollmentRequestDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindRequestByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) PendingRequestExists(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.pending[pairKey(studentID, courseID)], nil
}

func (m *mockEnrollmentRepo) CreateRequest(ctx context.Context, request *models.EnrollmentRequest) error {
	if m.requests == nil {
		m.requests = make(map[string]models.EnrollmentRequest)
	}
	if request.ID == "" {
		request.ID = "new-request"
	}
	m.requests[request.ID] = *request
	return nil
}

func (m *mockEnrollmentRepo) ApproveRequestTx(ctx context.Context, requestID, deciderID string) (*models.Enrollment, error) {
	r, ok := m.requests[requestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if r.Status != models.RequestStatusPending {
		return nil, repository.ErrRequestNotPending
	}
	r.Status = models.RequestStatusApproved
	r.DecidedBy = &deciderID
	m.requests[requestID] = r
	m.approvedTx = append(m.approvedTx, requestID)

	enrollment := models.Enrollment{ID: "enr-" + requestID, StudentID: r.StudentID, CourseID: r.CourseID, Status: models.EnrollmentStatusActive, CreatedAt: time.Now()}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollment.ID] = enrollment
	return &enrollment, nil
}

func (m *mockEnrollmentRepo) UpdateRequestStatus(ctx context.Context, id string, status models.EnrollmentRequestStatus, deciderID string) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.EnrollmentRequestStatus)
	}
	m.statuses[id] = status
	if r, ok := m.requests[id]; ok {
		r.Status = status
		r.DecidedBy = &deciderID
		m.requests[id] = r
	}
	return nil
}

func (m *mockEnrollmentRepo) DeleteRequest(ctx context.Context, id string) error {
	delete(m.requests, id)
	return nil
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.enrolled[pairKey(studentID, courseID)], nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) UpdateGrade(ctx context.Context, id string, grade *string) error {
	if e, ok := m.enrollments[id]; ok {
		e.Grade = grade
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockDirectory struct {
	admins   []string
	students []string
	profiles map[string]*models.Profile
}

func (m *mockDirectory) ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	switch role {
	case models.RoleAdmin:
		return m.admins, nil
	case models.RoleStudent:
		return m.students, nil
	}
	return nil, nil
}

func (m *mockDirectory) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockNotifier struct {
	batches [][]models.Notification
}

func (m *mockNotifier) Dispatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) > 0 {
		m.batches = append(m.batches, notifications)
	}
	return nil
}

func (m *mockNotifier) all() []models.Notification {
	var out []models.Notification
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

const validCourseID = "3b9e8d54-1f2a-4f6c-9a2f-0d3c1e5b7a91"

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent, FullName: "Test Student"}
}

func adminClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleAdmin, FullName: "Test Admin"}
}

func newEnrollmentFixture() (*EnrollmentService, *mockEnrollmentRepo, *mockNotifier) {
	repo := &mockEnrollmentRepo{
		enrolled: map[string]bool{},
		pending:  map[string]bool{},
	}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		validCourseID: {ID: validCourseID, Title: "Algorithms", Code: "CS301", InstructorID: "teacher-1"},
	}}
	notifier := &mockNotifier{}
	svc := NewEnrollmentService(repo, courses, &mockDirectory{admins: []string{"admin-1"}}, notifier, nil, validator.New(), zap.NewNop())
	return svc, repo, notifier
}

func TestEnrollmentServiceRequest(t *testing.T) {
	svc, repo, notifier := newEnrollmentFixture()

	request, err := svc.Request(context.Background(), studentClaims("stu-1"), EnrollmentRequestInput{CourseID: validCourseID})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.Equal(t, "stu-1", request.StudentID)
	require.Len(t, repo.requests, 1)

	recipients := map[string]bool{}
	for _, n := range notifier.all() {
		assert.Equal(t, models.NotificationEnrollmentRequested, n.Type)
		recipients[n.UserID] = true
	}
	assert.True(t, recipients["teacher-1"])
	assert.True(t, recipients["admin-1"])
}

func TestEnrollmentServiceRequestAlreadyEnrolled(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrolled[pairKey("stu-1", validCourseID)] = true

	_, err := svc.Request(context.Background(), studentClaims("stu-1"), EnrollmentRequestInput{CourseID: validCourseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.requests)
}

func TestEnrollmentServiceRequestDuplicatePending(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.pending[pairKey("stu-1", validCourseID)] = true

	_, err := svc.Request(context.Background(), studentClaims("stu-1"), EnrollmentRequestInput{CourseID: validCourseID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceApprove(t *testing.T) {
	svc, repo, notifier := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusPending},
	}

	enrollment, err := svc.Approve(context.Background(), "req-1", adminClaims("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, "stu-1", enrollment.StudentID)
	assert.Contains(t, repo.approvedTx, "req-1")
	assert.Equal(t, models.RequestStatusApproved, repo.requests["req-1"].Status)

	all := notifier.all()
	require.Len(t, all, 1)
	assert.Equal(t, "stu-1", all[0].UserID)
	assert.Equal(t, models.NotificationEnrollmentApproved, all[0].Type)
}

func TestEnrollmentServiceApproveNotPending(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusRejected},
	}

	_, err := svc.Approve(context.Background(), "req-1", adminClaims("admin-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotPending.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.enrollments)
}

func TestEnrollmentServiceApproveByInstructor(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusPending},
	}

	enrollment, err := svc.Approve(context.Background(), "req-1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Equal(t, models.RequestStatusApproved, repo.requests["req-1"].Status)
}

func TestEnrollmentServiceApproveByOtherInstructorForbidden(t *testing.T) {
	svc, repo, notifier := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusPending},
	}

	_, err := svc.Approve(context.Background(), "req-1", teacherClaims("teacher-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.approvedTx)
	assert.Equal(t, models.RequestStatusPending, repo.requests["req-1"].Status)
	assert.Empty(t, notifier.all())
}

func TestEnrollmentServiceRejectByOtherInstructorForbidden(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusPending},
	}

	err := svc.Reject(context.Background(), "req-1", teacherClaims("teacher-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.RequestStatusPending, repo.requests["req-1"].Status)
}

func TestEnrollmentServiceReject(t *testing.T) {
	svc, repo, notifier := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusPending},
	}

	err := svc.Reject(context.Background(), "req-1", adminClaims("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, repo.statuses["req-1"])
	assert.Empty(t, repo.enrollments)

	all := notifier.all()
	require.Len(t, all, 1)
	assert.Equal(t, models.NotificationEnrollmentRejected, all[0].Type)
}

func TestEnrollmentServiceRerequestAfterRejection(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusRejected},
	}

	request, err := svc.Request(context.Background(), studentClaims("stu-1"), EnrollmentRequestInput{CourseID: validCourseID})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.Len(t, repo.requests, 2)
}

func TestEnrollmentServiceCancelRequest(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.requests = map[string]models.EnrollmentRequest{
		"req-1": {ID: "req-1", StudentID: "stu-1", CourseID: validCourseID, Status: models.RequestStatusPending},
	}

	err := svc.CancelRequest(context.Background(), "req-1", studentClaims("stu-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.CancelRequest(context.Background(), "req-1", studentClaims("stu-1")))
	assert.Empty(t, repo.requests)
}

func TestEnrollmentServiceDirectEnrollDuplicate(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrolled[pairKey("stu-1", validCourseID)] = true

	_, err := svc.DirectEnroll(context.Background(), "stu-1", validCourseID, adminClaims("admin-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestEnrollmentServiceDirectEnrollByInstructor(t *testing.T) {
	svc, repo, notifier := newEnrollmentFixture()

	enrollment, err := svc.DirectEnroll(context.Background(), "stu-1", validCourseID, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, repo.created)

	all := notifier.all()
	require.Len(t, all, 1)
	assert.Equal(t, "stu-1", all[0].UserID)
	assert.Equal(t, models.NotificationEnrollmentCreated, all[0].Type)
}

func TestEnrollmentServiceDirectEnrollByOtherInstructorForbidden(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	_, err := svc.DirectEnroll(context.Background(), "stu-1", validCourseID, teacherClaims("teacher-2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}
