package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type mockTeacherRequestRepo struct {
	requests map[string]*models.TeacherRequest
	seq      int
}

func (m *mockTeacherRequestRepo) Create(ctx context.Context, request *models.TeacherRequest) error {
	if m.requests == nil {
		m.requests = make(map[string]*models.TeacherRequest)
	}
	m.seq++
	request.ID = fmt.Sprintf("treq-%d", m.seq)
	m.requests[request.ID] = request
	return nil
}

func (m *mockTeacherRequestRepo) FindByID(ctx context.Context, id string) (*models.TeacherRequest, error) {
	if r, ok := m.requests[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTeacherRequestRepo) PendingExists(ctx context.Context, userID string) (bool, error) {
	for _, r := range m.requests {
		if r.UserID == userID && r.Status == models.TeacherRequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTeacherRequestRepo) ListPending(ctx context.Context) ([]models.TeacherRequestDetail, error) {
	var out []models.TeacherRequestDetail
	for _, r := range m.requests {
		if r.Status == models.TeacherRequestPending {
			out = append(out, models.TeacherRequestDetail{TeacherRequest: *r})
		}
	}
	return out, nil
}

func (m *mockTeacherRequestRepo) UpdateStatus(ctx context.Context, id string, status models.TeacherRequestStatus, deciderID string) error {
	if r, ok := m.requests[id]; ok {
		r.Status = status
		r.DecidedBy = &deciderID
	}
	return nil
}

type mockRoleUpdater struct {
	profiles map[string]*models.Profile
	admins   []string
	roles    map[string]models.UserRole
	audits   []models.AuditLog
}

func (m *mockRoleUpdater) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRoleUpdater) UpdateRole(ctx context.Context, id string, role models.UserRole) error {
	if m.roles == nil {
		m.roles = make(map[string]models.UserRole)
	}
	m.roles[id] = role
	return nil
}

func (m *mockRoleUpdater) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func (m *mockRoleUpdater) ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error) {
	if role == models.RoleAdmin {
		return m.admins, nil
	}
	return nil, nil
}

func newTeacherRequestFixture() (*TeacherRequestService, *mockTeacherRequestRepo, *mockRoleUpdater, *mockNotifier) {
	repo := &mockTeacherRequestRepo{}
	profiles := &mockRoleUpdater{admins: []string{"adm-1"}}
	notifier := &mockNotifier{}
	svc := NewTeacherRequestService(repo, profiles, notifier, nil, zap.NewNop())
	return svc, repo, profiles, notifier
}

const motivation = "I have been tutoring algorithms for three years and want to teach."

func TestTeacherRequestApplyNotifiesAdmins(t *testing.T) {
	svc, _, _, notifier := newTeacherRequestFixture()

	request, err := svc.Apply(context.Background(), studentClaims("stu-1"), TeacherRequestInput{Motivation: motivation})
	require.NoError(t, err)
	assert.Equal(t, models.TeacherRequestPending, request.Status)

	all := notifier.all()
	require.Len(t, all, 1)
	assert.Equal(t, "adm-1", all[0].UserID)
	assert.Equal(t, models.NotificationTeacherRequest, all[0].Type)
}

func TestTeacherRequestApplyNonStudent(t *testing.T) {
	svc, _, _, _ := newTeacherRequestFixture()

	_, err := svc.Apply(context.Background(), teacherClaims("tch-1"), TeacherRequestInput{Motivation: motivation})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherRequestApplyDuplicatePending(t *testing.T) {
	svc, _, _, _ := newTeacherRequestFixture()

	_, err := svc.Apply(context.Background(), studentClaims("stu-1"), TeacherRequestInput{Motivation: motivation})
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), studentClaims("stu-1"), TeacherRequestInput{Motivation: motivation})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTeacherRequestApprovePromotesApplicant(t *testing.T) {
	svc, repo, profiles, notifier := newTeacherRequestFixture()

	request, err := svc.Apply(context.Background(), studentClaims("stu-1"), TeacherRequestInput{Motivation: motivation})
	require.NoError(t, err)

	require.NoError(t, svc.Approve(context.Background(), request.ID, adminClaims("adm-1")))

	assert.Equal(t, models.RoleTeacher, profiles.roles["stu-1"])
	assert.Equal(t, models.TeacherRequestApproved, repo.requests[request.ID].Status)

	require.Len(t, profiles.audits, 1)
	assert.Equal(t, models.AuditActionRoleChange, profiles.audits[0].Action)

	all := notifier.all()
	require.Len(t, all, 2)
	assert.Equal(t, models.NotificationTeacherApproved, all[1].Type)
	assert.Equal(t, "stu-1", all[1].UserID)
}

func TestTeacherRequestRejectKeepsStudentRole(t *testing.T) {
	svc, repo, profiles, _ := newTeacherRequestFixture()

	request, err := svc.Apply(context.Background(), studentClaims("stu-1"), TeacherRequestInput{Motivation: motivation})
	require.NoError(t, err)

	require.NoError(t, svc.Reject(context.Background(), request.ID, adminClaims("adm-1")))
	assert.Empty(t, profiles.roles)
	assert.Equal(t, models.TeacherRequestRejected, repo.requests[request.ID].Status)
}

func TestTeacherRequestApproveNotPending(t *testing.T) {
	svc, repo, _, _ := newTeacherRequestFixture()

	request, err := svc.Apply(context.Background(), studentClaims("stu-1"), TeacherRequestInput{Motivation: motivation})
	require.NoError(t, err)
	require.NoError(t, svc.Reject(context.Background(), request.ID, adminClaims("adm-1")))

	err = svc.Approve(context.Background(), request.ID, adminClaims("adm-1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotPending.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.TeacherRequestRejected, repo.requests[request.ID].Status)
}
