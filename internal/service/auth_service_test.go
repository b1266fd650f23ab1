package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type mockAuthRepo struct {
	profiles map[string]*models.Profile
	tokens   map[string]*models.RefreshToken
	audits   []models.AuditLog
	revoked  []string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		profiles: make(map[string]*models.Profile),
		tokens:   make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	for _, p := range m.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if p, ok := m.profiles[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, profile *models.Profile) error {
	m.profiles[profile.ID] = profile
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if p, ok := m.profiles[id]; ok {
		p.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
			m.revoked = append(m.revoked, id)
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.audits = append(m.audits, *log)
	return nil
}

func newAuthFixture() (*AuthService, *mockAuthRepo) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "edutrack-test",
	})
	return svc, repo
}

func seedUser(repo *mockAuthRepo, id, email, password string, role models.UserRole, active bool) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	repo.profiles[id] = &models.Profile{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Active:       active,
	}
}

func TestAuthServiceRegisterIssuesTokens(t *testing.T) {
	svc, repo := newAuthFixture()

	res, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:     "new@edu.example",
		Password:  "supersecret",
		FirstName: "Nina",
		LastName:  "Okafor",
		Role:      "STUDENT",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleStudent, res.User.Role)

	_, err = repo.FindByEmail(context.Background(), "new@edu.example")
	require.NoError(t, err)
	assert.Len(t, repo.tokens, 1)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "usr-1", "taken@edu.example", "password1", models.RoleStudent, true)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:     "taken@edu.example",
		Password:  "supersecret",
		FirstName: "Nina",
		LastName:  "Okafor",
		Role:      "STUDENT",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "usr-1", "user@edu.example", "rightpass", models.RoleStudent, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "user@edu.example",
		Password: "wrongpass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "usr-1", "user@edu.example", "rightpass", models.RoleStudent, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "user@edu.example",
		Password: "rightpass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRoundTrip(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "usr-1", "user@edu.example", "rightpass", models.RoleTeacher, true)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "user@edu.example",
		Password: "rightpass",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "user@edu.example", claims.Email)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "usr-1", "user@edu.example", "rightpass", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "user@edu.example",
		Password: "rightpass",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// the used token is revoked and cannot be replayed
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "usr-1", "user@edu.example", "rightpass", models.RoleStudent, true)

	err := svc.ChangePassword(context.Background(), "usr-1", models.ChangePasswordRequest{
		OldPassword: "nope",
		NewPassword: "brandnewpass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	svc, repo := newAuthFixture()
	seedUser(repo, "usr-1", "user@edu.example", "rightpass", models.RoleStudent, true)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "user@edu.example",
		Password: "rightpass",
	})
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(context.Background(), "usr-1", models.ChangePasswordRequest{
		OldPassword: "rightpass",
		NewPassword: "brandnewpass",
	}))

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
}
