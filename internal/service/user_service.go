package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
	"github.com/edutrack/edutrack-api/pkg/storage"
)

type profileRepository interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, int, error)
	Update(ctx context.Context, profile *models.Profile) error
	SetActive(ctx context.Context, id string, active bool) error
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ProfileUpdateInput is the payload for editing one's own profile.
type ProfileUpdateInput struct {
	FirstName  string  `json:"first_name" validate:"required,max=100"`
	LastName   string  `json:"last_name" validate:"required,max=100"`
	Bio        *string `json:"bio" validate:"omitempty,max=2000"`
	Department *string `json:"department" validate:"omitempty,max=100"`
}

// UserService manages profiles: self-service edits, avatars and the admin
// controls over activation and roles.
type UserService struct {
	repo      profileRepository
	storage   *storage.LocalStorage
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo profileRepository, store *storage.LocalStorage, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, storage: store, validator: validate, logger: logger}
}

// Get returns one profile by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return profile, nil
}

// List returns profiles matching the filter. Admin only.
func (s *UserService) List(ctx context.Context, filter models.ProfileFilter) ([]models.Profile, *models.Pagination, error) {
	profiles, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return profiles, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateProfile edits the actor's own profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, input ProfileUpdateInput) (*models.Profile, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	profile.FirstName = input.FirstName
	profile.LastName = input.LastName
	profile.Bio = input.Bio
	profile.Department = input.Department

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return profile, nil
}

// UploadAvatar stores a new avatar image and records its path.
func (s *UserService) UploadAvatar(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	stored := fmt.Sprintf("%s%s", uuid.NewString(), filepath.Ext(filename))
	relPath, err := s.storage.SaveStream(storage.BucketAvatars, stored, r)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store avatar")
	}
	if err := s.repo.UpdateAvatar(ctx, userID, relPath); err != nil {
		if delErr := s.storage.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to remove orphaned avatar file", zap.Error(delErr))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record avatar")
	}
	return relPath, nil
}

// SetActive activates or deactivates an account. Deactivation revokes all
// refresh tokens so the account drops on next access-token expiry.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool, admin *models.JWTClaims) error {
	if userID == admin.UserID && !active {
		return appErrors.Clone(appErrors.ErrConflict, "cannot deactivate your own account")
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account status")
	}
	if !active {
		if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
			s.logger.Warn("failed to revoke refresh tokens on deactivation", zap.Error(err))
		}
	}
	return nil
}

// ChangeRole sets a user's role directly. Admin only, audit logged.
func (s *UserService) ChangeRole(ctx context.Context, userID string, role models.UserRole, admin *models.JWTClaims) error {
	switch role {
	case models.RoleAdmin, models.RoleTeacher, models.RoleStudent:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	profile, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}

	oldValues, _ := json.Marshal(map[string]string{"role": string(profile.Role)})
	newValues, _ := json.Marshal(map[string]string{"role": string(role)})
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &admin.UserID,
		Action:     models.AuditActionRoleChange,
		Resource:   "profile",
		ResourceID: &userID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record role change audit log", zap.Error(err))
	}
	return nil
}
