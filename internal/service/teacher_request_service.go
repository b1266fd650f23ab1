package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type teacherRequestRepository interface {
	Create(ctx context.Context, request *models.TeacherRequest) error
	FindByID(ctx context.Context, id string) (*models.TeacherRequest, error)
	PendingExists(ctx context.Context, userID string) (bool, error)
	ListPending(ctx context.Context) ([]models.TeacherRequestDetail, error)
	UpdateStatus(ctx context.Context, id string, status models.TeacherRequestStatus, deciderID string) error
}

type roleUpdater interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListIDsByRole(ctx context.Context, role models.UserRole) ([]string, error)
}

// TeacherRequestInput is the payload for applying for the teacher role.
type TeacherRequestInput struct {
	Motivation string `json:"motivation" validate:"required,min=20,max=2000"`
}

// TeacherRequestService runs the student-to-teacher role upgrade workflow.
type TeacherRequestService struct {
	repo      teacherRequestRepository
	profiles  roleUpdater
	notifier  notificationDispatcher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherRequestService constructs a TeacherRequestService instance.
func NewTeacherRequestService(repo teacherRequestRepository, profiles roleUpdater, notifier notificationDispatcher, validate *validator.Validate, logger *zap.Logger) *TeacherRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TeacherRequestService{
		repo:      repo,
		profiles:  profiles,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
	}
}

// Apply files a teacher role request for the acting student.
func (s *TeacherRequestService) Apply(ctx context.Context, applicant *models.JWTClaims, input TeacherRequestInput) (*models.TeacherRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher request payload")
	}
	if applicant.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only students can request the teacher role")
	}

	pending, err := s.repo.PendingExists(ctx, applicant.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a teacher request is already pending")
	}

	request := &models.TeacherRequest{
		UserID:     applicant.UserID,
		Motivation: input.Motivation,
		Status:     models.TeacherRequestPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher request")
	}

	s.notifyAdmins(ctx, applicant, request)
	return request, nil
}

// ListPending returns undecided requests for the admin queue.
func (s *TeacherRequestService) ListPending(ctx context.Context) ([]models.TeacherRequestDetail, error) {
	requests, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher requests")
	}
	return requests, nil
}

// Approve grants the teacher role and records the role change.
func (s *TeacherRequestService) Approve(ctx context.Context, requestID string, admin *models.JWTClaims) error {
	request, err := s.loadPending(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.profiles.UpdateRole(ctx, request.UserID, models.RoleTeacher); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	if err := s.repo.UpdateStatus(ctx, requestID, models.TeacherRequestApproved, admin.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve teacher request")
	}

	newValues, _ := json.Marshal(map[string]string{"role": string(models.RoleTeacher)})
	if err := s.profiles.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &admin.UserID,
		Action:     models.AuditActionRoleChange,
		Resource:   "profile",
		ResourceID: &request.UserID,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record role change audit log", zap.Error(err))
	}

	if err := s.notifier.Dispatch(ctx, []models.Notification{{
		UserID:    request.UserID,
		Title:     "Teacher request approved",
		Message:   "Your teacher role request was approved. Sign in again to pick up the new role.",
		Type:      models.NotificationTeacherApproved,
		RelatedID: &request.ID,
	}}); err != nil {
		s.logger.Warn("failed to dispatch teacher approval notification", zap.Error(err))
	}
	return nil
}

// Reject declines the request; the applicant keeps the student role.
func (s *TeacherRequestService) Reject(ctx context.Context, requestID string, admin *models.JWTClaims) error {
	request, err := s.loadPending(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, requestID, models.TeacherRequestRejected, admin.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject teacher request")
	}

	if err := s.notifier.Dispatch(ctx, []models.Notification{{
		UserID:    request.UserID,
		Title:     "Teacher request rejected",
		Message:   "Your teacher role request was not approved.",
		Type:      models.NotificationTeacherRejected,
		RelatedID: &request.ID,
	}}); err != nil {
		s.logger.Warn("failed to dispatch teacher rejection notification", zap.Error(err))
	}
	return nil
}

func (s *TeacherRequestService) loadPending(ctx context.Context, requestID string) (*models.TeacherRequest, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher request")
	}
	if request.Status != models.TeacherRequestPending {
		return nil, appErrors.Clone(appErrors.ErrNotPending, "")
	}
	return request, nil
}

func (s *TeacherRequestService) notifyAdmins(ctx context.Context, applicant *models.JWTClaims, request *models.TeacherRequest) {
	adminIDs, err := s.profiles.ListIDsByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Warn("failed to list admins for teacher request notification", zap.Error(err))
		return
	}
	notifications := make([]models.Notification, 0, len(adminIDs))
	message := fmt.Sprintf("%s applied for the teacher role.", applicant.FullName)
	for _, id := range adminIDs {
		notifications = append(notifications, models.Notification{
			UserID:    id,
			Title:     "New teacher request",
			Message:   message,
			Type:      models.NotificationTeacherRequest,
			RelatedID: &request.ID,
		})
	}
	if err := s.notifier.Dispatch(ctx, notifications); err != nil {
		s.logger.Warn("failed to dispatch teacher request notifications", zap.Error(err))
	}
}
