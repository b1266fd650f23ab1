package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/realtime"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type messageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	List(ctx context.Context, filter models.MessageFilter) ([]models.MessageDetail, int, error)
}

type topicPublisher interface {
	BroadcastTopic(topic string, event realtime.Event)
}

// MessageInput is the payload for posting a message.
type MessageInput struct {
	Content  string  `json:"content" validate:"required,max=5000"`
	CourseID *string `json:"course_id" validate:"omitempty,uuid4"`
}

// MessageService runs the append-only course and global chat feeds. Posted
// messages are pushed to live topic subscribers; history comes from the
// database on load.
type MessageService struct {
	repo        messageRepository
	enrollments submissionEnrollmentChecker
	courses     enrollmentCourseRepository
	hub         topicPublisher
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewMessageService constructs a MessageService instance.
func NewMessageService(repo messageRepository, enrollments submissionEnrollmentChecker, courses enrollmentCourseRepository, hub topicPublisher, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MessageService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		hub:         hub,
		validator:   validate,
		logger:      logger,
	}
}

// Post appends a message to a feed. Course feeds require the sender to be
// enrolled, the instructor, or an admin.
func (s *MessageService) Post(ctx context.Context, sender *models.JWTClaims, input MessageInput) (*models.MessageDetail, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}

	if input.CourseID != nil {
		if err := s.checkCourseAccess(ctx, sender, *input.CourseID); err != nil {
			return nil, err
		}
	}

	message := &models.Message{
		SenderID: sender.UserID,
		Content:  input.Content,
		CourseID: input.CourseID,
	}
	if err := s.repo.Create(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to post message")
	}

	detail := &models.MessageDetail{Message: *message, SenderName: sender.FullName}
	if s.hub != nil {
		s.hub.BroadcastTopic(MessageTopic(input.CourseID), realtime.Event{Type: "message", Payload: detail})
	}
	return detail, nil
}

// List returns a feed page, newest first.
func (s *MessageService) List(ctx context.Context, actor *models.JWTClaims, filter models.MessageFilter) ([]models.MessageDetail, *models.Pagination, error) {
	if filter.CourseID != nil {
		if err := s.checkCourseAccess(ctx, actor, *filter.CourseID); err != nil {
			return nil, nil, err
		}
	}

	messages, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	return messages, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// CheckCourseAccess reports whether the actor may read a course feed. The
// websocket handler uses it before subscribing a connection.
func (s *MessageService) CheckCourseAccess(ctx context.Context, actor *models.JWTClaims, courseID string) error {
	return s.checkCourseAccess(ctx, actor, courseID)
}

func (s *MessageService) checkCourseAccess(ctx context.Context, actor *models.JWTClaims, courseID string) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	if course.InstructorID == actor.UserID {
		return nil
	}
	enrolled, err := s.enrollments.Exists(ctx, actor.UserID, courseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return appErrors.Clone(appErrors.ErrForbidden, "not a participant of this course")
	}
	return nil
}

// MessageTopic names the realtime topic for a feed.
func MessageTopic(courseID *string) string {
	if courseID == nil {
		return "messages:global"
	}
	return "messages:course:" + *courseID
}
