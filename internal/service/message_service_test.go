package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/realtime"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type mockMessageRepo struct {
	messages []models.Message
}

func (m *mockMessageRepo) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = "msg-1"
	}
	m.messages = append(m.messages, *message)
	return nil
}

func (m *mockMessageRepo) List(ctx context.Context, filter models.MessageFilter) ([]models.MessageDetail, int, error) {
	var out []models.MessageDetail
	for _, msg := range m.messages {
		if filter.CourseID == nil && msg.CourseID != nil {
			continue
		}
		if filter.CourseID != nil && (msg.CourseID == nil || *msg.CourseID != *filter.CourseID) {
			continue
		}
		out = append(out, models.MessageDetail{Message: msg})
	}
	return out, len(out), nil
}

type mockTopicHub struct {
	mu     sync.Mutex
	topics []string
	events []realtime.Event
}

func (m *mockTopicHub) BroadcastTopic(topic string, event realtime.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	m.events = append(m.events, event)
}

func newMessageFixture() (*MessageService, *mockMessageRepo, *mockTopicHub) {
	repo := &mockMessageRepo{}
	hub := &mockTopicHub{}
	courses := &mockCourseReader{courses: map[string]*models.Course{
		validCourseID: {ID: validCourseID, Title: "Algorithms", Code: "CS301", InstructorID: "tch-1"},
	}}
	checker := &mockEnrollmentChecker{enrolled: map[string]bool{"stu-1/" + validCourseID: true}}
	svc := NewMessageService(repo, checker, courses, hub, nil, zap.NewNop())
	return svc, repo, hub
}

func TestMessageServicePostGlobal(t *testing.T) {
	svc, repo, hub := newMessageFixture()

	message, err := svc.Post(context.Background(), studentClaims("stu-1"), MessageInput{Content: "hello everyone"})
	require.NoError(t, err)
	assert.Nil(t, message.CourseID)
	require.Len(t, repo.messages, 1)

	require.Len(t, hub.topics, 1)
	assert.Equal(t, "messages:global", hub.topics[0])
	assert.Equal(t, "message", hub.events[0].Type)
}

func TestMessageServicePostCourseFeedEnrolled(t *testing.T) {
	svc, _, hub := newMessageFixture()
	courseID := validCourseID

	_, err := svc.Post(context.Background(), studentClaims("stu-1"), MessageInput{
		Content:  "question about lecture 3",
		CourseID: &courseID,
	})
	require.NoError(t, err)
	require.Len(t, hub.topics, 1)
	assert.Equal(t, "messages:course:"+validCourseID, hub.topics[0])
}

func TestMessageServicePostCourseFeedNotEnrolled(t *testing.T) {
	svc, repo, hub := newMessageFixture()
	courseID := validCourseID

	_, err := svc.Post(context.Background(), studentClaims("stu-2"), MessageInput{
		Content:  "sneaking in",
		CourseID: &courseID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.messages)
	assert.Empty(t, hub.topics)
}

func TestMessageServicePostCourseFeedInstructor(t *testing.T) {
	svc, _, hub := newMessageFixture()
	courseID := validCourseID

	_, err := svc.Post(context.Background(), teacherClaims("tch-1"), MessageInput{
		Content:  "office hours moved to 3pm",
		CourseID: &courseID,
	})
	require.NoError(t, err)
	require.Len(t, hub.topics, 1)
}

func TestMessageServiceListGlobalExcludesCourseFeeds(t *testing.T) {
	svc, _, _ := newMessageFixture()
	courseID := validCourseID

	_, err := svc.Post(context.Background(), studentClaims("stu-1"), MessageInput{Content: "global note"})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), studentClaims("stu-1"), MessageInput{Content: "course note", CourseID: &courseID})
	require.NoError(t, err)

	messages, _, err := svc.List(context.Background(), studentClaims("stu-1"), models.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "global note", messages[0].Content)
}
