package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edutrack/edutrack-api/internal/models"
	"github.com/edutrack/edutrack-api/internal/realtime"
	appErrors "github.com/edutrack/edutrack-api/pkg/errors"
)

type mockNotificationRepo struct {
	batches [][]models.Notification
	unread  map[string]int
	read    map[string]bool
}

func (m *mockNotificationRepo) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	m.batches = append(m.batches, notifications)
	return nil
}

func (m *mockNotificationRepo) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	return nil, 0, nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	return m.unread[userID], nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	key := id + "/" + userID
	if m.read == nil {
		m.read = make(map[string]bool)
	}
	if _, ok := m.read[key]; !ok {
		return false, nil
	}
	m.read[key] = true
	return true, nil
}

func (m *mockNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return int64(m.unread[userID]), nil
}

type mockHub struct {
	mu     sync.Mutex
	events []realtime.Event
	users  []string
}

func (m *mockHub) NotifyUser(userID string, event realtime.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	m.events = append(m.events, event)
}

func (m *mockHub) delivered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func newNotificationFixture() (*NotificationService, *mockNotificationRepo, *mockHub) {
	repo := &mockNotificationRepo{unread: map[string]int{}}
	hub := &mockHub{}
	svc := NewNotificationService(repo, hub, nil, nil, zap.NewNop(), NotificationConfig{
		Workers:    1,
		RetryDelay: 10 * time.Millisecond,
	})
	return svc, repo, hub
}

func TestNotificationServiceDispatchPersistsBatch(t *testing.T) {
	svc, repo, _ := newNotificationFixture()

	batch := []models.Notification{
		{UserID: "usr-1", Title: "a", Message: "m", Type: models.NotificationCourseCreated},
		{UserID: "usr-2", Title: "a", Message: "m", Type: models.NotificationCourseCreated},
	}
	require.NoError(t, svc.Dispatch(context.Background(), batch))
	require.Len(t, repo.batches, 1)
	assert.Len(t, repo.batches[0], 2)
}

func TestNotificationServiceDispatchEmpty(t *testing.T) {
	svc, repo, _ := newNotificationFixture()
	require.NoError(t, svc.Dispatch(context.Background(), nil))
	assert.Empty(t, repo.batches)
}

func TestNotificationServiceFanout(t *testing.T) {
	svc, _, hub := newNotificationFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	batch := []models.Notification{
		{UserID: "usr-1", Title: "a", Message: "m", Type: models.NotificationGradeApproved},
		{UserID: "usr-2", Title: "a", Message: "m", Type: models.NotificationGradeApproved},
	}
	require.NoError(t, svc.Dispatch(context.Background(), batch))

	require.Eventually(t, func() bool {
		return hub.delivered() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestNotificationServiceMarkReadNotOwned(t *testing.T) {
	svc, repo, _ := newNotificationFixture()
	repo.read = map[string]bool{"ntf-1/usr-1": false}

	err := svc.MarkRead(context.Background(), "ntf-1", "usr-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.MarkRead(context.Background(), "ntf-1", "usr-1"))
}

func TestNotificationServiceUnreadCount(t *testing.T) {
	svc, repo, _ := newNotificationFixture()
	repo.unread["usr-1"] = 4

	count, err := svc.UnreadCount(context.Background(), "usr-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
