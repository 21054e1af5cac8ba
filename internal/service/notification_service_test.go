package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"edu_library_backend/internal/model"
	"edu_library_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotificationStore struct {
	mu        sync.Mutex
	createErr error
	created   []model.Notification
}

func (f *fakeNotificationStore) Create(notification *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *notification)
	return f.createErr
}

func (f *fakeNotificationStore) FindByUserPaged(userID uint, offset, limit int) ([]model.Notification, int64, error) {
	return nil, 0, nil
}

func (f *fakeNotificationStore) MarkRead(id string, userID uint) (int64, error) {
	return 0, nil
}

func (f *fakeNotificationStore) UnreadCount(userID uint) (int64, error) {
	return 0, nil
}

func (f *fakeNotificationStore) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type failingEmail struct {
	mu    sync.Mutex
	calls int
}

func (f *failingEmail) Send(userID uint, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("smtp down")
}

func (f *failingEmail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDispatchSwallowsChannelFailures(t *testing.T) {
	store := &fakeNotificationStore{createErr: errors.New("db down")}
	email := &failingEmail{}

	svc := NewNotificationService(store, nil, email)
	defer svc.Stop()

	// 落库和邮件通道都故障，Dispatch 仍正常返回
	svc.Dispatch(NotificationRequest{
		UserID:        7,
		Title:         "借阅成功",
		Message:       "测试",
		Type:          model.NotificationBorrowSuccess,
		SendEmail:     true,
		SendWebSocket: true,
	})

	waitForCondition(t, time.Second, func() bool { return email.count() == 1 })
	assert.Equal(t, 1, store.createdCount())

	// 通道故障后服务仍可继续投递
	svc.Dispatch(NotificationRequest{
		UserID:    7,
		Title:     "归还成功",
		Type:      model.NotificationReturnSuccess,
		SendEmail: true,
	})
	waitForCondition(t, time.Second, func() bool { return email.count() == 2 })
	assert.Equal(t, 2, store.createdCount())
}

func TestDispatchSkipsEmailWhenNotRequested(t *testing.T) {
	store := &fakeNotificationStore{}
	email := &failingEmail{}

	svc := NewNotificationService(store, nil, email)
	defer svc.Stop()

	svc.Dispatch(NotificationRequest{
		UserID: 3,
		Title:  "借阅即将到期",
		Type:   model.NotificationExpiryWarning,
	})

	require.Equal(t, 1, store.createdCount())
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, email.count())
}

func TestMarkReadNotFound(t *testing.T) {
	svc := NewNotificationService(&fakeNotificationStore{}, nil, LogEmailSender{})
	defer svc.Stop()

	err := svc.MarkRead(1, "missing")
	assert.ErrorIs(t, err, util.ErrNotificationNotFound)
}
