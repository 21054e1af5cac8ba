package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"edu_library_backend/internal/config"
	"edu_library_backend/internal/model"
	"edu_library_backend/internal/util"
	"edu_library_backend/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeBorrowStore struct {
	calls              []string
	hasActive          bool
	created            *model.Borrow
	reminderCandidates []model.Borrow
	expiredActive      []model.Borrow
	remindedIDs        []string
}

func (f *fakeBorrowStore) Create(borrow *model.Borrow) error {
	f.calls = append(f.calls, "Create")
	f.created = borrow
	return nil
}

func (f *fakeBorrowStore) HasActiveBorrow(userID uint, resourceID string) (bool, error) {
	return f.hasActive, nil
}

func (f *fakeBorrowStore) FindByIDAndUser(id string, userID uint) (*model.Borrow, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeBorrowStore) FindByUserPaged(userID uint, status model.BorrowStatus, offset, limit int) ([]model.Borrow, int64, error) {
	return nil, 0, nil
}

func (f *fakeBorrowStore) CountByStatus(userID uint) (map[model.BorrowStatus]int64, error) {
	return nil, nil
}

func (f *fakeBorrowStore) MarkReturned(id string, userID uint, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeBorrowStore) ExtendExpiry(id string, userID uint, extensionDays int) (int64, error) {
	return 0, nil
}

func (f *fakeBorrowStore) UpdateProgress(id string, userID uint, progress int, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeBorrowStore) FindReminderCandidates(now time.Time, window time.Duration) ([]model.Borrow, error) {
	f.calls = append(f.calls, "FindReminderCandidates")
	return f.reminderCandidates, nil
}

func (f *fakeBorrowStore) MarkReminderSent(ids []string) error {
	f.calls = append(f.calls, "MarkReminderSent")
	f.remindedIDs = append(f.remindedIDs, ids...)
	return nil
}

func (f *fakeBorrowStore) FindExpiredActive(now time.Time) ([]model.Borrow, error) {
	f.calls = append(f.calls, "FindExpiredActive")
	return f.expiredActive, nil
}

func (f *fakeBorrowStore) ExpireBatch(now time.Time) (int64, error) {
	f.calls = append(f.calls, "ExpireBatch")
	return int64(len(f.expiredActive)), nil
}

type fakeEventLog struct {
	events []model.LibraryEvent
}

func (f *fakeEventLog) Append(event *model.LibraryEvent) error {
	f.events = append(f.events, *event)
	return nil
}

// recordingSink 通知走 goroutine 投递，用锁保护记录
type recordingSink struct {
	mu   sync.Mutex
	reqs []NotificationRequest
}

func (s *recordingSink) Dispatch(req NotificationRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
}

func (s *recordingSink) snapshot() []NotificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NotificationRequest, len(s.reqs))
	copy(out, s.reqs)
	return out
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func newSweepService(store *fakeBorrowStore, sink *recordingSink, mem *cache.MemoryCache) *BorrowService {
	return NewBorrowService(store, &fakeEventLog{}, mem, sink, config.LibraryConfig{
		DefaultBorrowDays:    14,
		DefaultExtensionDays: 7,
		ReminderWindowHours:  24,
	})
}

func TestSweepRemindsBeforeExpiring(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	within := borrowWith("soon", model.BorrowStatusActive, now.Add(12*time.Hour))
	past := borrowWith("late", model.BorrowStatusActive, now.Add(-time.Hour))

	store := &fakeBorrowStore{
		reminderCandidates: []model.Borrow{within},
		expiredActive:      []model.Borrow{past},
	}
	sink := &recordingSink{}
	mem := cache.NewMemoryCache()
	defer mem.Close()

	svc := newSweepService(store, sink, mem)

	result, err := svc.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reminded)
	assert.Equal(t, 1, result.Expired)

	// 提醒先于过期流转落库，临期用户在记录被置为 expired 前收到预警
	assert.Equal(t, []string{
		"FindReminderCandidates", "MarkReminderSent",
		"FindExpiredActive", "ExpireBatch",
	}, store.calls)
	assert.Equal(t, []string{"soon"}, store.remindedIDs)

	waitForCondition(t, time.Second, func() bool { return len(sink.snapshot()) == 2 })
	byType := make(map[model.NotificationType]NotificationRequest)
	for _, req := range sink.snapshot() {
		byType[req.Type] = req
	}
	assert.Equal(t, "soon", byType[model.NotificationExpiryWarning].Metadata["borrowId"])
	assert.Equal(t, "late", byType[model.NotificationAutoExpired].Metadata["borrowId"])
}

func TestSweepNoWork(t *testing.T) {
	store := &fakeBorrowStore{}
	sink := &recordingSink{}
	mem := cache.NewMemoryCache()
	defer mem.Close()

	svc := newSweepService(store, sink, mem)

	result, err := svc.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, result.Reminded)
	assert.Zero(t, result.Expired)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
}

func TestCheckoutDuplicateActiveBorrow(t *testing.T) {
	store := &fakeBorrowStore{hasActive: true}
	sink := &recordingSink{}
	mem := cache.NewMemoryCache()
	defer mem.Close()

	svc := newSweepService(store, sink, mem)

	_, err := svc.Checkout(context.Background(), 1, "book-x", model.BorrowResourceBook, "算法导论", 0, nil)
	assert.ErrorIs(t, err, util.ErrDuplicateActiveBorrow)
	assert.Nil(t, store.created)
}

func TestCheckoutDefaultsAndSideEffects(t *testing.T) {
	ctx := context.Background()
	store := &fakeBorrowStore{}
	events := &fakeEventLog{}
	sink := &recordingSink{}
	mem := cache.NewMemoryCache()
	defer mem.Close()

	svc := NewBorrowService(store, events, mem, sink, config.LibraryConfig{DefaultBorrowDays: 14})

	// 预置缓存，借出后应被失效
	require.NoError(t, mem.Set(ctx, UserLibraryCacheKey(1), []byte("stale"), time.Minute))

	borrow, err := svc.Checkout(ctx, 1, "book-x", model.BorrowResourceBook, "算法导论", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, model.BorrowStatusActive, borrow.Status)
	assert.Zero(t, borrow.Progress)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), borrow.ExpiryDate, time.Minute)

	require.Len(t, events.events, 1)
	assert.Equal(t, model.ActionBorrow, events.events[0].Action)

	_, err = mem.Get(ctx, UserLibraryCacheKey(1))
	assert.ErrorIs(t, err, cache.ErrMiss)

	waitForCondition(t, time.Second, func() bool { return len(sink.snapshot()) == 1 })
	assert.Equal(t, model.NotificationBorrowSuccess, sink.snapshot()[0].Type)
}
