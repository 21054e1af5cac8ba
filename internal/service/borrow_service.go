package service

import (
	"context"
	"edu_library_backend/internal/config"
	"edu_library_backend/internal/model"
	"edu_library_backend/internal/util"
	"edu_library_backend/pkg/cache"
	"edu_library_backend/pkg/logger"
	"edu_library_backend/pkg/monitoring"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BorrowStore 生命周期操作依赖的持久层，单测用假实现
type BorrowStore interface {
	Create(borrow *model.Borrow) error
	HasActiveBorrow(userID uint, resourceID string) (bool, error)
	FindByIDAndUser(id string, userID uint) (*model.Borrow, error)
	FindByUserPaged(userID uint, status model.BorrowStatus, offset, limit int) ([]model.Borrow, int64, error)
	CountByStatus(userID uint) (map[model.BorrowStatus]int64, error)
	MarkReturned(id string, userID uint, now time.Time) (int64, error)
	ExtendExpiry(id string, userID uint, extensionDays int) (int64, error)
	UpdateProgress(id string, userID uint, progress int, now time.Time) (int64, error)
	FindReminderCandidates(now time.Time, window time.Duration) ([]model.Borrow, error)
	MarkReminderSent(ids []string) error
	FindExpiredActive(now time.Time) ([]model.Borrow, error)
	ExpireBatch(now time.Time) (int64, error)
}

// EventAppender 行为事件流出口
type EventAppender interface {
	Append(event *model.LibraryEvent) error
}

// BorrowService 借阅生命周期：借出、归还、续借、进度、到期清扫。
// 状态流转一律走按 (id, user, 期望状态) 过滤的条件更新，避免读-改-写竞态
type BorrowService struct {
	BorrowRepo BorrowStore
	EventRepo  EventAppender
	Cache      cache.Service
	Notifier   NotificationSink
	Cfg        config.LibraryConfig
}

func NewBorrowService(
	borrowRepo BorrowStore,
	eventRepo EventAppender,
	cacheService cache.Service,
	notifier NotificationSink,
	cfg config.LibraryConfig,
) *BorrowService {
	return &BorrowService{
		BorrowRepo: borrowRepo,
		EventRepo:  eventRepo,
		Cache:      cacheService,
		Notifier:   notifier,
		Cfg:        cfg,
	}
}

// UserLibraryCacheKey 用户图书馆面板的缓存键，所有写操作都要失效它
func UserLibraryCacheKey(userID uint) string {
	return fmt.Sprintf("library_%d", userID)
}

func (s *BorrowService) invalidateUserCache(ctx context.Context, userID uint) {
	if err := s.Cache.Delete(ctx, UserLibraryCacheKey(userID)); err != nil {
		logger.Log.Error("library cache invalidation failed",
			zap.Error(err), zap.Uint("userId", userID))
	}
}

func (s *BorrowService) appendEvent(event *model.LibraryEvent) {
	if err := s.EventRepo.Append(event); err != nil {
		logger.Log.Error("library event append failed",
			zap.Error(err),
			zap.Uint("userId", event.UserID),
			zap.String("action", string(event.Action)))
	}
}

// notify 状态落库之后异步投递，通知通道的故障不影响借阅结果
func (s *BorrowService) notify(req NotificationRequest) {
	go s.Notifier.Dispatch(req)
}

// Checkout 借出资源。同一 (用户, 资源) 只允许一条 active 记录
func (s *BorrowService) Checkout(ctx context.Context, userID uint, resourceID string, resourceType model.BorrowResourceType, resourceTitle string, durationDays int, metadata model.JSONMap) (*model.Borrow, error) {
	exists, err := s.BorrowRepo.HasActiveBorrow(userID, resourceID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, util.ErrDuplicateActiveBorrow
	}

	if durationDays <= 0 {
		durationDays = s.Cfg.DefaultBorrowDays
	}

	now := time.Now()
	borrow := &model.Borrow{
		UserID:        userID,
		ResourceID:    resourceID,
		ResourceType:  resourceType,
		ResourceTitle: resourceTitle,
		BorrowDate:    now,
		ExpiryDate:    now.AddDate(0, 0, durationDays),
		Status:        model.BorrowStatusActive,
		Progress:      0,
		Metadata:      metadata,
	}

	if err := s.BorrowRepo.Create(borrow); err != nil {
		return nil, err
	}

	s.appendEvent(&model.LibraryEvent{
		UserID:       userID,
		Action:       model.ActionBorrow,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Metadata:     metadata,
		Timestamp:    now,
	})

	s.invalidateUserCache(ctx, userID)

	s.notify(NotificationRequest{
		UserID:  userID,
		Title:   "借阅成功",
		Message: fmt.Sprintf("《%s》已借出，%s 到期。", resourceTitle, borrow.ExpiryDate.Format(util.DateFormat)),
		Type:    model.NotificationBorrowSuccess,
		Metadata: model.JSONMap{
			"borrowId":   borrow.ID,
			"resourceId": resourceID,
			"expiryDate": borrow.ExpiryDate.Format(time.RFC3339),
		},
		SendEmail:     true,
		SendWebSocket: true,
	})

	return borrow, nil
}

// Return 归还。过期未清扫的记录同样允许归还
func (s *BorrowService) Return(ctx context.Context, userID uint, borrowID string) (*model.Borrow, error) {
	now := time.Now()
	affected, err := s.BorrowRepo.MarkReturned(borrowID, userID, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// 区分记录不存在和状态不符
		if _, findErr := s.BorrowRepo.FindByIDAndUser(borrowID, userID); findErr == gorm.ErrRecordNotFound {
			return nil, util.ErrBorrowNotFound
		} else if findErr != nil {
			return nil, findErr
		}
		return nil, util.ErrBorrowNotActive
	}

	borrow, err := s.BorrowRepo.FindByIDAndUser(borrowID, userID)
	if err != nil {
		return nil, err
	}

	s.appendEvent(&model.LibraryEvent{
		UserID:       userID,
		Action:       model.ActionReturn,
		ResourceID:   borrow.ResourceID,
		ResourceType: borrow.ResourceType,
		Timestamp:    now,
	})

	s.invalidateUserCache(ctx, userID)

	s.notify(NotificationRequest{
		UserID:        userID,
		Title:         "归还成功",
		Message:       fmt.Sprintf("《%s》已归还。", borrow.ResourceTitle),
		Type:          model.NotificationReturnSuccess,
		Metadata:      model.JSONMap{"borrowId": borrow.ID},
		SendWebSocket: true,
	})

	return borrow, nil
}

// Renew 续借：在当前到期时间上加 extensionDays，不是从现在重新起算，
// 提前续借不会损失剩余时长
func (s *BorrowService) Renew(ctx context.Context, userID uint, borrowID string, extensionDays int) (*model.Borrow, error) {
	if extensionDays <= 0 {
		extensionDays = s.Cfg.DefaultExtensionDays
	}

	affected, err := s.BorrowRepo.ExtendExpiry(borrowID, userID, extensionDays)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, findErr := s.BorrowRepo.FindByIDAndUser(borrowID, userID); findErr == gorm.ErrRecordNotFound {
			return nil, util.ErrBorrowNotFound
		} else if findErr != nil {
			return nil, findErr
		}
		return nil, util.ErrBorrowNotActive
	}

	borrow, err := s.BorrowRepo.FindByIDAndUser(borrowID, userID)
	if err != nil {
		return nil, err
	}

	s.invalidateUserCache(ctx, userID)

	s.notify(NotificationRequest{
		UserID:  userID,
		Title:   "续借成功",
		Message: fmt.Sprintf("《%s》已续借 %d 天，新的到期时间为 %s。", borrow.ResourceTitle, extensionDays, borrow.ExpiryDate.Format(util.DateFormat)),
		Type:    model.NotificationRenewSuccess,
		Metadata: model.JSONMap{
			"borrowId":   borrow.ID,
			"expiryDate": borrow.ExpiryDate.Format(time.RFC3339),
		},
		SendEmail:     true,
		SendWebSocket: true,
	})

	return borrow, nil
}

// UpdateProgress 更新阅读进度，到 100 自动完结
func (s *BorrowService) UpdateProgress(ctx context.Context, userID uint, borrowID string, progress int) (*model.Borrow, error) {
	clamped := model.ClampProgress(progress)

	now := time.Now()
	affected, err := s.BorrowRepo.UpdateProgress(borrowID, userID, clamped, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, findErr := s.BorrowRepo.FindByIDAndUser(borrowID, userID); findErr == gorm.ErrRecordNotFound {
			return nil, util.ErrBorrowNotFound
		} else if findErr != nil {
			return nil, findErr
		}
		return nil, util.ErrBorrowNotActive
	}

	borrow, err := s.BorrowRepo.FindByIDAndUser(borrowID, userID)
	if err != nil {
		return nil, err
	}

	action := model.ActionProgressUpdate
	if clamped >= 100 {
		action = model.ActionComplete
	}
	s.appendEvent(&model.LibraryEvent{
		UserID:       userID,
		Action:       action,
		ResourceID:   borrow.ResourceID,
		ResourceType: borrow.ResourceType,
		Value:        clamped,
		Timestamp:    now,
	})

	s.invalidateUserCache(ctx, userID)

	return borrow, nil
}

func (s *BorrowService) List(userID uint, status model.BorrowStatus, page, limit int) ([]model.Borrow, int64, error) {
	offset := (page - 1) * limit
	return s.BorrowRepo.FindByUserPaged(userID, status, offset, limit)
}

// BorrowStats 各状态借阅数
type BorrowStats struct {
	Active    int64 `json:"active"`
	Returned  int64 `json:"returned"`
	Expired   int64 `json:"expired"`
	Completed int64 `json:"completed"`
	Total     int64 `json:"total"`
}

func (s *BorrowService) Stats(userID uint) (*BorrowStats, error) {
	counts, err := s.BorrowRepo.CountByStatus(userID)
	if err != nil {
		return nil, err
	}

	stats := &BorrowStats{
		Active:    counts[model.BorrowStatusActive],
		Returned:  counts[model.BorrowStatusReturned],
		Expired:   counts[model.BorrowStatusExpired],
		Completed: counts[model.BorrowStatusCompleted],
	}
	stats.Total = stats.Active + stats.Returned + stats.Expired + stats.Completed
	return stats, nil
}

// SweepResult 一次清扫的处理量
type SweepResult struct {
	Reminded int
	Expired  int
}

// Sweep 定时批处理：先发提醒再做过期流转，保证临期用户至少收到一次预警。
// 只有这里会把 active 置为 expired
func (s *BorrowService) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	result := &SweepResult{}

	// 1. 提醒窗口内且未提醒过的
	candidates, err := s.BorrowRepo.FindReminderCandidates(now, s.Cfg.ReminderWindow())
	if err != nil {
		return nil, err
	}

	remindedIDs := make([]string, 0, len(candidates))
	for i := range candidates {
		b := &candidates[i]
		remindedIDs = append(remindedIDs, b.ID)
		s.notify(NotificationRequest{
			UserID:  b.UserID,
			Title:   "借阅即将到期",
			Message: fmt.Sprintf("《%s》将于 %s 到期，请及时归还或续借。", b.ResourceTitle, b.ExpiryDate.Format(util.TimeFormat)),
			Type:    model.NotificationExpiryWarning,
			Metadata: model.JSONMap{
				"borrowId":   b.ID,
				"expiryDate": b.ExpiryDate.Format(time.RFC3339),
			},
			SendEmail:     true,
			SendWebSocket: true,
		})
	}
	if err := s.BorrowRepo.MarkReminderSent(remindedIDs); err != nil {
		return nil, err
	}
	result.Reminded = len(remindedIDs)
	monitoring.SweepTransitionCounter.WithLabelValues("reminded").Add(float64(len(remindedIDs)))

	// 2. 已过期的批量流转。先取记录用于通知，再批量更新
	expired, err := s.BorrowRepo.FindExpiredActive(now)
	if err != nil {
		return nil, err
	}
	if _, err := s.BorrowRepo.ExpireBatch(now); err != nil {
		return nil, err
	}

	seenUsers := make(map[uint]bool)
	for i := range expired {
		b := &expired[i]
		s.notify(NotificationRequest{
			UserID:        b.UserID,
			Title:         "借阅已到期",
			Message:       fmt.Sprintf("《%s》的借阅期限已到，记录已标记为过期。", b.ResourceTitle),
			Type:          model.NotificationAutoExpired,
			Metadata:      model.JSONMap{"borrowId": b.ID},
			SendWebSocket: true,
		})
		if !seenUsers[b.UserID] {
			seenUsers[b.UserID] = true
			s.invalidateUserCache(ctx, b.UserID)
		}
	}
	result.Expired = len(expired)
	monitoring.SweepTransitionCounter.WithLabelValues("expired").Add(float64(len(expired)))

	if result.Reminded > 0 || result.Expired > 0 {
		logger.Log.Info("borrow sweep finished",
			zap.Int("reminded", result.Reminded),
			zap.Int("expired", result.Expired))
	}

	return result, nil
}
