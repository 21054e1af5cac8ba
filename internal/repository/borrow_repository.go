package repository

import (
	"edu_library_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type BorrowRepository struct {
	DB *gorm.DB
}

func NewBorrowRepository(db *gorm.DB) *BorrowRepository {
	return &BorrowRepository{DB: db}
}

func (r *BorrowRepository) Create(borrow *model.Borrow) error {
	return r.DB.Create(borrow).Error
}

// HasActiveBorrow 同一 (用户, 资源) 是否已有未归还的借阅
func (r *BorrowRepository) HasActiveBorrow(userID uint, resourceID string) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Borrow{}).
		Where("user_id = ? AND resource_id = ? AND status = ?", userID, resourceID, model.BorrowStatusActive).
		Count(&count).Error
	return count > 0, err
}

func (r *BorrowRepository) FindByIDAndUser(id string, userID uint) (*model.Borrow, error) {
	var borrow model.Borrow
	err := r.DB.Where("id = ? AND user_id = ?", id, userID).First(&borrow).Error
	if err != nil {
		return nil, err
	}
	return &borrow, nil
}

func (r *BorrowRepository) FindByUser(userID uint) ([]model.Borrow, error) {
	var borrows []model.Borrow
	err := r.DB.Where("user_id = ?", userID).
		Order("borrow_date DESC").
		Find(&borrows).Error
	return borrows, err
}

func (r *BorrowRepository) FindByUserPaged(userID uint, status model.BorrowStatus, offset, limit int) ([]model.Borrow, int64, error) {
	query := r.DB.Model(&model.Borrow{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var borrows []model.Borrow
	err := query.Order("borrow_date DESC").Offset(offset).Limit(limit).Find(&borrows).Error
	return borrows, total, err
}

// CountByStatus 当前用户各状态的借阅数
func (r *BorrowRepository) CountByStatus(userID uint) (map[model.BorrowStatus]int64, error) {
	type row struct {
		Status model.BorrowStatus
		Count  int64
	}
	var rows []row
	err := r.DB.Model(&model.Borrow{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.BorrowStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// MarkReturned 条件原子更新：仅 active/expired 状态可归还。
// 返回受影响行数，0 表示状态不符或记录不存在
func (r *BorrowRepository) MarkReturned(id string, userID uint, now time.Time) (int64, error) {
	result := r.DB.Model(&model.Borrow{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID,
			[]model.BorrowStatus{model.BorrowStatusActive, model.BorrowStatusExpired}).
		Updates(map[string]interface{}{
			"status":      model.BorrowStatusReturned,
			"return_date": now,
		})
	return result.RowsAffected, result.Error
}

// ExtendExpiry 在当前到期时间基础上顺延，提前续借不丢剩余时长；
// 同时重置提醒标记，让新窗口可以再次提醒
func (r *BorrowRepository) ExtendExpiry(id string, userID uint, extensionDays int) (int64, error) {
	result := r.DB.Model(&model.Borrow{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, model.BorrowStatusActive).
		Updates(map[string]interface{}{
			"expiry_date":   gorm.Expr("DATE_ADD(expiry_date, INTERVAL ? DAY)", extensionDays),
			"reminder_sent": false,
		})
	return result.RowsAffected, result.Error
}

// UpdateProgress 条件原子更新进度；进度到 100 时置为 completed 并写归还时间
func (r *BorrowRepository) UpdateProgress(id string, userID uint, progress int, now time.Time) (int64, error) {
	updates := map[string]interface{}{
		"progress": progress,
	}
	if progress >= 100 {
		updates["status"] = model.BorrowStatusCompleted
		updates["return_date"] = now
	}

	result := r.DB.Model(&model.Borrow{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, model.BorrowStatusActive).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// FindReminderCandidates 到期提醒候选：仍 active、未提醒过、将在窗口内到期
func (r *BorrowRepository) FindReminderCandidates(now time.Time, window time.Duration) ([]model.Borrow, error) {
	var borrows []model.Borrow
	err := r.DB.
		Where("status = ? AND reminder_sent = ? AND expiry_date > ? AND expiry_date <= ?",
			model.BorrowStatusActive, false, now, now.Add(window)).
		Find(&borrows).Error
	return borrows, err
}

func (r *BorrowRepository) MarkReminderSent(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.Model(&model.Borrow{}).
		Where("id IN ?", ids).
		Update("reminder_sent", true).
		Error
}

// FindExpiredActive 已过期但状态还停留在 active 的记录
func (r *BorrowRepository) FindExpiredActive(now time.Time) ([]model.Borrow, error) {
	var borrows []model.Borrow
	err := r.DB.
		Where("status = ? AND expiry_date < ?", model.BorrowStatusActive, now).
		Find(&borrows).Error
	return borrows, err
}

// ExpireBatch 批量把过期的 active 记录置为 expired，只有清扫会做这个状态流转
func (r *BorrowRepository) ExpireBatch(now time.Time) (int64, error) {
	result := r.DB.Model(&model.Borrow{}).
		Where("status = ? AND expiry_date < ?", model.BorrowStatusActive, now).
		Update("status", model.BorrowStatusExpired)
	return result.RowsAffected, result.Error
}
