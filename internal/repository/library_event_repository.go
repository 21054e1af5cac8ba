package repository

import (
	"edu_library_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type LibraryEventRepository struct {
	DB *gorm.DB
}

func NewLibraryEventRepository(db *gorm.DB) *LibraryEventRepository {
	return &LibraryEventRepository{DB: db}
}

func (r *LibraryEventRepository) Append(event *model.LibraryEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return r.DB.Create(event).Error
}

func (r *LibraryEventRepository) bucketQuery(action model.LibraryAction, start, end time.Time) *gorm.DB {
	return r.DB.Model(&model.LibraryEvent{}).
		Where("action = ? AND timestamp >= ? AND timestamp < ?", action, start, end)
}

func (r *LibraryEventRepository) CountBorrows(start, end time.Time) (int64, error) {
	var count int64
	err := r.bucketQuery(model.ActionBorrow, start, end).Count(&count).Error
	return count, err
}

// DistinctActiveUsers 桶内产生过任意行为的去重用户数
func (r *LibraryEventRepository) DistinctActiveUsers(start, end time.Time) (int64, error) {
	var count int64
	err := r.DB.Model(&model.LibraryEvent{}).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Distinct("user_id").
		Count(&count).Error
	return count, err
}

// ResourceBorrowCount 分组统计结果
type ResourceBorrowCount struct {
	ResourceID   string                   `gorm:"column:resource_id"`
	ResourceType model.BorrowResourceType `gorm:"column:resource_type"`
	Count        int                      `gorm:"column:cnt"`
}

func (r *LibraryEventRepository) TopBorrowedResources(start, end time.Time, limit int) ([]ResourceBorrowCount, error) {
	var rows []ResourceBorrowCount
	err := r.bucketQuery(model.ActionBorrow, start, end).
		Select("resource_id, resource_type, COUNT(*) AS cnt").
		Group("resource_id, resource_type").
		Order("cnt DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// CountCompletions 完成数：显式 COMPLETE 事件，或进度事件到 100
func (r *LibraryEventRepository) CountCompletions(start, end time.Time) (int64, error) {
	var count int64
	err := r.DB.Model(&model.LibraryEvent{}).
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Where("action = ? OR (action = ? AND value = 100)",
			model.ActionComplete, model.ActionProgressUpdate).
		Count(&count).Error
	return count, err
}

// FindBorrowEvents 桶内全部借出事件，课程归因在内存里解析 metadata 完成
func (r *LibraryEventRepository) FindBorrowEvents(start, end time.Time) ([]model.LibraryEvent, error) {
	var events []model.LibraryEvent
	err := r.bucketQuery(model.ActionBorrow, start, end).Find(&events).Error
	return events, err
}
