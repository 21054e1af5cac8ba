package repository

import (
	"edu_library_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LibraryAnalyticsRepository struct {
	DB *gorm.DB
}

func NewLibraryAnalyticsRepository(db *gorm.DB) *LibraryAnalyticsRepository {
	return &LibraryAnalyticsRepository{DB: db}
}

// Upsert 以 (period, bucket_start) 为键覆盖写，同一个桶重复聚合不产生重复行
func (r *LibraryAnalyticsRepository) Upsert(snapshot *model.LibraryAnalytics) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period"}, {Name: "bucket_start"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"bucket_end",
			"total_borrows",
			"active_readers",
			"completions",
			"top_resources",
			"course_engagement",
			"updated_at",
		}),
	}).Create(snapshot).Error
}

func (r *LibraryAnalyticsRepository) LatestByPeriod(period model.AnalyticsPeriod) (*model.LibraryAnalytics, error) {
	var snapshot model.LibraryAnalytics
	err := r.DB.Where("period = ?", period).
		Order("bucket_start DESC").
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
