package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type AnalyticsPeriod string

const (
	PeriodDaily   AnalyticsPeriod = "daily"
	PeriodWeekly  AnalyticsPeriod = "weekly"
	PeriodMonthly AnalyticsPeriod = "monthly"
)

// ValidPeriod 校验聚合周期参数
func ValidPeriod(p string) bool {
	switch AnalyticsPeriod(p) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// TopResource 某个时间桶内借阅次数最多的资源
type TopResource struct {
	ResourceID   string             `json:"resourceId"`
	ResourceType BorrowResourceType `json:"resourceType"`
	Title        string             `json:"title"`
	BorrowCount  int                `json:"borrowCount"`
}

type TopResourceList []TopResource

func (l TopResourceList) Value() (driver.Value, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *TopResourceList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// CourseEngagement 课程维度的借阅参与度
type CourseEngagement struct {
	CourseID    string `json:"courseId"`
	CourseTitle string `json:"courseTitle"`
	BorrowCount int    `json:"borrowCount"`
}

type CourseEngagementList []CourseEngagement

func (l CourseEngagementList) Value() (driver.Value, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *CourseEngagementList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

func scanJSON(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSON column: %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// LibraryAnalytics 按 (周期, 桶起点) 维度的借阅聚合快照，重复聚合覆盖写
// swagger:model LibraryAnalytics
type LibraryAnalytics struct {
	BaseModel
	Period           AnalyticsPeriod      `gorm:"type:enum('daily','weekly','monthly');not null;uniqueIndex:idx_analytics_bucket" json:"period"`
	BucketStart      time.Time            `gorm:"not null;uniqueIndex:idx_analytics_bucket" json:"bucketStart"`
	BucketEnd        time.Time            `gorm:"not null" json:"bucketEnd"`
	TotalBorrows     int                  `gorm:"default:0" json:"totalBorrows"`
	ActiveReaders    int                  `gorm:"default:0" json:"activeReaders"`
	Completions      int                  `gorm:"default:0" json:"completions"`
	TopResources     TopResourceList      `gorm:"type:text" json:"topResources"`
	CourseEngagement CourseEngagementList `gorm:"type:text" json:"courseEngagement"`
}

func (LibraryAnalytics) TableName() string {
	return "library_analytics"
}
