package model

import (
	"time"
)

type LibraryAction string

const (
	ActionBorrow         LibraryAction = "BORROW"
	ActionReturn         LibraryAction = "RETURN"
	ActionProgressUpdate LibraryAction = "PROGRESS_UPDATE"
	ActionComplete       LibraryAction = "COMPLETE"
	ActionRate           LibraryAction = "RATE"
)

// LibraryEvent 借阅行为事件流，只追加，仅供聚合统计消费
// swagger:model LibraryEvent
type LibraryEvent struct {
	UUIDBase
	UserID       uint               `gorm:"index;not null" json:"userId"`
	Action       LibraryAction      `gorm:"type:enum('BORROW','RETURN','PROGRESS_UPDATE','COMPLETE','RATE');not null;index" json:"action"`
	ResourceID   string             `gorm:"size:36;index" json:"resourceId"`
	ResourceType BorrowResourceType `gorm:"type:enum('course','book','material','equipment')" json:"resourceType"`
	Value        int                `gorm:"default:0" json:"value"`
	Metadata     JSONMap            `gorm:"type:text" json:"metadata"`
	Timestamp    time.Time          `gorm:"index;not null" json:"timestamp"`
}

func (LibraryEvent) TableName() string {
	return "library_events"
}
