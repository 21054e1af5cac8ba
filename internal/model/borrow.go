package model

import (
	"time"
)

type BorrowResourceType string

const (
	BorrowResourceCourse    BorrowResourceType = "course"
	BorrowResourceBook      BorrowResourceType = "book"
	BorrowResourceMaterial  BorrowResourceType = "material"
	BorrowResourceEquipment BorrowResourceType = "equipment"
)

type BorrowStatus string

const (
	BorrowStatusActive   BorrowStatus = "active"
	BorrowStatusReturned BorrowStatus = "returned"
	BorrowStatusExpired  BorrowStatus = "expired"
	// BorrowStatusOverdue 目前没有任何流转会产生该状态，仅保留枚举值
	BorrowStatusOverdue   BorrowStatus = "overdue"
	BorrowStatusCompleted BorrowStatus = "completed"
)

// Borrow 借阅记录：一个用户对一个资源的限时借出
// swagger:model Borrow
type Borrow struct {
	UUIDBase
	UserID        uint               `gorm:"index:idx_borrow_user_resource;not null" json:"userId"`
	ResourceID    string             `gorm:"index:idx_borrow_user_resource;size:36;not null" json:"resourceId"`
	ResourceType  BorrowResourceType `gorm:"type:enum('course','book','material','equipment');not null" json:"resourceType"`
	ResourceTitle string             `gorm:"size:255" json:"resourceTitle"`
	BorrowDate    time.Time          `gorm:"not null" json:"borrowDate"`
	ExpiryDate    time.Time          `gorm:"index;not null" json:"expiryDate"`
	ReturnDate    *time.Time         `json:"returnDate"`
	Status        BorrowStatus       `gorm:"type:enum('active','returned','expired','overdue','completed');default:'active';index" json:"status"`
	Progress      int                `gorm:"default:0" json:"progress"`
	ReminderSent  bool               `gorm:"default:false" json:"reminderSent"`
	Metadata      JSONMap            `gorm:"type:text" json:"metadata"`
}

func (Borrow) TableName() string {
	return "borrows"
}

// IsEffectivelyExpired 统一的过期判定，仪表盘读取路径和定时清扫共用
func IsEffectivelyExpired(b *Borrow, now time.Time) bool {
	return b.Status == BorrowStatusActive && !b.ExpiryDate.After(now)
}

// IsTerminal 借阅是否已进入终态
func (b *Borrow) IsTerminal() bool {
	return b.Status == BorrowStatusReturned || b.Status == BorrowStatusCompleted
}

// RemainingSeconds 距离到期的剩余秒数，已过期返回 0
func (b *Borrow) RemainingSeconds(now time.Time) int64 {
	remaining := b.ExpiryDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

// ClampProgress 进度防御性截断到 [0,100]
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
