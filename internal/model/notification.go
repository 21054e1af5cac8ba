package model

type NotificationType string

const (
	NotificationBorrowSuccess NotificationType = "borrow_success"
	NotificationReturnSuccess NotificationType = "return_success"
	NotificationRenewSuccess  NotificationType = "renew_success"
	NotificationExpiryWarning NotificationType = "expiry_warning"
	NotificationAutoExpired   NotificationType = "auto_expired"
)

// Notification 站内通知，投递失败只记日志，不影响借阅主流程
// swagger:model Notification
type Notification struct {
	UUIDBase
	UserID   uint             `gorm:"index;not null" json:"userId"`
	Title    string           `gorm:"size:255;not null" json:"title"`
	Message  string           `gorm:"type:text" json:"message"`
	Type     NotificationType `gorm:"size:50;index" json:"type"`
	Metadata JSONMap          `gorm:"type:text" json:"metadata"`
	Read     bool             `gorm:"default:false;index" json:"read"`
}

func (Notification) TableName() string {
	return "notifications"
}
