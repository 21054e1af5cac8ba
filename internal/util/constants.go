package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// 借阅相关默认值
const (
	DefaultBorrowDays    = 14
	DefaultExtensionDays = 7
	MaxPageLimit         = 100
	DefaultPageLimit     = 20
)
