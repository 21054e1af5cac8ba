package util

import "errors"

var (
	ErrEmailRegistered = errors.New("该邮箱已被注册")
	ErrUnauthorized    = errors.New("unauthorized")

	ErrDuplicateActiveBorrow = errors.New("resource already borrowed and not yet returned")
	ErrBorrowNotFound        = errors.New("borrow record not found")
	ErrBorrowNotActive       = errors.New("borrow record is not active")
	ErrCourseNotFound        = errors.New("course not found")
	ErrBookNotFound          = errors.New("book not found")
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrInvalidPeriod         = errors.New("period must be daily, weekly or monthly")
	ErrRelevanceNeedsSearch  = errors.New("relevance sort requires a search term")
)
