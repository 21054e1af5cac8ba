package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsEffectivelyExpired(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  BorrowStatus
		expiry  time.Time
		expired bool
	}{
		{"active 未到期", BorrowStatusActive, now.Add(time.Hour), false},
		{"active 已到期", BorrowStatusActive, now.Add(-time.Hour), true},
		{"active 恰好到期", BorrowStatusActive, now, true},
		{"returned 过期时间已过", BorrowStatusReturned, now.Add(-time.Hour), false},
		{"completed 过期时间已过", BorrowStatusCompleted, now.Add(-time.Hour), false},
		{"expired 已落库", BorrowStatusExpired, now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Borrow{Status: tt.status, ExpiryDate: tt.expiry}
			assert.Equal(t, tt.expired, IsEffectivelyExpired(b, now))
		})
	}
}

func TestClampProgress(t *testing.T) {
	assert.Equal(t, 0, ClampProgress(-10))
	assert.Equal(t, 0, ClampProgress(0))
	assert.Equal(t, 55, ClampProgress(55))
	assert.Equal(t, 100, ClampProgress(100))
	assert.Equal(t, 100, ClampProgress(250))
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	b := &Borrow{ExpiryDate: now.Add(90 * time.Second)}
	assert.Equal(t, int64(90), b.RemainingSeconds(now))

	b.ExpiryDate = now.Add(-time.Minute)
	assert.Equal(t, int64(0), b.RemainingSeconds(now))

	b.ExpiryDate = now
	assert.Equal(t, int64(0), b.RemainingSeconds(now))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, (&Borrow{Status: BorrowStatusReturned}).IsTerminal())
	assert.True(t, (&Borrow{Status: BorrowStatusCompleted}).IsTerminal())
	assert.False(t, (&Borrow{Status: BorrowStatusActive}).IsTerminal())
	assert.False(t, (&Borrow{Status: BorrowStatusExpired}).IsTerminal())
}
