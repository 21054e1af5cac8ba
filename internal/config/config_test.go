package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyLibraryDefaults(t *testing.T) {
	var l LibraryConfig
	applyLibraryDefaults(&l)

	assert.Equal(t, 14, l.DefaultBorrowDays)
	assert.Equal(t, 7, l.DefaultExtensionDays)
	assert.Equal(t, 24, l.ReminderWindowHours)
	assert.Equal(t, 300*time.Second, l.DashboardCacheTTL)
	assert.Equal(t, 120*time.Second, l.PopularCacheTTL)
	assert.Equal(t, 60, l.SweepIntervalMinutes)
}

func TestApplyLibraryDefaultsKeepsExplicitValues(t *testing.T) {
	l := LibraryConfig{
		DefaultBorrowDays:    30,
		DefaultExtensionDays: 14,
		ReminderWindowHours:  48,
		DashboardCacheTTL:    10 * time.Second,
		PopularCacheTTL:      5 * time.Second,
		SweepIntervalMinutes: 15,
	}
	applyLibraryDefaults(&l)

	assert.Equal(t, 30, l.DefaultBorrowDays)
	assert.Equal(t, 48*time.Hour, l.ReminderWindow())
	assert.Equal(t, 15*time.Minute, l.SweepInterval())
}

func TestApplyRateLimitDefaults(t *testing.T) {
	var r RateLimitConfig
	applyRateLimitDefaults(&r)

	assert.Equal(t, 100000, r.MaxRequests)
	assert.Equal(t, time.Minute, r.Window())

	r = RateLimitConfig{MaxRequests: 50, WindowMinutes: 5}
	applyRateLimitDefaults(&r)
	assert.Equal(t, 50, r.MaxRequests)
	assert.Equal(t, 5*time.Minute, r.Window())
}

func TestShouldMigrate(t *testing.T) {
	cfg := Config{Server: ServerConfig{Mode: "debug"}}
	assert.True(t, cfg.ShouldMigrate())

	// release 模式默认跳过，--migrate 强制执行
	cfg.Server.Mode = "release"
	assert.False(t, cfg.ShouldMigrate())

	cfg.ForceMigrate = true
	assert.True(t, cfg.ShouldMigrate())
}
