package service

import (
	"edu_library_backend/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBucketRangeDaily(t *testing.T) {
	now := time.Date(2026, 3, 15, 17, 42, 9, 0, time.UTC)
	start, end := BucketRange(model.PeriodDaily, now)

	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), end)
}

func TestBucketRangeWeekly(t *testing.T) {
	// 2026-03-15 是周日，ISO 周从 03-09 周一起算
	sunday := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	start, end := BucketRange(model.PeriodWeekly, sunday)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), end)

	// 周一自身是桶起点
	monday := time.Date(2026, 3, 9, 0, 0, 1, 0, time.UTC)
	start, _ = BucketRange(model.PeriodWeekly, monday)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), start)

	// 跨月的周
	start, end = BucketRange(model.PeriodWeekly, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC), end)
}

func TestBucketRangeMonthly(t *testing.T) {
	now := time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)
	start, end := BucketRange(model.PeriodMonthly, now)

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	// 12月滚到下一年
	start, end = BucketRange(model.PeriodMonthly, time.Date(2026, 12, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestBucketRangeNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	// 本地 03-16 凌晨 2 点 = UTC 03-15 18 点，桶按 UTC 划分
	now := time.Date(2026, 3, 16, 2, 0, 0, 0, loc)
	start, _ := BucketRange(model.PeriodDaily, now)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), start)
}
