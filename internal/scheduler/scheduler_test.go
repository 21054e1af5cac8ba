package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestDriverRunsOnStartupAndOnTick(t *testing.T) {
	var runs int64
	driver := NewDriver(20 * time.Millisecond)
	driver.Register(JobFunc{JobName: "count", Fn: func(ctx context.Context, now time.Time) error {
		atomic.AddInt64(&runs, 1)
		return nil
	}})

	driver.Start(context.Background())
	defer driver.Stop()

	// 启动先跑一轮，之后按周期跑
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&runs) >= 3 })
}

func TestDriverJobFailureIsolation(t *testing.T) {
	var failing, healthy int64
	driver := NewDriver(10 * time.Millisecond)
	driver.Register(JobFunc{JobName: "failing", Fn: func(ctx context.Context, now time.Time) error {
		atomic.AddInt64(&failing, 1)
		return errors.New("boom")
	}})
	driver.Register(JobFunc{JobName: "healthy", Fn: func(ctx context.Context, now time.Time) error {
		atomic.AddInt64(&healthy, 1)
		return nil
	}})

	driver.Start(context.Background())
	defer driver.Stop()

	// 前一个任务失败，后一个照常执行，后续周期也不受影响
	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt64(&failing) >= 2 && atomic.LoadInt64(&healthy) >= 2
	})
}

func TestDriverJobPanicIsolation(t *testing.T) {
	var healthy int64
	driver := NewDriver(10 * time.Millisecond)
	driver.Register(JobFunc{JobName: "panicking", Fn: func(ctx context.Context, now time.Time) error {
		panic("boom")
	}})
	driver.Register(JobFunc{JobName: "healthy", Fn: func(ctx context.Context, now time.Time) error {
		atomic.AddInt64(&healthy, 1)
		return nil
	}})

	driver.Start(context.Background())
	defer driver.Stop()

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&healthy) >= 2 })
}

func TestDriverStop(t *testing.T) {
	var runs int64
	driver := NewDriver(10 * time.Millisecond)
	driver.Register(JobFunc{JobName: "count", Fn: func(ctx context.Context, now time.Time) error {
		atomic.AddInt64(&runs, 1)
		return nil
	}})

	driver.Start(context.Background())
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&runs) >= 1 })

	driver.Stop()
	after := atomic.LoadInt64(&runs)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt64(&runs), "停止后不应再有新的执行轮次")

	// 重复 Stop 幂等
	driver.Stop()
}

func TestDriverDefaultInterval(t *testing.T) {
	driver := NewDriver(0)
	assert.Equal(t, time.Hour, driver.interval)
}
