package scheduler

import (
	"context"
	"edu_library_backend/pkg/logger"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job 一个可独立注册的定时任务
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}

// JobFunc 函数式任务
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context, now time.Time) error
}

func (j JobFunc) Name() string { return j.JobName }

func (j JobFunc) Run(ctx context.Context, now time.Time) error { return j.Fn(ctx, now) }

// Driver 固定间隔驱动一组任务：启动时立即跑一轮，之后每个周期跑一轮。
// 单个任务失败只记日志，不影响同轮的其他任务和后续周期
type Driver struct {
	interval time.Duration
	jobs     []Job

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewDriver(interval time.Duration) *Driver {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Driver{interval: interval}
}

// Register 注册任务，必须在 Start 之前调用
func (d *Driver) Register(job Job) {
	d.jobs = append(d.jobs, job)
}

func (d *Driver) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)

		logger.Log.Info("scheduler started",
			zap.Duration("interval", d.interval),
			zap.Int("jobs", len(d.jobs)))

		d.runAll(ctx, time.Now())

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Log.Info("scheduler stopped")
				return
			case now := <-ticker.C:
				d.runAll(ctx, now)
			}
		}
	}()
}

func (d *Driver) runAll(ctx context.Context, now time.Time) {
	for _, job := range d.jobs {
		if ctx.Err() != nil {
			return
		}
		d.runOne(ctx, job, now)
	}
}

func (d *Driver) runOne(ctx context.Context, job Job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("scheduler job panicked",
				zap.String("job", job.Name()),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx, now); err != nil {
		logger.Log.Error("scheduler job failed",
			zap.String("job", job.Name()),
			zap.Error(err))
		return
	}
	logger.Log.Debug("scheduler job finished",
		zap.String("job", job.Name()),
		zap.Duration("elapsed", time.Since(start)))
}

// Stop 取消后续周期并等当前轮收尾，正在执行的任务不会被打断
func (d *Driver) Stop() {
	d.once.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		if d.done != nil {
			select {
			case <-d.done:
			case <-time.After(30 * time.Second):
				logger.Log.Warn("scheduler stop timed out")
			}
		}
	})
}

// NewSweepJob 借阅到期清扫
func NewSweepJob(run func(ctx context.Context, now time.Time) error) Job {
	return JobFunc{JobName: "borrow_sweep", Fn: run}
}

// NewAggregationJob 借阅分析聚合
func NewAggregationJob(run func(ctx context.Context, now time.Time) error) Job {
	return JobFunc{JobName: "library_analytics", Fn: run}
}

func (d *Driver) String() string {
	return fmt.Sprintf("scheduler(interval=%s, jobs=%d)", d.interval, len(d.jobs))
}
