package service

import (
	"bytes"
	"context"
	"edu_library_backend/internal/model"
	"edu_library_backend/internal/repository"
	"edu_library_backend/internal/util"
	"edu_library_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const topResourceLimit = 10

// LibraryAnalyticsService 借阅事件流的分桶聚合，快照按 (周期, 桶起点) 覆盖写
type LibraryAnalyticsService struct {
	AnalyticsRepo *repository.LibraryAnalyticsRepository
	EventRepo     *repository.LibraryEventRepository
	BookRepo      *repository.BookRepository
	CourseRepo    *repository.CourseRepository
	Storage       *StorageService
}

func NewLibraryAnalyticsService(
	analyticsRepo *repository.LibraryAnalyticsRepository,
	eventRepo *repository.LibraryEventRepository,
	bookRepo *repository.BookRepository,
	courseRepo *repository.CourseRepository,
	storage *StorageService,
) *LibraryAnalyticsService {
	return &LibraryAnalyticsService{
		AnalyticsRepo: analyticsRepo,
		EventRepo:     eventRepo,
		BookRepo:      bookRepo,
		CourseRepo:    courseRepo,
		Storage:       storage,
	}
}

// BucketRange 计算 now 所在时间桶的 [start, end)。
// 统一用 UTC 对齐，周桶按 ISO 周从周一起算
func BucketRange(period model.AnalyticsPeriod, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch period {
	case model.PeriodDaily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case model.PeriodWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // 周日归上一周
		}
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 7)
	case model.PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	// 调用方应先校验周期，兜底按天
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Aggregate 聚合 now 所在桶并落库。同一个桶重复执行是幂等覆盖，
// 桶未结束时聚合得到的是截至当前的部分数据，下个整点会再覆盖
func (s *LibraryAnalyticsService) Aggregate(ctx context.Context, period model.AnalyticsPeriod, now time.Time) (*model.LibraryAnalytics, error) {
	if !model.ValidPeriod(string(period)) {
		return nil, util.ErrInvalidPeriod
	}

	start, end := BucketRange(period, now)

	totalBorrows, err := s.EventRepo.CountBorrows(start, end)
	if err != nil {
		return nil, err
	}
	activeReaders, err := s.EventRepo.DistinctActiveUsers(start, end)
	if err != nil {
		return nil, err
	}
	completions, err := s.EventRepo.CountCompletions(start, end)
	if err != nil {
		return nil, err
	}

	topResources, err := s.buildTopResources(start, end)
	if err != nil {
		return nil, err
	}
	engagement, err := s.buildCourseEngagement(start, end)
	if err != nil {
		return nil, err
	}

	snapshot := &model.LibraryAnalytics{
		Period:           period,
		BucketStart:      start,
		BucketEnd:        end,
		TotalBorrows:     int(totalBorrows),
		ActiveReaders:    int(activeReaders),
		Completions:      int(completions),
		TopResources:     topResources,
		CourseEngagement: engagement,
	}

	if err := s.AnalyticsRepo.Upsert(snapshot); err != nil {
		return nil, err
	}

	logger.Log.Info("library analytics aggregated",
		zap.String("period", string(period)),
		zap.Time("bucketStart", start),
		zap.Int("totalBorrows", snapshot.TotalBorrows),
		zap.Int("activeReaders", snapshot.ActiveReaders))

	// 月度快照额外导出一份报表到对象存储，失败只记日志
	if period == model.PeriodMonthly && s.Storage != nil {
		if err := s.exportReport(ctx, snapshot); err != nil {
			logger.Log.Error("analytics report export failed", zap.Error(err))
		}
	}

	return snapshot, nil
}

func (s *LibraryAnalyticsService) buildTopResources(start, end time.Time) (model.TopResourceList, error) {
	rows, err := s.EventRepo.TopBorrowedResources(start, end, topResourceLimit)
	if err != nil {
		return nil, err
	}

	bookIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ResourceType == model.BorrowResourceBook {
			bookIDs = append(bookIDs, row.ResourceID)
		}
	}
	titles, err := s.BookRepo.FindTitles(bookIDs)
	if err != nil {
		return nil, err
	}

	list := make(model.TopResourceList, 0, len(rows))
	for _, row := range rows {
		list = append(list, model.TopResource{
			ResourceID:   row.ResourceID,
			ResourceType: row.ResourceType,
			Title:        titles[row.ResourceID],
			BorrowCount:  row.Count,
		})
	}
	return list, nil
}

// buildCourseEngagement 课程归因：borrow 事件 metadata 里带 courseId 的直接计入；
// 否则在推荐了该书的课程里找用户已选的第一门（尽力归因，多门同推时取先匹配到的）
func (s *LibraryAnalyticsService) buildCourseEngagement(start, end time.Time) (model.CourseEngagementList, error) {
	events, err := s.EventRepo.FindBorrowEvents(start, end)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	recommenders := make(map[string][]string)     // resourceID -> 推荐该书的课程
	enrollments := make(map[uint]map[string]bool) // userID -> 已选课程集合
	for i := range events {
		event := &events[i]

		courseID := event.Metadata.GetString("courseId")
		if courseID == "" && event.ResourceType == model.BorrowResourceBook {
			candidates, ok := recommenders[event.ResourceID]
			if !ok {
				courses, findErr := s.CourseRepo.FindCoursesRecommendingBook(event.ResourceID)
				if findErr != nil {
					return nil, findErr
				}
				candidates = make([]string, 0, len(courses))
				for _, course := range courses {
					candidates = append(candidates, course.ID)
				}
				recommenders[event.ResourceID] = candidates
			}

			enrolled, ok := enrollments[event.UserID]
			if !ok {
				enrolled, err = s.CourseRepo.EnrolledCourseIDs(event.UserID)
				if err != nil {
					return nil, err
				}
				enrollments[event.UserID] = enrolled
			}

			for _, candidate := range candidates {
				if enrolled[candidate] {
					courseID = candidate
					break
				}
			}
		}
		if courseID != "" {
			counts[courseID]++
		}
	}

	courseIDs := make([]string, 0, len(counts))
	for id := range counts {
		courseIDs = append(courseIDs, id)
	}
	titles, err := s.CourseRepo.FindTitles(courseIDs)
	if err != nil {
		return nil, err
	}

	list := make(model.CourseEngagementList, 0, len(counts))
	for id, count := range counts {
		list = append(list, model.CourseEngagement{
			CourseID:    id,
			CourseTitle: titles[id],
			BorrowCount: count,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].BorrowCount != list[j].BorrowCount {
			return list[i].BorrowCount > list[j].BorrowCount
		}
		return list[i].CourseID < list[j].CourseID
	})
	return list, nil
}

func (s *LibraryAnalyticsService) exportReport(ctx context.Context, snapshot *model.LibraryAnalytics) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("reports/library_%s_%s.json",
		snapshot.Period, snapshot.BucketStart.Format("2006-01"))
	_, err = s.Storage.Upload(ctx, filename, bytes.NewReader(data), int64(len(data)), "application/json")
	return err
}

// AggregateAll 一次跑完三个周期，供定时任务调用。
// 单个周期失败不阻断其余周期，返回首个错误
func (s *LibraryAnalyticsService) AggregateAll(ctx context.Context, now time.Time) error {
	var firstErr error
	for _, period := range []model.AnalyticsPeriod{model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly} {
		if _, err := s.Aggregate(ctx, period, now); err != nil {
			logger.Log.Error("analytics aggregation failed",
				zap.String("period", string(period)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Overview 各周期最新一期快照，字段为空表示该周期还没聚合过
type Overview struct {
	Daily   *model.LibraryAnalytics `json:"daily,omitempty"`
	Weekly  *model.LibraryAnalytics `json:"weekly,omitempty"`
	Monthly *model.LibraryAnalytics `json:"monthly,omitempty"`
}

func (s *LibraryAnalyticsService) GetOverview() (*Overview, error) {
	overview := &Overview{}
	for _, period := range []model.AnalyticsPeriod{model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly} {
		snapshot, err := s.AnalyticsRepo.LatestByPeriod(period)
		if err == gorm.ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		switch period {
		case model.PeriodDaily:
			overview.Daily = snapshot
		case model.PeriodWeekly:
			overview.Weekly = snapshot
		case model.PeriodMonthly:
			overview.Monthly = snapshot
		}
	}
	return overview, nil
}

// GetByPeriod 指定周期的最新快照
func (s *LibraryAnalyticsService) GetByPeriod(period string) (*model.LibraryAnalytics, error) {
	if !model.ValidPeriod(period) {
		return nil, util.ErrInvalidPeriod
	}
	snapshot, err := s.AnalyticsRepo.LatestByPeriod(model.AnalyticsPeriod(period))
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
