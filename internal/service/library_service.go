package service

import (
	"context"
	"edu_library_backend/internal/config"
	"edu_library_backend/internal/model"
	"edu_library_backend/internal/repository"
	"edu_library_backend/internal/util"
	"edu_library_backend/pkg/cache"
	"edu_library_backend/pkg/logger"
	"edu_library_backend/pkg/monitoring"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LibraryService 图书馆查询：用户面板、书目检索、课程推荐书目
type LibraryService struct {
	BorrowRepo *repository.BorrowRepository
	BookRepo   *repository.BookRepository
	CourseRepo *repository.CourseRepository
	Cache      cache.Service
	Cfg        config.LibraryConfig
}

func NewLibraryService(
	borrowRepo *repository.BorrowRepository,
	bookRepo *repository.BookRepository,
	courseRepo *repository.CourseRepository,
	cacheService cache.Service,
	cfg config.LibraryConfig,
) *LibraryService {
	return &LibraryService{
		BorrowRepo: borrowRepo,
		BookRepo:   bookRepo,
		CourseRepo: courseRepo,
		Cache:      cacheService,
		Cfg:        cfg,
	}
}

// BorrowView 面板里的一条借阅，补充了书目详情和剩余时间
type BorrowView struct {
	ID               string                   `json:"id"`
	ResourceID       string                   `json:"resourceId"`
	ResourceType     model.BorrowResourceType `json:"resourceType"`
	Title            string                   `json:"title"`
	Author           string                   `json:"author,omitempty"`
	Category         string                   `json:"category,omitempty"`
	CoverURL         string                   `json:"coverUrl,omitempty"`
	Status           model.BorrowStatus       `json:"status"`
	Progress         int                      `json:"progress"`
	BorrowDate       time.Time                `json:"borrowDate"`
	ExpiryDate       time.Time                `json:"expiryDate"`
	ReturnDate       *time.Time               `json:"returnDate,omitempty"`
	RemainingSeconds int64                    `json:"remainingSeconds"`
}

// UserLibrary 面板三分区：在借、已过期、历史
type UserLibrary struct {
	Active      []BorrowView `json:"active"`
	Expired     []BorrowView `json:"expired"`
	History     []BorrowView `json:"history"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// GetUserLibrary 读取用户面板，命中缓存直接返回。
// 分区按读取时刻的有效状态划分：DB 里还是 active 但到期时间已过的记录
// 归入 expired 分区，不必等清扫任务落库
func (s *LibraryService) GetUserLibrary(ctx context.Context, userID uint) (*UserLibrary, error) {
	key := UserLibraryCacheKey(userID)

	var cached UserLibrary
	raw, err := s.Cache.Get(ctx, key)
	if err == nil {
		if unmarshalErr := json.Unmarshal(raw, &cached); unmarshalErr == nil {
			monitoring.CacheCounter.WithLabelValues("user_library", "hit").Inc()
			return &cached, nil
		}
	} else if err != cache.ErrMiss {
		// 缓存故障降级为直查
		logger.Log.Warn("library cache read failed", zap.Error(err), zap.Uint("userId", userID))
	}
	monitoring.CacheCounter.WithLabelValues("user_library", "miss").Inc()

	library, err := s.buildUserLibrary(userID, time.Now())
	if err != nil {
		return nil, err
	}

	if data, marshalErr := json.Marshal(library); marshalErr == nil {
		if setErr := s.Cache.Set(ctx, key, data, s.Cfg.DashboardCacheTTL); setErr != nil {
			logger.Log.Warn("library cache write failed", zap.Error(setErr), zap.Uint("userId", userID))
		}
	}

	return library, nil
}

func (s *LibraryService) buildUserLibrary(userID uint, now time.Time) (*UserLibrary, error) {
	borrows, err := s.BorrowRepo.FindByUser(userID)
	if err != nil {
		return nil, err
	}

	// 批量带出书目详情，目录里已不存在的书目借阅在分区时跳过
	bookIDs := make([]string, 0, len(borrows))
	for i := range borrows {
		if borrows[i].ResourceType == model.BorrowResourceBook {
			bookIDs = append(bookIDs, borrows[i].ResourceID)
		}
	}
	books, err := s.BookRepo.FindByIDs(bookIDs)
	if err != nil {
		return nil, err
	}
	bookByID := make(map[string]*model.Book, len(books))
	for i := range books {
		bookByID[books[i].ID] = &books[i]
	}

	return partitionBorrows(borrows, bookByID, now), nil
}

// partitionBorrows 把借阅记录划入三个分区，DB 里 active 但已过到期时间的
// 直接按 expired 展示。书目已从目录删除的借阅静默跳过
func partitionBorrows(borrows []model.Borrow, bookByID map[string]*model.Book, now time.Time) *UserLibrary {
	library := &UserLibrary{
		Active:      []BorrowView{},
		Expired:     []BorrowView{},
		History:     []BorrowView{},
		GeneratedAt: now,
	}

	for i := range borrows {
		b := &borrows[i]
		book, ok := bookByID[b.ResourceID]
		if b.ResourceType == model.BorrowResourceBook && !ok {
			continue
		}
		view := BorrowView{
			ID:           b.ID,
			ResourceID:   b.ResourceID,
			ResourceType: b.ResourceType,
			Title:        b.ResourceTitle,
			Status:       b.Status,
			Progress:     b.Progress,
			BorrowDate:   b.BorrowDate,
			ExpiryDate:   b.ExpiryDate,
			ReturnDate:   b.ReturnDate,
		}
		if book != nil {
			view.Author = book.Author
			view.Category = book.Category
			view.CoverURL = book.CoverURL
			if view.Title == "" {
				view.Title = book.Title
			}
		}

		switch {
		case b.Status == model.BorrowStatusActive && !model.IsEffectivelyExpired(b, now):
			view.RemainingSeconds = b.RemainingSeconds(now)
			library.Active = append(library.Active, view)
		case b.Status == model.BorrowStatusExpired || model.IsEffectivelyExpired(b, now):
			view.Status = model.BorrowStatusExpired
			library.Expired = append(library.Expired, view)
		default:
			library.History = append(library.History, view)
		}
	}

	return library
}

// BookListFilters 书目检索条件
type BookListFilters struct {
	Search   string `form:"search"`
	Title    string `form:"title"`
	Author   string `form:"author"`
	Category string `form:"category"`
	Tags     string `form:"tags"` // 逗号分隔，任一命中即可
	Topic    string `form:"topic"`
	CourseID string `form:"courseId"`
	Sort     string `form:"sort"` // newest / title / popular / relevance
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

const (
	SortNewest    = "newest"
	SortTitle     = "title"
	SortPopular   = "popular"
	SortRelevance = "relevance"
)

// BookListItem 检索结果项，popular 排序时附带借阅次数
type BookListItem struct {
	model.Book
	BorrowCount int64 `json:"borrowCount,omitempty"`
}

type BookListResult struct {
	Books      []BookListItem `json:"books"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// ListBooks 分面检索。courseId 限定为课程推荐书目（课程级与模块级取并集），
// 其余条件在该范围内继续过滤。只有 popular 排序走缓存，其余排序直查
func (s *LibraryService) ListBooks(ctx context.Context, filters BookListFilters) (*BookListResult, error) {
	if filters.Sort == "" {
		filters.Sort = SortNewest
	}
	if filters.Sort == SortRelevance && strings.TrimSpace(filters.Search) == "" {
		return nil, util.ErrRelevanceNeedsSearch
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 {
		filters.Limit = util.DefaultPageLimit
	}
	if filters.Limit > util.MaxPageLimit {
		filters.Limit = util.MaxPageLimit
	}

	params := repository.BookSearchParams{
		Search:   strings.TrimSpace(filters.Search),
		Title:    strings.TrimSpace(filters.Title),
		Author:   strings.TrimSpace(filters.Author),
		Category: strings.TrimSpace(filters.Category),
		Topic:    strings.TrimSpace(filters.Topic),
		Sort:     filters.Sort,
		Offset:   (filters.Page - 1) * filters.Limit,
		Limit:    filters.Limit,
	}
	if tags := strings.TrimSpace(filters.Tags); tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if t := strings.TrimSpace(tag); t != "" {
				params.Tags = append(params.Tags, t)
			}
		}
	}

	if courseID := strings.TrimSpace(filters.CourseID); courseID != "" {
		course, err := s.CourseRepo.FindByIDWithModules(courseID)
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrCourseNotFound
		}
		if err != nil {
			return nil, err
		}
		ids := course.AllRecommendedBookIDs()
		if len(ids) == 0 {
			// 课程没有推荐书目，结果即空集
			return &BookListResult{
				Books: []BookListItem{}, Page: filters.Page, Limit: filters.Limit,
			}, nil
		}
		params.IDIn = ids
	}

	if filters.Sort == SortPopular {
		return s.listPopularCached(ctx, filters, params)
	}
	return s.listBooks(params, filters.Page, filters.Limit)
}

func (s *LibraryService) listBooks(params repository.BookSearchParams, page, limit int) (*BookListResult, error) {
	books, total, err := s.BookRepo.Search(params)
	if err != nil {
		return nil, err
	}
	items := make([]BookListItem, 0, len(books))
	for i := range books {
		items = append(items, BookListItem{Book: books[i]})
	}
	return &BookListResult{
		Books:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}, nil
}

// listPopularCached popular 榜单牵涉借阅表聚合，开销最大，按过滤条件整体做短 TTL 缓存
func (s *LibraryService) listPopularCached(ctx context.Context, filters BookListFilters, params repository.BookSearchParams) (*BookListResult, error) {
	key := popularCacheKey(filters, params.IDIn)

	raw, err := s.Cache.Get(ctx, key)
	if err == nil {
		var cached BookListResult
		if unmarshalErr := json.Unmarshal(raw, &cached); unmarshalErr == nil {
			monitoring.CacheCounter.WithLabelValues("popular_books", "hit").Inc()
			return &cached, nil
		}
	} else if err != cache.ErrMiss {
		logger.Log.Warn("popular cache read failed", zap.Error(err))
	}
	monitoring.CacheCounter.WithLabelValues("popular_books", "miss").Inc()

	rows, total, err := s.BookRepo.SearchPopular(params)
	if err != nil {
		return nil, err
	}
	items := make([]BookListItem, 0, len(rows))
	for i := range rows {
		items = append(items, BookListItem{Book: rows[i].Book, BorrowCount: rows[i].BorrowCount})
	}
	result := &BookListResult{
		Books:      items,
		Total:      total,
		Page:       filters.Page,
		Limit:      filters.Limit,
		TotalPages: totalPages(total, filters.Limit),
	}

	if data, marshalErr := json.Marshal(result); marshalErr == nil {
		if setErr := s.Cache.Set(ctx, key, data, s.Cfg.PopularCacheTTL); setErr != nil {
			logger.Log.Warn("popular cache write failed", zap.Error(setErr))
		}
	}
	return result, nil
}

// popularCacheKey 把全部过滤条件编入键，课程范围用排序后的 ID 列表保证键稳定
func popularCacheKey(filters BookListFilters, idIn []string) string {
	scope := ""
	if len(idIn) > 0 {
		sorted := make([]string, len(idIn))
		copy(sorted, idIn)
		sort.Strings(sorted)
		scope = strings.Join(sorted, ",")
	}
	return fmt.Sprintf("popular_books_%s|%s|%s|%s|%s|%s|%s|%d|%d",
		filters.Search, filters.Title, filters.Author, filters.Category,
		filters.Tags, filters.Topic, scope, filters.Page, filters.Limit)
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// GetBook 书目详情，附带推荐该书的课程标题
func (s *LibraryService) GetBook(bookID string) (*model.Book, []model.Course, error) {
	book, err := s.BookRepo.FindByID(bookID)
	if err == gorm.ErrRecordNotFound {
		return nil, nil, util.ErrBookNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	courses, err := s.CourseRepo.FindCoursesRecommendingBook(bookID)
	if err != nil {
		return nil, nil, err
	}
	return book, courses, nil
}
