package repository

import (
	"edu_library_backend/internal/model"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BookRepository struct {
	DB *gorm.DB
}

func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{DB: db}
}

// BookSearchParams 书目检索条件，由 service 层组装
type BookSearchParams struct {
	Search   string
	Title    string
	Author   string
	Category string
	Tags     []string
	Topic    string
	IDIn     []string // courseId 范围过滤后的书目 ID 集合
	Sort     string   // recent | relevance | popular
	Offset   int
	Limit    int
}

// BookWithCount popular 排序时附带借阅次数
type BookWithCount struct {
	model.Book
	BorrowCount int64 `json:"borrowCount" gorm:"column:borrow_count"`
}

func (r *BookRepository) FindByID(id string) (*model.Book, error) {
	var book model.Book
	err := r.DB.Where("id = ?", id).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *BookRepository) FindByIDs(ids []string) ([]model.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var books []model.Book
	if err := r.DB.Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) FindTitles(ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	var books []model.Book
	if err := r.DB.Select("id, title").Where("id IN ?", ids).Find(&books).Error; err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(books))
	for _, b := range books {
		titles[b.ID] = b.Title
	}
	return titles, nil
}

func (r *BookRepository) applyFilters(query *gorm.DB, p BookSearchParams) *gorm.DB {
	if p.Search != "" {
		pattern := "%" + p.Search + "%"
		query = query.Where("title LIKE ? OR author LIKE ?", pattern, pattern)
	}
	if p.Title != "" {
		query = query.Where("title LIKE ?", "%"+p.Title+"%")
	}
	if p.Author != "" {
		query = query.Where("author LIKE ?", "%"+p.Author+"%")
	}
	if p.Category != "" {
		query = query.Where("category = ?", p.Category)
	}
	if p.Topic != "" {
		query = query.Where("topics LIKE ?", "%"+p.Topic+"%")
	}
	if len(p.Tags) > 0 {
		// 标签之间 OR，与其它条件 AND
		conditions := make([]string, 0, len(p.Tags))
		args := make([]interface{}, 0, len(p.Tags))
		for _, tag := range p.Tags {
			conditions = append(conditions, "tags LIKE ?")
			args = append(args, "%"+tag+"%")
		}
		query = query.Where(strings.Join(conditions, " OR "), args...)
	}
	if p.IDIn != nil {
		query = query.Where("id IN ?", p.IDIn)
	}
	return query
}

// Search recent / relevance 两种排序走这里，popular 走 SearchPopular
func (r *BookRepository) Search(p BookSearchParams) ([]model.Book, int64, error) {
	base := r.applyFilters(r.DB.Model(&model.Book{}), p)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.applyFilters(r.DB.Model(&model.Book{}), p)
	switch p.Sort {
	case "relevance":
		// 近似匹配得分：标题前缀 > 标题包含 > 作者包含
		pattern := "%" + p.Search + "%"
		query = query.Clauses(clause.OrderBy{
			Expression: clause.Expr{
				SQL:                "(CASE WHEN title LIKE ? THEN 3 WHEN title LIKE ? THEN 2 WHEN author LIKE ? THEN 1 ELSE 0 END) DESC, created_at DESC",
				Vars:               []interface{}{p.Search + "%", pattern, pattern},
				WithoutParentheses: true,
			},
		})
	default:
		query = query.Order("created_at DESC")
	}

	var books []model.Book
	err := query.Offset(p.Offset).Limit(p.Limit).Find(&books).Error
	return books, total, err
}

// SearchPopular 借阅次数连接排序（最贵的查询，结果由上层缓存）
func (r *BookRepository) SearchPopular(p BookSearchParams) ([]BookWithCount, int64, error) {
	base := r.applyFilters(r.DB.Model(&model.Book{}), p)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	counts := r.DB.Model(&model.Borrow{}).
		Select("resource_id, COUNT(*) AS cnt").
		Where("resource_type = ?", model.BorrowResourceBook).
		Group("resource_id")

	query := r.applyFilters(r.DB.Model(&model.Book{}), p).
		Select("books.*, COALESCE(bc.cnt, 0) AS borrow_count").
		Joins("LEFT JOIN (?) AS bc ON bc.resource_id = books.id", counts).
		Order("borrow_count DESC, books.created_at DESC")

	var books []BookWithCount
	err := query.Offset(p.Offset).Limit(p.Limit).Scan(&books).Error
	return books, total, err
}
