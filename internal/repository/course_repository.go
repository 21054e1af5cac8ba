package repository

import (
	"edu_library_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

// FindByIDWithModules 课程及其章节（含章节级推荐书目）
func (r *CourseRepository) FindByIDWithModules(id string) (*model.Course, error) {
	var course model.Course
	err := r.DB.Preload("Modules").Where("id = ?", id).First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) FindTitles(ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	var courses []model.Course
	if err := r.DB.Select("id, title").Where("id IN ?", ids).Find(&courses).Error; err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(courses))
	for _, c := range courses {
		titles[c.ID] = c.Title
	}
	return titles, nil
}

// FindCoursesRecommendingBook 推荐了某本书的课程（课程级或任一章节级）。
// 推荐列表存为 JSON 数组文本，按带引号的 ID 做包含匹配
func (r *CourseRepository) FindCoursesRecommendingBook(bookID string) ([]model.Course, error) {
	quoted := "%\"" + bookID + "\"%"

	moduleCourseIDs := r.DB.Model(&model.CourseModule{}).
		Select("course_id").
		Where("recommended_book_ids LIKE ?", quoted)

	var courses []model.Course
	err := r.DB.
		Where("recommended_book_ids LIKE ? OR id IN (?)", quoted, moduleCourseIDs).
		Find(&courses).Error
	return courses, err
}

// EnrolledCourseIDs 用户已选课程 ID 集合
func (r *CourseRepository) EnrolledCourseIDs(userID uint) (map[string]bool, error) {
	var enrollments []model.CourseEnrollment
	if err := r.DB.Where("user_id = ?", userID).Find(&enrollments).Error; err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(enrollments))
	for _, e := range enrollments {
		ids[e.CourseID] = true
	}
	return ids, nil
}
