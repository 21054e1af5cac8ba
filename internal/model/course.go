package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringSlice JSON 数组文本列，用于存推荐书目 ID 列表
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = StringSlice{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for StringSlice: %T", value)
	}
	if len(data) == 0 {
		*s = StringSlice{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Course 课程（借阅核心只读取：标题与推荐书目）
// swagger:model Course
type Course struct {
	UUIDBase
	Title              string       `gorm:"size:255;not null" json:"title"`
	Description        string       `gorm:"type:text" json:"description"`
	Category           string       `gorm:"size:100" json:"category"`
	RecommendedBookIDs StringSlice  `gorm:"type:text" json:"recommendedBookIds"`
	Modules            []CourseModule `gorm:"foreignKey:CourseID" json:"modules,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseModule 课程章节，可携带本章节的推荐书目
type CourseModule struct {
	UUIDBase
	CourseID           string      `gorm:"index;size:36;not null" json:"courseId"`
	Title              string      `gorm:"size:255;not null" json:"title"`
	Order              int         `gorm:"default:0" json:"order"`
	RecommendedBookIDs StringSlice `gorm:"type:text" json:"recommendedBookIds"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

// CourseEnrollment 选课关系，课程归因时用来判断用户是否在读某门课
type CourseEnrollment struct {
	BaseModel
	CourseID string `gorm:"index:idx_enroll_course_user;size:36;not null" json:"courseId"`
	UserID   uint   `gorm:"index:idx_enroll_course_user;not null" json:"userId"`
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}

// AllRecommendedBookIDs 课程级与各章节推荐书目的并集（去重，保持遇到顺序）
func (c *Course) AllRecommendedBookIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	appendIDs := func(list StringSlice) {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	appendIDs(c.RecommendedBookIDs)
	for i := range c.Modules {
		appendIDs(c.Modules[i].RecommendedBookIDs)
	}
	return ids
}
