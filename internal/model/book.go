package model

// Book 图书馆公共书目条目
// swagger:model Book
type Book struct {
	UUIDBase
	Title       string `gorm:"size:255;not null;index" json:"title"`
	Author      string `gorm:"size:255;index" json:"author"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"size:100;index" json:"category"`
	Tags        string `gorm:"size:500" json:"tags"`  // 逗号分隔
	Topics      string `gorm:"size:500" json:"topics"` // 逗号分隔
	CoverURL    string `gorm:"size:255" json:"coverUrl"`
	Publisher   string `gorm:"size:255" json:"publisher"`
	PageCount   int    `gorm:"default:0" json:"pageCount"`
	Language    string `gorm:"size:10;default:'en'" json:"language"`
}

func (Book) TableName() string {
	return "books"
}
