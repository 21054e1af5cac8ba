package database

import (
	"edu_library_backend/internal/config"
	"edu_library_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig, migrate bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if !migrate {
		return db, nil
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Book{},
		&model.Course{},
		&model.CourseModule{},
		&model.CourseEnrollment{},
		&model.Borrow{},
		&model.LibraryEvent{},
		&model.LibraryAnalytics{},
		&model.Notification{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	seedBooks(db)

	return db, nil
}

// 空库时插入演示书目，方便前端联调
func seedBooks(db *gorm.DB) {
	var count int64
	db.Model(&model.Book{}).Count(&count)
	if count > 0 {
		return
	}

	defaultBooks := []model.Book{
		{Title: "C程序设计语言", Author: "Brian W. Kernighan, Dennis M. Ritchie", Category: "programming", Tags: "c,basics", Topics: "syntax,pointers", Language: "zh"},
		{Title: "算法导论", Author: "Thomas H. Cormen", Category: "algorithms", Tags: "algorithms,data-structures", Topics: "sorting,graphs", Language: "zh"},
		{Title: "The Go Programming Language", Author: "Alan A. A. Donovan, Brian W. Kernighan", Category: "programming", Tags: "go,concurrency", Topics: "goroutines,interfaces"},
		{Title: "深入理解计算机系统", Author: "Randal E. Bryant", Category: "systems", Tags: "os,architecture", Topics: "memory,linking", Language: "zh"},
	}
	for _, b := range defaultBooks {
		db.Create(&b)
	}
}
