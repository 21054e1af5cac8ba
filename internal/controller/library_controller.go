package controller

import (
	"edu_library_backend/internal/service"
	"edu_library_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type LibraryController struct {
	LibraryService *service.LibraryService
}

func NewLibraryController(libraryService *service.LibraryService) *LibraryController {
	return &LibraryController{LibraryService: libraryService}
}

// GetUserLibrary godoc
// @Summary 用户图书馆面板
// @Description 当前用户的借阅分区视图：在借、已过期、历史
// @Tags 图书馆
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.UserLibrary} "成功"
// @Router /api/library [get]
func (c *LibraryController) GetUserLibrary(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	library, err := c.LibraryService.GetUserLibrary(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, library)
}

// ListBooks godoc
// @Summary 书目检索
// @Description 分面检索书目，支持按课程推荐范围限定和多种排序
// @Tags 图书馆
// @Produce  json
// @Param   search query string false "全文关键词"
// @Param   title query string false "标题"
// @Param   author query string false "作者"
// @Param   category query string false "分类"
// @Param   tags query string false "标签，逗号分隔，任一命中"
// @Param   topic query string false "主题"
// @Param   courseId query string false "限定为该课程的推荐书目"
// @Param   sort query string false "排序方式" Enums(newest, title, popular, relevance) default(newest)
// @Param   page query int false "页码" default(1)
// @Param   limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=service.BookListResult} "成功"
// @Failure 400 {object} util.Response "参数错误"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/library/books [get]
func (c *LibraryController) ListBooks(ctx *gin.Context) {
	var filters service.BookListFilters
	if err := ctx.ShouldBindQuery(&filters); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.LibraryService.ListBooks(ctx.Request.Context(), filters)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrRelevanceNeedsSearch):
			util.BadRequest(ctx, "relevance 排序需要提供 search 参数")
		case errors.Is(err, util.ErrCourseNotFound):
			util.NotFound(ctx, "课程不存在")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, result)
}

// GetBook godoc
// @Summary 书目详情
// @Description 书目详情，附带推荐该书的课程
// @Tags 图书馆
// @Produce  json
// @Param   id path string true "书目ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 404 {object} util.Response "书目不存在"
// @Router /api/library/books/{id} [get]
func (c *LibraryController) GetBook(ctx *gin.Context) {
	book, courses, err := c.LibraryService.GetBook(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrBookNotFound) {
			util.NotFound(ctx, "书目不存在")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	recommendedBy := make([]gin.H, 0, len(courses))
	for i := range courses {
		recommendedBy = append(recommendedBy, gin.H{
			"id":    courses[i].ID,
			"title": courses[i].Title,
		})
	}
	util.Success(ctx, gin.H{
		"book":          book,
		"recommendedBy": recommendedBy,
	})
}
