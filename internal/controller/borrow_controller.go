package controller

import (
	"edu_library_backend/internal/model"
	"edu_library_backend/internal/service"
	"edu_library_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type BorrowController struct {
	BorrowService *service.BorrowService
}

func NewBorrowController(borrowService *service.BorrowService) *BorrowController {
	return &BorrowController{BorrowService: borrowService}
}

// CheckoutRequest 借出请求
// swagger:model CheckoutRequest
type CheckoutRequest struct {
	ResourceID    string        `json:"resourceId" binding:"required"`
	ResourceType  string        `json:"resourceType" binding:"required,oneof=course book material equipment"`
	ResourceTitle string        `json:"resourceTitle"`
	DurationDays  int           `json:"durationDays" binding:"omitempty,min=1,max=90"`
	Metadata      model.JSONMap `json:"metadata"`
}

// Checkout godoc
// @Summary 借出资源
// @Description 为当前用户创建一条借阅记录，同一资源不允许重复在借
// @Tags 借阅
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CheckoutRequest true "借出信息"
// @Success 201 {object} util.Response{data=model.Borrow} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 400 {object} util.Response "已有在借记录"
// @Router /api/borrows [post]
func (c *BorrowController) Checkout(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	borrow, err := c.BorrowService.Checkout(ctx.Request.Context(), claims.UserID,
		req.ResourceID, model.BorrowResourceType(req.ResourceType), req.ResourceTitle,
		req.DurationDays, req.Metadata)
	if err != nil {
		if errors.Is(err, util.ErrDuplicateActiveBorrow) {
			util.BadRequest(ctx, "该资源已有在借记录")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, borrow)
}

// Return godoc
// @Summary 归还借阅
// @Description 归还指定借阅记录，过期未清扫的记录同样可归还
// @Tags 借阅
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "借阅ID"
// @Success 200 {object} util.Response{data=model.Borrow} "成功"
// @Failure 404 {object} util.Response "记录不存在"
// @Failure 400 {object} util.Response "状态不允许归还"
// @Router /api/borrows/{id}/return [patch]
func (c *BorrowController) Return(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	borrow, err := c.BorrowService.Return(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		c.writeLifecycleError(ctx, err)
		return
	}
	util.Success(ctx, borrow)
}

// RenewRequest 续借请求
// swagger:model RenewRequest
type RenewRequest struct {
	ExtensionDays int `json:"extensionDays" binding:"omitempty,min=1,max=30"`
}

// Renew godoc
// @Summary 续借
// @Description 在当前到期时间上顺延指定天数，并重置到期提醒
// @Tags 借阅
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "借阅ID"
// @Param   body body RenewRequest false "续借天数，缺省 7 天"
// @Success 200 {object} util.Response{data=model.Borrow} "成功"
// @Failure 404 {object} util.Response "记录不存在"
// @Failure 400 {object} util.Response "状态不允许续借"
// @Router /api/borrows/{id}/renew [patch]
func (c *BorrowController) Renew(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req RenewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		util.BadRequest(ctx, err.Error())
		return
	}

	borrow, err := c.BorrowService.Renew(ctx.Request.Context(), claims.UserID, ctx.Param("id"), req.ExtensionDays)
	if err != nil {
		c.writeLifecycleError(ctx, err)
		return
	}
	util.Success(ctx, borrow)
}

// ProgressRequest 进度更新请求
// swagger:model ProgressRequest
type ProgressRequest struct {
	Progress *int `json:"progress" binding:"required,min=0,max=100"`
}

// UpdateProgress godoc
// @Summary 更新阅读进度
// @Description 进度取值 0-100，到 100 自动完结
// @Tags 借阅
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "借阅ID"
// @Param   body body ProgressRequest true "进度"
// @Success 200 {object} util.Response{data=model.Borrow} "成功"
// @Failure 404 {object} util.Response "记录不存在"
// @Failure 400 {object} util.Response "状态不允许更新进度"
// @Router /api/library/progress/{id} [patch]
func (c *BorrowController) UpdateProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req ProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	borrow, err := c.BorrowService.UpdateProgress(ctx.Request.Context(), claims.UserID, ctx.Param("id"), *req.Progress)
	if err != nil {
		c.writeLifecycleError(ctx, err)
		return
	}
	util.Success(ctx, borrow)
}

// List godoc
// @Summary 借阅记录列表
// @Description 当前用户的借阅记录，可按状态过滤
// @Tags 借阅
// @Produce  json
// @Security ApiKeyAuth
// @Param   status query string false "状态过滤" Enums(active, returned, expired, completed)
// @Param   page query int false "页码" default(1)
// @Param   limit query int false "每页条数" default(20)
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/borrows [get]
func (c *BorrowController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", strconv.Itoa(util.DefaultPageLimit)))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > util.MaxPageLimit {
		limit = util.DefaultPageLimit
	}
	status := model.BorrowStatus(ctx.Query("status"))

	borrows, total, err := c.BorrowService.List(claims.UserID, status, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	util.Success(ctx, util.PageResponse{
		List:       borrows,
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		Limit:      limit,
	})
}

// Stats godoc
// @Summary 借阅统计
// @Description 当前用户各状态的借阅数量
// @Tags 借阅
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.BorrowStats} "成功"
// @Router /api/borrows/stats [get]
func (c *BorrowController) Stats(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	stats, err := c.BorrowService.Stats(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

func (c *BorrowController) writeLifecycleError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrBorrowNotFound):
		util.NotFound(ctx, "借阅记录不存在")
	case errors.Is(err, util.ErrBorrowNotActive):
		util.BadRequest(ctx, "当前状态不允许该操作")
	default:
		util.LogInternalError(ctx, err)
	}
}
