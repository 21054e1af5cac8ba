package controller

import (
	"edu_library_backend/internal/model"
	"edu_library_backend/internal/service"
	"edu_library_backend/internal/util"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
)

type LibraryAnalyticsController struct {
	AnalyticsService *service.LibraryAnalyticsService
}

func NewLibraryAnalyticsController(analyticsService *service.LibraryAnalyticsService) *LibraryAnalyticsController {
	return &LibraryAnalyticsController{AnalyticsService: analyticsService}
}

// AggregateRequest 手动聚合请求体
type AggregateRequest struct {
	Period string `json:"period" binding:"required,oneof=daily weekly monthly"`
}

// Overview godoc
// @Summary 借阅分析总览
// @Description 不带 period 时返回日、周、月各自最新一期快照；带 period 时只返回该周期
// @Tags 分析
// @Produce  json
// @Security ApiKeyAuth
// @Param   period query string false "聚合周期" Enums(daily, weekly, monthly)
// @Success 200 {object} util.Response{data=service.Overview} "成功"
// @Failure 400 {object} util.Response "周期参数错误"
// @Router /api/library-analytics/overview [get]
func (c *LibraryAnalyticsController) Overview(ctx *gin.Context) {
	if period := ctx.Query("period"); period != "" {
		snapshot, err := c.AnalyticsService.GetByPeriod(period)
		if err != nil {
			if errors.Is(err, util.ErrInvalidPeriod) {
				util.BadRequest(ctx, "period 取值为 daily / weekly / monthly")
			} else {
				util.LogInternalError(ctx, err)
			}
			return
		}
		util.Success(ctx, snapshot)
		return
	}

	overview, err := c.AnalyticsService.GetOverview()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}

// Aggregate godoc
// @Summary 手动触发聚合
// @Description 立即聚合指定周期的当前时间桶，管理端补数用
// @Tags 分析
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body AggregateRequest true "聚合周期"
// @Success 200 {object} util.Response{data=model.LibraryAnalytics} "成功"
// @Failure 400 {object} util.Response "周期参数错误"
// @Router /api/library-analytics/aggregate [post]
func (c *LibraryAnalyticsController) Aggregate(ctx *gin.Context) {
	var req AggregateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "period 取值为 daily / weekly / monthly")
		return
	}

	snapshot, err := c.AnalyticsService.Aggregate(ctx.Request.Context(), model.AnalyticsPeriod(req.Period), time.Now())
	if err != nil {
		if errors.Is(err, util.ErrInvalidPeriod) {
			util.BadRequest(ctx, "period 取值为 daily / weekly / monthly")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, snapshot)
}
