package app

import (
	"edu_library_backend/docs"
	"edu_library_backend/internal/middleware"
	"edu_library_backend/internal/model"

	"edu_library_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.Check)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)

		// 书目浏览允许游客访问
		public.GET("/library/books", c.library.ListBooks)
		public.GET("/library/books/:id", c.library.GetBook)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		// 图书馆面板及面板侧操作
		authGroup.GET("/library", c.library.GetUserLibrary)
		authGroup.POST("/library/return/:id", c.borrow.Return)
		authGroup.PATCH("/library/progress/:id", c.borrow.UpdateProgress)

		// 借阅生命周期
		authGroup.POST("/borrows", c.borrow.Checkout)
		authGroup.GET("/borrows", c.borrow.List)
		authGroup.GET("/borrows/stats", c.borrow.Stats)
		authGroup.PATCH("/borrows/:id/return", c.borrow.Return)
		authGroup.PATCH("/borrows/:id/renew", c.borrow.Renew)

		// 通知
		authGroup.GET("/notifications", c.notification.List)
		authGroup.GET("/notifications/unread-count", c.notification.UnreadCount)
		authGroup.PUT("/notifications/:id/read", c.notification.MarkRead)
		authGroup.GET("/notifications/ws", c.notification.ServeWs)

		// 借阅分析：查看限教师及以上，手动聚合限管理员
		analytics := authGroup.Group("/library-analytics")
		analytics.Use(middleware.RoleMiddleware(model.Teacher, model.Admin))
		{
			analytics.GET("/overview", c.analytics.Overview)
			analytics.POST("/aggregate",
				middleware.RoleMiddleware(model.Admin), c.analytics.Aggregate)
		}
	}
}
