package app

import (
	"context"
	"edu_library_backend/internal/config"
	"edu_library_backend/internal/controller"
	"edu_library_backend/internal/repository"
	"edu_library_backend/internal/scheduler"
	"edu_library_backend/internal/service"
	"edu_library_backend/pkg/cache"
	"edu_library_backend/pkg/configwatcher"
	"edu_library_backend/pkg/database"
	"edu_library_backend/pkg/logger"
	"edu_library_backend/pkg/monitoring"
	"edu_library_backend/pkg/security"
	"edu_library_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Scheduler       *scheduler.Driver
	services        *services
	tracerProvider  *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	borrow       *repository.BorrowRepository
	book         *repository.BookRepository
	course       *repository.CourseRepository
	event        *repository.LibraryEventRepository
	analytics    *repository.LibraryAnalyticsRepository
	notification *repository.NotificationRepository
}

type services struct {
	auth            *service.AuthService
	storage         *service.StorageService
	borrow          *service.BorrowService
	library         *service.LibraryService
	analytics       *service.LibraryAnalyticsService
	notification    *service.NotificationService
	notificationHub *service.NotificationHub
}

type controllers struct {
	auth         *controller.AuthController
	borrow       *controller.BorrowController
	library      *controller.LibraryController
	analytics    *controller.LibraryAnalyticsController
	notification *controller.NotificationController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		borrow:       repository.NewBorrowRepository(db),
		book:         repository.NewBookRepository(db),
		course:       repository.NewCourseRepository(db),
		event:        repository.NewLibraryEventRepository(db),
		analytics:    repository.NewLibraryAnalyticsRepository(db),
		notification: repository.NewNotificationRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	cacheService := cache.NewRedisCache(rdb)

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)

	s.notificationHub = service.NewNotificationHub(rdb)
	go s.notificationHub.Run()

	s.notification = service.NewNotificationService(repos.notification, s.notificationHub, service.LogEmailSender{})

	s.borrow = service.NewBorrowService(repos.borrow, repos.event, cacheService, s.notification, cfg.Library)
	s.library = service.NewLibraryService(repos.borrow, repos.book, repos.course, cacheService, cfg.Library)
	s.analytics = service.NewLibraryAnalyticsService(repos.analytics, repos.event, repos.book, repos.course, s.storage)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		borrow:       controller.NewBorrowController(s.borrow),
		library:      controller.NewLibraryController(s.library),
		analytics:    controller.NewLibraryAnalyticsController(s.analytics),
		notification: controller.NewNotificationController(s.notification, s.notificationHub),
		health:       controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window()))

	// 注入配置，供鉴权中间件取 JWT 密钥
	router.Use(func(c *gin.Context) {
		c.Set("config", cfg)
		c.Next()
	})

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startScheduler 定时任务：启动先跑一轮，之后每小时一轮。
// 提醒和过期清扫在聚合之前，保证当小时产生的过期事件能进同一轮统计
func (a *App) startScheduler(s *services, cfg *config.Config) {
	driver := scheduler.NewDriver(cfg.Library.SweepInterval())

	driver.Register(scheduler.NewSweepJob(func(ctx context.Context, now time.Time) error {
		_, err := s.borrow.Sweep(ctx, now)
		return err
	}))
	driver.Register(scheduler.NewAggregationJob(func(ctx context.Context, now time.Time) error {
		return s.analytics.AggregateAll(ctx, now)
	}))

	driver.Start(context.Background())
	a.Scheduler = driver
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.ShouldMigrate())
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("edu-library", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	app.registerRoutes(router, controllers, repos)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startScheduler(services, cfg)

	// 配置热更新：回调里只替换引用，正在处理的请求继续用旧配置
	app.RegisterConfigCallback(func(updated *config.Config) {
		app.Config = updated
	})
	go configwatcher.WatchConfig("configs/config.yaml", cfg, func(newCfg interface{}) {
		updated, ok := newCfg.(*config.Config)
		if !ok {
			return
		}
		logger.Log.Info("Config reloaded")
		for _, callback := range app.configCallbacks {
			callback(updated)
		}
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 停掉定时任务和通知通道，再关 HTTP
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.services != nil {
		if a.services.notification != nil {
			a.services.notification.Stop()
		}
		if a.services.notificationHub != nil {
			a.services.notificationHub.Stop()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
