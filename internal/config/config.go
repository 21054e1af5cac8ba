package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 借阅相关默认值（定义在 config 包内，避免 config → util → logger → config 循环依赖）
const (
	DefaultBorrowDays    = 14
	DefaultExtensionDays = 7
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Library   LibraryConfig   `mapstructure:"library"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LibraryConfig 借阅核心参数
type LibraryConfig struct {
	DefaultBorrowDays    int           `mapstructure:"default_borrow_days"`
	DefaultExtensionDays int           `mapstructure:"default_extension_days"`
	ReminderWindowHours  int           `mapstructure:"reminder_window_hours"`
	DashboardCacheTTL    time.Duration `mapstructure:"dashboard_cache_ttl_seconds"`
	PopularCacheTTL      time.Duration `mapstructure:"popular_cache_ttl_seconds"`
	SweepIntervalMinutes int           `mapstructure:"sweep_interval_minutes"`
}

// ReminderWindow 到期提醒窗口
func (l LibraryConfig) ReminderWindow() time.Duration {
	return time.Duration(l.ReminderWindowHours) * time.Hour
}

// SweepInterval 定时任务间隔
func (l LibraryConfig) SweepInterval() time.Duration {
	return time.Duration(l.SweepIntervalMinutes) * time.Minute
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// Window 限流时间窗口
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

// ShouldMigrate release 模式默认跳过自动迁移，用 --migrate 强制执行
func (c *Config) ShouldMigrate() bool {
	return c.ForceMigrate || c.Server.Mode != "release"
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("EDU_LIBRARY")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage / MinIO
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Library.DashboardCacheTTL = cfg.Library.DashboardCacheTTL * time.Second
	cfg.Library.PopularCacheTTL = cfg.Library.PopularCacheTTL * time.Second
	applyLibraryDefaults(&cfg.Library)
	applyRateLimitDefaults(&cfg.RateLimit)

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}

func applyLibraryDefaults(l *LibraryConfig) {
	if l.DefaultBorrowDays <= 0 {
		l.DefaultBorrowDays = DefaultBorrowDays
	}
	if l.DefaultExtensionDays <= 0 {
		l.DefaultExtensionDays = DefaultExtensionDays
	}
	if l.ReminderWindowHours <= 0 {
		l.ReminderWindowHours = 24
	}
	if l.DashboardCacheTTL <= 0 {
		l.DashboardCacheTTL = 300 * time.Second
	}
	if l.PopularCacheTTL <= 0 {
		l.PopularCacheTTL = 120 * time.Second
	}
	if l.SweepIntervalMinutes <= 0 {
		l.SweepIntervalMinutes = 60
	}
}

func applyRateLimitDefaults(r *RateLimitConfig) {
	if r.MaxRequests <= 0 {
		r.MaxRequests = 100000
	}
	if r.WindowMinutes <= 0 {
		r.WindowMinutes = 1
	}
}
