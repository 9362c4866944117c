package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置（限流计数与去重键）
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// CryptoConfig 定义令牌落库加密配置
type CryptoConfig struct {
	Secret string // 派生加密密钥的主密钥，必须至少 32 字符
}

// OAuthConfig 定义单个提供方的 OAuth 应用凭据
type OAuthConfig struct {
	ClientID     string // OAuth 应用 ID
	ClientSecret string // OAuth 应用密钥
	TokenURL     string // 令牌端点
	Scope        string // 刷新请求携带的 scope，可为空
}

// AIConfig 定义邮件分析所用的模型服务配置
type AIConfig struct {
	APIKey        string // 模型服务 API Key
	Model         string // 模型标识，默认 "openai/gpt-4o-mini"
	BaseURL       string // 服务基地址，默认 OpenRouter
	RatePerMinute int    // 客户端侧请求速率上限，0 表示不限制
}

// SubscriptionConfig 定义 Webhook 订阅生命周期配置
type SubscriptionConfig struct {
	NotificationURL string        // 提供方回调的公网地址
	StateSecret     string        // clientState 签名密钥，必须至少 32 字符
	StateIssuer     string        // clientState 签发者标识，默认 "dealradar"
	RenewInterval   time.Duration // 后台续期任务的执行间隔，默认 1h
	RenewWindow     time.Duration // 到期前多久开始续期，默认 24h
}

// PoolConfig 定义通知处理工作池配置
type PoolConfig struct {
	MaxWorkers int // 并发工作协程数，默认 8
	QueueSize  int // 任务队列长度，默认 256
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server       ServerConfig       // HTTP 服务器配置
	CORS         CORSConfig         // 跨域配置
	Log          LogConfig          // 日志配置
	Database     DatabaseConfig     // 数据库配置
	Redis        RedisConfig        // Redis 配置
	Crypto       CryptoConfig       // 令牌加密配置
	Microsoft    OAuthConfig        // Microsoft OAuth 应用配置
	Pipedrive    OAuthConfig        // Pipedrive OAuth 应用配置
	AI           AIConfig           // 模型服务配置
	Subscription SubscriptionConfig // 订阅生命周期配置
	Pool         PoolConfig         // 工作池配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: DEALRADAR_
// 例如: DEALRADAR_SERVER_PORT, DEALRADAR_CRYPTO_SECRET
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("dealradar")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("crypto.secret", "change-me-in-production")
	viper.SetDefault("microsoft.token_url", "https://login.microsoftonline.com/common/oauth2/v2.0/token")
	viper.SetDefault("microsoft.scope", "https://graph.microsoft.com/.default offline_access")
	viper.SetDefault("pipedrive.token_url", "https://oauth.pipedrive.com/oauth/token")
	viper.SetDefault("pipedrive.scope", "")
	viper.SetDefault("ai.model", "openai/gpt-4o-mini")
	viper.SetDefault("ai.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("ai.rate_per_minute", 10)
	viper.SetDefault("subscription.state_issuer", "dealradar")
	viper.SetDefault("subscription.renew_interval", "1h")
	viper.SetDefault("subscription.renew_window", "24h")
	viper.SetDefault("pool.max_workers", 8)
	viper.SetDefault("pool.queue_size", 256)

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	renewInterval, err := time.ParseDuration(viper.GetString("subscription.renew_interval"))
	if err != nil {
		renewInterval = time.Hour
	}

	renewWindow, err := time.ParseDuration(viper.GetString("subscription.renew_window"))
	if err != nil {
		renewWindow = 24 * time.Hour
	}

	cryptoSecret := viper.GetString("crypto.secret")

	// 安全检查：禁止使用默认的加密密钥
	if cryptoSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: crypto secret cannot be the default value. Please set DEALRADAR_CRYPTO_SECRET environment variable")
	}
	if len(cryptoSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: crypto secret must be at least 32 characters long")
	}

	// clientState 签名密钥缺省复用加密主密钥
	stateSecret := viper.GetString("subscription.state_secret")
	if stateSecret == "" {
		stateSecret = cryptoSecret
	}
	if len(stateSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: subscription state secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Crypto: CryptoConfig{
			Secret: cryptoSecret,
		},
		Microsoft: OAuthConfig{
			ClientID:     viper.GetString("microsoft.client_id"),
			ClientSecret: viper.GetString("microsoft.client_secret"),
			TokenURL:     viper.GetString("microsoft.token_url"),
			Scope:        viper.GetString("microsoft.scope"),
		},
		Pipedrive: OAuthConfig{
			ClientID:     viper.GetString("pipedrive.client_id"),
			ClientSecret: viper.GetString("pipedrive.client_secret"),
			TokenURL:     viper.GetString("pipedrive.token_url"),
			Scope:        viper.GetString("pipedrive.scope"),
		},
		AI: AIConfig{
			APIKey:        viper.GetString("ai.api_key"),
			Model:         viper.GetString("ai.model"),
			BaseURL:       viper.GetString("ai.base_url"),
			RatePerMinute: viper.GetInt("ai.rate_per_minute"),
		},
		Subscription: SubscriptionConfig{
			NotificationURL: viper.GetString("subscription.notification_url"),
			StateSecret:     stateSecret,
			StateIssuer:     viper.GetString("subscription.state_issuer"),
			RenewInterval:   renewInterval,
			RenewWindow:     renewWindow,
		},
		Pool: PoolConfig{
			MaxWorkers: viper.GetInt("pool.max_workers"),
			QueueSize:  viper.GetInt("pool.queue_size"),
		},
	}

	if cfg.Pool.MaxWorkers <= 0 {
		cfg.Pool.MaxWorkers = 8
	}
	if cfg.Pool.QueueSize <= 0 {
		cfg.Pool.QueueSize = 256
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
