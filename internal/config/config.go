package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ezac101/chainmail/internal/domain"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// LedgerConfig 定义账本的初始角色配置
//
// 角色只在账本首次初始化时写入；之后 transferOwnership /
// setRelayAddress 的结果持久化在存储层，配置值不再覆盖。
type LedgerConfig struct {
	OwnerAddress domain.Address // 创世所有者地址
	RelayAddress domain.Address // 创世中继地址
}

// RelayConfig 定义中继代付服务的配置
type RelayConfig struct {
	MinBalance     uint64 // 提交前要求的最低手续费余额
	InitialBalance uint64 // 节点启动时注入的初始余额（仅首次）
	BaseGas        uint64 // 每笔提交的固定 gas
	GasPerByte     uint64 // 按载荷字节计的 gas
}

// ContentConfig 定义密文内容存储配置
type ContentConfig struct {
	Backend       string // "filesystem" 或 "s3"
	Path          string // filesystem 后端的根目录
	MaxObjectSize int64  // 单个密文对象的大小上限（字节）

	// S3 后端配置（兼容 MinIO）
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// BridgeConfig 定义 SMTP 入站桥接网关配置
type BridgeConfig struct {
	Enabled         bool
	BindAddr        string         // SMTP 监听地址，默认 ":2525"
	Domain          string         // HELO/EHLO 响应域名
	AccountAddress  domain.Address // 桥接提交时使用的发件账户地址
	MaxMessageBytes int64
	MaxConnections  int // 最大并发 SMTP 连接数
	ConnRate        int // 每秒新建连接上限
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

// DatabaseConfig 定义 PostgreSQL 连接配置
type DatabaseConfig struct {
	DSN             string        // 连接字符串，留空使用内存存储
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，留空禁用缓存层
	Password string
	DB       int
}

// JWTConfig 定义运营后台的 JWT 认证配置
type JWTConfig struct {
	Secret        string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Config 是系统核心配置的根结构体
type Config struct {
	Server   ServerConfig
	Ledger   LedgerConfig
	Relay    RelayConfig
	Content  ContentConfig
	Bridge   BridgeConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: CHAINMAIL_
// 例如: CHAINMAIL_SERVER_PORT, CHAINMAIL_LEDGER_RELAY_ADDRESS
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("chainmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("ledger.owner_address", "")
	viper.SetDefault("ledger.relay_address", "")
	viper.SetDefault("relay.min_balance", 100000)
	viper.SetDefault("relay.initial_balance", 10000000)
	viper.SetDefault("relay.base_gas", 21000)
	viper.SetDefault("relay.gas_per_byte", 68)
	viper.SetDefault("content.backend", "filesystem")
	viper.SetDefault("content.path", "./data/content")
	viper.SetDefault("content.max_object_size", 10*1024*1024)
	viper.SetDefault("content.s3_endpoint", "")
	viper.SetDefault("content.s3_region", "us-east-1")
	viper.SetDefault("content.s3_bucket", "chainmail-content")
	viper.SetDefault("content.s3_access_key", "")
	viper.SetDefault("content.s3_secret_key", "")
	viper.SetDefault("bridge.enabled", false)
	viper.SetDefault("bridge.bind_addr", ":2525")
	viper.SetDefault("bridge.domain", "chainmail.local")
	viper.SetDefault("bridge.account_address", "")
	viper.SetDefault("bridge.max_message_bytes", 10*1024*1024)
	viper.SetDefault("bridge.max_connections", 50)
	viper.SetDefault("bridge.conn_rate", 10)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "chainmail")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")

	// 账本创世角色是必填配置：中继节点没有它们无法工作
	ownerStr := viper.GetString("ledger.owner_address")
	if ownerStr == "" {
		return nil, fmt.Errorf("ledger.owner_address is required (set CHAINMAIL_LEDGER_OWNER_ADDRESS)")
	}
	owner, err := domain.ParseAddress(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger.owner_address: %w", err)
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("ledger.owner_address must not be the zero address")
	}

	relayStr := viper.GetString("ledger.relay_address")
	if relayStr == "" {
		return nil, fmt.Errorf("ledger.relay_address is required (set CHAINMAIL_LEDGER_RELAY_ADDRESS)")
	}
	relay, err := domain.ParseAddress(relayStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger.relay_address: %w", err)
	}
	if relay.IsZero() {
		return nil, fmt.Errorf("ledger.relay_address must not be the zero address")
	}

	contentBackend := strings.ToLower(viper.GetString("content.backend"))
	switch contentBackend {
	case "filesystem":
		if viper.GetString("content.path") == "" {
			return nil, fmt.Errorf("content.path is required for the filesystem backend")
		}
	case "s3":
		if viper.GetString("content.s3_endpoint") == "" {
			return nil, fmt.Errorf("content.s3_endpoint is required for the s3 backend")
		}
		if viper.GetString("content.s3_access_key") == "" || viper.GetString("content.s3_secret_key") == "" {
			return nil, fmt.Errorf("content.s3_access_key and content.s3_secret_key are required for the s3 backend")
		}
	default:
		return nil, fmt.Errorf("unsupported content.backend: %s (supported: filesystem, s3)", contentBackend)
	}

	var bridgeAccount domain.Address
	if viper.GetBool("bridge.enabled") {
		bridgeAccount, err = domain.ParseAddress(viper.GetString("bridge.account_address"))
		if err != nil {
			return nil, fmt.Errorf("invalid bridge.account_address: %w", err)
		}
		if bridgeAccount.IsZero() {
			return nil, fmt.Errorf("bridge.account_address must not be the zero address")
		}
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set CHAINMAIL_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Ledger: LedgerConfig{
			OwnerAddress: owner,
			RelayAddress: relay,
		},
		Relay: RelayConfig{
			MinBalance:     viper.GetUint64("relay.min_balance"),
			InitialBalance: viper.GetUint64("relay.initial_balance"),
			BaseGas:        viper.GetUint64("relay.base_gas"),
			GasPerByte:     viper.GetUint64("relay.gas_per_byte"),
		},
		Content: ContentConfig{
			Backend:       contentBackend,
			Path:          viper.GetString("content.path"),
			MaxObjectSize: viper.GetInt64("content.max_object_size"),
			S3Endpoint:    viper.GetString("content.s3_endpoint"),
			S3Region:      viper.GetString("content.s3_region"),
			S3Bucket:      viper.GetString("content.s3_bucket"),
			S3AccessKey:   viper.GetString("content.s3_access_key"),
			S3SecretKey:   viper.GetString("content.s3_secret_key"),
		},
		Bridge: BridgeConfig{
			Enabled:         viper.GetBool("bridge.enabled"),
			BindAddr:        viper.GetString("bridge.bind_addr"),
			Domain:          viper.GetString("bridge.domain"),
			AccountAddress:  bridgeAccount,
			MaxMessageBytes: viper.GetInt64("bridge.max_message_bytes"),
			MaxConnections:  viper.GetInt("bridge.max_connections"),
			ConnRate:        viper.GetInt("bridge.conn_rate"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
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
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
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
// 文件不存在时静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
