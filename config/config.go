package config

import (
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort     string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost     string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName    string `env:"SERVICE_NAME" envDefault:"wholewellness-intake"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"0.1.0"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"wholewellness"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	// 只读副本，逗号分隔的 host:port，为空时不启用读写分离
	PostgreSQLReplicas string `env:"POSTGRESQL_REPLICAS" envDefault:""`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"wwc"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTelEnabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTelSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitWindow  int  `env:"RATE_LIMIT_WINDOW" envDefault:"60"`
	RateLimitMax     int  `env:"RATE_LIMIT_MAX" envDefault:"300"` // 窗口内最大请求数

	// 允许跨域的来源，逗号分隔，* 表示任意来源
	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`

	// 引导问卷（intake）配置
	IntakeIdleTTL           time.Duration `env:"INTAKE_IDLE_TTL" envDefault:"2h"`         // 内存中会话的空闲回收时间
	IntakeCleanupInterval   time.Duration `env:"INTAKE_CLEANUP_INTERVAL" envDefault:"5m"` // 回收扫描间隔
	IntakeDraftCacheTTL     time.Duration `env:"INTAKE_DRAFT_CACHE_TTL" envDefault:"72h"`
	IntakePersistMaxTries   uint          `env:"INTAKE_PERSIST_MAX_TRIES" envDefault:"3"`
	IntakePersistBackoff    time.Duration `env:"INTAKE_PERSIST_BACKOFF" envDefault:"200ms"`
	IntakePersistMaxWait    time.Duration `env:"INTAKE_PERSIST_MAX_WAIT" envDefault:"5s"`
	IntakeBreakerFailures   int           `env:"INTAKE_BREAKER_FAILURES" envDefault:"5"`
	IntakeBreakerReset      time.Duration `env:"INTAKE_BREAKER_RESET" envDefault:"30s"`
	IntakeCompletedPrefetch int           `env:"INTAKE_COMPLETED_PREFETCH" envDefault:"10"`
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.IntakePersistMaxTries == 0 {
		log.Printf("WARN: INTAKE_PERSIST_MAX_TRIES is 0, falling back to a single attempt")
		Cfg.IntakePersistMaxTries = 1
	}

	if Cfg.IntakeBreakerFailures <= 0 {
		log.Printf("WARN: INTAKE_BREAKER_FAILURES must be positive, using 5")
		Cfg.IntakeBreakerFailures = 5
	}

	if Cfg.OTelEnabled && Cfg.OTelEndpoint == "" {
		log.Printf("WARN: OTEL_ENABLED is set but OTEL_EXPORTER_OTLP_ENDPOINT is empty, tracing export will fail")
	}

	if Cfg.SnowflakeMachineID < 0 || Cfg.SnowflakeMachineID > 31 {
		log.Printf("WARN: SNOWFLAKE_MACHINE_ID should be within [0,31]")
	}
}

func (c *Config) GetDSN() string {
	return c.dsnFor(c.PostgreSQLHost, c.PostgreSQLPort)
}

// GetReplicaDSNs 返回只读副本的 DSN 列表
func (c *Config) GetReplicaDSNs() []string {
	if strings.TrimSpace(c.PostgreSQLReplicas) == "" {
		return nil
	}

	var dsns []string
	for _, hostPort := range strings.Split(c.PostgreSQLReplicas, ",") {
		hostPort = strings.TrimSpace(hostPort)
		if hostPort == "" {
			continue
		}
		host, port := hostPort, c.PostgreSQLPort
		if i := strings.LastIndex(hostPort, ":"); i > 0 {
			host, port = hostPort[:i], hostPort[i+1:]
		}
		dsns = append(dsns, c.dsnFor(host, port))
	}
	return dsns
}

func (c *Config) dsnFor(host, port string) string {
	return "host=" + host +
		" port=" + port +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// AllowedOrigins 解析 CORS 来源列表，nil 表示任意来源
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return nil
		}
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
