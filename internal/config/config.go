// Package config handles configuration for the searchd service. Values come
// from defaults, an optional YAML file, and environment variables, in
// ascending precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/delimatsuo/headhunter-sub011/internal/observability"
)

// Config represents the complete configuration for searchd.
type Config struct {
	Service      ServiceConfig               `mapstructure:"service"`
	Database     DatabaseConfig              `mapstructure:"database"`
	Redis        RedisConfig                 `mapstructure:"redis"`
	Cache        CacheConfig                 `mapstructure:"cache"`
	Retrieval    RetrievalConfig             `mapstructure:"retrieval"`
	Rerank       RerankConfig                `mapstructure:"rerank"`
	Embedding    EmbeddingConfig             `mapstructure:"embedding"`
	RateLimiting RateLimitingConfig          `mapstructure:"rate_limiting"`
	Auth         AuthConfig                  `mapstructure:"auth"`
	Tracing      observability.TracingConfig `mapstructure:"tracing"`
}

// ServiceConfig contains service-level configuration.
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	Environment     string        `mapstructure:"environment"`
}

// DatabaseConfig contains connection pool and vector index settings.
type DatabaseConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Database   string `mapstructure:"database"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	SSLMode    string `mapstructure:"ssl_mode"`
	SearchPath string `mapstructure:"search_path"`

	PoolMax            int `mapstructure:"pool_max"`
	PoolMin            int `mapstructure:"pool_min"`
	ConnTimeoutMs      int `mapstructure:"connection_timeout_ms"`
	StatementTimeoutMs int `mapstructure:"statement_timeout_ms"`
	IdleTimeoutMs      int `mapstructure:"idle_timeout_ms"`

	// IndexType selects the ANN index variant: "hnsw" or "diskann".
	IndexType             string `mapstructure:"index_type"`
	HNSWEfSearch          int    `mapstructure:"hnsw_ef_search"`
	DiskANNSearchListSize int    `mapstructure:"diskann_search_list_size"`

	MigrateOnStart bool `mapstructure:"migrate_on_start"`
}

// ConnTimeout returns the connection acquisition timeout.
func (d DatabaseConfig) ConnTimeout() time.Duration {
	return time.Duration(d.ConnTimeoutMs) * time.Millisecond
}

// StatementTimeout returns the per-statement timeout.
func (d DatabaseConfig) StatementTimeout() time.Duration {
	return time.Duration(d.StatementTimeoutMs) * time.Millisecond
}

// IdleTimeout returns the idle connection timeout.
func (d DatabaseConfig) IdleTimeout() time.Duration {
	return time.Duration(d.IdleTimeoutMs) * time.Millisecond
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	TLS         bool          `mapstructure:"tls"`
	Database    int           `mapstructure:"database"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig contains cache layer settings. TTLs are per layer; jitter is
// fixed per layer and not configurable.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Disable is the inverted environment switch (RERANK_CACHE_DISABLE);
	// Load folds it into Enabled.
	Disable             bool   `mapstructure:"disable"`
	KeyPrefix           string `mapstructure:"key_prefix"`
	SearchTTLSeconds    int    `mapstructure:"search_ttl_seconds"`
	RerankTTLSeconds    int    `mapstructure:"rerank_ttl_seconds"`
	SpecialtyTTLSeconds int    `mapstructure:"specialty_ttl_seconds"`
	EmbeddingTTLSeconds int    `mapstructure:"embedding_ttl_seconds"`
	ScanBatchSize       int    `mapstructure:"scan_batch_size"`
	LocalSize           int    `mapstructure:"local_size"`
}

// RetrievalConfig contains hybrid retrieval settings.
type RetrievalConfig struct {
	OverRetrievalFactor    int `mapstructure:"over_retrieval_factor"`
	RRFK                   int `mapstructure:"rrf_k"`
	MaterializeConcurrency int `mapstructure:"materialize_concurrency"`
}

// RerankConfig contains orchestrator caps and the two provider blocks.
type RerankConfig struct {
	SLATargetMs    int  `mapstructure:"sla_target_ms"`
	SlowLogMs      int  `mapstructure:"slow_log_ms"`
	MaxCandidates  int  `mapstructure:"max_candidates"`
	MinCandidates  int  `mapstructure:"min_candidates"`
	DefaultLimit   int  `mapstructure:"default_limit"`
	ReasonLimit    int  `mapstructure:"reason_limit"`
	MaxPromptChars int  `mapstructure:"max_prompt_characters"`
	MaxHighlights  int  `mapstructure:"max_highlights"`
	MaxSkills      int  `mapstructure:"max_skills"`
	EnableFallback bool `mapstructure:"enable_fallback"`

	Together ProviderConfig `mapstructure:"together"`
	Gemini   ProviderConfig `mapstructure:"gemini"`
}

// SLATarget returns the per-request deadline budget.
func (r RerankConfig) SLATarget() time.Duration {
	return time.Duration(r.SLATargetMs) * time.Millisecond
}

// ProviderConfig contains per-provider LLM client settings.
type ProviderConfig struct {
	Enabled                 bool   `mapstructure:"enabled"`
	APIKey                  string `mapstructure:"api_key"`
	BaseURL                 string `mapstructure:"base_url"`
	Model                   string `mapstructure:"model"`
	TimeoutMs               int    `mapstructure:"timeout_ms"`
	Retries                 int    `mapstructure:"retries"`
	RetryDelayMs            int    `mapstructure:"retry_delay_ms"`
	CircuitFailureThreshold int    `mapstructure:"circuit_failure_threshold"`
	CircuitCooldownMs       int    `mapstructure:"circuit_cooldown_ms"`
}

// Timeout returns the configured per-attempt timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the pause between retry attempts.
func (p ProviderConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

// CircuitCooldown returns how long an open circuit stays open.
func (p ProviderConfig) CircuitCooldown() time.Duration {
	return time.Duration(p.CircuitCooldownMs) * time.Millisecond
}

// EmbeddingConfig contains query embedding client settings.
type EmbeddingConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	RetryMax     int    `mapstructure:"retry_max"`
	RetryDelayMs int    `mapstructure:"retry_delay_ms"`
	Dimensions   int    `mapstructure:"dimensions"`
}

// Timeout returns the embedding request timeout.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the pause between embedding retry attempts.
func (e EmbeddingConfig) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelayMs) * time.Millisecond
}

// RateLimitingConfig contains request admission settings.
type RateLimitingConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
	PerTenantRPS      float64 `mapstructure:"per_tenant_rps"`
	PerTenantBurst    int     `mapstructure:"per_tenant_burst"`
}

// AuthConfig contains tenant authentication settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	// AllowHeaderTenant accepts an X-Tenant-ID header instead of a JWT.
	// Development only.
	AllowHeaderTenant bool `mapstructure:"allow_header_tenant"`
}

// Load loads configuration from defaults, an optional config file, and
// environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("searchd")
	viper.SetConfigType("yaml")

	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults and env vars cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The public switch is a disable flag; fold it into Enabled so the
	// rest of the code only ever checks one field.
	if config.Cache.Disable {
		config.Cache.Enabled = false
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Service defaults
	viper.SetDefault("service.port", 8085)
	viper.SetDefault("service.metrics_port", 9095)
	viper.SetDefault("service.shutdown_timeout", "30s")
	viper.SetDefault("service.log_level", "info")
	viper.SetDefault("service.environment", "development")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "headhunter_development")
	viper.SetDefault("database.username", "headhunter")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.search_path", "search,public")
	viper.SetDefault("database.pool_max", 20)
	viper.SetDefault("database.pool_min", 5)
	viper.SetDefault("database.connection_timeout_ms", 3000)
	viper.SetDefault("database.statement_timeout_ms", 10000)
	viper.SetDefault("database.idle_timeout_ms", 60000)
	viper.SetDefault("database.index_type", "hnsw")
	viper.SetDefault("database.hnsw_ef_search", 100)
	viper.SetDefault("database.diskann_search_list_size", 100)
	viper.SetDefault("database.migrate_on_start", false)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.tls", false)
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.max_retries", 3)

	// Cache defaults
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.disable", false)
	viper.SetDefault("cache.key_prefix", "hh")
	viper.SetDefault("cache.search_ttl_seconds", 600)
	viper.SetDefault("cache.rerank_ttl_seconds", 21600)
	viper.SetDefault("cache.specialty_ttl_seconds", 86400)
	viper.SetDefault("cache.embedding_ttl_seconds", 3600)
	viper.SetDefault("cache.scan_batch_size", 1000)
	viper.SetDefault("cache.local_size", 2048)

	// Retrieval defaults
	viper.SetDefault("retrieval.over_retrieval_factor", 3)
	viper.SetDefault("retrieval.rrf_k", 60)
	viper.SetDefault("retrieval.materialize_concurrency", 8)

	// Rerank defaults
	viper.SetDefault("rerank.sla_target_ms", 350)
	viper.SetDefault("rerank.slow_log_ms", 300)
	viper.SetDefault("rerank.max_candidates", 50)
	viper.SetDefault("rerank.min_candidates", 1)
	viper.SetDefault("rerank.default_limit", 20)
	viper.SetDefault("rerank.reason_limit", 3)
	viper.SetDefault("rerank.max_prompt_characters", 16000)
	viper.SetDefault("rerank.max_highlights", 5)
	viper.SetDefault("rerank.max_skills", 10)
	viper.SetDefault("rerank.enable_fallback", true)

	// Provider defaults
	viper.SetDefault("rerank.together.enabled", true)
	viper.SetDefault("rerank.together.base_url", "https://api.together.xyz")
	viper.SetDefault("rerank.together.model", "meta-llama/Meta-Llama-3.1-70B-Instruct-Turbo")
	viper.SetDefault("rerank.together.timeout_ms", 1500)
	viper.SetDefault("rerank.together.retries", 1)
	viper.SetDefault("rerank.together.retry_delay_ms", 200)
	viper.SetDefault("rerank.together.circuit_failure_threshold", 5)
	viper.SetDefault("rerank.together.circuit_cooldown_ms", 30000)

	viper.SetDefault("rerank.gemini.enabled", true)
	viper.SetDefault("rerank.gemini.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("rerank.gemini.model", "gemini-2.0-flash")
	viper.SetDefault("rerank.gemini.timeout_ms", 1500)
	viper.SetDefault("rerank.gemini.retries", 1)
	viper.SetDefault("rerank.gemini.retry_delay_ms", 200)
	viper.SetDefault("rerank.gemini.circuit_failure_threshold", 5)
	viper.SetDefault("rerank.gemini.circuit_cooldown_ms", 30000)

	// Embedding defaults
	viper.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.timeout_ms", 1000)
	viper.SetDefault("embedding.retry_max", 2)
	viper.SetDefault("embedding.retry_delay_ms", 100)
	viper.SetDefault("embedding.dimensions", 768)

	// Rate limiting defaults
	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.requests_per_second", 50)
	viper.SetDefault("rate_limiting.burst_size", 100)
	viper.SetDefault("rate_limiting.per_tenant_rps", 10)
	viper.SetDefault("rate_limiting.per_tenant_burst", 20)

	// Auth defaults
	viper.SetDefault("auth.issuer", "headhunter")
	viper.SetDefault("auth.allow_header_tenant", false)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "searchd")
	viper.SetDefault("tracing.endpoint", "localhost:4317")
}

func bindEnvVars() {
	viper.AutomaticEnv()

	// Service bindings
	_ = viper.BindEnv("service.port", "SEARCHD_PORT")
	_ = viper.BindEnv("service.metrics_port", "SEARCHD_METRICS_PORT")
	_ = viper.BindEnv("service.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("service.environment", "ENVIRONMENT")

	// Database bindings
	_ = viper.BindEnv("database.host", "DATABASE_HOST")
	_ = viper.BindEnv("database.port", "DATABASE_PORT")
	_ = viper.BindEnv("database.database", "DATABASE_NAME")
	_ = viper.BindEnv("database.username", "DATABASE_USER")
	_ = viper.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	_ = viper.BindEnv("database.pool_max", "PGVECTOR_POOL_MAX")
	_ = viper.BindEnv("database.pool_min", "PGVECTOR_POOL_MIN")
	_ = viper.BindEnv("database.connection_timeout_ms", "PGVECTOR_CONNECTION_TIMEOUT_MS")
	_ = viper.BindEnv("database.statement_timeout_ms", "PGVECTOR_STATEMENT_TIMEOUT_MS")
	_ = viper.BindEnv("database.idle_timeout_ms", "PGVECTOR_IDLE_TIMEOUT_MS")
	_ = viper.BindEnv("database.index_type", "PGVECTOR_INDEX_TYPE")
	_ = viper.BindEnv("database.hnsw_ef_search", "HNSW_EF_SEARCH")
	_ = viper.BindEnv("database.diskann_search_list_size", "DISKANN_SEARCH_LIST_SIZE")
	_ = viper.BindEnv("database.migrate_on_start", "DATABASE_MIGRATE_ON_START")

	// Redis and cache bindings
	_ = viper.BindEnv("redis.host", "REDIS_HOST")
	_ = viper.BindEnv("redis.port", "REDIS_PORT")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.tls", "REDIS_TLS")
	_ = viper.BindEnv("cache.key_prefix", "RERANK_REDIS_PREFIX")
	_ = viper.BindEnv("cache.rerank_ttl_seconds", "RERANK_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("cache.disable", "RERANK_CACHE_DISABLE")

	// Rerank bindings
	_ = viper.BindEnv("rerank.sla_target_ms", "RERANK_SLA_TARGET_MS")
	_ = viper.BindEnv("rerank.slow_log_ms", "RERANK_SLOW_LOG_MS")
	_ = viper.BindEnv("rerank.max_candidates", "RERANK_MAX_CANDIDATES")
	_ = viper.BindEnv("rerank.min_candidates", "RERANK_MIN_CANDIDATES")
	_ = viper.BindEnv("rerank.default_limit", "RERANK_DEFAULT_LIMIT")
	_ = viper.BindEnv("rerank.reason_limit", "RERANK_REASON_LIMIT")
	_ = viper.BindEnv("rerank.max_prompt_characters", "RERANK_MAX_PROMPT_CHARACTERS")
	_ = viper.BindEnv("rerank.max_highlights", "RERANK_MAX_HIGHLIGHTS")
	_ = viper.BindEnv("rerank.max_skills", "RERANK_MAX_SKILLS")
	_ = viper.BindEnv("rerank.enable_fallback", "RERANK_ENABLE_FALLBACK")

	bindProviderEnvVars("rerank.together", "TOGETHER")
	bindProviderEnvVars("rerank.gemini", "GEMINI")

	// Embedding bindings
	_ = viper.BindEnv("embedding.api_key", "EMBEDDINGS_API_KEY")
	_ = viper.BindEnv("embedding.base_url", "EMBEDDINGS_BASE_URL")
	_ = viper.BindEnv("embedding.model", "EMBEDDINGS_MODEL")
	_ = viper.BindEnv("embedding.timeout_ms", "EMBEDDINGS_TIMEOUT_MS")

	// Auth bindings
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("auth.allow_header_tenant", "AUTH_ALLOW_HEADER_TENANT")

	// Tracing bindings
	_ = viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	_ = viper.BindEnv("tracing.endpoint", "TRACING_ENDPOINT")
	_ = viper.BindEnv("tracing.environment", "ENVIRONMENT")
}

// bindProviderEnvVars binds one provider block to its environment prefix,
// e.g. TOGETHER_API_KEY or GEMINI_CB_COOLDOWN_MS.
func bindProviderEnvVars(key, prefix string) {
	_ = viper.BindEnv(key+".api_key", prefix+"_API_KEY")
	_ = viper.BindEnv(key+".base_url", prefix+"_BASE_URL")
	_ = viper.BindEnv(key+".model", prefix+"_MODEL")
	_ = viper.BindEnv(key+".timeout_ms", prefix+"_TIMEOUT_MS")
	_ = viper.BindEnv(key+".retries", prefix+"_RETRIES")
	_ = viper.BindEnv(key+".retry_delay_ms", prefix+"_RETRY_DELAY_MS")
	_ = viper.BindEnv(key+".circuit_failure_threshold", prefix+"_CB_FAILURES")
	_ = viper.BindEnv(key+".circuit_cooldown_ms", prefix+"_CB_COOLDOWN_MS")
	_ = viper.BindEnv(key+".enabled", prefix+"_ENABLE")
}

func validate(cfg *Config) error {
	if cfg.Service.Port <= 0 || cfg.Service.Port > 65535 {
		return fmt.Errorf("invalid service port: %d", cfg.Service.Port)
	}
	if cfg.Database.IndexType != "hnsw" && cfg.Database.IndexType != "diskann" {
		return fmt.Errorf("invalid index type: %q (want hnsw or diskann)", cfg.Database.IndexType)
	}
	if cfg.Database.PoolMin > cfg.Database.PoolMax {
		return fmt.Errorf("pool_min (%d) exceeds pool_max (%d)", cfg.Database.PoolMin, cfg.Database.PoolMax)
	}
	if cfg.Rerank.MinCandidates < 1 {
		return fmt.Errorf("min_candidates must be at least 1, got %d", cfg.Rerank.MinCandidates)
	}
	if cfg.Rerank.MinCandidates > cfg.Rerank.MaxCandidates {
		return fmt.Errorf("min_candidates (%d) exceeds max_candidates (%d)",
			cfg.Rerank.MinCandidates, cfg.Rerank.MaxCandidates)
	}
	if cfg.Rerank.DefaultLimit < 1 {
		return fmt.Errorf("default_limit must be at least 1, got %d", cfg.Rerank.DefaultLimit)
	}
	if cfg.Rerank.SLATargetMs <= 0 {
		return fmt.Errorf("sla_target_ms must be positive, got %d", cfg.Rerank.SLATargetMs)
	}
	return nil
}
