// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Ingest        IngestConfig        `yaml:"ingest" mapstructure:"ingest"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host          string        `yaml:"host" mapstructure:"host"`
	Port          int           `yaml:"port" mapstructure:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadSize int64         `yaml:"max_upload_size" mapstructure:"max_upload_size"`
	UploadDir     string        `yaml:"upload_dir" mapstructure:"upload_dir"`
}

// RetrievalConfig 切分与检索参数
type RetrievalConfig struct {
	MaxChunkSize         int           `yaml:"max_chunk_size" mapstructure:"max_chunk_size"`
	OverlapSize          int           `yaml:"overlap_size" mapstructure:"overlap_size"`
	DefaultTopK          int           `yaml:"default_top_k" mapstructure:"default_top_k"`
	MaxTopK              int           `yaml:"max_top_k" mapstructure:"max_top_k"`
	DegradeOnUnavailable bool          `yaml:"degrade_on_unavailable" mapstructure:"degrade_on_unavailable"`
	Retry                BackoffConfig `yaml:"retry" mapstructure:"retry"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
	MaxTries   uint          `yaml:"max_tries" mapstructure:"max_tries"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	// Provider: hash | http | openai
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// VectorConfig 向量存储配置
type VectorConfig struct {
	// Backend: auto | memory | milvus
	Backend string       `yaml:"backend" mapstructure:"backend"`
	Milvus  MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus / Zilliz Cloud 配置
type MilvusConfig struct {
	Address            string        `yaml:"address" mapstructure:"address"`
	APIKey             string        `yaml:"api_key" mapstructure:"api_key"`
	User               string        `yaml:"user" mapstructure:"user"`
	Password           string        `yaml:"password" mapstructure:"password"`
	DBName             string        `yaml:"db_name" mapstructure:"db_name"`
	Environment        string        `yaml:"environment" mapstructure:"environment"`
	IndexName          string        `yaml:"index_name" mapstructure:"index_name"`
	Dimension          int           `yaml:"dimension" mapstructure:"dimension"`
	Metric             string        `yaml:"metric" mapstructure:"metric"`
	Timeout            time.Duration `yaml:"timeout" mapstructure:"timeout"`
	IndexType          string        `yaml:"index_type" mapstructure:"index_type"`
	HNSWM              int           `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int           `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	HNSWEf             int           `yaml:"hnsw_ef" mapstructure:"hnsw_ef"`
}

// Missing 返回远端向量库缺失的必填字段
func (c MilvusConfig) Missing() []string {
	var missing []string
	if c.Address == "" {
		missing = append(missing, "address")
	}
	if c.IndexName == "" {
		missing = append(missing, "index_name")
	}
	if c.Dimension <= 0 {
		missing = append(missing, "dimension")
	}
	if c.Metric == "" {
		missing = append(missing, "metric")
	}
	return missing
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置（文档目录，可选）
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置（向量缓存与限流，可选）
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// IngestConfig 批量入库配置
type IngestConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	ProcessedDir string `yaml:"processed_dir" mapstructure:"processed_dir"`
	OwnerID      string `yaml:"owner_id" mapstructure:"owner_id"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	OwnerHeader string          `yaml:"owner_header" mapstructure:"owner_header"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS        CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
