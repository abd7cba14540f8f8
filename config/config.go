package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	VectorDB  VectorDBConfig  `mapstructure:"vectordb"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embed     EmbedConfig     `mapstructure:"embed"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Document  DocumentConfig  `mapstructure:"document"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Compute   ComputeConfig   `mapstructure:"compute"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"` // 服务器主机
	Port int    `mapstructure:"port"` // 服务器端口
}

// StorageConfig 课程材料文件存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type       string `mapstructure:"type"`       // 向量数据库类型：faiss 或 memory
	Path       string `mapstructure:"path"`       // 索引文件路径
	Collection string `mapstructure:"collection"` // 集合名称
	Dim        int    `mapstructure:"dim"`        // 向量维度
	Distance   string `mapstructure:"distance"`   // 距离度量方式：cosine, l2, dot
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider      string  `mapstructure:"provider"`       // 提供商：openai 或 azure
	Model         string  `mapstructure:"model"`          // 模型名称
	APIKey        string  `mapstructure:"api_key"`        // API密钥
	Endpoint      string  `mapstructure:"endpoint"`       // API端点
	AzureEndpoint string  `mapstructure:"azure_endpoint"` // Azure OpenAI端点
	APIVersion    string  `mapstructure:"api_version"`    // Azure API版本
	MaxTokens     int     `mapstructure:"max_tokens"`     // 最大生成token数量
	Temperature   float32 `mapstructure:"temperature"`    // 采样温度
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider      string `mapstructure:"provider"`       // 提供商：openai 或 azure
	Model         string `mapstructure:"model"`          // 模型名称
	APIKey        string `mapstructure:"api_key"`        // API密钥
	Endpoint      string `mapstructure:"endpoint"`       // API端点
	AzureEndpoint string `mapstructure:"azure_endpoint"` // Azure OpenAI端点
	APIVersion    string `mapstructure:"api_version"`    // Azure API版本
	BatchSize     int    `mapstructure:"batch_size"`     // 批处理大小
	Dimensions    int    `mapstructure:"dimensions"`     // 向量维度
}

// CacheConfig 问答缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`   // 是否启用缓存
	Type     string `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string `mapstructure:"address"`  // Redis地址
	Password string `mapstructure:"password"` // Redis密码
	DB       int    `mapstructure:"db"`       // Redis数据库
	TTL      int    `mapstructure:"ttl"`      // 缓存TTL（秒）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`         // 是否启用异步入库
	Type          string `mapstructure:"type"`           // 队列类型
	RedisAddr     string `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string `mapstructure:"redis_password"` // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay"`    // 重试延迟(秒)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // 数据库类型: sqlite
	DSN  string `mapstructure:"dsn"`  // 数据源名称
}

// DocumentConfig 材料处理配置
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`    // 分块token预算
	ChunkOverlap int `mapstructure:"chunk_overlap"` // 分块重叠token数
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"` // 检索返回的片段数量
}

// ComputeConfig 符号计算服务配置
type ComputeConfig struct {
	Enable     bool          `mapstructure:"enable"`      // 是否启用符号计算
	BaseURL    string        `mapstructure:"base_url"`    // 计算服务基础URL
	Timeout    time.Duration `mapstructure:"timeout"`     // 请求超时时间
	MaxRetries int           `mapstructure:"max_retries"` // 最大重试次数
	RetryDelay time.Duration `mapstructure:"retry_delay"` // 重试间隔
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	File       string `mapstructure:"file"`        // 日志文件路径，为空则只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"` // 保留的历史日志文件数
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load 从文件和环境变量加载配置
// .env文件（如果存在）会先载入进程环境
func Load(configPath string) (*Config, error) {
	var config Config

	// .env不存在不是错误
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment variables from .env")
	}

	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
			setDefaults(v)
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err == nil {
				if err := v.WriteConfigAs(configPath); err != nil {
					log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
				}
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	setDefaults(v)

	// 支持环境变量覆盖
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	expandEnvironmentVariables(&config)

	return &config, nil
}

// expandEnvironmentVariables 展开配置中${VAR}形式的环境变量引用
// 密钥和端点不应该直接写进配置文件
func expandEnvironmentVariables(cfg *Config) {
	fields := []*string{
		&cfg.LLM.APIKey,
		&cfg.LLM.AzureEndpoint,
		&cfg.Embed.APIKey,
		&cfg.Embed.AzureEndpoint,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	}

	for _, field := range fields {
		*field = expandEnvRef(*field)
	}
}

// expandEnvRef 将${VAR}替换为环境变量值，非引用形式原样返回
func expandEnvRef(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envVar := value[2 : len(value)-1]
		if envVal := os.Getenv(envVar); envVal != "" {
			return envVal
		}
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "math-tutor")
	v.SetDefault("storage.use_ssl", false)

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "faiss")
	v.SetDefault("vectordb.path", "./vectordb")
	v.SetDefault("vectordb.collection", "math_course_materials")
	v.SetDefault("vectordb.dim", 3072) // text-embedding-3-large维度
	v.SetDefault("vectordb.distance", "cosine")

	// LLM默认配置
	v.SetDefault("llm.provider", "azure")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "${AZURE_OPENAI_API_KEY}")
	v.SetDefault("llm.azure_endpoint", "${AZURE_OPENAI_ENDPOINT}")
	v.SetDefault("llm.api_version", "2024-02-01")
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.temperature", 0.7)

	// Embedding默认配置
	v.SetDefault("embed.provider", "azure")
	v.SetDefault("embed.model", "text-embedding-3-large")
	v.SetDefault("embed.api_key", "${AZURE_OPENAI_API_KEY}")
	v.SetDefault("embed.azure_endpoint", "${AZURE_OPENAI_ENDPOINT}")
	v.SetDefault("embed.api_version", "2024-02-01")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.dimensions", 3072)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 86400) // 24小时

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/tutor.db")

	// 材料处理默认配置
	v.SetDefault("document.chunk_size", 600)
	v.SetDefault("document.chunk_overlap", 100)

	// 检索默认配置
	v.SetDefault("retrieval.top_k", 3)

	// 符号计算服务默认配置
	v.SetDefault("compute.enable", true)
	v.SetDefault("compute.base_url", "http://localhost:8000/api")
	v.SetDefault("compute.timeout", "30s")
	v.SetDefault("compute.max_retries", 3)
	v.SetDefault("compute.retry_delay", "1s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}
