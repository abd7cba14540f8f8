package cache

import (
	"strings"
	"time"
)

// Cache 问答缓存接口
// 辅导服务用它记住已经回答过的问题，避免对相同问题重复调用LLM
type Cache interface {
	// Get 读取缓存，键不存在时found为false且不报错
	Get(key string) (value string, found bool, err error)

	// Set 写入缓存，ttl为0时使用实现的默认过期时间
	Set(key string, value string, ttl time.Duration) error

	// Delete 删除单个缓存项
	Delete(key string) error

	// Clear 清空本应用的全部缓存项
	Clear() error
}

// Config 缓存配置
type Config struct {
	Type            string        // 缓存类型: "memory"或"redis"
	RedisAddr       string        // Redis地址（redis类型使用）
	RedisPassword   string        // Redis密码
	RedisDB         int           // Redis数据库编号
	DefaultTTL      time.Duration // 默认过期时间
	CleanupInterval time.Duration // 过期项清理间隔（memory类型使用）
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Type:            "memory",
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Factory 缓存工厂函数类型
type Factory func(config Config) (Cache, error)

var backends = make(map[string]Factory)

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	backends[name] = factory
}

// NewCache 按配置类型创建缓存实例，未知类型回退到内存缓存
func NewCache(config Config) (Cache, error) {
	if factory, ok := backends[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryCache(config)
}

// GenerateCacheKey 拼接标准化的缓存键，段之间以冒号分隔
func GenerateCacheKey(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}
