package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// 缓存键的命名空间前缀
// 任务队列可能共用同一个Redis实例，清空缓存不能波及其他数据
const redisKeyNamespace = "mathtutor:"

// redisOpTimeout 单次缓存操作的超时时间
const redisOpTimeout = 3 * time.Second

// RedisCache 基于Redis的问答缓存
// 多实例部署时实例间共享缓存内容
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache 创建Redis缓存并验证连通性
func NewRedisCache(config Config) (Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

func (r *RedisCache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

// Get 获取缓存内容，键不存在时found为false
func (r *RedisCache) Get(key string) (string, bool, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	value, err := r.client.Get(ctx, redisKeyNamespace+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set 写入缓存内容
func (r *RedisCache) Set(key string, value string, ttl time.Duration) error {
	ctx, cancel := r.opContext()
	defer cancel()

	return r.client.Set(ctx, redisKeyNamespace+key, value, ttl).Err()
}

// Delete 删除缓存项
func (r *RedisCache) Delete(key string) error {
	ctx, cancel := r.opContext()
	defer cancel()

	return r.client.Del(ctx, redisKeyNamespace+key).Err()
}

// Clear 清空本应用的所有缓存项
// 只扫描命名空间内的键，不影响Redis实例上的其他数据
func (r *RedisCache) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	iter := r.client.Scan(ctx, 0, redisKeyNamespace+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func init() {
	RegisterCache("redis", NewRedisCache)
}
