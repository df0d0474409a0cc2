package shared

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type CacheConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	DB       int
}

type CacheClient struct {
	CacheConfig *CacheConfig
	Ctx         context.Context
	rdClient    *redis.Client
}

func NewCacheClient(config *CacheConfig) *CacheClient {
	return &CacheClient{
		CacheConfig: config,
		Ctx:         context.Background(),
	}
}

// Connect to the Redis server
// Return error if connection failed
func (c *CacheClient) Connect() error {
	c.rdClient = redis.NewClient(&redis.Options{
		Addr:     c.CacheConfig.Host + ":" + c.CacheConfig.Port,
		Username: c.CacheConfig.Username,
		Password: c.CacheConfig.Password,
		DB:       c.CacheConfig.DB,
	})

	_, err := c.rdClient.Ping(c.Ctx).Result()
	if err != nil {
		return err
	}

	return nil
}

func (c *CacheClient) Close() {
	c.rdClient.Close()
}

// Get the value of key. Returns redis.Nil error when the key does not exist.
func (c *CacheClient) Get(key string) (string, error) {
	return c.rdClient.Get(c.Ctx, key).Result()
}

// Set key to hold the string value, overwriting any previous value and TTL.
func (c *CacheClient) Set(key string, value interface{}, ttl time.Duration) error {
	return c.rdClient.Set(c.Ctx, key, value, ttl).Err()
}

// Del removes keys. Missing keys are ignored.
func (c *CacheClient) Del(keys ...string) error {
	return c.rdClient.Del(c.Ctx, keys...).Err()
}

// IsCacheMiss reports whether the error from Get means "no such key".
func IsCacheMiss(err error) bool {
	return err == redis.Nil
}
