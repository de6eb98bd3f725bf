package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bess-intraday/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// RedisCache stores VWAP vectors as JSON strings.
type RedisCache struct {
	client *goredis.Client
	prefix string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "vwap:"
}

// NewRedisCache connects and pings the server.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCacheWithClient(client, cfg.Prefix), nil
}

func NewRedisCacheWithClient(client *goredis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "vwap:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

type redisSlot struct {
	Slot  time.Time `json:"slot"`
	Price float64   `json:"price"`
	Valid bool      `json:"valid"`
}

func (r *RedisCache) Get(ctx context.Context, key string) (model.PriceVector, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var slots []redisSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, fmt.Errorf("redis decode: %w", err)
	}
	v := make(model.PriceVector, len(slots))
	for i, s := range slots {
		v[i] = model.SlotPrice{Slot: s.Slot, Price: s.Price, Valid: s.Valid}
	}
	return v, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, v model.PriceVector, ttl time.Duration) error {
	slots := make([]redisSlot, len(v))
	for i, s := range v {
		slots[i] = redisSlot{Slot: s.Slot, Price: s.Price, Valid: s.Valid}
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.client.Close() }
