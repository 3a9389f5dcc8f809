package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"webdir/internal/bubbling/models"
	id "webdir/pkg/domain"
)

const viewKeyPrefix = "bubble:view:"

// RedisCache shares bubbled views across instances as JSON with a TTL.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func viewKey(categoryID id.CategoryID) string {
	return viewKeyPrefix + categoryID.String()
}

func (c *RedisCache) Get(ctx context.Context, categoryID id.CategoryID) (*models.CategoryView, bool, error) {
	raw, err := c.client.Get(ctx, viewKey(categoryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get bubbled view: %w", err)
	}
	var view models.CategoryView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false, fmt.Errorf("decode bubbled view: %w", err)
	}
	return &view, true, nil
}

func (c *RedisCache) Set(ctx context.Context, view *models.CategoryView, ttl time.Duration) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode bubbled view: %w", err)
	}
	if err := c.client.Set(ctx, viewKey(view.CategoryID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set bubbled view: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, categoryID id.CategoryID) error {
	if err := c.client.Del(ctx, viewKey(categoryID)).Err(); err != nil {
		return fmt.Errorf("delete bubbled view: %w", err)
	}
	return nil
}
