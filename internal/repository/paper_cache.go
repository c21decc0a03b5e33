package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"school_lms_backend/internal/model"

	"github.com/go-redis/redis/v8"
)

// PaperCache 缓存测评题目（含正确答案，仅供服务端使用）。
// Client 为 nil 时所有操作为空操作。
type PaperCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewPaperCache(client *redis.Client, ttl time.Duration) *PaperCache {
	return &PaperCache{Client: client, TTL: ttl}
}

func paperKey(assessmentID uint) string {
	return fmt.Sprintf("lms:paper:%d", assessmentID)
}

// Get 命中返回 true
func (c *PaperCache) Get(ctx context.Context, assessmentID uint) ([]model.Question, bool, error) {
	if c == nil || c.Client == nil {
		return nil, false, nil
	}
	raw, err := c.Client.Get(ctx, paperKey(assessmentID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var qs []model.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false, err
	}
	return qs, true, nil
}

func (c *PaperCache) Set(ctx context.Context, assessmentID uint, qs []model.Question) error {
	if c == nil || c.Client == nil {
		return nil
	}
	raw, err := json.Marshal(qs)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, paperKey(assessmentID), raw, c.TTL).Err()
}

func (c *PaperCache) Invalidate(ctx context.Context, assessmentID uint) error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, paperKey(assessmentID)).Err()
}
