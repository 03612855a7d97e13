package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

const defaultFailedBlockTTL = 24 * time.Hour

// FailedBlockRepo implements FailedBlockRepository using Redis.
// Records expire after the TTL; the sorted set is pruned on read and by
// DeleteOlderThan.
type FailedBlockRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFailedBlockRepo creates a new Redis-backed failed block repository.
func NewFailedBlockRepo(client *Client, ttl time.Duration) *FailedBlockRepo {
	if ttl <= 0 {
		ttl = defaultFailedBlockTTL
	}
	return &FailedBlockRepo{
		rdb: client.rdb,
		ttl: ttl,
	}
}

const queuePrefix = "failed_blocks:"

// Key helpers
func queueKey(channel string) string {
	return queuePrefix + channel
}

// score is the sorted-set score for t.
func score(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func blockKey(channel, id string) string {
	return fmt.Sprintf("failed_block:%s:%s", channel, id)
}

// Add stores a failed block and indexes it by creation time.
func (r *FailedBlockRepo) Add(ctx context.Context, fb *domain.FailedBlock) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to marshal failed block: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, blockKey(fb.Channel, fb.ID), data, r.ttl)
	pipe.ZAdd(ctx, queueKey(fb.Channel), redis.Z{
		Score:  float64(fb.CreatedAt.UnixNano()),
		Member: fb.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add failed block: %w", err)
	}
	return nil
}

// GetAll retrieves failed blocks, newest first.
func (r *FailedBlockRepo) GetAll(ctx context.Context, channel string, limit int) ([]*domain.FailedBlock, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.rdb.ZRevRange(ctx, queueKey(channel), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	blocks := make([]*domain.FailedBlock, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, blockKey(channel, id)).Bytes()
		if err == redis.Nil {
			// Data expired but ID still in queue, remove it
			r.rdb.ZRem(ctx, queueKey(channel), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get failed block: %w", err)
		}

		var fb domain.FailedBlock
		if err := json.Unmarshal(data, &fb); err != nil {
			continue
		}
		blocks = append(blocks, &fb)
	}

	return blocks, nil
}

// Count returns the count of failed blocks whose record has not expired.
func (r *FailedBlockRepo) Count(ctx context.Context, channel string) (int, error) {
	key := queueKey(channel)
	cutoff := time.Now().Add(-r.ttl)
	if err := r.rdb.ZRemRangeByScore(ctx, key, "-inf", "("+score(cutoff)).Err(); err != nil {
		return 0, fmt.Errorf("zremrangebyscore failed: %w", err)
	}
	count, err := r.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}

// DeleteOlderThan removes failed blocks created before the given time on
// every channel.
func (r *FailedBlockRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	iter := r.rdb.Scan(ctx, 0, queuePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		channel := strings.TrimPrefix(key, queuePrefix)
		upper := "(" + score(before)

		ids, err := r.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
		if err != nil {
			return removed, fmt.Errorf("zrangebyscore failed: %w", err)
		}
		if len(ids) == 0 {
			continue
		}

		pipe := r.rdb.TxPipeline()
		for _, id := range ids {
			pipe.Del(ctx, blockKey(channel, id))
		}
		rem := pipe.ZRemRangeByScore(ctx, key, "-inf", upper)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("failed to delete failed blocks: %w", err)
		}
		removed += rem.Val()
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan failed: %w", err)
	}
	return removed, nil
}
