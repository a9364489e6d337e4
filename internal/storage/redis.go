package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ StateStore = (*Redis)(nil)

const scanBatch = 500

// Redis implements CheckpointStore on top of Redis keys. Checkpoints are
// plain string keys and dedup records are SETNX keys without expiry, so a
// record once written is never evicted by the store itself.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection with a PING.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, prefix: "feedalert"}, nil
}

func (r *Redis) checkpointKey(sourceID int64) string {
	return fmt.Sprintf("%s:checkpoint:%d", r.prefix, sourceID)
}

func (r *Redis) seenKey(sourceID int64, key string) string {
	return fmt.Sprintf("%s:seen:%d:%s", r.prefix, sourceID, key)
}

// GetCheckpoint returns the checkpoint key stored for a source.
func (r *Redis) GetCheckpoint(ctx context.Context, sourceID int64) (string, bool, error) {
	v, err := r.client.Get(ctx, r.checkpointKey(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get checkpoint: %w", err)
	}
	return v, true, nil
}

// SetCheckpoint overwrites the checkpoint of a source.
func (r *Redis) SetCheckpoint(ctx context.Context, sourceID int64, key string) error {
	if err := r.client.Set(ctx, r.checkpointKey(sourceID), key, 0).Err(); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

// HasSeen checks whether an item has already been processed.
func (r *Redis) HasSeen(ctx context.Context, sourceID int64, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.seenKey(sourceID, key)).Result()
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records that an item has been processed. The stored value is the
// item title and the time it was first seen.
func (r *Redis) MarkSeen(ctx context.Context, sourceID int64, key, title string) (bool, error) {
	value := time.Now().UTC().Format(timeLayout) + " " + title
	created, err := r.client.SetNX(ctx, r.seenKey(sourceID, key), value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	return created, nil
}

// DeleteSourceState removes the checkpoint and every dedup record of a source.
func (r *Redis) DeleteSourceState(ctx context.Context, sourceID int64) error {
	pattern := fmt.Sprintf("%s:seen:%d:*", r.prefix, sourceID)
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	keys := []string{r.checkpointKey(sourceID)}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= scanBatch {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete source state: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan seen keys: %w", err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete source state: %w", err)
		}
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
