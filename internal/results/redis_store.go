package results

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// RedisStore keeps cells in a Redis hash so several grid processes can share results.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration // 0 keeps cells forever
}

// NewRedisStore creates a new Redis-backed store.
// Returns error if connection fails.
func NewRedisStore(url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.StorageError("parsing redis URL", err)
	}

	client := redis.NewClient(opts)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.StorageError("connecting to redis", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (rs *RedisStore) key() string {
	return rs.prefix + "cells"
}

// Put implements Store. The hash TTL is refreshed on every write.
func (rs *RedisStore) Put(ctx context.Context, cell *Cell) error {
	data, err := json.Marshal(cell)
	if err != nil {
		return errors.InternalError("encoding cell", err)
	}

	pipe := rs.client.Pipeline()
	pipe.HSet(ctx, rs.key(), cell.Key.String(), data)
	if rs.ttl > 0 {
		pipe.Expire(ctx, rs.key(), rs.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.StorageError(fmt.Sprintf("saving cell %s", cell.Key), err)
	}
	return nil
}

// Get implements Store.
func (rs *RedisStore) Get(ctx context.Context, key Key) (*Cell, error) {
	data, err := rs.client.HGet(ctx, rs.key(), key.String()).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.NotFoundError("cell " + key.String())
	}
	if err != nil {
		return nil, errors.StorageError(fmt.Sprintf("loading cell %s", key), err)
	}

	var cell Cell
	if err := json.Unmarshal(data, &cell); err != nil {
		return nil, errors.StorageError(fmt.Sprintf("decoding cell %s", key), err)
	}
	return &cell, nil
}

// All implements Store. Fields that no longer parse are skipped.
func (rs *RedisStore) All(ctx context.Context) ([]*Cell, error) {
	fields, err := rs.client.HGetAll(ctx, rs.key()).Result()
	if err != nil {
		return nil, errors.StorageError("loading cells", err)
	}

	cells := make([]*Cell, 0, len(fields))
	for field, value := range fields {
		if _, err := ParseKey(field); err != nil {
			continue
		}
		var cell Cell
		if err := json.Unmarshal([]byte(value), &cell); err != nil {
			continue
		}
		cells = append(cells, &cell)
	}
	sortCells(cells)
	return cells, nil
}

// Clear deletes every stored cell.
func (rs *RedisStore) Clear(ctx context.Context) error {
	if err := rs.client.Del(ctx, rs.key()).Err(); err != nil {
		return errors.StorageError("deleting cells", err)
	}
	return nil
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
