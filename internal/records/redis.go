package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"docverify/internal/docverify"
)

// DefaultRedisKey is the Redis hash holding all records.
const DefaultRedisKey = "docverify:records"

// maxMutateRetries bounds how often Mutate retries after a WATCH conflict.
const maxMutateRetries = 10

// RedisRepository stores the mapping in one Redis hash: field = record key,
// value = record JSON. Mutate uses WATCH/MULTI so concurrent writers retry
// instead of overwriting each other.
type RedisRepository struct {
	client *redis.Client
	key    string
	logger docverify.Logger
}

var _ docverify.RecordRepository = (*RedisRepository)(nil)

// NewRedisRepository creates a repository over an existing client. The client
// lifecycle is managed by the caller.
func NewRedisRepository(client *redis.Client, key string, logger docverify.Logger) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRepository{client: client, key: key, logger: logger}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (r *RedisRepository) Read(ctx context.Context) (map[string]*docverify.DocumentRecord, error) {
	return r.read(ctx, r.client)
}

func (r *RedisRepository) read(ctx context.Context, c redis.Cmdable) (map[string]*docverify.DocumentRecord, error) {
	fields, err := c.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	records := make(map[string]*docverify.DocumentRecord, len(fields))
	for key, value := range fields {
		rec, err := docverify.DecodeRecord([]byte(value))
		if err != nil {
			r.logger.Warn("undecodable record fields", "key", key, "error", err)
		}
		records[key] = rec
	}
	return records, nil
}

func (r *RedisRepository) Write(ctx context.Context, records map[string]*docverify.DocumentRecord) error {
	values, err := encodeFields(records)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.replace(ctx, pipe, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	return nil
}

func (r *RedisRepository) Mutate(ctx context.Context, fn docverify.MutateFunc) error {
	var fnErr error
	txf := func(tx *redis.Tx) error {
		records, err := r.read(ctx, tx)
		if err != nil {
			return err
		}
		changed, err := fn(records)
		if err != nil {
			fnErr = err
			return err
		}
		if !changed {
			return nil
		}
		values, err := encodeFields(records)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.replace(ctx, pipe, values)
			return nil
		})
		return err
	}

	for range maxMutateRetries {
		err := r.client.Watch(ctx, txf, r.key)
		if err == nil {
			return nil
		}
		if fnErr != nil {
			return fnErr
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("mutating records: %w", err)
		}
		r.logger.Debug("records changed concurrently, retrying")
	}
	return fmt.Errorf("mutating records: %w", redis.TxFailedErr)
}

func (r *RedisRepository) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", docverify.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *RedisRepository) replace(ctx context.Context, pipe redis.Pipeliner, values map[string]any) {
	pipe.Del(ctx, r.key)
	if len(values) > 0 {
		pipe.HSet(ctx, r.key, values)
	}
}

func encodeFields(records map[string]*docverify.DocumentRecord) (map[string]any, error) {
	values := make(map[string]any, len(records))
	for key, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encoding record %s: %w", key, err)
		}
		values[key] = string(data)
	}
	return values, nil
}
