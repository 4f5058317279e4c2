package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTableStore keeps each table as a hash from state hash to the JSON
// encoded action values
type RedisTableStore struct {
	client *redis.Client
	prefix string
}

var _ TableStore = &RedisTableStore{}

func NewRedisTableStore(client *redis.Client, prefix string) *RedisTableStore {
	if prefix == "" {
		prefix = "crm:qtable:"
	}
	return &RedisTableStore{client: client, prefix: prefix}
}

func (r *RedisTableStore) SaveTable(ctx context.Context, name string, table map[string][]float64) error {
	key := r.prefix + name
	fields := make(map[string]interface{}, len(table))
	for state, row := range table {
		bs, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fields[state] = string(bs)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		return nil
	})
	return err
}

func (r *RedisTableStore) LoadTable(ctx context.Context, name string) (map[string][]float64, error) {
	fields, err := r.client.HGetAll(ctx, r.prefix+name).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("table %s: %w", name, ErrNotFound)
	}
	table := make(map[string][]float64, len(fields))
	for state, val := range fields {
		var row []float64
		if err := json.Unmarshal([]byte(val), &row); err != nil {
			return nil, fmt.Errorf("decoding row %s: %w", state, err)
		}
		table[state] = row
	}
	return table, nil
}

// Close the underlying client
func (r *RedisTableStore) Close() error {
	return r.client.Close()
}
