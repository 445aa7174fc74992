// Package cache implements the Redis-backed memory cache MCP server.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
)

const (
	maxKeyBytes = 512
	maxKeys     = 1000
)

// Cache wraps a Redis client with key validation and JSON value handling.
type Cache struct {
	rdb *redis.Client
}

// New wraps rdb.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// ValidateKey rejects empty keys and keys over 512 bytes.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return apperrors.Validation("key is required")
	}
	if len(key) > maxKeyBytes {
		return apperrors.Validation("key is %d bytes; the limit is %d", len(key), maxKeyBytes)
	}
	return nil
}

// ParseKeys accepts a JSON array or a comma separated list.
func ParseKeys(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	var keys []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeJSON, "invalid JSON key list: "+err.Error(), err)
		}
	} else {
		keys = splitKeys(raw)
	}
	if len(keys) == 0 {
		return nil, apperrors.Validation("keys must not be empty")
	}
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func splitKeys(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// decodeValue returns the JSON value stored under a key, or the raw string
// when it is not JSON.
func decodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// encodeValue stores strings as-is and everything else as JSON.
func encodeValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeJSON, "encode value: "+err.Error(), err)
	}
	return string(data), nil
}

func redisError(op string, err error) error {
	if err == nil {
		return nil
	}
	// Replies such as "ERR value is not an integer" are caller mistakes.
	var reply redis.Error
	if errors.As(err, &reply) {
		return apperrors.Wrap(apperrors.CodeValidation, op+": "+err.Error(), err)
	}
	return apperrors.Wrap(apperrors.CodeOf(err), op+": "+err.Error(), err)
}

// Set stores value under key with an optional TTL in seconds.
func (c *Cache) Set(ctx context.Context, key, value string, ttlSeconds int) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttlSeconds < 0 {
		return apperrors.Validation("ttl must be positive, got %d", ttlSeconds)
	}
	return redisError("set "+key, c.rdb.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err())
}

// Get returns the value under key. found is false for a missing key.
func (c *Cache) Get(ctx context.Context, key string) (any, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, redisError("get "+key, err)
	}
	return decodeValue(raw), true, nil
}

// Delete removes keys and reports how many existed.
func (c *Cache) Delete(ctx context.Context, keys []string) (int64, error) {
	n, err := c.rdb.Del(ctx, keys...).Result()
	return n, redisError("delete", err)
}

// Exists counts how many keys exist.
func (c *Cache) Exists(ctx context.Context, keys []string) (int64, error) {
	n, err := c.rdb.Exists(ctx, keys...).Result()
	return n, redisError("exists", err)
}

// Expire sets a TTL on key. It reports false for a missing key.
func (c *Cache) Expire(ctx context.Context, key string, seconds int) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if seconds <= 0 {
		return false, apperrors.Validation("seconds must be positive, got %d", seconds)
	}
	ok, err := c.rdb.Expire(ctx, key, time.Duration(seconds)*time.Second).Result()
	return ok, redisError("expire "+key, err)
}

// TTL returns the remaining seconds: -1 without expiry and -2 for a
// missing key.
func (c *Cache) TTL(ctx context.Context, key string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, redisError("ttl "+key, err)
	}
	if d < 0 {
		return int64(d), nil
	}
	return int64(d / time.Second), nil
}

// TTLStatus names a TTL value.
func TTLStatus(ttl int64) string {
	switch ttl {
	case -1:
		return "no_expiration"
	case -2:
		return "not_found"
	default:
		return "active"
	}
}

// Keys lists keys matching pattern, capped at 1000.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, bool, error) {
	if pattern == "" {
		pattern = "*"
	}
	keys, err := c.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, false, redisError("keys", err)
	}
	if len(keys) > maxKeys {
		return keys[:maxKeys], true, nil
	}
	return keys, false, nil
}

// Scan runs one SCAN step.
func (c *Cache) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if count <= 0 {
		return nil, 0, apperrors.Validation("count must be positive, got %d", count)
	}
	keys, next, err := c.rdb.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return nil, 0, redisError("scan", err)
	}
	return keys, next, nil
}

// MGet maps every key to its value, or nil when missing.
func (c *Cache) MGet(ctx context.Context, keys []string) (map[string]any, error) {
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, redisError("mget", err)
	}
	out := make(map[string]any, len(keys))
	for i, key := range keys {
		if s, ok := values[i].(string); ok {
			out[key] = decodeValue(s)
		} else {
			out[key] = nil
		}
	}
	return out, nil
}

// MSet stores every pair of a JSON object. Non-string values are stored as
// JSON.
func (c *Cache) MSet(ctx context.Context, data map[string]any) (int, error) {
	if len(data) == 0 {
		return 0, apperrors.Validation("data must not be empty")
	}
	pairs := make([]any, 0, len(data)*2)
	for key, value := range data {
		if err := ValidateKey(key); err != nil {
			return 0, err
		}
		encoded, err := encodeValue(value)
		if err != nil {
			return 0, err
		}
		pairs = append(pairs, key, encoded)
	}
	if err := c.rdb.MSet(ctx, pairs...).Err(); err != nil {
		return 0, redisError("mset", err)
	}
	return len(data), nil
}

// IncrBy adds amount to the integer at key.
func (c *Cache) IncrBy(ctx context.Context, key string, amount int64) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, apperrors.Validation("amount must not be zero")
	}
	n, err := c.rdb.IncrBy(ctx, key, amount).Result()
	return n, redisError("incr "+key, err)
}

// DecrBy subtracts amount from the integer at key.
func (c *Cache) DecrBy(ctx context.Context, key string, amount int64) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, apperrors.Validation("amount must be positive, got %d", amount)
	}
	n, err := c.rdb.DecrBy(ctx, key, amount).Result()
	return n, redisError("decr "+key, err)
}

// Flush deletes every key in the current database.
func (c *Cache) Flush(ctx context.Context) error {
	return redisError("flushdb", c.rdb.FlushDB(ctx).Err())
}

// Info summarizes the server.
type Info struct {
	Version                string  `json:"version"`
	UptimeSeconds          int64   `json:"uptime_seconds"`
	UptimeDays             int64   `json:"uptime_days"`
	ConnectedClients       int64   `json:"connected_clients"`
	UsedMemory             int64   `json:"used_memory"`
	UsedMemoryHuman        string  `json:"used_memory_human"`
	TotalCommandsProcessed int64   `json:"total_commands_processed"`
	KeyspaceHits           int64   `json:"keyspace_hits"`
	KeyspaceMisses         int64   `json:"keyspace_misses"`
	HitRate                float64 `json:"hit_rate"`
	Keys                   int64   `json:"keys"`
}

// Info reads INFO and DBSIZE.
func (c *Cache) Info(ctx context.Context) (Info, error) {
	raw, err := c.rdb.Info(ctx).Result()
	if err != nil {
		return Info{}, redisError("info", err)
	}
	size, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return Info{}, redisError("dbsize", err)
	}
	fields := ParseInfo(raw)
	num := func(name string) int64 {
		n, _ := strconv.ParseInt(fields[name], 10, 64)
		return n
	}
	out := Info{
		Version:                fields["redis_version"],
		UptimeSeconds:          num("uptime_in_seconds"),
		UptimeDays:             num("uptime_in_days"),
		ConnectedClients:       num("connected_clients"),
		UsedMemory:             num("used_memory"),
		UsedMemoryHuman:        fields["used_memory_human"],
		TotalCommandsProcessed: num("total_commands_processed"),
		KeyspaceHits:           num("keyspace_hits"),
		KeyspaceMisses:         num("keyspace_misses"),
		Keys:                   size,
	}
	if total := out.KeyspaceHits + out.KeyspaceMisses; total > 0 {
		out.HitRate = float64(out.KeyspaceHits) / float64(total) * 100
	}
	return out, nil
}

// ParseInfo turns INFO output into a field map. Section headers and blank
// lines are skipped.
func ParseInfo(raw string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

// Ping measures a round trip.
func (c *Cache) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return 0, redisError("ping", err)
	}
	return time.Since(start), nil
}

// Close closes the client.
func (c *Cache) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
