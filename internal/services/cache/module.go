package cache

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsuite/mcpsuite/internal/platform/config"
	"github.com/mcpsuite/mcpsuite/internal/platform/logging"
	"github.com/mcpsuite/mcpsuite/internal/platform/storage/redisconn"
	"github.com/mcpsuite/mcpsuite/internal/services/mcp/domain"
)

// Module connects to Redis from REDIS_* variables. An unreachable server
// is logged at startup; tools report connection errors until it is back.
func Module(ctx context.Context, _ domain.Deps) domain.Module {
	var cfg redisconn.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return domain.Module{Name: "Memory Cache", ConfigErr: err}
	}
	rdb, err := redisconn.Open(ctx, cfg)
	module := NewModule(New(rdb))
	module.ConfigErr = err
	module.Settings = []logging.Setting{
		{Key: "Redis Address", Value: cfg.Address()},
		{Key: "Redis DB", Value: cfg.DB},
		{Key: "Redis Password", Value: cfg.Password},
	}
	return module
}

// NewModule exposes c as MCP tools.
func NewModule(c *Cache) domain.Module {
	return domain.Module{
		Name: "Memory Cache",
		Tools: []domain.ToolRegistration{
			domain.Tool(&mcp.Tool{Name: "cache_set", Description: "Set a value with an optional TTL in seconds"}, setHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_get", Description: "Get a value; JSON values are decoded"}, getHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_delete", Description: "Delete keys given as a comma separated list or JSON array"}, deleteHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_exists", Description: "Count how many of the given keys exist"}, existsHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_expire", Description: "Set a key's expiration in seconds"}, expireHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_ttl", Description: "Get a key's remaining time to live (-1 no expiry, -2 missing)"}, ttlHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_keys", Description: "List keys matching a glob pattern (at most 1000); prefer cache_scan on large databases"}, keysHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_scan", Description: "Incrementally scan keys; pass the returned cursor until it is 0"}, scanHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_mget", Description: "Get several values at once"}, mgetHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_mset", Description: "Set several key/value pairs from a JSON object"}, msetHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_incr", Description: "Increment an integer value"}, incrHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_decr", Description: "Decrement an integer value"}, decrHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_flush", Description: "Delete every key in the current database"}, flushHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_info", Description: "Get Redis version, memory, clients and hit rate"}, infoHandler(c)),
			domain.Tool(&mcp.Tool{Name: "cache_ping", Description: "Check the Redis connection"}, pingHandler(c)),
		},
		Health: func(ctx context.Context) error {
			_, err := c.Ping(ctx)
			return err
		},
		Close: c.Close,
	}
}

// KeyInput names one key.
type KeyInput struct {
	Key string `json:"key" jsonschema:"cache key"`
}

// KeysInput names several keys.
type KeysInput struct {
	Keys string `json:"keys" jsonschema:"comma separated keys or a JSON array of keys"`
}

// SetInput is the cache_set input.
type SetInput struct {
	Key   string `json:"key" jsonschema:"cache key"`
	Value string `json:"value" jsonschema:"value to store, plain text or JSON"`
	TTL   int    `json:"ttl,omitempty" jsonschema:"time to live in seconds"`
}

// SetResult is the cache_set output.
type SetResult struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	TTL     int    `json:"ttl,omitempty"`
}

func setHandler(c *Cache) mcp.ToolHandlerFor[SetInput, SetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SetInput) (*mcp.CallToolResult, SetResult, error) {
		if err := c.Set(ctx, in.Key, in.Value, in.TTL); err != nil {
			return nil, SetResult{}, err
		}
		return nil, SetResult{Success: true, Key: in.Key, TTL: in.TTL}, nil
	}
}

// GetResult is the cache_get output.
type GetResult struct {
	Key   string `json:"key"`
	Found bool   `json:"found"`
	Value any    `json:"value"`
}

func getHandler(c *Cache) mcp.ToolHandlerFor[KeyInput, GetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in KeyInput) (*mcp.CallToolResult, GetResult, error) {
		value, found, err := c.Get(ctx, in.Key)
		if err != nil {
			return nil, GetResult{}, err
		}
		return nil, GetResult{Key: in.Key, Found: found, Value: value}, nil
	}
}

// CountResult reports how many keys were affected.
type CountResult struct {
	Count int64 `json:"count"`
	Total int   `json:"total"`
}

func deleteHandler(c *Cache) mcp.ToolHandlerFor[KeysInput, CountResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in KeysInput) (*mcp.CallToolResult, CountResult, error) {
		keys, err := ParseKeys(in.Keys)
		if err != nil {
			return nil, CountResult{}, err
		}
		n, err := c.Delete(ctx, keys)
		if err != nil {
			return nil, CountResult{}, err
		}
		return nil, CountResult{Count: n, Total: len(keys)}, nil
	}
}

func existsHandler(c *Cache) mcp.ToolHandlerFor[KeysInput, CountResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in KeysInput) (*mcp.CallToolResult, CountResult, error) {
		keys, err := ParseKeys(in.Keys)
		if err != nil {
			return nil, CountResult{}, err
		}
		n, err := c.Exists(ctx, keys)
		if err != nil {
			return nil, CountResult{}, err
		}
		return nil, CountResult{Count: n, Total: len(keys)}, nil
	}
}

// ExpireInput is the cache_expire input.
type ExpireInput struct {
	Key     string `json:"key" jsonschema:"cache key"`
	Seconds int    `json:"seconds" jsonschema:"expiration in seconds"`
}

// ExpireResult is the cache_expire output.
type ExpireResult struct {
	Success bool   `json:"success"`
	Key     string `json:"key"`
	TTL     int    `json:"ttl"`
}

func expireHandler(c *Cache) mcp.ToolHandlerFor[ExpireInput, ExpireResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ExpireInput) (*mcp.CallToolResult, ExpireResult, error) {
		ok, err := c.Expire(ctx, in.Key, in.Seconds)
		if err != nil {
			return nil, ExpireResult{}, err
		}
		return nil, ExpireResult{Success: ok, Key: in.Key, TTL: in.Seconds}, nil
	}
}

// TTLResult is the cache_ttl output.
type TTLResult struct {
	Key    string `json:"key"`
	TTL    int64  `json:"ttl"`
	Status string `json:"status"`
}

func ttlHandler(c *Cache) mcp.ToolHandlerFor[KeyInput, TTLResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in KeyInput) (*mcp.CallToolResult, TTLResult, error) {
		ttl, err := c.TTL(ctx, in.Key)
		if err != nil {
			return nil, TTLResult{}, err
		}
		return nil, TTLResult{Key: in.Key, TTL: ttl, Status: TTLStatus(ttl)}, nil
	}
}

// KeysPatternInput is the cache_keys input.
type KeysPatternInput struct {
	Pattern string `json:"pattern,omitempty" jsonschema:"glob pattern (default *)"`
}

// KeysResult is the cache_keys output.
type KeysResult struct {
	Pattern   string   `json:"pattern"`
	Count     int      `json:"count"`
	Truncated bool     `json:"truncated"`
	Keys      []string `json:"keys"`
}

func keysHandler(c *Cache) mcp.ToolHandlerFor[KeysPatternInput, KeysResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in KeysPatternInput) (*mcp.CallToolResult, KeysResult, error) {
		pattern := in.Pattern
		if pattern == "" {
			pattern = "*"
		}
		keys, truncated, err := c.Keys(ctx, pattern)
		if err != nil {
			return nil, KeysResult{}, err
		}
		if keys == nil {
			keys = []string{}
		}
		return nil, KeysResult{Pattern: pattern, Count: len(keys), Truncated: truncated, Keys: keys}, nil
	}
}

// ScanInput is the cache_scan input.
type ScanInput struct {
	Cursor uint64 `json:"cursor,omitempty" jsonschema:"cursor from the previous call (0 starts a scan)"`
	Match  string `json:"match,omitempty" jsonschema:"glob pattern"`
	Count  int64  `json:"count,omitempty" jsonschema:"approximate keys per call (default 10)"`
}

// ScanResult is the cache_scan output.
type ScanResult struct {
	Cursor uint64   `json:"cursor"`
	Keys   []string `json:"keys"`
	Count  int      `json:"count"`
}

func scanHandler(c *Cache) mcp.ToolHandlerFor[ScanInput, ScanResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ScanInput) (*mcp.CallToolResult, ScanResult, error) {
		count := in.Count
		if count == 0 {
			count = 10
		}
		keys, next, err := c.Scan(ctx, in.Cursor, in.Match, count)
		if err != nil {
			return nil, ScanResult{}, err
		}
		if keys == nil {
			keys = []string{}
		}
		return nil, ScanResult{Cursor: next, Keys: keys, Count: len(keys)}, nil
	}
}

// MGetResult is the cache_mget output.
type MGetResult struct {
	Values map[string]any `json:"values"`
	Found  int            `json:"found"`
}

func mgetHandler(c *Cache) mcp.ToolHandlerFor[KeysInput, MGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in KeysInput) (*mcp.CallToolResult, MGetResult, error) {
		keys, err := ParseKeys(in.Keys)
		if err != nil {
			return nil, MGetResult{}, err
		}
		values, err := c.MGet(ctx, keys)
		if err != nil {
			return nil, MGetResult{}, err
		}
		out := MGetResult{Values: values}
		for _, v := range values {
			if v != nil {
				out.Found++
			}
		}
		return nil, out, nil
	}
}

// MSetInput is the cache_mset input.
type MSetInput struct {
	Data string `json:"data" jsonschema:"JSON object of key/value pairs"`
}

// MSetResult is the cache_mset output.
type MSetResult struct {
	Success bool `json:"success"`
	KeysSet int  `json:"keys_set"`
}

func msetHandler(c *Cache) mcp.ToolHandlerFor[MSetInput, MSetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in MSetInput) (*mcp.CallToolResult, MSetResult, error) {
		var data map[string]any
		if err := domain.DecodeJSONArg("data", in.Data, &data); err != nil {
			return nil, MSetResult{}, err
		}
		n, err := c.MSet(ctx, data)
		if err != nil {
			return nil, MSetResult{}, err
		}
		return nil, MSetResult{Success: true, KeysSet: n}, nil
	}
}

// CounterInput is the cache_incr and cache_decr input.
type CounterInput struct {
	Key    string `json:"key" jsonschema:"cache key"`
	Amount int64  `json:"amount,omitempty" jsonschema:"step (default 1)"`
}

// CounterResult is the new counter value.
type CounterResult struct {
	Key    string `json:"key"`
	Value  int64  `json:"value"`
	Amount int64  `json:"amount"`
}

func incrHandler(c *Cache) mcp.ToolHandlerFor[CounterInput, CounterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in CounterInput) (*mcp.CallToolResult, CounterResult, error) {
		amount := in.Amount
		if amount == 0 {
			amount = 1
		}
		n, err := c.IncrBy(ctx, in.Key, amount)
		if err != nil {
			return nil, CounterResult{}, err
		}
		return nil, CounterResult{Key: in.Key, Value: n, Amount: amount}, nil
	}
}

func decrHandler(c *Cache) mcp.ToolHandlerFor[CounterInput, CounterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in CounterInput) (*mcp.CallToolResult, CounterResult, error) {
		amount := in.Amount
		if amount == 0 {
			amount = 1
		}
		n, err := c.DecrBy(ctx, in.Key, amount)
		if err != nil {
			return nil, CounterResult{}, err
		}
		return nil, CounterResult{Key: in.Key, Value: n, Amount: amount}, nil
	}
}

// FlushResult is the cache_flush output.
type FlushResult struct {
	Success bool   `json:"success"`
	Warning string `json:"warning"`
}

func flushHandler(c *Cache) mcp.ToolHandlerFor[struct{}, FlushResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, FlushResult, error) {
		if err := c.Flush(ctx); err != nil {
			return nil, FlushResult{}, err
		}
		return nil, FlushResult{Success: true, Warning: "all keys in the current database were deleted"}, nil
	}
}

func infoHandler(c *Cache) mcp.ToolHandlerFor[struct{}, Info] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, Info, error) {
		out, err := c.Info(ctx)
		return nil, out, err
	}
}

// PingResult is the cache_ping output.
type PingResult struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	LatencyMS float64 `json:"latency_ms"`
}

func pingHandler(c *Cache) mcp.ToolHandlerFor[struct{}, PingResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, PingResult, error) {
		latency, err := c.Ping(ctx)
		if err != nil {
			return nil, PingResult{}, err
		}
		return nil, PingResult{
			Success:   true,
			Message:   "PONG",
			LatencyMS: float64(latency.Microseconds()) / 1000,
		}, nil
	}
}
