package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/mcpsuite/mcpsuite/internal/platform/errors"
	"github.com/mcpsuite/mcpsuite/internal/services/cache"
)

const defaultKeyLimit = 100

// RedisSummary is the Redis part of the status view. The INFO fields are
// only filled on full probes.
type RedisSummary struct {
	Connected        bool    `json:"connected"`
	TotalKeys        int64   `json:"total_keys"`
	Version          string  `json:"version,omitempty"`
	UptimeDays       int64   `json:"uptime_days,omitempty"`
	UsedMemoryMB     float64 `json:"used_memory_mb,omitempty"`
	ConnectedClients int64   `json:"connected_clients,omitempty"`
	OpsPerSec        int64   `json:"ops_per_sec,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// redisUp pings with a short timeout. A nil client counts as down.
func (s *Server) redisUp(ctx context.Context) bool {
	if s.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err() == nil
}

func (s *Server) redisSummary(ctx context.Context, full bool) RedisSummary {
	if !s.redisUp(ctx) {
		return RedisSummary{}
	}
	size, err := s.rdb.DBSize(ctx).Result()
	if err != nil {
		return RedisSummary{Error: "Failed to get Redis info"}
	}
	out := RedisSummary{Connected: true, TotalKeys: size}
	if !full {
		return out
	}
	raw, err := s.rdb.Info(ctx).Result()
	if err != nil {
		return out
	}
	fields := cache.ParseInfo(raw)
	out.Version = fields["redis_version"]
	out.UptimeDays = infoInt(fields, "uptime_in_days")
	out.UsedMemoryMB = toMB(infoInt(fields, "used_memory"))
	out.ConnectedClients = infoInt(fields, "connected_clients")
	out.OpsPerSec = infoInt(fields, "instantaneous_ops_per_sec")
	return out
}

func infoInt(fields map[string]string, name string) int64 {
	n, _ := strconv.ParseInt(fields[name], 10, 64)
	return n
}

func infoFloat(fields map[string]string, name string) float64 {
	f, _ := strconv.ParseFloat(fields[name], 64)
	return f
}

func toMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}

func (s *Server) requireRedis(ctx context.Context) error {
	if !s.redisUp(ctx) {
		return apperrors.New(apperrors.CodeNotConfigured, "Redis not connected")
	}
	return nil
}

func (s *Server) redisStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if err := s.requireRedis(ctx); err != nil {
		return err
	}
	raw, err := s.rdb.Info(ctx).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConnection, "Failed to get Redis stats: "+err.Error(), err)
	}
	size, err := s.rdb.DBSize(ctx).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConnection, "Failed to get Redis stats: "+err.Error(), err)
	}
	fields := cache.ParseInfo(raw)
	keyspace := map[string]string{}
	for k, v := range fields {
		if strings.HasPrefix(k, "db") {
			if _, err := strconv.Atoi(k[2:]); err == nil {
				keyspace[k] = v
			}
		}
	}
	return c.JSON(fiber.Map{
		"server": fiber.Map{
			"version":        fields["redis_version"],
			"uptime_seconds": infoInt(fields, "uptime_in_seconds"),
			"uptime_days":    infoInt(fields, "uptime_in_days"),
		},
		"memory": fiber.Map{
			"used_memory_mb":             toMB(infoInt(fields, "used_memory")),
			"used_memory_peak_mb":        toMB(infoInt(fields, "used_memory_peak")),
			"memory_fragmentation_ratio": infoFloat(fields, "mem_fragmentation_ratio"),
		},
		"clients": fiber.Map{
			"connected_clients": infoInt(fields, "connected_clients"),
			"blocked_clients":   infoInt(fields, "blocked_clients"),
		},
		"stats": fiber.Map{
			"total_connections_received": infoInt(fields, "total_connections_received"),
			"total_commands_processed":   infoInt(fields, "total_commands_processed"),
			"ops_per_sec":                infoInt(fields, "instantaneous_ops_per_sec"),
			"keyspace_hits":              infoInt(fields, "keyspace_hits"),
			"keyspace_misses":            infoInt(fields, "keyspace_misses"),
		},
		"keyspace":   keyspace,
		"total_keys": size,
	})
}

// KeyInfo is one key in a listing.
type KeyInfo struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	TTL  int64  `json:"ttl"`
}

func (s *Server) redisKeys(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pattern := c.Query("pattern", "*")
	limit := c.QueryInt("limit", defaultKeyLimit)
	if limit <= 0 {
		limit = defaultKeyLimit
	}
	if err := s.requireRedis(ctx); err != nil {
		return err
	}

	keys := []KeyInfo{}
	iter := s.rdb.Scan(ctx, 0, pattern, int64(limit)).Iterator()
	for len(keys) < limit && iter.Next(ctx) {
		key := iter.Val()
		info := KeyInfo{Key: key, Type: "unknown", TTL: -1}
		if typ, err := s.rdb.Type(ctx, key).Result(); err == nil {
			info.Type = typ
		}
		if ttl, err := s.rdb.TTL(ctx, key).Result(); err == nil {
			info.TTL = ttlSeconds(ttl)
		}
		keys = append(keys, info)
	}
	if err := iter.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeConnection, "scan keys: "+err.Error(), err)
	}
	return c.JSON(fiber.Map{
		"keys":    keys,
		"count":   len(keys),
		"pattern": pattern,
		"limited": len(keys) >= limit,
	})
}

// ttlSeconds maps go-redis TTL results back to the Redis convention: -1 for
// no expiry, -2 for a missing key.
func ttlSeconds(ttl time.Duration) int64 {
	if ttl < 0 {
		return int64(ttl)
	}
	return int64(ttl / time.Second)
}

// ZMember is one sorted-set entry.
type ZMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

func (s *Server) redisKey(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key := c.Params("*")
	if key == "" {
		return apperrors.Validation("key is required")
	}
	if err := s.requireRedis(ctx); err != nil {
		return err
	}
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConnection, "exists: "+err.Error(), err)
	}
	if n == 0 {
		return apperrors.NotFound("Key '%s' not found", key)
	}
	typ, err := s.rdb.Type(ctx, key).Result()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConnection, "type: "+err.Error(), err)
	}
	ttl, _ := s.rdb.TTL(ctx, key).Result()

	value, err := s.keyValue(ctx, key, typ)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeConnection, "read "+typ+": "+err.Error(), err)
	}
	return c.JSON(fiber.Map{"key": key, "type": typ, "ttl": ttlSeconds(ttl), "value": value})
}

func (s *Server) keyValue(ctx context.Context, key, typ string) (any, error) {
	switch typ {
	case "string":
		raw, err := s.rdb.Get(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		var decoded any
		if json.Unmarshal([]byte(raw), &decoded) == nil {
			return decoded, nil
		}
		return raw, nil
	case "list":
		return s.rdb.LRange(ctx, key, 0, -1).Result()
	case "set":
		return s.rdb.SMembers(ctx, key).Result()
	case "hash":
		return s.rdb.HGetAll(ctx, key).Result()
	case "zset":
		zs, err := s.rdb.ZRangeWithScores(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, err
		}
		out := make([]ZMember, 0, len(zs))
		for _, z := range zs {
			out = append(out, ZMember{Member: toString(z.Member), Score: z.Score})
		}
		return out, nil
	default:
		return "Unsupported type: " + typ, nil
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
