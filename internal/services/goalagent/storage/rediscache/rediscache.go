// Package rediscache fronts a goal store with a Redis read-through cache.
//
// Goals and tasks are cached by id under goal_agent_cache:{kind}:{id} and
// dropped on every write that touches them. Redis failures are logged and
// the read or write falls through to the underlying store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
)

const (
	keyPrefix = "goal_agent_cache:"
	// DefaultTTL is how long a cached record lives.
	DefaultTTL = time.Hour
)

// Store wraps another store.
type Store struct {
	storage.Store
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// New wraps next. A non-positive ttl uses DefaultTTL.
func New(next storage.Store, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{Store: next, rdb: rdb, ttl: ttl, logger: logger}
}

func goalKey(id string) string { return keyPrefix + "goal:" + id }
func taskKey(id string) string { return keyPrefix + "task:" + id }

// GetGoal reads through the cache.
func (s *Store) GetGoal(ctx context.Context, id string) (storage.Goal, error) {
	goal, _, err := s.GetGoalCached(ctx, id)
	return goal, err
}

// GetGoalCached reads through the cache and reports whether it hit.
func (s *Store) GetGoalCached(ctx context.Context, id string) (storage.Goal, storage.CacheStatus, error) {
	var goal storage.Goal
	if s.load(ctx, goalKey(id), &goal) {
		return goal, storage.CacheHit, nil
	}
	goal, err := s.Store.GetGoal(ctx, id)
	if err != nil {
		return storage.Goal{}, storage.CacheMiss, err
	}
	s.save(ctx, goalKey(id), goal)
	return goal, storage.CacheMiss, nil
}

// GetTask reads through the cache.
func (s *Store) GetTask(ctx context.Context, id string) (storage.Task, error) {
	task, _, err := s.GetTaskCached(ctx, id)
	return task, err
}

// GetTaskCached reads through the cache and reports whether it hit.
func (s *Store) GetTaskCached(ctx context.Context, id string) (storage.Task, storage.CacheStatus, error) {
	var task storage.Task
	if s.load(ctx, taskKey(id), &task) {
		return task, storage.CacheHit, nil
	}
	task, err := s.Store.GetTask(ctx, id)
	if err != nil {
		return storage.Task{}, storage.CacheMiss, err
	}
	s.save(ctx, taskKey(id), task)
	return task, storage.CacheMiss, nil
}

// UpdateGoal writes through and drops the cached goal.
func (s *Store) UpdateGoal(ctx context.Context, goal storage.Goal) error {
	err := s.Store.UpdateGoal(ctx, goal)
	s.drop(ctx, goalKey(goal.ID))
	return err
}

// DeleteGoal deletes the goal and drops it and its tasks from the cache.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	keys := []string{goalKey(id)}
	if tasks, err := s.Store.ListTasks(ctx, storage.TaskFilter{GoalID: id}); err == nil {
		for _, task := range tasks {
			keys = append(keys, taskKey(task.ID))
		}
	}
	err := s.Store.DeleteGoal(ctx, id)
	s.drop(ctx, keys...)
	return err
}

// UpdateTask writes through and drops the cached task.
func (s *Store) UpdateTask(ctx context.Context, task storage.Task) error {
	err := s.Store.UpdateTask(ctx, task)
	s.drop(ctx, taskKey(task.ID))
	return err
}

// DeleteTask deletes the task and drops it from the cache.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	err := s.Store.DeleteTask(ctx, id)
	s.drop(ctx, taskKey(id))
	return err
}

// Ping checks the store and Redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.Store.Ping(ctx); err != nil {
		return err
	}
	return s.rdb.Ping(ctx).Err()
}

// Close closes the store and the Redis client.
func (s *Store) Close() error {
	return errors.Join(s.Store.Close(), s.rdb.Close())
}

func (s *Store) load(ctx context.Context, key string, dst any) bool {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("goal cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("goal cache entry corrupt")
		s.drop(ctx, key)
		return false
	}
	return true
}

func (s *Store) save(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("goal cache write failed")
	}
}

func (s *Store) drop(ctx context.Context, keys ...string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("goal cache invalidation failed")
	}
}

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.CachedReader = (*Store)(nil)
)
