package rediscache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/mcpsuite/mcpsuite/internal/platform/storage/redisconn"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/sqlite"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/storetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	base, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "goals.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := New(base, redisconn.New(redisconn.Config{Addr: srv.Addr()}), time.Minute, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })
	return store, srv
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := newTestStore(t)
		return store
	})
}

func TestGoalReadThrough(t *testing.T) {
	store, srv := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateGoal(ctx, storetest.Goal("GOAL-0001", 0)); err != nil {
		t.Fatalf("create goal: %v", err)
	}

	_, status, err := store.GetGoalCached(ctx, "GOAL-0001")
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if status != storage.CacheMiss {
		t.Fatalf("first read status = %s, want miss", status)
	}
	if !srv.Exists("goal_agent_cache:goal:GOAL-0001") {
		t.Fatal("goal was not cached")
	}
	if ttl := srv.TTL("goal_agent_cache:goal:GOAL-0001"); ttl != time.Minute {
		t.Fatalf("ttl = %v, want 1m", ttl)
	}

	goal, status, err := store.GetGoalCached(ctx, "GOAL-0001")
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if status != storage.CacheHit {
		t.Fatalf("second read status = %s, want hit", status)
	}
	if goal.Description != "goal GOAL-0001" || goal.Repos[0] != "octo/app" {
		t.Fatalf("cached goal = %+v", goal)
	}

	goal.Status = "active"
	if err := store.UpdateGoal(ctx, goal); err != nil {
		t.Fatalf("update goal: %v", err)
	}
	if srv.Exists("goal_agent_cache:goal:GOAL-0001") {
		t.Fatal("update did not invalidate goal")
	}
	fresh, status, err := store.GetGoalCached(ctx, "GOAL-0001")
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if status != storage.CacheMiss || fresh.Status != "active" {
		t.Fatalf("after update: status %s goal %+v", status, fresh)
	}
}

func TestDeleteGoalDropsTaskEntries(t *testing.T) {
	store, srv := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateGoal(ctx, storetest.Goal("GOAL-0001", 0)); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if err := store.CreateTasks(ctx, []storage.Task{storetest.Task("TASK-0001", "GOAL-0001")}); err != nil {
		t.Fatalf("create tasks: %v", err)
	}
	if _, err := store.GetTask(ctx, "TASK-0001"); err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !srv.Exists("goal_agent_cache:task:TASK-0001") {
		t.Fatal("task was not cached")
	}

	if err := store.DeleteGoal(ctx, "GOAL-0001"); err != nil {
		t.Fatalf("delete goal: %v", err)
	}
	if srv.Exists("goal_agent_cache:task:TASK-0001") {
		t.Fatal("task entry survived goal deletion")
	}
	if _, err := store.GetTask(ctx, "TASK-0001"); err != storage.ErrNotFound {
		t.Fatalf("get deleted task err = %v, want ErrNotFound", err)
	}
}

func TestRedisOutageFallsThrough(t *testing.T) {
	store, srv := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateGoal(ctx, storetest.Goal("GOAL-0001", 0)); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	srv.Close()

	goal, status, err := store.GetGoalCached(ctx, "GOAL-0001")
	if err != nil {
		t.Fatalf("get goal with redis down: %v", err)
	}
	if status != storage.CacheMiss || goal.ID != "GOAL-0001" {
		t.Fatalf("status %s goal %+v", status, goal)
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatal("ping should report redis outage")
	}
}

func TestCorruptEntryIsDropped(t *testing.T) {
	store, srv := newTestStore(t)
	ctx := context.Background()
	if err := store.CreateGoal(ctx, storetest.Goal("GOAL-0001", 0)); err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if err := srv.Set("goal_agent_cache:goal:GOAL-0001", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, status, err := store.GetGoalCached(ctx, "GOAL-0001")
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if status != storage.CacheMiss {
		t.Fatalf("status = %s, want miss", status)
	}
	got, err := srv.Get("goal_agent_cache:goal:GOAL-0001")
	if err != nil || got == "{not json" {
		t.Fatalf("corrupt entry not replaced: %q %v", got, err)
	}
}
