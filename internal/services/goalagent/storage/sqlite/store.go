// Package sqlite provides the default SQLite-backed goal store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/mcpsuite/mcpsuite/internal/platform/storage/sqlitemigrate"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists goals and tasks in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite goal store, creating parent directories, and
// applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; batch updates queue behind each other.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// NextIDs reserves n values of the named sequence.
func (s *Store) NextIDs(ctx context.Context, sequence string, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("id count must be positive")
	}
	var last int64
	err := s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO id_sequences (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = id_sequences.value + excluded.value
		 RETURNING value`,
		sequence, n,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("reserve %s ids: %w", sequence, err)
	}
	return last - int64(n) + 1, nil
}

// CreateGoal inserts one goal.
func (s *Store) CreateGoal(ctx context.Context, goal storage.Goal) error {
	repos, err := encodeJSON(orEmpty(goal.Repos))
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(orEmptyMap(goal.Metadata))
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO goals (id, description, priority, status, repos, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Description, goal.Priority, goal.Status, repos, metadata,
		toMillis(goal.CreatedAt), toMillis(goal.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create goal: %w", err)
	}
	return nil
}

const goalColumns = `id, description, priority, status, repos, metadata, created_at, updated_at`

// GetGoal returns one goal by id.
func (s *Store) GetGoal(ctx context.Context, id string) (storage.Goal, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	goal, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Goal{}, storage.ErrNotFound
	}
	return goal, err
}

// ListGoals returns goals newest first.
func (s *Store) ListGoals(ctx context.Context, filter storage.GoalFilter) ([]storage.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, filter.Priority)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	goals := []storage.Goal{}
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	return goals, rows.Err()
}

// UpdateGoal replaces the mutable fields of a goal.
func (s *Store) UpdateGoal(ctx context.Context, goal storage.Goal) error {
	repos, err := encodeJSON(orEmpty(goal.Repos))
	if err != nil {
		return err
	}
	metadata, err := encodeJSON(orEmptyMap(goal.Metadata))
	if err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE goals SET description = ?, priority = ?, status = ?, repos = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		goal.Description, goal.Priority, goal.Status, repos, metadata, toMillis(goal.UpdatedAt), goal.ID,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return requireAffected(res)
}

// DeleteGoal removes a goal and its tasks.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE goal_id = ?`, id); err != nil {
		return fmt.Errorf("delete goal tasks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateTasks inserts all tasks in one transaction.
func (s *Store) CreateTasks(ctx context.Context, tasks []storage.Task) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare task insert: %w", err)
	}
	defer stmt.Close()

	for _, task := range tasks {
		args, err := taskArgs(task)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			if isForeignKeyViolation(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("create task %s: %w", task.ID, err)
		}
	}
	return tx.Commit()
}

const taskColumns = `id, goal_id, description, type, priority, status, dependencies, repo, jira_ticket,
	estimated_effort, assigned_tools, result, created_at, updated_at, completed_at`

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (storage.Task, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Task{}, storage.ErrNotFound
	}
	return task, err
}

// ListTasks returns tasks in id order.
func (s *Store) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]storage.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1 = 1`
	var args []any
	if filter.GoalID != "" {
		query += ` AND goal_id = ?`
		args = append(args, filter.GoalID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, filter.Priority)
	}
	query += ` ORDER BY id`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []storage.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTask replaces the mutable fields of a task.
func (s *Store) UpdateTask(ctx context.Context, task storage.Task) error {
	deps, err := encodeJSON(orEmpty(task.Dependencies))
	if err != nil {
		return err
	}
	tools, err := encodeJSON(orEmpty(task.AssignedTools))
	if err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE tasks SET description = ?, type = ?, priority = ?, status = ?, dependencies = ?, repo = ?,
		   jira_ticket = ?, estimated_effort = ?, assigned_tools = ?, result = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		task.Description, task.Type, task.Priority, task.Status, deps, task.Repo,
		task.JiraTicket, task.EstimatedEffort, tools, nullableJSON(task.Result),
		toMillis(task.UpdatedAt), nullableMillis(task.CompletedAt), task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireAffected(res)
}

// DeleteTask removes one task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(res)
}

// Count totals goals and tasks.
func (s *Store) Count(ctx context.Context) (storage.Counts, error) {
	var counts storage.Counts
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM goals), (SELECT COUNT(*) FROM tasks)`,
	).Scan(&counts.Goals, &counts.Tasks)
	if err != nil {
		return storage.Counts{}, fmt.Errorf("count records: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(row scanner) (storage.Goal, error) {
	var (
		goal               storage.Goal
		repos, metadata    string
		createdAt, updated int64
	)
	if err := row.Scan(&goal.ID, &goal.Description, &goal.Priority, &goal.Status,
		&repos, &metadata, &createdAt, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Goal{}, err
		}
		return storage.Goal{}, fmt.Errorf("scan goal: %w", err)
	}
	if err := json.Unmarshal([]byte(repos), &goal.Repos); err != nil {
		return storage.Goal{}, fmt.Errorf("decode goal repos: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &goal.Metadata); err != nil {
		return storage.Goal{}, fmt.Errorf("decode goal metadata: %w", err)
	}
	goal.CreatedAt = fromMillis(createdAt)
	goal.UpdatedAt = fromMillis(updated)
	return goal, nil
}

func scanTask(row scanner) (storage.Task, error) {
	var (
		task               storage.Task
		deps, tools        string
		result             sql.NullString
		createdAt, updated int64
		completedAt        sql.NullInt64
	)
	if err := row.Scan(&task.ID, &task.GoalID, &task.Description, &task.Type, &task.Priority,
		&task.Status, &deps, &task.Repo, &task.JiraTicket, &task.EstimatedEffort, &tools,
		&result, &createdAt, &updated, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Task{}, err
		}
		return storage.Task{}, fmt.Errorf("scan task: %w", err)
	}
	if err := json.Unmarshal([]byte(deps), &task.Dependencies); err != nil {
		return storage.Task{}, fmt.Errorf("decode task dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(tools), &task.AssignedTools); err != nil {
		return storage.Task{}, fmt.Errorf("decode task tools: %w", err)
	}
	if result.Valid {
		task.Result = json.RawMessage(result.String)
	}
	task.CreatedAt = fromMillis(createdAt)
	task.UpdatedAt = fromMillis(updated)
	if completedAt.Valid {
		at := fromMillis(completedAt.Int64)
		task.CompletedAt = &at
	}
	return task, nil
}

func taskArgs(task storage.Task) ([]any, error) {
	deps, err := encodeJSON(orEmpty(task.Dependencies))
	if err != nil {
		return nil, err
	}
	tools, err := encodeJSON(orEmpty(task.AssignedTools))
	if err != nil {
		return nil, err
	}
	return []any{
		task.ID, task.GoalID, task.Description, task.Type, task.Priority, task.Status,
		deps, task.Repo, task.JiraTicket, task.EstimatedEffort, tools,
		nullableJSON(task.Result), toMillis(task.CreatedAt), toMillis(task.UpdatedAt),
		nullableMillis(task.CompletedAt),
	}, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}
	return string(data), nil
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func orEmptyMap(values map[string]any) map[string]any {
	if values == nil {
		return map[string]any{}
	}
	return values
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableMillis(at *time.Time) any {
	if at == nil {
		return nil
	}
	return toMillis(*at)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint failed")
}

var _ storage.Store = (*Store)(nil)
