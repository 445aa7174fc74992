// Package postgres provides a PostgreSQL goal store built on gorm.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcpsuite/mcpsuite/internal/services/goalagent/storage"
	"gorm.io/datatypes"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type sequenceRow struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value int64  `gorm:"not null"`
}

func (sequenceRow) TableName() string { return "id_sequences" }

type goalRow struct {
	ID          string                      `gorm:"primaryKey;size:32"`
	Description string                      `gorm:"not null"`
	Priority    string                      `gorm:"size:16;not null;index:idx_goal_status_priority,priority:2"`
	Status      string                      `gorm:"size:16;not null;index:idx_goal_status_priority,priority:1"`
	Repos       datatypes.JSONSlice[string] `gorm:"not null"`
	Metadata    datatypes.JSONMap           `gorm:"not null"`
	CreatedAt   time.Time                   `gorm:"autoCreateTime:false;not null;index:idx_goal_created_at"`
	UpdatedAt   time.Time                   `gorm:"autoUpdateTime:false;not null"`
	Tasks       []taskRow                   `gorm:"foreignKey:GoalID;constraint:OnDelete:CASCADE"`
}

func (goalRow) TableName() string { return "goals" }

type taskRow struct {
	ID              string                      `gorm:"primaryKey;size:32"`
	GoalID          string                      `gorm:"size:32;not null;index:idx_task_goal_status,priority:1"`
	Description     string                      `gorm:"not null"`
	Type            string                      `gorm:"size:32;not null"`
	Priority        string                      `gorm:"size:16;not null;index:idx_task_status_priority,priority:2"`
	Status          string                      `gorm:"size:16;not null;index:idx_task_goal_status,priority:2;index:idx_task_status_priority,priority:1"`
	Dependencies    datatypes.JSONSlice[string] `gorm:"not null"`
	Repo            string                      `gorm:"not null;default:''"`
	JiraTicket      string                      `gorm:"not null;default:''"`
	EstimatedEffort string                      `gorm:"not null;default:''"`
	AssignedTools   datatypes.JSONSlice[string] `gorm:"not null"`
	Result          datatypes.JSON
	CreatedAt       time.Time `gorm:"autoCreateTime:false;not null"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false;not null"`
	CompletedAt     *time.Time
}

func (taskRow) TableName() string { return "tasks" }

// Store persists goals and tasks in PostgreSQL.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	store := &Store{db: db}
	if err := db.WithContext(ctx).AutoMigrate(&sequenceRow{}, &goalRow{}, &taskRow{}); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate postgres schema: %w", err)
	}
	return store, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NextIDs reserves n values of the named sequence.
func (s *Store) NextIDs(ctx context.Context, sequence string, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("id count must be positive")
	}
	var last int64
	err := s.db.WithContext(ctx).Raw(
		`INSERT INTO id_sequences (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = id_sequences.value + EXCLUDED.value
		 RETURNING value`,
		sequence, n,
	).Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("reserve %s ids: %w", sequence, err)
	}
	return last - int64(n) + 1, nil
}

// CreateGoal inserts one goal.
func (s *Store) CreateGoal(ctx context.Context, goal storage.Goal) error {
	row := fromGoal(goal)
	if err := s.db.WithContext(ctx).Omit("Tasks").Create(&row).Error; err != nil {
		return translate("create goal", err)
	}
	return nil
}

// GetGoal returns one goal by id.
func (s *Store) GetGoal(ctx context.Context, id string) (storage.Goal, error) {
	var row goalRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return storage.Goal{}, translate("get goal", err)
	}
	return row.toGoal(), nil
}

// ListGoals returns goals newest first.
func (s *Store) ListGoals(ctx context.Context, filter storage.GoalFilter) ([]storage.Goal, error) {
	query := s.db.WithContext(ctx).Model(&goalRow{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	var rows []goalRow
	if err := query.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, translate("list goals", err)
	}
	goals := make([]storage.Goal, 0, len(rows))
	for _, row := range rows {
		goals = append(goals, row.toGoal())
	}
	return goals, nil
}

// UpdateGoal replaces the mutable fields of a goal.
func (s *Store) UpdateGoal(ctx context.Context, goal storage.Goal) error {
	row := fromGoal(goal)
	res := s.db.WithContext(ctx).Model(&goalRow{ID: goal.ID}).
		Select("description", "priority", "status", "repos", "metadata", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return translate("update goal", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteGoal removes a goal and its tasks.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("goal_id = ?", id).Delete(&taskRow{}).Error; err != nil {
			return translate("delete goal tasks", err)
		}
		res := tx.Where("id = ?", id).Delete(&goalRow{})
		if res.Error != nil {
			return translate("delete goal", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// CreateTasks inserts all tasks in one transaction.
func (s *Store) CreateTasks(ctx context.Context, tasks []storage.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	rows := make([]taskRow, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, fromTask(task))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rows).Error; err != nil {
			return translate("create tasks", err)
		}
		return nil
	})
}

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (storage.Task, error) {
	var row taskRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return storage.Task{}, translate("get task", err)
	}
	return row.toTask(), nil
}

// ListTasks returns tasks in id order.
func (s *Store) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]storage.Task, error) {
	query := s.db.WithContext(ctx).Model(&taskRow{})
	if filter.GoalID != "" {
		query = query.Where("goal_id = ?", filter.GoalID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	var rows []taskRow
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, translate("list tasks", err)
	}
	tasks := make([]storage.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.toTask())
	}
	return tasks, nil
}

// UpdateTask replaces the mutable fields of a task.
func (s *Store) UpdateTask(ctx context.Context, task storage.Task) error {
	row := fromTask(task)
	res := s.db.WithContext(ctx).Model(&taskRow{ID: task.ID}).
		Select("description", "type", "priority", "status", "dependencies", "repo", "jira_ticket",
			"estimated_effort", "assigned_tools", "result", "updated_at", "completed_at").
		Updates(&row)
	if res.Error != nil {
		return translate("update task", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteTask removes one task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&taskRow{})
	if res.Error != nil {
		return translate("delete task", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Count totals goals and tasks.
func (s *Store) Count(ctx context.Context) (storage.Counts, error) {
	var counts storage.Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&goalRow{}).Count(&counts.Goals).Error; err != nil {
		return storage.Counts{}, translate("count goals", err)
	}
	if err := db.Model(&taskRow{}).Count(&counts.Tasks).Error; err != nil {
		return storage.Counts{}, translate("count tasks", err)
	}
	return counts, nil
}

func translate(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrForeignKeyViolated):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

func fromGoal(goal storage.Goal) goalRow {
	metadata := datatypes.JSONMap(goal.Metadata)
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}
	return goalRow{
		ID:          goal.ID,
		Description: goal.Description,
		Priority:    goal.Priority,
		Status:      goal.Status,
		Repos:       datatypes.NewJSONSlice(orEmpty(goal.Repos)),
		Metadata:    metadata,
		CreatedAt:   goal.CreatedAt.UTC(),
		UpdatedAt:   goal.UpdatedAt.UTC(),
	}
}

func (row goalRow) toGoal() storage.Goal {
	return storage.Goal{
		ID:          row.ID,
		Description: row.Description,
		Priority:    row.Priority,
		Status:      row.Status,
		Repos:       orEmpty(row.Repos),
		Metadata:    map[string]any(row.Metadata),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func fromTask(task storage.Task) taskRow {
	row := taskRow{
		ID:              task.ID,
		GoalID:          task.GoalID,
		Description:     task.Description,
		Type:            task.Type,
		Priority:        task.Priority,
		Status:          task.Status,
		Dependencies:    datatypes.NewJSONSlice(orEmpty(task.Dependencies)),
		Repo:            task.Repo,
		JiraTicket:      task.JiraTicket,
		EstimatedEffort: task.EstimatedEffort,
		AssignedTools:   datatypes.NewJSONSlice(orEmpty(task.AssignedTools)),
		Result:          datatypes.JSON(task.Result),
		CreatedAt:       task.CreatedAt.UTC(),
		UpdatedAt:       task.UpdatedAt.UTC(),
	}
	if task.CompletedAt != nil {
		at := task.CompletedAt.UTC()
		row.CompletedAt = &at
	}
	return row
}

func (row taskRow) toTask() storage.Task {
	task := storage.Task{
		ID:              row.ID,
		GoalID:          row.GoalID,
		Description:     row.Description,
		Type:            row.Type,
		Priority:        row.Priority,
		Status:          row.Status,
		Dependencies:    orEmpty(row.Dependencies),
		Repo:            row.Repo,
		JiraTicket:      row.JiraTicket,
		EstimatedEffort: row.EstimatedEffort,
		AssignedTools:   orEmpty(row.AssignedTools),
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if len(row.Result) > 0 && string(row.Result) != "null" {
		task.Result = json.RawMessage(row.Result)
	}
	if row.CompletedAt != nil {
		at := row.CompletedAt.UTC()
		task.CompletedAt = &at
	}
	return task
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ storage.Store = (*Store)(nil)
