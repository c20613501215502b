// Package store provides PostgreSQL persistence for tasks and their items.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/eramir/facecheck/internal/task"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(connectionString string) (*TaskStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &TaskStore{db: db}, nil
}

func (s *TaskStore) Close() error {
	return s.db.Close()
}

// CreateTask inserts an empty task and returns it.
func (s *TaskStore) CreateTask(ctx context.Context) (*task.Task, error) {
	t := task.New()

	query := `INSERT INTO tasks (id, created_at) VALUES ($1, $2)`
	if _, err := s.db.ExecContext(ctx, query, t.ID, t.CreatedAt); err != nil {
		return nil, translate(err)
	}

	return t, nil
}

// AppendItems inserts a batch of items in one transaction. Either every row
// in the batch commits or none do.
func (s *TaskStore) AppendItems(ctx context.Context, items []task.Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}

	query := `
		INSERT INTO task_items (
			task_id, image_index, left_eye_close, right_eye_close,
			face_left, face_top, face_right, face_bottom,
			image_width, image_height, rotation, with_glasses, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	for _, item := range items {
		_, err := tx.ExecContext(ctx, query,
			item.TaskID,
			item.ImageIndex,
			item.LeftEyeClose,
			item.RightEyeClose,
			item.FaceLeft,
			item.FaceTop,
			item.FaceRight,
			item.FaceBottom,
			item.ImageWidth,
			item.ImageHeight,
			item.Rotation,
			item.WithGlasses,
			item.Error,
		)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("failed to rollback: %v (insert: %w)", rbErr, translate(err))
			}

			return translate(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return translate(err)
	}

	return nil
}

// GetTask loads a task with its items in insertion order.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	query := `SELECT id, created_at, updated_at, error FROM tasks WHERE id = $1`

	var t task.Task
	err := s.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.Error)
	if err != nil {
		return nil, translate(err)
	}

	items, err := s.itemsForTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Items = items[t.ID]
	if t.Items == nil {
		t.Items = []task.Item{}
	}

	return &t, nil
}

// SetTaskError records a submission failure on the task. The task stays
// queryable; only its error field changes.
func (s *TaskStore) SetTaskError(ctx context.Context, id, message string) error {
	query := `UPDATE tasks SET error = $1, updated_at = $2 WHERE id = $3`

	res, err := s.db.ExecContext(ctx, query, message, time.Now().UTC(), id)
	if err != nil {
		return translate(err)
	}

	return requireRow(res)
}

// SetItemVote sets or clears the human quality vote on one item.
func (s *TaskStore) SetItemVote(ctx context.Context, itemID int64, isGood *bool) error {
	query := `UPDATE task_items SET is_good = $1 WHERE id = $2`

	res, err := s.db.ExecContext(ctx, query, isGood, itemID)
	if err != nil {
		return translate(err)
	}

	return requireRow(res)
}

// ListTasks returns one page of tasks, newest first, items included.
func (s *TaskStore) ListTasks(ctx context.Context, page, pageSize int) ([]task.Task, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	query := `
		SELECT id, created_at, updated_at, error
		FROM tasks
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`

	rows, err := s.db.QueryContext(ctx, query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, translate(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []task.Task
	var ids []string
	for rows.Next() {
		var t task.Task
		if err := rows.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.Error); err != nil {
			return nil, translate(err)
		}
		t.Items = []task.Item{}
		tasks = append(tasks, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	if len(ids) == 0 {
		return tasks, nil
	}

	items, err := s.itemsForTasks(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if batch, ok := items[tasks[i].ID]; ok {
			tasks[i].Items = batch
		}
	}

	return tasks, nil
}

func (s *TaskStore) itemsForTasks(ctx context.Context, taskIDs ...string) (map[string][]task.Item, error) {
	query := `
		SELECT id, task_id, image_index, left_eye_close, right_eye_close,
			face_left, face_top, face_right, face_bottom,
			image_width, image_height, rotation, with_glasses, is_good, error
		FROM task_items
		WHERE task_id = ANY($1)
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(taskIDs))
	if err != nil {
		return nil, translate(err)
	}
	defer func() { _ = rows.Close() }()

	items := make(map[string][]task.Item)
	for rows.Next() {
		var item task.Item
		err := rows.Scan(
			&item.ID,
			&item.TaskID,
			&item.ImageIndex,
			&item.LeftEyeClose,
			&item.RightEyeClose,
			&item.FaceLeft,
			&item.FaceTop,
			&item.FaceRight,
			&item.FaceBottom,
			&item.ImageWidth,
			&item.ImageHeight,
			&item.Rotation,
			&item.WithGlasses,
			&item.IsGood,
			&item.Error,
		)
		if err != nil {
			return nil, translate(err)
		}

		items[item.TaskID] = append(items[item.TaskID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	return items, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
