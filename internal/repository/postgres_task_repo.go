package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/wallxpress/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// ListInOrder はタスク一覧を作成順で返す。
// userIDが空でない場合は所有者でフィルタする。
func (r *PostgresTaskRepo) ListInOrder(ctx context.Context, userID string) ([]model.Task, error) {
	query := `SELECT id, title, description, COALESCE(user_id, ''), created_at, updated_at
	          FROM tasks ORDER BY created_at, id`
	args := []any{}
	if userID != "" {
		query = `SELECT id, title, description, COALESCE(user_id, ''), created_at, updated_at
		         FROM tasks WHERE user_id = $1 ORDER BY created_at, id`
		args = append(args, userID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var task model.Task
		if err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.UserID, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task := &model.Task{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, COALESCE(user_id, ''), created_at, updated_at
		 FROM tasks WHERE id = $1`,
		id,
	).Scan(&task.ID, &task.Title, &task.Description, &task.UserID, &task.CreatedAt, &task.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}

	return task, nil
}

// Create は新規タスクを作成し、ストアが採番したIDを返す。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		id, task.Title, task.Description, task.UserID, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert task: %w", err)
	}
	return id, nil
}

// Update はID以外の全フィールドを置換する。対象が存在しない場合はエラーを返す。
func (r *PostgresTaskRepo) Update(ctx context.Context, id string, task *model.Task) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, updated_at = $4
		 WHERE id = $1`,
		id, task.Title, task.Description, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewTaskNotFoundError(id)
	}
	return nil
}

// Delete は指定IDのタスクを削除する。対象が存在しなくてもエラーにならない。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
