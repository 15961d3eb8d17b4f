package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/timetrack/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	if !isUUID(id) {
		return nil, nil
	}
	task := &model.Task{}
	var assigneeID, departmentID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, COALESCE(description, ''), category_id, importance, is_active,
		        assignee_id, department_id, created_at, updated_at
		 FROM tasks WHERE id = $1`,
		id,
	).Scan(
		&task.ID, &task.Code, &task.Name, &task.Description, &task.CategoryID, &task.Importance,
		&task.IsActive, &assigneeID, &departmentID, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	task.AssigneeID = nullStringPtr(assigneeID)
	task.DepartmentID = nullStringPtr(departmentID)
	return task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
