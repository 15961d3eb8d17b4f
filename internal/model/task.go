// Package model はドメインモデルを定義する。
package model

import "time"

// Task は時間計測の対象となる業務タスクを表す。
type Task struct {
	ID           string
	Code         string
	Name         string
	Description  string
	CategoryID   string
	Importance   int // 1-5
	IsActive     bool
	AssigneeID   *string
	DepartmentID *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskCategory はタスクの分類を表す。
type TaskCategory struct {
	ID               string
	Name             string
	Description      string
	ColorCode        string
	ParentCategoryID *string
}
