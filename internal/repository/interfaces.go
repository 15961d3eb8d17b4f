// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/timetrack/internal/model"
)

// TimeEntryRepository は時間計測エントリの永続化インターフェース。
type TimeEntryRepository interface {
	// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TimeEntry, error)

	// FindActiveByUserID はユーザーの進行中（end_time IS NULL）のエントリを取得する。
	// 見つからない場合はnilを返す。
	FindActiveByUserID(ctx context.Context, userID string) (*model.TimeEntry, error)

	// Create はエントリを作成する。
	// 進行中エントリの部分一意インデックスに違反した場合はACTIVE_ENTRY_EXISTSのAPIErrorを返す。
	Create(ctx context.Context, entry *model.TimeEntry) error

	// Update は進行中エントリの状態を更新する。
	// 終了済みエントリは更新されず、INVALID_STATEのAPIErrorを返す。
	Update(ctx context.Context, entry *model.TimeEntry, prevUpdatedAt time.Time) error

	// Delete は指定IDのエントリを削除する。削除した場合はtrueを返す。
	// 状態機械を経由しない管理用の操作。
	Delete(ctx context.Context, id string) (bool, error)

	// List は条件に一致するエントリをstart_time降順で返す。
	List(ctx context.Context, filter model.TimeEntryFilter) ([]*model.TimeEntry, error)

	// ListDetails は条件に一致するエントリをタスク名・カテゴリ名・ユーザー名付きで返す。
	ListDetails(ctx context.Context, filter model.TimeEntryFilter) ([]model.TimeEntryDetail, error)

	// ListRunningEntries は一時停止していない進行中エントリを開始時刻順に返す。
	ListRunningEntries(ctx context.Context) ([]model.RunningEntry, error)
}

// UserRepository はユーザーの参照インターフェース。
// ユーザーの作成・更新は外部の管理画面が担う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// ListByDepartment は部署に所属するユーザー一覧を返す。
	ListByDepartment(ctx context.Context, departmentID string) ([]*model.User, error)

	// ListByVendorName は指定ベンダー名を持つユーザー一覧を返す。
	ListByVendorName(ctx context.Context, vendorName string) ([]*model.User, error)
}

// TaskRepository はタスクの参照インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)
}

// NotificationRepository は通知の永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を作成する。
	Create(ctx context.Context, n *model.Notification) error

	// FindByID は指定IDの通知を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Notification, error)

	// ListUnread は表示期間内の未読通知をcreated_at降順で返す。
	ListUnread(ctx context.Context, userID string) ([]*model.Notification, error)

	// ListByUserID はユーザーの通知履歴をcreated_at降順で最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Notification, error)

	// MarkRead は通知を既読にする。対象が存在しない場合はfalseを返す。
	MarkRead(ctx context.Context, id string) (bool, error)

	// MarkAllRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// ReportRepository はレポートの永続化インターフェース。
type ReportRepository interface {
	// Create はレポートを作成する。
	Create(ctx context.Context, report *model.Report) error

	// FindByID は指定IDのレポートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Report, error)

	// Update はレポートを更新する。
	Update(ctx context.Context, report *model.Report) error

	// Delete は指定IDのレポートを削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// ListForUser はユーザーが作成した、またはユーザーを対象とするレポートを返す。
	ListForUser(ctx context.Context, userID string) ([]*model.Report, error)

	// ListByDepartment は部署のレポート一覧を返す。
	ListByDepartment(ctx context.Context, departmentID string) ([]*model.Report, error)

	// ListByTeam はチームのレポート一覧を返す。
	ListByTeam(ctx context.Context, teamID string) ([]*model.Report, error)
}

// SessionRepository はセッションの参照インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}
