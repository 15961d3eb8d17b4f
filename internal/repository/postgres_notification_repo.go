package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/timetrack/internal/model"
)

const notificationColumns = `id, user_id, title, message, type, task_id, time_entry_id,
	is_read, created_at, display_at, expires_at`

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

func scanNotification(s rowScanner) (*model.Notification, error) {
	n := &model.Notification{}
	var taskID, timeEntryID sql.NullString
	var expiresAt sql.NullTime
	if err := s.Scan(
		&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &taskID, &timeEntryID,
		&n.IsRead, &n.CreatedAt, &n.DisplayAt, &expiresAt,
	); err != nil {
		return nil, err
	}
	n.TaskID = nullStringPtr(taskID)
	n.TimeEntryID = nullStringPtr(timeEntryID)
	if expiresAt.Valid {
		t := expiresAt.Time
		n.ExpiresAt = &t
	}
	return n, nil
}

// Create は通知を作成する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message, type, task_id, time_entry_id,
			is_read, created_at, display_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.TaskID, n.TimeEntryID,
		n.IsRead, n.CreatedAt, n.DisplayAt, n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("通知の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの通知を取得する。見つからない場合はnilを返す。
func (r *PostgresNotificationRepo) FindByID(ctx context.Context, id string) (*model.Notification, error) {
	if !isUUID(id) {
		return nil, nil
	}
	n, err := scanNotification(r.db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗しました: %w", err)
	}
	return n, nil
}

// ListUnread は表示開始済みかつ期限内の未読通知をcreated_at降順で返す。
func (r *PostgresNotificationRepo) ListUnread(ctx context.Context, userID string) ([]*model.Notification, error) {
	return r.list(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = $1 AND is_read = false
		   AND display_at <= now()
		   AND (expires_at IS NULL OR expires_at > now())
		 ORDER BY created_at DESC`,
		userID,
	)
}

// ListByUserID はユーザーの通知履歴をcreated_at降順で最大limit件返す。
func (r *PostgresNotificationRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	return r.list(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
}

// MarkRead は通知を既読にする。対象が存在しない場合はfalseを返す。
func (r *PostgresNotificationRepo) MarkRead(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = true WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("通知の既読化に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (r *PostgresNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("通知の一括既読化に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected, nil
}

func (r *PostgresNotificationRepo) list(ctx context.Context, query string, args ...any) ([]*model.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("通知一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("通知行の読み取りに失敗しました: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("通知一覧の走査に失敗しました: %w", err)
	}
	return notifications, nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
