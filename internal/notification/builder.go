// Package notification は通知ペイロードの構築と通知の永続化・配信を提供する。
// アラートの表示・既読管理はUI側が行い、本パッケージは通知レコードを生成して保存する。
package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/timetrack/internal/model"
)

// 通知の有効期限
const (
	LongTaskAlertTTL    = time.Hour
	ReminderTTL         = 4 * time.Hour
	TaskIncompleteTTL   = 24 * time.Hour
	reminderTitle       = "時間入力リマインダー"
	reminderMessage     = "業務時間の入力を忘れていませんか？現在の業務状況を記録してください。"
	longTaskAlertTitle  = "長時間同一業務アラート"
	taskIncompleteTitle = "業務未完了通知"
)

// NewLongTaskAlert は長時間同一業務アラートを構築する。
// 表示は即時、有効期限は1時間後。
func NewLongTaskAlert(entry *model.TimeEntry, taskName string, elapsedMinutes int, now time.Time) *model.Notification {
	taskID := entry.TaskID
	entryID := entry.ID
	return newNotification(entry.UserID, model.NotificationTypeAlert,
		longTaskAlertTitle,
		fmt.Sprintf("タスク「%s」を%d分間継続しています。休憩や次の業務に移るタイミングかもしれません。", taskName, elapsedMinutes),
		&taskID, &entryID, now, LongTaskAlertTTL,
	)
}

// NewTimeEntryReminder は時間入力リマインダーを構築する。タスクは紐付けない。
func NewTimeEntryReminder(userID string, now time.Time) *model.Notification {
	return newNotification(userID, model.NotificationTypeReminder,
		reminderTitle, reminderMessage,
		nil, nil, now, ReminderTTL,
	)
}

// NewTaskIncompleteNotice は業務未完了通知を構築する。
func NewTaskIncompleteNotice(userID string, task *model.Task, now time.Time) *model.Notification {
	taskID := task.ID
	return newNotification(userID, model.NotificationTypeTaskInfo,
		taskIncompleteTitle,
		fmt.Sprintf("タスク「%s」が未完了です。タスクの状態を更新してください。", task.Name),
		&taskID, nil, now, TaskIncompleteTTL,
	)
}

func newNotification(
	userID string,
	typ model.NotificationType,
	title, message string,
	taskID, entryID *string,
	now time.Time,
	ttl time.Duration,
) *model.Notification {
	expiresAt := now.Add(ttl)
	return &model.Notification{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Message:     message,
		Type:        typ,
		TaskID:      taskID,
		TimeEntryID: entryID,
		CreatedAt:   now,
		DisplayAt:   now,
		ExpiresAt:   &expiresAt,
	}
}
