// Package model はドメインモデルを定義する。
package model

import "time"

// NotificationType は通知の種別を表す。
type NotificationType string

const (
	// NotificationTypeAlert は長時間同一業務などのアラート。
	NotificationTypeAlert NotificationType = "Alert"
	// NotificationTypeReminder は時間入力リマインダー。
	NotificationTypeReminder NotificationType = "Reminder"
	// NotificationTypeTaskInfo はタスクに関する情報通知。
	NotificationTypeTaskInfo NotificationType = "TaskInfo"
)

// Notification はユーザー向けの通知を表す。
type Notification struct {
	ID          string
	UserID      string
	Title       string
	Message     string
	Type        NotificationType
	TaskID      *string
	TimeEntryID *string
	IsRead      bool
	CreatedAt   time.Time
	DisplayAt   time.Time
	ExpiresAt   *time.Time
}
