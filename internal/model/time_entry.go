// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/hitoshi/timetrack/internal/duration"
)

// EntryState は時間計測エントリの状態を表す。
type EntryState string

const (
	// EntryStateRunning は計測中。
	EntryStateRunning EntryState = "running"
	// EntryStatePaused は一時停止中。
	EntryStatePaused EntryState = "paused"
	// EntryStateClosed は終了済み。
	EntryStateClosed EntryState = "closed"
)

// TimeEntry は1回分の作業時間の計測を表す。
// EndTimeがnilの間は計測中（アクティブ）として扱う。
type TimeEntry struct {
	ID                   string
	UserID               string
	TaskID               string
	StartTime            time.Time
	EndTime              *time.Time
	PauseDurationMinutes int
	IsPaused             bool
	PauseStartTime       *time.Time
	Notes                string
	IsManualEntry        bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// State はエントリの現在の状態を返す。
func (e *TimeEntry) State() EntryState {
	switch {
	case e.EndTime != nil:
		return EntryStateClosed
	case e.IsPaused:
		return EntryStatePaused
	default:
		return EntryStateRunning
	}
}

// IsActive は計測中（一時停止中を含む）かどうかを返す。
func (e *TimeEntry) IsActive() bool {
	return e.EndTime == nil
}

// DurationMinutes は正味の作業時間（分）を返す。計測中はnil。
func (e *TimeEntry) DurationMinutes() *int {
	return duration.NetMinutes(e.StartTime, e.EndTime, e.PauseDurationMinutes)
}

// AppendNotes はメモを改行区切りで追記する。既存のメモは上書きしない。
func (e *TimeEntry) AppendNotes(notes string) {
	if notes == "" {
		return
	}
	if e.Notes == "" {
		e.Notes = notes
		return
	}
	e.Notes = e.Notes + "\n\n" + notes
}

// TimeEntryDetail は集計用にタスク名・カテゴリ名・ユーザー名を結合したエントリ。
type TimeEntryDetail struct {
	TimeEntry
	TaskName     string
	CategoryName string
	UserName     string
}

// RunningEntry は一時停止していない進行中エントリの識別子。
type RunningEntry struct {
	EntryID string
	UserID  string
}

// TimeEntryFilter はエントリ検索条件を表す。
// 空のフィールドは条件に含めない。
type TimeEntryFilter struct {
	UserIDs      []string
	TaskID       string
	DepartmentID string
	VendorName   string
	StartFrom    *time.Time // start_time >= StartFrom
	StartTo      *time.Time // start_time <= StartTo
	ClosedOnly   bool
}
