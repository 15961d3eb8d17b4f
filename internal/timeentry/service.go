// Package timeentry は時間計測エントリのライフサイクル（開始・一時停止・再開・終了）と
// 手動入力・ベンダー一括入力のドメインロジックを提供する。
package timeentry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/timetrack/internal/duration"
	"github.com/hitoshi/timetrack/internal/model"
	"github.com/hitoshi/timetrack/internal/repository"
	"github.com/hitoshi/timetrack/internal/security"
)

// 操作名（ログ・メトリクスのラベル）
const (
	OpStart  = "start"
	OpPause  = "pause"
	OpResume = "resume"
	OpEnd    = "end"
	OpManual = "manual"
	OpVendor = "vendor_bulk"
	OpDelete = "delete"
)

// TransitionRecorder はライフサイクル操作の結果を記録するインターフェース。
type TransitionRecorder interface {
	RecordTransition(operation string, errKind string)
	RecordActiveEntryConflict()
}

// ManualEntryInput は手動入力のパラメータ。
type ManualEntryInput struct {
	UserID    string
	TaskID    string
	StartTime time.Time
	EndTime   time.Time
	Notes     string
}

// VendorEntryInput はベンダー一括入力のパラメータ。
type VendorEntryInput struct {
	VendorUserID    string
	TaskID          string
	Date            time.Time
	DurationMinutes int
	Notes           string
}

// Service は時間計測エントリのサービス層。
// 状態遷移は同一ユーザーについてuserLockerで直列化され、
// 進行中エントリの一意性はDBの部分一意インデックスでも保証される。
type Service struct {
	entryRepo repository.TimeEntryRepository
	userRepo  repository.UserRepository
	taskRepo  repository.TaskRepository
	sanitizer security.NotesSanitizer
	recorder  TransitionRecorder
	logger    *slog.Logger
	locker    *userLocker
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewService(
	entryRepo repository.TimeEntryRepository,
	userRepo repository.UserRepository,
	taskRepo repository.TaskRepository,
	sanitizer security.NotesSanitizer,
	recorder TransitionRecorder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		entryRepo: entryRepo,
		userRepo:  userRepo,
		taskRepo:  taskRepo,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
		locker:    newUserLocker(),
		now:       time.Now,
	}
}

// Start はタスクの時間計測を開始する。
// 進行中のエントリが既にある場合はACTIVE_ENTRY_EXISTSを返す。
func (s *Service) Start(ctx context.Context, userID, taskID, notes string) (entry *model.TimeEntry, err error) {
	defer func() { s.record(OpStart, err) }()

	notes, err = s.cleanNotes(notes)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTask(ctx, taskID); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(userID)
	defer unlock()

	active, err := s.entryRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("進行中エントリの確認に失敗しました: %w", err)
	}
	if active != nil {
		return nil, model.NewActiveEntryExistsError()
	}

	now := s.now()
	entry = &model.TimeEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		TaskID:    taskID,
		StartTime: now,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// 別プロセスとの競合は部分一意インデックス違反としてここで検出される
	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("時間計測を開始しました",
		slog.String("user_id", userID),
		slog.String("time_entry_id", entry.ID),
		slog.String("task_id", taskID),
	)
	return entry, nil
}

// Pause は計測中のエントリを一時停止する。
// 終了済み・一時停止中のエントリに対してはINVALID_STATEを返す。
func (s *Service) Pause(ctx context.Context, userID, entryID string) (entry *model.TimeEntry, err error) {
	defer func() { s.record(OpPause, err) }()

	unlock := s.locker.Lock(userID)
	defer unlock()

	entry, err = s.findOwned(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	switch entry.State() {
	case model.EntryStateClosed:
		return nil, model.NewInvalidStateError("終了済みのエントリは一時停止できません")
	case model.EntryStatePaused:
		return nil, model.NewInvalidStateError("エントリは既に一時停止中です")
	}

	prev := entry.UpdatedAt
	now := s.now()
	entry.IsPaused = true
	entry.PauseStartTime = &now
	entry.UpdatedAt = now
	if err := s.entryRepo.Update(ctx, entry, prev); err != nil {
		return nil, err
	}

	s.logger.Info("時間計測を一時停止しました",
		slog.String("user_id", userID),
		slog.String("time_entry_id", entryID),
	)
	return entry, nil
}

// Resume は一時停止中のエントリを再開し、停止していた分数を累積する。
func (s *Service) Resume(ctx context.Context, userID, entryID string) (entry *model.TimeEntry, err error) {
	defer func() { s.record(OpResume, err) }()

	unlock := s.locker.Lock(userID)
	defer unlock()

	entry, err = s.findOwned(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.State() != model.EntryStatePaused {
		return nil, model.NewInvalidStateError("エントリは一時停止中ではありません")
	}
	if entry.PauseStartTime == nil {
		return nil, model.NewInvalidStateError("一時停止の開始時刻が記録されていません")
	}

	prev := entry.UpdatedAt
	now := s.now()
	paused := duration.WholeMinutes(now.Sub(*entry.PauseStartTime))
	closePause(entry, now)
	entry.UpdatedAt = now
	if err := s.entryRepo.Update(ctx, entry, prev); err != nil {
		return nil, err
	}

	s.logger.Info("時間計測を再開しました",
		slog.String("user_id", userID),
		slog.String("time_entry_id", entryID),
		slog.Int("paused_minutes", paused),
	)
	return entry, nil
}

// End はエントリを終了する。notesが指定された場合は既存のメモに追記する。
// 終了済みのエントリに対しては何も変更せず、保存済みのエントリを返す。
// 一時停止中に終了した場合は、停止していた分数を累積してから終了する。
func (s *Service) End(ctx context.Context, userID, entryID, notes string) (entry *model.TimeEntry, err error) {
	defer func() { s.record(OpEnd, err) }()

	notes, err = s.cleanNotes(notes)
	if err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(userID)
	defer unlock()

	entry, err = s.findOwned(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if entry.State() == model.EntryStateClosed {
		s.logger.Info("終了済みのエントリへの終了要求を無視しました",
			slog.String("user_id", userID),
			slog.String("time_entry_id", entryID),
		)
		return entry, nil
	}

	prev := entry.UpdatedAt
	now := s.now()
	if entry.IsPaused {
		closePause(entry, now)
	}
	entry.EndTime = &now
	entry.AppendNotes(notes)
	entry.UpdatedAt = now

	if err := s.entryRepo.Update(ctx, entry, prev); err != nil {
		if !model.HasCode(err, model.ErrCodeInvalidState) {
			return nil, err
		}
		// 別プロセスが先に終了させた場合は冪等に扱う。一時停止などの競合はそのまま返す。
		current, findErr := s.findOwned(ctx, userID, entryID)
		if findErr != nil {
			return nil, findErr
		}
		if current.State() != model.EntryStateClosed {
			return nil, err
		}
		return current, nil
	}

	s.logger.Info("時間計測を終了しました",
		slog.String("user_id", userID),
		slog.String("time_entry_id", entryID),
		slog.Int("duration_minutes", derefInt(entry.DurationMinutes())),
	)
	return entry, nil
}

// AddManualEntry は開始・終了時刻を指定して終了済みのエントリを作成する。
func (s *Service) AddManualEntry(ctx context.Context, in ManualEntryInput) (entry *model.TimeEntry, err error) {
	defer func() { s.record(OpManual, err) }()

	if !in.EndTime.After(in.StartTime) {
		return nil, model.NewValidationError("終了時間は開始時間より後である必要があります")
	}
	notes, err := s.cleanNotes(in.Notes)
	if err != nil {
		return nil, err
	}
	if err := s.ensureTask(ctx, in.TaskID); err != nil {
		return nil, err
	}

	entry = s.closedEntry(in.UserID, in.TaskID, in.StartTime, in.EndTime, notes)
	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("手動で時間を入力しました",
		slog.String("user_id", in.UserID),
		slog.String("time_entry_id", entry.ID),
	)
	return entry, nil
}

// AddVendorBulkEntry はベンダーユーザーの1日分の作業時間をまとめて入力する。
// 開始時刻は指定日の0時、終了時刻は開始時刻に作業時間を加えた時刻になる。
func (s *Service) AddVendorBulkEntry(ctx context.Context, in VendorEntryInput) (entry *model.TimeEntry, err error) {
	defer func() { s.record(OpVendor, err) }()

	if in.DurationMinutes < 0 {
		return nil, model.NewValidationError("作業時間は0分以上である必要があります")
	}
	notes, err := s.cleanNotes(in.Notes)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, in.VendorUserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(in.VendorUserID)
	}
	if !user.IsExternal() {
		return nil, model.NewNotExternalUserError(in.VendorUserID)
	}
	if err := s.ensureTask(ctx, in.TaskID); err != nil {
		return nil, err
	}

	start := midnight(in.Date)
	end := start.Add(time.Duration(in.DurationMinutes) * time.Minute)
	entry = s.closedEntry(in.VendorUserID, in.TaskID, start, end, notes)
	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("ベンダーの作業時間を一括入力しました",
		slog.String("user_id", in.VendorUserID),
		slog.String("time_entry_id", entry.ID),
		slog.Int("duration_minutes", in.DurationMinutes),
	)
	return entry, nil
}

// Delete はエントリを削除する。状態遷移を経由しない管理用の操作。
// エントリが存在しない、または他ユーザーのものである場合はfalseを返す。
func (s *Service) Delete(ctx context.Context, userID, entryID string) (deleted bool, err error) {
	defer func() { s.record(OpDelete, err) }()

	unlock := s.locker.Lock(userID)
	defer unlock()

	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return false, fmt.Errorf("時間計測エントリの取得に失敗しました: %w", err)
	}
	if entry == nil || entry.UserID != userID {
		return false, nil
	}

	deleted, err = s.entryRepo.Delete(ctx, entryID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("時間計測エントリを削除しました",
			slog.String("user_id", userID),
			slog.String("time_entry_id", entryID),
		)
	}
	return deleted, nil
}

// GetActiveEntry はユーザーの進行中エントリを返す。存在しない場合はnilを返す。
func (s *Service) GetActiveEntry(ctx context.Context, userID string) (*model.TimeEntry, error) {
	entry, err := s.entryRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("進行中エントリの取得に失敗しました: %w", err)
	}
	return entry, nil
}

// ListUserEntries はユーザーのエントリを開始時刻の降順で返す。
// from/toは開始時刻に対する範囲指定で、nilの場合は条件に含めない。
func (s *Service) ListUserEntries(ctx context.Context, userID string, from, to *time.Time) ([]*model.TimeEntry, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, model.NewValidationError("期間の終了日は開始日以降である必要があります")
	}
	entries, err := s.entryRepo.List(ctx, model.TimeEntryFilter{
		UserIDs:   []string{userID},
		StartFrom: from,
		StartTo:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("時間計測エントリ一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// findOwned はエントリを取得し、所有者を確認する。
// 他ユーザーのエントリは存在しないものとして扱う。
func (s *Service) findOwned(ctx context.Context, userID, entryID string) (*model.TimeEntry, error) {
	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("時間計測エントリの取得に失敗しました: %w", err)
	}
	if entry == nil || entry.UserID != userID {
		return nil, model.NewTimeEntryNotFoundError(entryID)
	}
	return entry, nil
}

func (s *Service) ensureTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return model.NewValidationError("タスクIDは必須です")
	}
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return model.NewTaskNotFoundError(taskID)
	}
	return nil
}

// cleanNotes はメモをサニタイズし、長さを検証する。
func (s *Service) cleanNotes(notes string) (string, error) {
	if notes == "" {
		return "", nil
	}
	if s.sanitizer != nil {
		notes = s.sanitizer.Sanitize(notes)
	}
	if utf8.RuneCountInString(notes) > security.MaxNotesLength {
		return "", model.NewValidationError(fmt.Sprintf("メモは%d文字以内で入力してください", security.MaxNotesLength))
	}
	return notes, nil
}

func (s *Service) closedEntry(userID, taskID string, start, end time.Time, notes string) *model.TimeEntry {
	now := s.now()
	return &model.TimeEntry{
		ID:            uuid.NewString(),
		UserID:        userID,
		TaskID:        taskID,
		StartTime:     start,
		EndTime:       &end,
		Notes:         notes,
		IsManualEntry: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Service) record(op string, err error) {
	if s.recorder == nil {
		return
	}
	if model.HasCode(err, model.ErrCodeActiveEntryExists) {
		s.recorder.RecordActiveEntryConflict()
	}
	s.recorder.RecordTransition(op, model.ErrorKind(err))
}

// closePause は一時停止を解除し、停止していた分数をpauseDurationMinutesに加算する。
func closePause(entry *model.TimeEntry, now time.Time) {
	if entry.PauseStartTime != nil {
		paused := duration.WholeMinutes(now.Sub(*entry.PauseStartTime))
		if paused > 0 {
			entry.PauseDurationMinutes += paused
		}
	}
	entry.IsPaused = false
	entry.PauseStartTime = nil
}

// midnight は指定日時と同じタイムゾーンでの日付の0時を返す。
func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
