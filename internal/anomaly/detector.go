// Package anomaly は進行中の時間計測に対する異常検知を提供する。
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/timetrack/internal/duration"
	"github.com/hitoshi/timetrack/internal/model"
	"github.com/hitoshi/timetrack/internal/notification"
	"github.com/hitoshi/timetrack/internal/repository"
)

// DefaultThresholdMinutes は長時間同一業務とみなす既定の閾値（分）。
const DefaultThresholdMinutes = 120

// NotificationSink は通知の作成先インターフェース。
type NotificationSink interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, error)
}

// Detector は長時間同一業務を検知する。
// 重複排除は行わないため、短い間隔で繰り返し呼ぶと同じエントリに対して複数のアラートが作成される。
type Detector struct {
	entryRepo repository.TimeEntryRepository
	taskRepo  repository.TaskRepository
	sink      NotificationSink
	logger    *slog.Logger
	now       func() time.Time
}

// NewDetector はDetectorの新しいインスタンスを生成する。
func NewDetector(
	entryRepo repository.TimeEntryRepository,
	taskRepo repository.TaskRepository,
	sink NotificationSink,
	logger *slog.Logger,
) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		entryRepo: entryRepo,
		taskRepo:  taskRepo,
		sink:      sink,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckLongRunning はユーザーの進行中エントリの経過時間が閾値を超えていればアラートを作成して返す。
// 進行中エントリがない、一時停止中、または閾値以下の場合はnilを返す。
func (d *Detector) CheckLongRunning(ctx context.Context, userID string, thresholdMinutes int) (*model.Notification, error) {
	entry, err := d.entryRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("進行中エントリの取得に失敗しました: %w", err)
	}
	if entry == nil || entry.IsPaused {
		return nil, nil
	}

	now := d.now()
	elapsed := duration.ElapsedMinutes(entry.StartTime, now, entry.PauseDurationMinutes)
	if elapsed <= thresholdMinutes {
		return nil, nil
	}

	taskName := entry.TaskID
	task, err := d.taskRepo.FindByID(ctx, entry.TaskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task != nil {
		taskName = task.Name
	}

	alert, err := d.sink.Create(ctx, notification.NewLongTaskAlert(entry, taskName, elapsed, now))
	if err != nil {
		return nil, fmt.Errorf("長時間業務アラートの作成に失敗しました: %w", err)
	}

	d.logger.Info("長時間同一業務を検知しました",
		slog.String("user_id", userID),
		slog.String("time_entry_id", entry.ID),
		slog.Int("elapsed_minutes", elapsed),
		slog.Int("threshold_minutes", thresholdMinutes),
	)
	return alert, nil
}
