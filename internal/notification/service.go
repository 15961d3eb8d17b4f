package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/timetrack/internal/model"
	"github.com/hitoshi/timetrack/internal/repository"
)

// DefaultHistoryLimit は通知履歴の既定取得件数。
const DefaultHistoryLimit = 50

// Recorder は通知作成を記録するインターフェース。
type Recorder interface {
	RecordAlertCreated(notificationType string)
}

// Forwarder は作成済みの通知を外部へ転送するインターフェース。
type Forwarder interface {
	Forward(ctx context.Context, n *model.Notification) error
}

// Service は通知のサービス層。
type Service struct {
	repo      repository.NotificationRepository
	taskRepo  repository.TaskRepository
	recorder  Recorder
	forwarder Forwarder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderとforwarderはnilでもよい。
func NewService(
	repo repository.NotificationRepository,
	taskRepo repository.TaskRepository,
	recorder Recorder,
	forwarder Forwarder,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		taskRepo:  taskRepo,
		recorder:  recorder,
		forwarder: forwarder,
		logger:    logger,
		now:       time.Now,
	}
}

// Create は通知を保存する。
// ID・作成日時・表示開始日時が未設定の場合は補完する。
// アラート種別の通知はforwarderが設定されていれば転送する。転送の失敗は作成結果に影響しない。
func (s *Service) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	now := s.now()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.DisplayAt.IsZero() {
		n.DisplayAt = now
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordAlertCreated(string(n.Type))
	}

	s.logger.Info("通知を作成しました",
		slog.String("user_id", n.UserID),
		slog.String("notification_id", n.ID),
		slog.String("type", string(n.Type)),
	)

	if s.forwarder != nil && n.Type == model.NotificationTypeAlert {
		if err := s.forwarder.Forward(ctx, n); err != nil {
			s.logger.Warn("通知の転送に失敗しました",
				slog.String("notification_id", n.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return n, nil
}

// CreateTimeEntryReminder は時間入力リマインダーを作成する。
func (s *Service) CreateTimeEntryReminder(ctx context.Context, userID string) (*model.Notification, error) {
	return s.Create(ctx, NewTimeEntryReminder(userID, s.now()))
}

// CreateTaskIncompleteNotice は業務未完了通知を作成する。
func (s *Service) CreateTaskIncompleteNotice(ctx context.Context, userID, taskID string) (*model.Notification, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return s.Create(ctx, NewTaskIncompleteNotice(userID, task, s.now()))
}

// ListUnread は表示中の未読通知を新しい順に返す。
func (s *Service) ListUnread(ctx context.Context, userID string) ([]*model.Notification, error) {
	notifications, err := s.repo.ListUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("未読通知の取得に失敗しました: %w", err)
	}
	return notifications, nil
}

// History は通知履歴を新しい順に最大limit件返す。limitが0以下の場合は50件。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	notifications, err := s.repo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("通知履歴の取得に失敗しました: %w", err)
	}
	return notifications, nil
}

// MarkRead は通知を既読にする。他ユーザーの通知は存在しないものとして扱う。
func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	n, err := s.repo.FindByID(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("通知の取得に失敗しました: %w", err)
	}
	if n == nil || n.UserID != userID {
		return model.NewNotificationNotFoundError(notificationID)
	}
	if n.IsRead {
		return nil
	}

	updated, err := s.repo.MarkRead(ctx, notificationID)
	if err != nil {
		return err
	}
	if !updated {
		return model.NewNotificationNotFoundError(notificationID)
	}
	return nil
}

// MarkAllRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("通知をすべて既読にしました",
		slog.String("user_id", userID),
		slog.Int64("count", count),
	)
	return count, nil
}
