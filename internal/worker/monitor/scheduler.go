// Package monitor は進行中の時間計測を定期的に検査するバックグラウンドジョブを提供する。
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/timetrack/internal/model"
)

// RunningEntryLister は計測中（一時停止していない）のエントリを列挙するインターフェース。
type RunningEntryLister interface {
	ListRunningEntries(ctx context.Context) ([]model.RunningEntry, error)
}

// LongRunningChecker は長時間同一業務の検知インターフェース。
type LongRunningChecker interface {
	CheckLongRunning(ctx context.Context, userID string, thresholdMinutes int) (*model.Notification, error)
}

// LatencyRecorder は監視1回分の処理時間を記録するインターフェース。
type LatencyRecorder interface {
	RecordMonitorLatency(duration time.Duration)
}

// Config はSchedulerの設定。
type Config struct {
	ThresholdMinutes int           // 長時間とみなす閾値（分）
	MaxConcurrency   int           // 同時に検査するユーザー数の上限（デフォルト: 10）
	Cooldown         time.Duration // 同一エントリへのアラート再送を抑止する期間
}

// Scheduler は計測中のエントリを定期的に列挙し、長時間同一業務を検査する。
// semaphoreパターンで同時検査数を制御する。
type Scheduler struct {
	lister   RunningEntryLister
	checker  LongRunningChecker
	recorder LatencyRecorder
	logger   *slog.Logger
	cfg      Config

	mu        sync.Mutex
	lastAlert map[string]time.Time // エントリID -> 最終アラート時刻
	now       func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// MaxConcurrencyが0以下の場合はデフォルト値10を使用する。recorderはnilでもよい。
func NewScheduler(
	lister RunningEntryLister,
	checker LongRunningChecker,
	recorder LatencyRecorder,
	logger *slog.Logger,
	cfg Config,
) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	return &Scheduler{
		lister:    lister,
		checker:   checker,
		recorder:  recorder,
		logger:    logger,
		cfg:       cfg,
		lastAlert: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("長時間業務モニターを開始しました",
		slog.Duration("interval", interval),
		slog.Int("threshold_minutes", s.cfg.ThresholdMinutes),
		slog.Int("max_concurrency", s.cfg.MaxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("監視サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("長時間業務モニターを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("監視サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は計測中のエントリを1回列挙し、所有ユーザーごとに並列で検査する。
// 個別ユーザーの検査失敗はログに記録し、他のユーザーの検査は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if s.recorder != nil {
			s.recorder.RecordMonitorLatency(time.Since(start))
		}
	}()

	s.pruneAlerts()

	running, err := s.lister.ListRunningEntries(ctx)
	if err != nil {
		return err
	}

	if len(running) == 0 {
		s.logger.Info("計測中のユーザーはいません")
		return nil
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	var alerted, skipped int32
	var countMu sync.Mutex

	for _, re := range running {
		if s.inCooldown(re.EntryID) {
			skipped++
			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(re model.RunningEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			alert, err := s.checker.CheckLongRunning(ctx, re.UserID, s.cfg.ThresholdMinutes)
			if err != nil {
				s.logger.Error("長時間業務の検査に失敗しました",
					slog.String("user_id", re.UserID),
					slog.String("time_entry_id", re.EntryID),
					slog.String("error", err.Error()),
				)
				return
			}
			if alert != nil {
				// 列挙後に計測が切り替わった場合はアラート側のエントリを記録する
				entryID := re.EntryID
				if alert.TimeEntryID != nil && *alert.TimeEntryID != "" {
					entryID = *alert.TimeEntryID
				}
				s.markAlerted(entryID)
				countMu.Lock()
				alerted++
				countMu.Unlock()
			}
		}(re)
	}

	wg.Wait()

	s.logger.Info("監視サイクルが完了しました",
		slog.Int("entry_count", len(running)),
		slog.Int("alert_count", int(alerted)),
		slog.Int("skipped_count", int(skipped)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (s *Scheduler) inCooldown(entryID string) bool {
	if s.cfg.Cooldown <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastAlert[entryID]
	return ok && s.now().Sub(last) < s.cfg.Cooldown
}

func (s *Scheduler) markAlerted(entryID string) {
	if s.cfg.Cooldown <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAlert[entryID] = s.now()
}

// pruneAlerts はクールダウンを過ぎた記録を削除する。
// 終了したエントリの記録もここで消えるため、マップはクールダウン期間内のアラート数を超えない。
func (s *Scheduler) pruneAlerts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for entryID, last := range s.lastAlert {
		if now.Sub(last) >= s.cfg.Cooldown {
			delete(s.lastAlert, entryID)
		}
	}
}
