package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/timetrack/internal/anomaly"
	"github.com/hitoshi/timetrack/internal/config"
	"github.com/hitoshi/timetrack/internal/database"
	"github.com/hitoshi/timetrack/internal/handler"
	"github.com/hitoshi/timetrack/internal/logger"
	"github.com/hitoshi/timetrack/internal/metrics"
	"github.com/hitoshi/timetrack/internal/middleware"
	"github.com/hitoshi/timetrack/internal/notification"
	"github.com/hitoshi/timetrack/internal/report"
	"github.com/hitoshi/timetrack/internal/repository"
	"github.com/hitoshi/timetrack/internal/security"
	"github.com/hitoshi/timetrack/internal/timeentry"
	"github.com/hitoshi/timetrack/internal/worker/cleanup"
	"github.com/hitoshi/timetrack/internal/worker/monitor"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップする
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if !cmd.needsConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("log_level", cfg.LogLevel),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はプール設定を適用してDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
}

// newRegistry はアプリケーションのメトリクスとGo/プロセスのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildForwarder はALERT_WEBHOOK_URLが設定されていればアラート転送用のForwarderを返す。
// 未設定の場合はnilを返す。
func buildForwarder(cfg *config.Config) (notification.Forwarder, error) {
	if cfg.AlertWebhookURL == "" {
		return nil, nil
	}
	guard := security.NewWebhookGuard(cfg.AlertWebhookAllowHTTP)
	if err := guard.ValidateURL(cfg.AlertWebhookURL); err != nil {
		return nil, fmt.Errorf("invalid ALERT_WEBHOOK_URL: %w", err)
	}
	client := guard.NewSafeClient(cfg.AlertWebhookTimeout)
	return notification.NewWebhookForwarder(client, cfg.AlertWebhookURL, slog.Default()), nil
}

// services はserveとworkerで共有するドメインサービス群。
type services struct {
	sessionRepo  repository.SessionRepository
	entryRepo    repository.TimeEntryRepository
	notification *notification.Service
	detector     *anomaly.Detector
	timeEntry    *timeentry.Service
	report       *report.Service
}

// buildServices はリポジトリとドメインサービスを組み立てる。
func buildServices(cfg *config.Config, db *sql.DB, collector *metrics.Collector) (*services, error) {
	// 1. リポジトリの初期化
	entryRepo := repository.NewPostgresTimeEntryRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	reportRepo := repository.NewPostgresReportRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 2. アラート転送
	forwarder, err := buildForwarder(cfg)
	if err != nil {
		return nil, err
	}

	// 3. ドメインサービスの初期化
	logger := slog.Default()
	notificationService := notification.NewService(notificationRepo, taskRepo, collector, forwarder, logger)
	detector := anomaly.NewDetector(entryRepo, taskRepo, notificationService, logger)
	timeEntryService := timeentry.NewService(
		entryRepo, userRepo, taskRepo,
		security.NewNotesSanitizer(), collector, logger,
	)
	reportService := report.NewService(entryRepo, userRepo, reportRepo, collector, logger)

	return &services{
		sessionRepo:  sessionRepo,
		entryRepo:    entryRepo,
		notification: notificationService,
		detector:     detector,
		timeEntry:    timeEntryService,
		report:       reportService,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクスとサービスの初期化
	reg, collector := newRegistry()
	svc, err := buildServices(cfg, db, collector)
	if err != nil {
		return err
	}

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitReport),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		SessionFinder:     svc.sessionRepo,
		SessionCookieName: cfg.SessionCookieName,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.SetupMetricsRoute(reg),

		TimeEntryService:         svc.timeEntry,
		LongRunningChecker:       svc.detector,
		LongTaskThresholdMinutes: cfg.LongTaskThresholdMinutes,

		NotificationService: svc.notification,
		ReportService:       svc.report,
	}

	router := handler.NewRouter(deps)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMを受信したらグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、長時間タスク監視と期限切れ通知の削除を起動する。
// メトリクスとヘルスチェックは同じポートで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクスとサービスの初期化
	reg, collector := newRegistry()
	svc, err := buildServices(cfg, db, collector)
	if err != nil {
		return err
	}

	// 3. ジョブの初期化
	scheduler := monitor.NewScheduler(svc.entryRepo, svc.detector, collector, slog.Default(), monitor.Config{
		ThresholdMinutes: cfg.LongTaskThresholdMinutes,
		MaxConcurrency:   cfg.MonitorMaxConcurrent,
		Cooldown:         cfg.MonitorAlertCooldown,
	})

	cleanupJob := cleanup.NewCleanupJob(db, collector, slog.Default())
	cleanupJob.GracePeriod = cfg.NotificationGracePeriod

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// 4. メトリクス・ヘルスチェック用サーバー
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newWorkerRouter(db, reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.Duration("monitor_interval", cfg.MonitorInterval),
		slog.Int("threshold_minutes", cfg.LongTaskThresholdMinutes),
		slog.Int("max_concurrent", cfg.MonitorMaxConcurrent),
		slog.Duration("cleanup_interval", cfg.NotificationCleanupInterval),
	)

	// 期限切れ通知の削除をバックグラウンドで実行
	go cleanupJob.Start(ctx, cfg.NotificationCleanupInterval)

	// 長時間タスク監視をメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.MonitorInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// newWorkerRouter はワーカーが公開する /health と /metrics のルーターを返す。
func newWorkerRouter(db handler.HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(slog.Default()))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.SetupMetricsRoute(gatherer))
	return r
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
