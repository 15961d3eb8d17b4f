package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/timetrack/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	StatusRecorder    middleware.HTTPStatusRecorder
	SessionFinder     middleware.SessionFinder
	SessionCookieName string
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 時間計測
	TimeEntryService         TimeEntryServiceInterface
	LongRunningChecker       LongRunningChecker
	LongTaskThresholdMinutes int

	// 通知
	NotificationService NotificationServiceInterface

	// レポート
	ReportService ReportServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	timeEntryHandler := NewTimeEntryHandler(deps.TimeEntryService, deps.LongRunningChecker, deps.LongTaskThresholdMinutes)
	notificationHandler := NewNotificationHandler(deps.NotificationService)
	reportHandler := NewReportHandler(deps.ReportService)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.SessionCookieName))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)

		r.Route("/api/time-entries", func(r chi.Router) {
			r.Get("/", timeEntryHandler.List)
			r.Get("/active", timeEntryHandler.GetActive)
			r.Post("/start", timeEntryHandler.Start)
			r.Post("/manual", timeEntryHandler.AddManual)
			r.Post("/vendor-bulk", timeEntryHandler.AddVendorBulk)
			r.Post("/long-running/check", timeEntryHandler.CheckLongRunning)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", timeEntryHandler.Delete)
				r.Post("/pause", timeEntryHandler.Pause)
				r.Post("/resume", timeEntryHandler.Resume)
				r.Post("/end", timeEntryHandler.End)
			})
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.ListUnread)
			r.Get("/history", notificationHandler.History)
			r.Put("/read-all", notificationHandler.MarkAllRead)
			r.Post("/reminder", notificationHandler.CreateReminder)
			r.Post("/task-incomplete", notificationHandler.CreateTaskIncomplete)
			r.Put("/{id}/read", notificationHandler.MarkRead)
		})

		r.Route("/api/reports", func(r chi.Router) {
			r.Get("/", reportHandler.List)

			// 集計は重いため生成系のみ専用のレート制限を追加する
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.ReportMiddleware())
				r.Post("/individual", reportHandler.GenerateIndividual)
				r.Post("/department", reportHandler.GenerateDepartment)
				r.Post("/vendor", reportHandler.GenerateVendor)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", reportHandler.Get)
				r.Patch("/", reportHandler.Update)
				r.Delete("/", reportHandler.Delete)
			})
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
