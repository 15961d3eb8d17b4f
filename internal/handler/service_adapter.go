package handler

import (
	"github.com/hitoshi/timetrack/internal/anomaly"
	"github.com/hitoshi/timetrack/internal/notification"
	"github.com/hitoshi/timetrack/internal/report"
	"github.com/hitoshi/timetrack/internal/timeentry"
)

// ドメインサービスはハンドラーのインターフェースをそのまま満たすため、
// 変換用のアダプタを挟まずにRouterDepsへ渡せる。

// compile-time interface check
var (
	_ TimeEntryServiceInterface    = (*timeentry.Service)(nil)
	_ LongRunningChecker           = (*anomaly.Detector)(nil)
	_ NotificationServiceInterface = (*notification.Service)(nil)
	_ ReportServiceInterface       = (*report.Service)(nil)
)
