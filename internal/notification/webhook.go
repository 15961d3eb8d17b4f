package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/timetrack/internal/model"
)

// webhookPayload は転送先に送信するJSONの形式。
type webhookPayload struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	TaskID      *string    `json:"task_id,omitempty"`
	TimeEntryID *string    `json:"time_entry_id,omitempty"`
	DisplayAt   time.Time  `json:"display_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// WebhookForwarder は作成されたアラートを外部のWebhookへ転送する。
// httpClientにはsecurity.WebhookGuardが生成したクライアントを渡す。
type WebhookForwarder struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewWebhookForwarder はWebhookForwarderの新しいインスタンスを生成する。
func NewWebhookForwarder(httpClient *http.Client, endpoint string, logger *slog.Logger) *WebhookForwarder {
	return &WebhookForwarder{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// Forward は通知をJSONでPOSTする。2xx以外のステータスはエラーとして返す。
func (f *WebhookForwarder) Forward(ctx context.Context, n *model.Notification) error {
	body, err := json.Marshal(webhookPayload{
		ID:          n.ID,
		UserID:      n.UserID,
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		TaskID:      n.TaskID,
		TimeEntryID: n.TimeEntryID,
		DisplayAt:   n.DisplayAt,
		ExpiresAt:   n.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("通知のJSONエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Timetrack/1.0 Alert Forwarder")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Error("Webhookへの通知転送に失敗しました",
			slog.String("error", err.Error()),
			slog.String("notification_id", n.ID),
		)
		return err
	}
	defer resp.Body.Close()
	// コネクション再利用のため読み捨てる
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Error("Webhookがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("notification_id", n.ID),
		)
		return fmt.Errorf("Webhookがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}
