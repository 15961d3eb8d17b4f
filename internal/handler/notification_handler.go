package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/timetrack/internal/middleware"
	"github.com/hitoshi/timetrack/internal/model"
)

// NotificationServiceInterface は通知ハンドラーが必要とするサービスインターフェース。
type NotificationServiceInterface interface {
	ListUnread(ctx context.Context, userID string) ([]*model.Notification, error)
	History(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CreateTimeEntryReminder(ctx context.Context, userID string) (*model.Notification, error)
	CreateTaskIncompleteNotice(ctx context.Context, userID, taskID string) (*model.Notification, error)
}

// NotificationHandler は通知のHTTPハンドラー。
type NotificationHandler struct {
	service NotificationServiceInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// notificationResponse は通知のAPIレスポンス。
type notificationResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Type        string     `json:"type"`
	TaskID      *string    `json:"task_id,omitempty"`
	TimeEntryID *string    `json:"time_entry_id,omitempty"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
	DisplayAt   time.Time  `json:"display_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

func toNotificationResponse(n *model.Notification) notificationResponse {
	return notificationResponse{
		ID:          n.ID,
		UserID:      n.UserID,
		Title:       n.Title,
		Message:     n.Message,
		Type:        string(n.Type),
		TaskID:      n.TaskID,
		TimeEntryID: n.TimeEntryID,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
		DisplayAt:   n.DisplayAt,
		ExpiresAt:   n.ExpiresAt,
	}
}

func toNotificationResponses(ns []*model.Notification) []notificationResponse {
	resp := make([]notificationResponse, len(ns))
	for i, n := range ns {
		resp[i] = toNotificationResponse(n)
	}
	return resp
}

type taskIncompleteRequest struct {
	TaskID string `json:"task_id"`
}

// ListUnread は表示対象の未読通知を返す。
// GET /api/notifications
func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	ns, err := h.service.ListUnread(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationResponses(ns))
}

// History は既読を含む通知履歴を返す。
// GET /api/notifications/history?limit=
func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			middleware.WriteError(w, r, model.NewValidationError("limitは0以上の整数で指定してください"))
			return
		}
		limit = n
	}

	ns, err := h.service.History(r.Context(), userID, limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationResponses(ns))
}

// MarkRead は通知を既読にする。
// PUT /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead は未読通知をすべて既読にする。
// PUT /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	count, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": count})
}

// CreateReminder は時間入力のリマインダーを作成する。
// POST /api/notifications/reminder
func (h *NotificationHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.CreateTimeEntryReminder(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNotificationResponse(n))
}

// CreateTaskIncomplete はタスク未完了の通知を作成する。
// POST /api/notifications/task-incomplete
func (h *NotificationHandler) CreateTaskIncomplete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req taskIncompleteRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.TaskID == "" {
		middleware.WriteError(w, r, model.NewValidationError("task_idは必須です"))
		return
	}

	n, err := h.service.CreateTaskIncompleteNotice(r.Context(), userID, req.TaskID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNotificationResponse(n))
}
