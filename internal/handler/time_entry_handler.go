package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/timetrack/internal/middleware"
	"github.com/hitoshi/timetrack/internal/model"
	"github.com/hitoshi/timetrack/internal/timeentry"
)

// TimeEntryServiceInterface は時間計測ハンドラーが必要とするサービスインターフェース。
type TimeEntryServiceInterface interface {
	Start(ctx context.Context, userID, taskID, notes string) (*model.TimeEntry, error)
	Pause(ctx context.Context, userID, entryID string) (*model.TimeEntry, error)
	Resume(ctx context.Context, userID, entryID string) (*model.TimeEntry, error)
	End(ctx context.Context, userID, entryID, notes string) (*model.TimeEntry, error)
	AddManualEntry(ctx context.Context, in timeentry.ManualEntryInput) (*model.TimeEntry, error)
	AddVendorBulkEntry(ctx context.Context, in timeentry.VendorEntryInput) (*model.TimeEntry, error)
	Delete(ctx context.Context, userID, entryID string) (bool, error)
	GetActiveEntry(ctx context.Context, userID string) (*model.TimeEntry, error)
	ListUserEntries(ctx context.Context, userID string, from, to *time.Time) ([]*model.TimeEntry, error)
}

// LongRunningChecker は長時間同一業務の検査インターフェース。
type LongRunningChecker interface {
	CheckLongRunning(ctx context.Context, userID string, thresholdMinutes int) (*model.Notification, error)
}

// TimeEntryHandler は時間計測のHTTPハンドラー。
type TimeEntryHandler struct {
	service          TimeEntryServiceInterface
	checker          LongRunningChecker
	defaultThreshold int
	loc              *time.Location
}

// NewTimeEntryHandler はTimeEntryHandlerを生成する。
// defaultThresholdは長時間検査でthreshold_minutesが省略された場合に使う。
func NewTimeEntryHandler(service TimeEntryServiceInterface, checker LongRunningChecker, defaultThreshold int) *TimeEntryHandler {
	return &TimeEntryHandler{
		service:          service,
		checker:          checker,
		defaultThreshold: defaultThreshold,
		loc:              time.Local,
	}
}

// timeEntryResponse は時間計測エントリのAPIレスポンス。
type timeEntryResponse struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	TaskID               string     `json:"task_id"`
	State                string     `json:"state"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time"`
	PauseDurationMinutes int        `json:"pause_duration_minutes"`
	IsPaused             bool       `json:"is_paused"`
	PauseStartTime       *time.Time `json:"pause_start_time,omitempty"`
	DurationMinutes      *int       `json:"duration_minutes"`
	Notes                string     `json:"notes,omitempty"`
	IsManualEntry        bool       `json:"is_manual_entry"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toTimeEntryResponse(e *model.TimeEntry) timeEntryResponse {
	return timeEntryResponse{
		ID:                   e.ID,
		UserID:               e.UserID,
		TaskID:               e.TaskID,
		State:                string(e.State()),
		StartTime:            e.StartTime,
		EndTime:              e.EndTime,
		PauseDurationMinutes: e.PauseDurationMinutes,
		IsPaused:             e.IsPaused,
		PauseStartTime:       e.PauseStartTime,
		DurationMinutes:      e.DurationMinutes(),
		Notes:                e.Notes,
		IsManualEntry:        e.IsManualEntry,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

type startRequest struct {
	TaskID string `json:"task_id"`
	Notes  string `json:"notes"`
}

type endRequest struct {
	Notes string `json:"notes"`
}

type manualEntryRequest struct {
	TaskID    string `json:"task_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Notes     string `json:"notes"`
}

type vendorBulkRequest struct {
	VendorUserID    string `json:"vendor_user_id"`
	TaskID          string `json:"task_id"`
	Date            string `json:"date"`
	DurationMinutes *int   `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

// Start は作業時間の計測を開始する。
// POST /api/time-entries/start
func (h *TimeEntryHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req startRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.TaskID == "" {
		middleware.WriteError(w, r, model.NewValidationError("task_idは必須です"))
		return
	}

	entry, err := h.service.Start(r.Context(), userID, req.TaskID, req.Notes)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryResponse(entry))
}

// Pause は計測を一時停止する。
// POST /api/time-entries/{id}/pause
func (h *TimeEntryHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Pause)
}

// Resume は一時停止中の計測を再開する。
// POST /api/time-entries/{id}/resume
func (h *TimeEntryHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Resume)
}

func (h *TimeEntryHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, userID, entryID string) (*model.TimeEntry, error),
) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	entry, err := op(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryResponse(entry))
}

// End は計測を終了する。既に終了済みの場合は保存済みのエントリをそのまま返す。
// POST /api/time-entries/{id}/end
func (h *TimeEntryHandler) End(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req endRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	entry, err := h.service.End(r.Context(), userID, chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryResponse(entry))
}

// AddManual は開始・終了時刻を指定して終了済みエントリを登録する。
// POST /api/time-entries/manual
func (h *TimeEntryHandler) AddManual(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req manualEntryRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	start, err := parseTimeParam(req.StartTime, h.loc)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	end, err := parseTimeParam(req.EndTime, h.loc)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entry, err := h.service.AddManualEntry(r.Context(), timeentry.ManualEntryInput{
		UserID:    userID,
		TaskID:    req.TaskID,
		StartTime: start,
		EndTime:   end,
		Notes:     req.Notes,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryResponse(entry))
}

// AddVendorBulk はベンダーユーザーの1日分の作業時間を登録する。
// POST /api/time-entries/vendor-bulk
func (h *TimeEntryHandler) AddVendorBulk(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}

	var req vendorBulkRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.VendorUserID == "" || req.DurationMinutes == nil {
		middleware.WriteError(w, r, model.NewValidationError("vendor_user_idとduration_minutesは必須です"))
		return
	}
	date, err := parseTimeParam(req.Date, h.loc)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entry, err := h.service.AddVendorBulkEntry(r.Context(), timeentry.VendorEntryInput{
		VendorUserID:    req.VendorUserID,
		TaskID:          req.TaskID,
		Date:            date,
		DurationMinutes: *req.DurationMinutes,
		Notes:           req.Notes,
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTimeEntryResponse(entry))
}

// Delete はエントリを削除する。
// DELETE /api/time-entries/{id}
func (h *TimeEntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	entryID := chi.URLParam(r, "id")
	deleted, err := h.service.Delete(r.Context(), userID, entryID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if !deleted {
		middleware.WriteError(w, r, model.NewTimeEntryNotFoundError(entryID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetActive は進行中のエントリを返す。存在しない場合は204。
// GET /api/time-entries/active
func (h *TimeEntryHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	entry, err := h.service.GetActiveEntry(r.Context(), userID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toTimeEntryResponse(entry))
}

// List はエントリを開始時刻の降順で返す。
// GET /api/time-entries?from=&to=
func (h *TimeEntryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	from, err := parseOptionalTimeQuery(r, "from", h.loc)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	to, err := parseOptionalTimeQuery(r, "to", h.loc)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entries, err := h.service.ListUserEntries(r.Context(), userID, from, to)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]timeEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = toTimeEntryResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// longRunningCheckResponse は長時間検査の結果。アラートがなければalertはnull。
type longRunningCheckResponse struct {
	Alert *notificationResponse `json:"alert"`
}

// CheckLongRunning は呼び出したユーザーの進行中エントリを検査する。
// POST /api/time-entries/long-running/check?threshold_minutes=
func (h *TimeEntryHandler) CheckLongRunning(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	threshold := h.defaultThreshold
	if v := r.URL.Query().Get("threshold_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			middleware.WriteError(w, r, model.NewValidationError("threshold_minutesは正の整数で指定してください"))
			return
		}
		threshold = n
	}

	alert, err := h.checker.CheckLongRunning(r.Context(), userID, threshold)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	var resp longRunningCheckResponse
	if alert != nil {
		n := toNotificationResponse(alert)
		resp.Alert = &n
	}
	writeJSON(w, http.StatusOK, resp)
}
