package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/timetrack/internal/middleware"
	"github.com/hitoshi/timetrack/internal/model"
)

// ReportServiceInterface はレポートハンドラーが必要とするサービスインターフェース。
type ReportServiceInterface interface {
	GenerateIndividual(ctx context.Context, userID, creatorID string, start, end time.Time, name, format string) (*model.Report, error)
	GenerateDepartment(ctx context.Context, departmentID, creatorID string, start, end time.Time, name, format string) (*model.Report, error)
	GenerateVendor(ctx context.Context, vendorName, creatorID string, start, end time.Time, name, format string) (*model.Report, error)
	Get(ctx context.Context, id string) (*model.Report, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Report, error)
	ListForDepartment(ctx context.Context, departmentID string) ([]*model.Report, error)
	ListForTeam(ctx context.Context, teamID string) ([]*model.Report, error)
	Rename(ctx context.Context, id, name, format string) (*model.Report, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ReportHandler はレポートのHTTPハンドラー。
type ReportHandler struct {
	service ReportServiceInterface
	loc     *time.Location
}

// NewReportHandler はReportHandlerを生成する。
func NewReportHandler(service ReportServiceInterface) *ReportHandler {
	return &ReportHandler{service: service, loc: time.Local}
}

// reportResponse はレポートのAPIレスポンス。
// parametersとreport_dataは保存済みのJSONをそのまま埋め込む。
type reportResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	PeriodType   string          `json:"period_type"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      time.Time       `json:"end_date"`
	UserID       *string         `json:"user_id,omitempty"`
	DepartmentID *string         `json:"department_id,omitempty"`
	TeamID       *string         `json:"team_id,omitempty"`
	Parameters   json.RawMessage `json:"parameters"`
	ReportData   json.RawMessage `json:"report_data,omitempty"`
	Format       string          `json:"format"`
	CreatedByID  string          `json:"created_by_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func rawJSON(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

// toReportResponse はレポートをレスポンスに変換する。
// 一覧ではwithDataをfalseにして集計データを省く。
func toReportResponse(rep *model.Report, withData bool) reportResponse {
	resp := reportResponse{
		ID:           rep.ID,
		Name:         rep.Name,
		Type:         string(rep.Type),
		PeriodType:   string(rep.PeriodType),
		StartDate:    rep.StartDate,
		EndDate:      rep.EndDate,
		UserID:       rep.UserID,
		DepartmentID: rep.DepartmentID,
		TeamID:       rep.TeamID,
		Parameters:   rawJSON(rep.Parameters),
		Format:       rep.Format,
		CreatedByID:  rep.CreatedByID,
		CreatedAt:    rep.CreatedAt,
		UpdatedAt:    rep.UpdatedAt,
	}
	if withData {
		resp.ReportData = rawJSON(rep.ReportData)
	}
	return resp
}

type generateReportRequest struct {
	UserID       string `json:"user_id"`
	DepartmentID string `json:"department_id"`
	VendorName   string `json:"vendor_name"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Name         string `json:"name"`
	Format       string `json:"format"`
}

type renameReportRequest struct {
	Name   string `json:"name"`
	Format string `json:"format"`
}

// generateFunc はスコープIDを受け取ってレポートを生成する関数。
type generateFunc func(ctx context.Context, scopeID, creatorID string, start, end time.Time, name, format string) (*model.Report, error)

func (h *ReportHandler) generate(w http.ResponseWriter, r *http.Request, scopeOf func(req generateReportRequest, caller string) string, gen generateFunc) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req generateReportRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	start, err := parseTimeParam(req.StartDate, h.loc)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	end, err := parseTimeParam(req.EndDate, h.loc)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	rep, err := gen(r.Context(), scopeOf(req, userID), userID, start, end, req.Name, req.Format)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportResponse(rep, true))
}

// GenerateIndividual は個人レポートを生成する。user_id省略時は呼び出したユーザーが対象。
// POST /api/reports/individual
func (h *ReportHandler) GenerateIndividual(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, func(req generateReportRequest, caller string) string {
		if req.UserID == "" {
			return caller
		}
		return req.UserID
	}, h.service.GenerateIndividual)
}

// GenerateDepartment は部署レポートを生成する。
// POST /api/reports/department
func (h *ReportHandler) GenerateDepartment(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, func(req generateReportRequest, _ string) string {
		return req.DepartmentID
	}, h.service.GenerateDepartment)
}

// GenerateVendor はベンダーレポートを生成する。
// POST /api/reports/vendor
func (h *ReportHandler) GenerateVendor(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, func(req generateReportRequest, _ string) string {
		return req.VendorName
	}, h.service.GenerateVendor)
}

// Get はレポートを集計データ付きで返す。
// GET /api/reports/{id}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}

	rep, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rep, true))
}

// List はレポート一覧を返す。
// department_id または team_id の指定がなければ、呼び出したユーザーが作成したか対象になっているレポートを返す。
// GET /api/reports?department_id=&team_id=
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var (
		reps []*model.Report
		err  error
	)
	switch {
	case q.Get("department_id") != "":
		reps, err = h.service.ListForDepartment(r.Context(), q.Get("department_id"))
	case q.Get("team_id") != "":
		reps, err = h.service.ListForTeam(r.Context(), q.Get("team_id"))
	default:
		reps, err = h.service.ListForUser(r.Context(), userID)
	}
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	resp := make([]reportResponse, len(reps))
	for i, rep := range reps {
		resp[i] = toReportResponse(rep, false)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Update はレポート名・形式を変更する。
// PATCH /api/reports/{id}
func (h *ReportHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}

	var req renameReportRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	rep, err := h.service.Rename(r.Context(), chi.URLParam(r, "id"), req.Name, req.Format)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(rep, false))
}

// Delete はレポートを削除する。
// DELETE /api/reports/{id}
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUserID(w, r); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if !deleted {
		middleware.WriteError(w, r, model.NewReportNotFoundError(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
