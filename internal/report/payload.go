package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/timetrack/internal/model"
)

// レポートのparameters・report_data列に保存するJSONの形式。
// 既存のレポート閲覧側と互換を保つため、キーはPascalCaseで出力する。

// dayLayout は日別集計の日付形式。集計タイムゾーンの壁時計時刻をオフセットなしで出力する。
const dayLayout = "2006-01-02T15:04:05"

// MarshalJSON はDateをオフセットなしの日時文字列として出力する。
func (d DaySummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date         string `json:"Date"`
		TotalMinutes int    `json:"TotalMinutes"`
		EntryCount   int    `json:"EntryCount"`
	}{
		Date:         d.Date.Format(dayLayout),
		TotalMinutes: d.TotalMinutes,
		EntryCount:   d.EntryCount,
	})
}

type individualSummary struct {
	StartDate           time.Time `json:"StartDate"`
	EndDate             time.Time `json:"EndDate"`
	TotalTimeEntries    int       `json:"TotalTimeEntries"`
	TotalMinutes        int       `json:"TotalMinutes"`
	TotalHours          float64   `json:"TotalHours"`
	DailyAverageMinutes float64   `json:"DailyAverageMinutes"`
}

type individualData struct {
	Summary      individualSummary `json:"Summary"`
	TaskData     []TaskSummary     `json:"TaskData"`
	CategoryData []CategorySummary `json:"CategoryData"`
	DailyData    []DaySummary      `json:"DailyData"`
}

type departmentSummary struct {
	StartDate           time.Time `json:"StartDate"`
	EndDate             time.Time `json:"EndDate"`
	TotalTimeEntries    int       `json:"TotalTimeEntries"`
	TotalUsers          int       `json:"TotalUsers"`
	TotalMinutes        int       `json:"TotalMinutes"`
	TotalHours          float64   `json:"TotalHours"`
	DailyAverageMinutes float64   `json:"DailyAverageMinutes"`
}

type departmentData struct {
	Summary      departmentSummary `json:"Summary"`
	UserData     []UserSummary     `json:"UserData"`
	TaskData     []TaskSummary     `json:"TaskData"`
	CategoryData []CategorySummary `json:"CategoryData"`
	DailyData    []DaySummary      `json:"DailyData"`
}

type vendorSummary struct {
	VendorName          string    `json:"VendorName"`
	StartDate           time.Time `json:"StartDate"`
	EndDate             time.Time `json:"EndDate"`
	TotalTimeEntries    int       `json:"TotalTimeEntries"`
	TotalMinutes        int       `json:"TotalMinutes"`
	TotalHours          float64   `json:"TotalHours"`
	DailyAverageMinutes float64   `json:"DailyAverageMinutes"`
}

type vendorData struct {
	Summary   vendorSummary `json:"Summary"`
	UserData  []UserSummary `json:"UserData"`
	TaskData  []TaskSummary `json:"TaskData"`
	DailyData []DaySummary  `json:"DailyData"`
}

type parameters struct {
	StartDate    time.Time `json:"StartDate"`
	EndDate      time.Time `json:"EndDate"`
	UserID       string    `json:"UserId,omitempty"`
	DepartmentID string    `json:"DepartmentId,omitempty"`
	VendorName   string    `json:"VendorName,omitempty"`
}

// buildPayload はScopeの種別に応じたparametersとreport_dataのJSONを生成する。
func buildPayload(s Scope, w Window, res Result) (params string, data string, err error) {
	p := parameters{
		StartDate:    w.Start,
		EndDate:      w.End,
		UserID:       s.UserID,
		DepartmentID: s.DepartmentID,
		VendorName:   s.VendorName,
	}

	var body any
	switch s.Type {
	case model.ReportTypeIndividual:
		body = individualData{
			Summary: individualSummary{
				StartDate:           w.Start,
				EndDate:             w.End,
				TotalTimeEntries:    res.TotalEntries,
				TotalMinutes:        res.TotalMinutes,
				TotalHours:          res.TotalHours,
				DailyAverageMinutes: res.DailyAverageMinutes,
			},
			TaskData:     res.Tasks,
			CategoryData: res.Categories,
			DailyData:    res.Days,
		}
	case model.ReportTypeDepartment:
		body = departmentData{
			Summary: departmentSummary{
				StartDate:           w.Start,
				EndDate:             w.End,
				TotalTimeEntries:    res.TotalEntries,
				TotalUsers:          len(res.Users),
				TotalMinutes:        res.TotalMinutes,
				TotalHours:          res.TotalHours,
				DailyAverageMinutes: res.DailyAverageMinutes,
			},
			UserData:     res.Users,
			TaskData:     res.Tasks,
			CategoryData: res.Categories,
			DailyData:    res.Days,
		}
	case model.ReportTypeVendor:
		body = vendorData{
			Summary: vendorSummary{
				VendorName:          s.VendorName,
				StartDate:           w.Start,
				EndDate:             w.End,
				TotalTimeEntries:    res.TotalEntries,
				TotalMinutes:        res.TotalMinutes,
				TotalHours:          res.TotalHours,
				DailyAverageMinutes: res.DailyAverageMinutes,
			},
			UserData:  res.Users,
			TaskData:  res.Tasks,
			DailyData: res.Days,
		}
	default:
		return "", "", s.validate()
	}

	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("レポートパラメータのJSONエンコードに失敗しました: %w", err)
	}
	db, err := json.Marshal(body)
	if err != nil {
		return "", "", fmt.Errorf("レポートデータのJSONエンコードに失敗しました: %w", err)
	}
	return string(pb), string(db), nil
}
