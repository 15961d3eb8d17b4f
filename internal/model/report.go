// Package model はドメインモデルを定義する。
package model

import "time"

// ReportType はレポートの集計スコープ種別を表す。
type ReportType string

const (
	ReportTypeIndividual ReportType = "Individual"
	ReportTypeDepartment ReportType = "Department"
	ReportTypeVendor     ReportType = "Vendor"
)

// PeriodType はレポート期間の分類を表す。
type PeriodType string

const (
	PeriodTypeDaily   PeriodType = "Daily"
	PeriodTypeWeekly  PeriodType = "Weekly"
	PeriodTypeMonthly PeriodType = "Monthly"
	PeriodTypeCustom  PeriodType = "Custom"
)

// DefaultReportFormat はレポート形式の既定値。
const DefaultReportFormat = "PDF"

// Report は集計結果を保存したレポートを表す。
// Parameters と ReportData はJSON文字列として保存する。
type Report struct {
	ID           string
	Name         string
	Type         ReportType
	PeriodType   PeriodType
	StartDate    time.Time
	EndDate      time.Time
	UserID       *string
	DepartmentID *string
	TeamID       *string
	Parameters   string
	ReportData   string
	Format       string
	CreatedByID  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
