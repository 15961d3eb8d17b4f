// Package report は終了済みの時間計測エントリを集計し、レポートとして保存する機能を提供する。
package report

import (
	"math"
	"sort"
	"time"

	"github.com/hitoshi/timetrack/internal/model"
)

// TaskSummary はタスク別の集計結果。
type TaskSummary struct {
	TaskID       string `json:"TaskId"`
	TaskName     string `json:"TaskName"`
	CategoryName string `json:"CategoryName"`
	TotalMinutes int    `json:"TotalMinutes"`
	Count        int    `json:"Count"`
}

// CategorySummary はカテゴリ別の集計結果。
type CategorySummary struct {
	CategoryName string `json:"CategoryName"`
	TotalMinutes int    `json:"TotalMinutes"`
	TaskCount    int    `json:"TaskCount"`
}

// UserSummary はユーザー別の集計結果。
type UserSummary struct {
	UserID       string `json:"UserId"`
	UserName     string `json:"UserName"`
	TotalMinutes int    `json:"TotalMinutes"`
	EntryCount   int    `json:"EntryCount"`
}

// DaySummary は日別の集計結果。Dateは集計タイムゾーンでの0時。
type DaySummary struct {
	Date         time.Time `json:"Date"`
	TotalMinutes int       `json:"TotalMinutes"`
	EntryCount   int       `json:"EntryCount"`
}

// Window は集計期間。開始・終了ともに含む。
type Window struct {
	Start time.Time
	End   time.Time
}

// Days は期間の日数（端数を含む）に1を加えた値を返す。
func (w Window) Days() float64 {
	return w.End.Sub(w.Start).Hours()/24 + 1
}

// Contains はtが期間内にあるかを返す。
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// PeriodType は期間の長さからレポートの期間種別を判定する。
func (w Window) PeriodType() model.PeriodType {
	days := w.End.Sub(w.Start).Hours() / 24
	switch {
	case days <= 1:
		return model.PeriodTypeDaily
	case days <= 7:
		return model.PeriodTypeWeekly
	case days <= 31:
		return model.PeriodTypeMonthly
	default:
		return model.PeriodTypeCustom
	}
}

// Result は集計結果全体。
type Result struct {
	TotalEntries        int
	TotalMinutes        int
	TotalHours          float64
	DailyAverageMinutes float64
	Tasks               []TaskSummary
	Categories          []CategorySummary
	Users               []UserSummary
	Days                []DaySummary
}

// Aggregate は期間内に開始した終了済みエントリを集計する。
// 計測中のエントリと期間外のエントリは無視する。
// 同じ分数の項目は最初に現れた順序を保つ。
func Aggregate(entries []model.TimeEntryDetail, w Window) Result {
	loc := w.Start.Location()

	var (
		tasks   []TaskSummary
		users   []UserSummary
		days    []DaySummary
		taskIdx = map[string]int{}
		userIdx = map[string]int{}
		dayIdx  = map[time.Time]int{}
		res     Result
	)

	for i := range entries {
		e := &entries[i]
		if e.EndTime == nil || !w.Contains(e.StartTime) {
			continue
		}
		minutes := 0
		if d := e.DurationMinutes(); d != nil {
			minutes = *d
		}
		res.TotalEntries++
		res.TotalMinutes += minutes

		if j, ok := taskIdx[e.TaskID]; ok {
			tasks[j].TotalMinutes += minutes
			tasks[j].Count++
		} else {
			taskIdx[e.TaskID] = len(tasks)
			tasks = append(tasks, TaskSummary{
				TaskID:       e.TaskID,
				TaskName:     e.TaskName,
				CategoryName: e.CategoryName,
				TotalMinutes: minutes,
				Count:        1,
			})
		}

		if j, ok := userIdx[e.UserID]; ok {
			users[j].TotalMinutes += minutes
			users[j].EntryCount++
		} else {
			userIdx[e.UserID] = len(users)
			users = append(users, UserSummary{
				UserID:       e.UserID,
				UserName:     e.UserName,
				TotalMinutes: minutes,
				EntryCount:   1,
			})
		}

		day := dateOf(e.StartTime, loc)
		if j, ok := dayIdx[day]; ok {
			days[j].TotalMinutes += minutes
			days[j].EntryCount++
		} else {
			dayIdx[day] = len(days)
			days = append(days, DaySummary{Date: day, TotalMinutes: minutes, EntryCount: 1})
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].TotalMinutes > tasks[j].TotalMinutes })
	sort.SliceStable(users, func(i, j int) bool { return users[i].TotalMinutes > users[j].TotalMinutes })
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	res.Tasks = nonNil(tasks)
	res.Categories = summarizeCategories(res.Tasks)
	res.Users = nonNil(users)
	res.Days = nonNil(days)
	res.TotalHours = round1(float64(res.TotalMinutes) / 60)
	if res.TotalEntries > 0 {
		res.DailyAverageMinutes = round1(float64(res.TotalMinutes) / w.Days())
	}
	return res
}

// summarizeCategories はタスク別集計をカテゴリ名でまとめる。
func summarizeCategories(tasks []TaskSummary) []CategorySummary {
	categories := []CategorySummary{}
	idx := map[string]int{}
	for _, t := range tasks {
		if j, ok := idx[t.CategoryName]; ok {
			categories[j].TotalMinutes += t.TotalMinutes
			categories[j].TaskCount++
			continue
		}
		idx[t.CategoryName] = len(categories)
		categories = append(categories, CategorySummary{
			CategoryName: t.CategoryName,
			TotalMinutes: t.TotalMinutes,
			TaskCount:    1,
		})
	}
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].TotalMinutes > categories[j].TotalMinutes
	})
	return categories
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// round1 は小数第1位に丸める（0.5は0から遠い方へ）。
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
