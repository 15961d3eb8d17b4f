// Package duration は作業時間（分）の算出を行う純粋関数を提供する。
// 開始・終了時刻と一時停止の累積分から正味の作業時間を求める。
package duration

import "time"

// WholeMinutes は期間を分単位に切り捨てて返す。
// 負の期間は0方向に切り捨てる（-90秒は-1分）。
func WholeMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

// NetMinutes は正味の作業時間（分）を返す。
// endがnilの場合（計測中）はnilを返す。
// 経過分から一時停止分を差し引き、負の値は0に丸める。
func NetMinutes(start time.Time, end *time.Time, pauseMinutes int) *int {
	if end == nil {
		return nil
	}
	net := clamp(WholeMinutes(end.Sub(start)) - pauseMinutes)
	return &net
}

// ElapsedMinutes は計測中エントリのnow時点での経過作業時間（分）を返す。
// 終了時刻をnowに置き換えてNetMinutesと同じ規則で計算する。
// エントリ自体は変更しない。
func ElapsedMinutes(start, now time.Time, pauseMinutes int) int {
	return clamp(WholeMinutes(now.Sub(start)) - pauseMinutes)
}

func clamp(minutes int) int {
	if minutes < 0 {
		return 0
	}
	return minutes
}
