// Package model はドメインモデルを定義する。
package model

import "time"

// User は時間計測の対象となる利用者を表す。
// 社内ユーザーは部署に所属し、社外（ベンダー）ユーザーはベンダー名を持つ。
type User struct {
	ID           string
	Email        string
	FullName     string
	IsInternal   bool
	VendorName   *string // ベンダーユーザーの場合のみ
	DepartmentID *string // 社内ユーザーの場合のみ
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExternal はベンダー（社外）ユーザーかどうかを返す。
func (u *User) IsExternal() bool {
	return !u.IsInternal
}

// Department は部署を表す。
type Department struct {
	ID          string
	Name        string
	Code        string
	Description string
}

// Team は部署配下のチームを表す。
type Team struct {
	ID           string
	Name         string
	Description  string
	DepartmentID string
}

// Session はユーザーのログインセッションを表す。
// セッションは外部の認証基盤が発行し、本サービスは参照のみ行う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
