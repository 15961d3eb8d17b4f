// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, conflict, not_found, state, auth, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryConflict   = "conflict"
	CategoryNotFound   = "not_found"
	CategoryState      = "state"
)

// 定義済みエラーコード
const (
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeNotExternalUser      = "NOT_EXTERNAL_USER"
	ErrCodeActiveEntryExists    = "ACTIVE_ENTRY_EXISTS"
	ErrCodeTimeEntryNotFound    = "TIME_ENTRY_NOT_FOUND"
	ErrCodeTaskNotFound         = "TASK_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeNoMembersInScope     = "NO_MEMBERS_IN_SCOPE"
	ErrCodeReportNotFound       = "REPORT_NOT_FOUND"
	ErrCodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	ErrCodeInvalidState         = "INVALID_STATE"
)

// NewValidationError は入力値不正エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。",
	}
}

// NewNotExternalUserError はベンダー一括入力の対象が社外ユーザーでない場合のエラーを生成する。
func NewNotExternalUserError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotExternalUser,
		Message:  fmt.Sprintf("指定されたユーザーはベンダーではありません: %s", userID),
		Category: CategoryValidation,
		Action:   "一括入力はベンダー（社外）ユーザーに対してのみ実行できます。",
	}
}

// NewActiveEntryExistsError は進行中の計測が既に存在する場合のエラーを生成する。
func NewActiveEntryExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeActiveEntryExists,
		Message:  "既に進行中の時間計測があります。",
		Category: CategoryConflict,
		Action:   "新しい計測を開始する前に、現在の計測を終了してください。",
	}
}

// NewTimeEntryNotFoundError は時間計測エントリ未検出エラーを生成する。
func NewTimeEntryNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeTimeEntryNotFound,
		Message:  fmt.Sprintf("指定された時間計測エントリが見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "エントリIDを確認してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "タスクIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("ユーザーが見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewNoMembersInScopeError は集計対象スコープに所属ユーザーがいない場合のエラーを生成する。
func NewNoMembersInScopeError(scope string) *APIError {
	return &APIError{
		Code:     ErrCodeNoMembersInScope,
		Message:  fmt.Sprintf("%sに所属するユーザーが見つかりません。", scope),
		Category: CategoryNotFound,
		Action:   "集計対象の部署またはベンダーを確認してください。",
	}
}

// NewReportNotFoundError はレポート未検出エラーを生成する。
func NewReportNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeReportNotFound,
		Message:  fmt.Sprintf("指定されたレポートが見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "レポートIDを確認してください。",
	}
}

// NewNotificationNotFoundError は通知未検出エラーを生成する。
func NewNotificationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotificationNotFound,
		Message:  fmt.Sprintf("指定された通知が見つかりません: %s", id),
		Category: CategoryNotFound,
		Action:   "通知IDを確認してください。",
	}
}

// NewInvalidStateError は現在の状態では許可されない遷移を要求された場合のエラーを生成する。
func NewInvalidStateError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  fmt.Sprintf("現在の状態では実行できません: %s", reason),
		Category: CategoryState,
		Action:   "時間計測の状態を確認してから再度お試しください。",
	}
}

// ErrorKind はエラーをログ・メトリクス用の安定したラベルに変換する。
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "unexpected"
	}
	switch apiErr.Category {
	case CategoryValidation:
		return "validation"
	case CategoryConflict:
		return "conflict"
	case CategoryNotFound:
		return "not_found"
	case CategoryState:
		return "invalid_state"
	default:
		return "unexpected"
	}
}

// HasCode はエラーチェーン中のAPIErrorが指定コードを持つかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
