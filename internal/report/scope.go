package report

import (
	"context"
	"fmt"

	"github.com/hitoshi/timetrack/internal/model"
	"github.com/hitoshi/timetrack/internal/repository"
)

// Scope は集計対象の範囲。Typeに応じてUserID・DepartmentID・VendorNameのいずれかを使う。
type Scope struct {
	Type         model.ReportType
	UserID       string
	DepartmentID string
	VendorName   string
}

// IndividualScope は個人を対象とするScopeを返す。
func IndividualScope(userID string) Scope {
	return Scope{Type: model.ReportTypeIndividual, UserID: userID}
}

// DepartmentScope は部署の社内ユーザーを対象とするScopeを返す。
func DepartmentScope(departmentID string) Scope {
	return Scope{Type: model.ReportTypeDepartment, DepartmentID: departmentID}
}

// VendorScope はベンダーのユーザーを対象とするScopeを返す。
func VendorScope(vendorName string) Scope {
	return Scope{Type: model.ReportTypeVendor, VendorName: vendorName}
}

// validate はScopeの必須項目を検証する。
func (s Scope) validate() error {
	switch s.Type {
	case model.ReportTypeIndividual:
		if s.UserID == "" {
			return model.NewValidationError("ユーザーIDは必須です")
		}
	case model.ReportTypeDepartment:
		if s.DepartmentID == "" {
			return model.NewValidationError("部署IDは必須です")
		}
	case model.ReportTypeVendor:
		if s.VendorName == "" {
			return model.NewValidationError("ベンダー名は必須です")
		}
	default:
		return model.NewValidationError(fmt.Sprintf("未対応のレポート種別です: %s", s.Type))
	}
	return nil
}

// resolveMembers はScopeを集計対象ユーザーの一覧に解決する。
// 部署・ベンダーに所属ユーザーがいない場合はNO_MEMBERS_IN_SCOPEを返す。
func resolveMembers(ctx context.Context, users repository.UserRepository, s Scope) ([]*model.User, error) {
	switch s.Type {
	case model.ReportTypeIndividual:
		u, err := users.FindByID(ctx, s.UserID)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if u == nil {
			return nil, model.NewUserNotFoundError(s.UserID)
		}
		return []*model.User{u}, nil

	case model.ReportTypeDepartment:
		members, err := users.ListByDepartment(ctx, s.DepartmentID)
		if err != nil {
			return nil, fmt.Errorf("部署ユーザーの取得に失敗しました: %w", err)
		}
		if len(members) == 0 {
			return nil, model.NewNoMembersInScopeError("部署")
		}
		return members, nil

	case model.ReportTypeVendor:
		members, err := users.ListByVendorName(ctx, s.VendorName)
		if err != nil {
			return nil, fmt.Errorf("ベンダーユーザーの取得に失敗しました: %w", err)
		}
		if len(members) == 0 {
			return nil, model.NewNoMembersInScopeError("ベンダー")
		}
		return members, nil
	}
	return nil, s.validate()
}

func memberIDs(members []*model.User) []string {
	ids := make([]string, len(members))
	for i, u := range members {
		ids[i] = u.ID
	}
	return ids
}
