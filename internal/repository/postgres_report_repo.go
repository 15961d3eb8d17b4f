package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/timetrack/internal/model"
)

const reportColumns = `id, name, type, period_type, start_date, end_date, user_id, department_id,
	team_id, parameters, report_data, format, created_by_id, created_at, updated_at`

// PostgresReportRepo はPostgreSQLを使用したレポートリポジトリ。
type PostgresReportRepo struct {
	db *sql.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sql.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

func scanReport(s rowScanner) (*model.Report, error) {
	rep := &model.Report{}
	var userID, departmentID, teamID sql.NullString
	if err := s.Scan(
		&rep.ID, &rep.Name, &rep.Type, &rep.PeriodType, &rep.StartDate, &rep.EndDate,
		&userID, &departmentID, &teamID, &rep.Parameters, &rep.ReportData, &rep.Format,
		&rep.CreatedByID, &rep.CreatedAt, &rep.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rep.UserID = nullStringPtr(userID)
	rep.DepartmentID = nullStringPtr(departmentID)
	rep.TeamID = nullStringPtr(teamID)
	return rep, nil
}

// Create はレポートを作成する。
func (r *PostgresReportRepo) Create(ctx context.Context, rep *model.Report) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rep.ID, rep.Name, rep.Type, rep.PeriodType, rep.StartDate, rep.EndDate,
		rep.UserID, rep.DepartmentID, rep.TeamID, rep.Parameters, rep.ReportData, rep.Format,
		rep.CreatedByID, rep.CreatedAt, rep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レポートの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのレポートを取得する。見つからない場合はnilを返す。
func (r *PostgresReportRepo) FindByID(ctx context.Context, id string) (*model.Report, error) {
	if !isUUID(id) {
		return nil, nil
	}
	rep, err := scanReport(r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レポートの取得に失敗しました: %w", err)
	}
	return rep, nil
}

// Update はレポートの名称・形式・集計結果を更新する。
func (r *PostgresReportRepo) Update(ctx context.Context, rep *model.Report) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reports
		 SET name = $2, format = $3, parameters = $4, report_data = $5, updated_at = $6
		 WHERE id = $1`,
		rep.ID, rep.Name, rep.Format, rep.Parameters, rep.ReportData, rep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レポートの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewReportNotFoundError(rep.ID)
	}
	return nil
}

// Delete は指定IDのレポートを削除する。
func (r *PostgresReportRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("レポートの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListForUser はユーザーが作成した、またはユーザーを対象とするレポートを新しい順に返す。
func (r *PostgresReportRepo) ListForUser(ctx context.Context, userID string) ([]*model.Report, error) {
	return r.list(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE created_by_id = $1 OR user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
}

// ListByDepartment は部署のレポート一覧を新しい順に返す。
func (r *PostgresReportRepo) ListByDepartment(ctx context.Context, departmentID string) ([]*model.Report, error) {
	if !isUUID(departmentID) {
		return []*model.Report{}, nil
	}
	return r.list(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE department_id = $1
		 ORDER BY created_at DESC`,
		departmentID,
	)
}

// ListByTeam はチームのレポート一覧を新しい順に返す。
func (r *PostgresReportRepo) ListByTeam(ctx context.Context, teamID string) ([]*model.Report, error) {
	if !isUUID(teamID) {
		return []*model.Report{}, nil
	}
	return r.list(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE team_id = $1
		 ORDER BY created_at DESC`,
		teamID,
	)
}

func (r *PostgresReportRepo) list(ctx context.Context, query string, args ...any) ([]*model.Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("レポート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("レポート行の読み取りに失敗しました: %w", err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レポート一覧の走査に失敗しました: %w", err)
	}
	return reports, nil
}

// compile-time interface check
var _ ReportRepository = (*PostgresReportRepo)(nil)
