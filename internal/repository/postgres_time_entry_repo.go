package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/timetrack/internal/model"
)

// activeEntryIndexName は進行中エントリを1ユーザー1件に制限する部分一意インデックス名。
const activeEntryIndexName = "idx_time_entries_one_active_per_user"

// pgUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pgUniqueViolation = "23505"

const timeEntryColumns = `id, user_id, task_id, start_time, end_time, pause_duration_minutes,
	is_paused, pause_start_time, COALESCE(notes, ''), is_manual_entry, created_at, updated_at`

// aliasedTimeEntryColumns はエイリアスteを付与したtimeEntryColumns。
const aliasedTimeEntryColumns = `te.id, te.user_id, te.task_id, te.start_time, te.end_time, te.pause_duration_minutes,
	te.is_paused, te.pause_start_time, COALESCE(te.notes, ''), te.is_manual_entry, te.created_at, te.updated_at`

// PostgresTimeEntryRepo はPostgreSQLを使用した時間計測エントリリポジトリ。
type PostgresTimeEntryRepo struct {
	db *sql.DB
}

// NewPostgresTimeEntryRepo はPostgresTimeEntryRepoを生成する。
func NewPostgresTimeEntryRepo(db *sql.DB) *PostgresTimeEntryRepo {
	return &PostgresTimeEntryRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeEntry(s rowScanner, extra ...any) (*model.TimeEntry, error) {
	e := &model.TimeEntry{}
	var endTime, pauseStart sql.NullTime
	dest := []any{
		&e.ID, &e.UserID, &e.TaskID, &e.StartTime, &endTime, &e.PauseDurationMinutes,
		&e.IsPaused, &pauseStart, &e.Notes, &e.IsManualEntry, &e.CreatedAt, &e.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		e.EndTime = &t
	}
	if pauseStart.Valid {
		t := pauseStart.Time
		e.PauseStartTime = &t
	}
	return e, nil
}

// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresTimeEntryRepo) FindByID(ctx context.Context, id string) (*model.TimeEntry, error) {
	if !isUUID(id) {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = $1`,
		id,
	)
	e, err := scanTimeEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("時間計測エントリの取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindActiveByUserID はユーザーの進行中エントリを取得する。見つからない場合はnilを返す。
func (r *PostgresTimeEntryRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.TimeEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE user_id = $1 AND end_time IS NULL`,
		userID,
	)
	e, err := scanTimeEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("進行中エントリの取得に失敗しました: %w", err)
	}
	return e, nil
}

// Create はエントリを作成する。
// 部分一意インデックス違反は進行中エントリの重複としてAPIErrorに変換する。
func (r *PostgresTimeEntryRepo) Create(ctx context.Context, e *model.TimeEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO time_entries (id, user_id, task_id, start_time, end_time, pause_duration_minutes,
			is_paused, pause_start_time, notes, is_manual_entry, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)`,
		e.ID, e.UserID, e.TaskID, e.StartTime, e.EndTime, e.PauseDurationMinutes,
		e.IsPaused, e.PauseStartTime, e.Notes, e.IsManualEntry, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isActiveEntryViolation(err) {
			return model.NewActiveEntryExistsError()
		}
		return fmt.Errorf("時間計測エントリの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は進行中エントリの状態を更新する。
// prevUpdatedAtは読み取り時点のupdated_at。終了済み、または読み取り後に他のプロセスが
// 更新したエントリは変更せずINVALID_STATEを返す。
func (r *PostgresTimeEntryRepo) Update(ctx context.Context, e *model.TimeEntry, prevUpdatedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE time_entries
		 SET end_time = $2, pause_duration_minutes = $3, is_paused = $4,
		     pause_start_time = $5, notes = NULLIF($6, ''), updated_at = $7
		 WHERE id = $1 AND end_time IS NULL AND updated_at = $8`,
		e.ID, e.EndTime, e.PauseDurationMinutes, e.IsPaused, e.PauseStartTime, e.Notes, e.UpdatedAt,
		prevUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("時間計測エントリの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewInvalidStateError("エントリは既に終了しているか、他の操作で更新されています")
	}
	return nil
}

// Delete は指定IDのエントリを削除する。
func (r *PostgresTimeEntryRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("時間計測エントリの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// List は条件に一致するエントリをstart_time降順で返す。
func (r *PostgresTimeEntryRepo) List(ctx context.Context, filter model.TimeEntryFilter) ([]*model.TimeEntry, error) {
	where, args := buildEntryWhere(filter)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+aliasedTimeEntryColumns+`
		 FROM time_entries te
		 JOIN users u ON u.id = te.user_id`+where+`
		 ORDER BY te.start_time DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("時間計測エントリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("時間計測エントリ行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("時間計測エントリ一覧の走査に失敗しました: %w", err)
	}
	return entries, nil
}

// ListDetails は条件に一致するエントリをタスク名・カテゴリ名・ユーザー名付きで返す。
func (r *PostgresTimeEntryRepo) ListDetails(ctx context.Context, filter model.TimeEntryFilter) ([]model.TimeEntryDetail, error) {
	where, args := buildEntryWhere(filter)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+aliasedTimeEntryColumns+`, t.name, COALESCE(c.name, ''), u.full_name
		 FROM time_entries te
		 JOIN users u ON u.id = te.user_id
		 JOIN tasks t ON t.id = te.task_id
		 LEFT JOIN task_categories c ON c.id = t.category_id`+where+`
		 ORDER BY te.start_time ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("集計用エントリの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var details []model.TimeEntryDetail
	for rows.Next() {
		var d model.TimeEntryDetail
		e, err := scanTimeEntry(rows, &d.TaskName, &d.CategoryName, &d.UserName)
		if err != nil {
			return nil, fmt.Errorf("集計用エントリ行の読み取りに失敗しました: %w", err)
		}
		d.TimeEntry = *e
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("集計用エントリの走査に失敗しました: %w", err)
	}
	return details, nil
}

// ListRunningEntries は一時停止していない進行中エントリのIDと所有ユーザーを返す。
func (r *PostgresTimeEntryRepo) ListRunningEntries(ctx context.Context) ([]model.RunningEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id FROM time_entries
		 WHERE end_time IS NULL AND is_paused = false
		 ORDER BY start_time ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("計測中エントリの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var running []model.RunningEntry
	for rows.Next() {
		var re model.RunningEntry
		if err := rows.Scan(&re.EntryID, &re.UserID); err != nil {
			return nil, fmt.Errorf("計測中エントリ行の読み取りに失敗しました: %w", err)
		}
		running = append(running, re)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("計測中エントリの走査に失敗しました: %w", err)
	}
	return running, nil
}

// buildEntryWhere はTimeEntryFilterからWHERE句とバインド引数を構築する。
// te（time_entries）とu（users）のエイリアスを前提とする。
func buildEntryWhere(filter model.TimeEntryFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(filter.UserIDs) > 0 {
		add("te.user_id = ANY($%d)", pq.Array(filter.UserIDs))
	}
	if filter.TaskID != "" {
		add("te.task_id = $%d", filter.TaskID)
	}
	if filter.DepartmentID != "" {
		add("u.department_id = $%d", filter.DepartmentID)
	}
	if filter.VendorName != "" {
		add("u.vendor_name = $%d AND u.is_internal = false", filter.VendorName)
	}
	if filter.StartFrom != nil {
		add("te.start_time >= $%d", *filter.StartFrom)
	}
	if filter.StartTo != nil {
		add("te.start_time <= $%d", *filter.StartTo)
	}
	if filter.ClosedOnly {
		conds = append(conds, "te.end_time IS NOT NULL")
	}

	if len(conds) == 0 {
		return "", args
	}
	return "\n\t\t WHERE " + strings.Join(conds, " AND "), args
}

// isActiveEntryViolation は進行中エントリの部分一意インデックス違反かを判定する。
func isActiveEntryViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if string(pqErr.Code) != pgUniqueViolation {
		return false
	}
	return pqErr.Constraint == "" || pqErr.Constraint == activeEntryIndexName
}

// compile-time interface check
var _ TimeEntryRepository = (*PostgresTimeEntryRepo)(nil)
