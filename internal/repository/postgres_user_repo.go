package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/timetrack/internal/model"
)

const userColumns = `id, email, full_name, is_internal, vendor_name, department_id, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(s rowScanner) (*model.User, error) {
	user := &model.User{}
	var vendorName, departmentID sql.NullString
	if err := s.Scan(
		&user.ID, &user.Email, &user.FullName, &user.IsInternal,
		&vendorName, &departmentID, &user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.VendorName = nullStringPtr(vendorName)
	user.DepartmentID = nullStringPtr(departmentID)
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// ListByDepartment は部署に所属する社内ユーザー一覧を返す。
func (r *PostgresUserRepo) ListByDepartment(ctx context.Context, departmentID string) ([]*model.User, error) {
	if !isUUID(departmentID) {
		return []*model.User{}, nil
	}
	return r.list(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE department_id = $1 AND is_internal = true
		 ORDER BY full_name ASC`,
		departmentID,
	)
}

// ListByVendorName は指定ベンダーに所属する外部ユーザー一覧を返す。
func (r *PostgresUserRepo) ListByVendorName(ctx context.Context, vendorName string) ([]*model.User, error) {
	return r.list(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE vendor_name = $1 AND is_internal = false
		 ORDER BY full_name ASC`,
		vendorName,
	)
}

func (r *PostgresUserRepo) list(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

// nullStringPtr はsql.NullStringを*stringに変換する。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
