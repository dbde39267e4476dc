package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/castman/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByProviderID は外部プロバイダIDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByProviderID(ctx context.Context, providerUserID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider_user_id, email, name, image_url, created_at, updated_at
		 FROM users WHERE provider_user_id = $1`,
		providerUserID,
	).Scan(&user.ID, &user.ProviderUserID, &user.Email, &user.Name, &user.ImageURL,
		&user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by provider ID: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
// provider_user_idの一意制約違反はUSER_ALREADY_EXISTSに変換する。
// 適用済みcreatedイベントの再配送を上書きで握りつぶさないための変換。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, provider_user_id, email, name, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.ProviderUserID, user.Email, user.Name, user.ImageURL,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.NewUserAlreadyExistsError(user.ProviderUserID)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateProfile はemailとimage_urlをパッチ更新する。
// 対象ユーザーが存在しない場合はfalseを返す。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, providerUserID, email, imageURL string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, image_url = $3, updated_at = now()
		 WHERE provider_user_id = $1`,
		providerUserID, email, imageURL,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByProviderID は外部プロバイダIDでユーザーを削除する。
// 対象ユーザーが存在しない場合はfalseを返す。
func (r *PostgresUserRepo) DeleteByProviderID(ctx context.Context, providerUserID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE provider_user_id = $1`,
		providerUserID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListAll は全ユーザーを作成順で返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, provider_user_id, email, name, image_url, created_at, updated_at
		 FROM users ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(&user.ID, &user.ProviderUserID, &user.Email, &user.Name,
			&user.ImageURL, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
