package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/wallxpress/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
// 画像参照はJSONBカラムとして保存する。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

func scanProfile(row *sql.Row) (*model.Profile, error) {
	profile := &model.Profile{}
	var imageJSON []byte
	err := row.Scan(&profile.UID, &profile.Name, &profile.Email, &imageJSON, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(imageJSON) > 0 {
		image := &model.ImageRef{}
		if err := json.Unmarshal(imageJSON, image); err != nil {
			return nil, fmt.Errorf("failed to unmarshal image ref: %w", err)
		}
		profile.Image = image
	}
	return profile, nil
}

// FindByUID は指定UIDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT uid, name, email, image, created_at, updated_at
		 FROM profiles WHERE uid = $1`,
		uid,
	)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}

// Create はプロフィールを新規作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	imageJSON, err := marshalImageRef(profile.Image)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO profiles (uid, name, email, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		profile.UID, profile.Name, profile.Email, imageJSON, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// Merge は指定されたフィールドのみを上書きするマージ書き込みを行い、
// 更新後のプロフィール全体を返す。nilフィールドは既存の値を維持する。
// プロフィールが存在しない場合はnilを返す。
func (r *PostgresProfileRepo) Merge(ctx context.Context, uid string, patch model.ProfilePatch) (*model.Profile, error) {
	var imageJSON []byte
	if patch.Image != nil {
		var err error
		imageJSON, err = marshalImageRef(patch.Image)
		if err != nil {
			return nil, err
		}
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE profiles
		 SET name       = COALESCE($2, name),
		     email      = COALESCE($3, email),
		     image      = COALESCE($4, image),
		     updated_at = now()
		 WHERE uid = $1
		 RETURNING uid, name, email, image, created_at, updated_at`,
		uid, patch.Name, patch.Email, imageJSON,
	)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to merge profile: %w", err)
	}
	return profile, nil
}

func marshalImageRef(image *model.ImageRef) ([]byte, error) {
	if image == nil {
		return nil, nil
	}
	data, err := json.Marshal(image)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image ref: %w", err)
	}
	return data, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
