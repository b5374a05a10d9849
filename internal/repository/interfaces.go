// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/wallxpress/internal/model"
)

// UserRepository はアカウントデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定UIDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する（大文字小文字を無視）。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithCredential はユーザーと資格情報を同一トランザクションで作成する。
	CreateWithCredential(ctx context.Context, user *model.User, cred *model.Credential) error

	// DeleteByID は指定UIDのユーザーを削除する。
	// 関連するcredentials、sessions、profiles、tasksはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// CredentialRepository は資格情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByUserID は指定ユーザーの資格情報を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)
}

// SessionRepository はセッショントークンの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Update はセッションの有効期限を更新する（トークンリフレッシュ用）。
	Update(ctx context.Context, session *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	// クリーンアップジョブ用。冪等。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ProfileRepository はプロフィールドキュメントの永続化インターフェース。
// UIDをキーとする1:1ドキュメントとして扱う。
type ProfileRepository interface {
	// FindByUID は指定UIDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUID(ctx context.Context, uid string) (*model.Profile, error)

	// Create はプロフィールを新規作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// Merge は指定されたフィールドのみを上書きするマージ書き込みを行い、
	// 更新後のプロフィール全体を返す。nilフィールドは既存の値を維持する。
	// プロフィールが存在しない場合はnilを返す。
	Merge(ctx context.Context, uid string, patch model.ProfilePatch) (*model.Profile, error)
}

// TaskRepository はタスクコレクションの永続化インターフェース。
type TaskRepository interface {
	// ListInOrder はタスク一覧をストアの格納順（作成順）で返す。
	// userIDが空でない場合は所有者でフィルタする。
	ListInOrder(ctx context.Context, userID string) ([]model.Task, error)

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// Create は新規タスクを作成し、ストアが採番したIDを返す。
	Create(ctx context.Context, task *model.Task) (string, error)

	// Update はID以外の全フィールドを置換する。
	// 対象が存在しない場合はTASK_NOT_FOUNDエラーを返す（呼び出し元へ伝播）。
	Update(ctx context.Context, id string, task *model.Task) error

	// Delete は指定IDのタスクを削除する。無条件削除のため冪等で、
	// 対象が存在しなくてもエラーにならない。
	Delete(ctx context.Context, id string) error
}
