// Package profile はプロフィールドキュメントの同期を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/notify"
	"github.com/hitoshi/wallxpress/internal/repository"
)

// Uploader はローカル画像参照をリモート参照へ変換する。
type Uploader interface {
	Upload(ctx context.Context, localRef, ownerID string) (*model.ImageRef, error)
}

// Synchronizer はプロフィールドキュメントのローカルビューを
// リモートのドキュメントストアと同期する。
//
// 書き込みはすべてライトスルーで、コミット後にスナップショットが
// 購読者へ配信される。楽観的なローカルパッチは行わない。
type Synchronizer struct {
	profiles repository.ProfileRepository
	users    repository.UserRepository
	uploader Uploader

	mu   sync.Mutex
	hubs map[string]*notify.Hub[*model.Profile]

	// pubMu はマージ書き込みとスナップショット配信をひとまとめに
	// 直列化する。これを持たないと並行Save時に古いマージ結果が
	// 新しいものの後から配信され、購読者が停滞した表示のまま残る。
	pubMu sync.Mutex
}

// NewSynchronizer はSynchronizerを生成する。
func NewSynchronizer(profiles repository.ProfileRepository, users repository.UserRepository, uploader Uploader) *Synchronizer {
	return &Synchronizer{
		profiles: profiles,
		users:    users,
		uploader: uploader,
		hubs:     make(map[string]*notify.Hub[*model.Profile]),
	}
}

// hub は指定UIDのハブを返す。未作成なら作成する。
func (s *Synchronizer) hub(uid string) *notify.Hub[*model.Profile] {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[uid]
	if !ok {
		h = notify.NewHub[*model.Profile]()
		s.hubs[uid] = h
	}
	return h
}

// FetchOnce は指定UIDのプロフィールを取得する。
// ドキュメントが存在しない場合はデフォルト値（アイデンティティの表示名
// または"User"、プレースホルダー画像）で作成してから返す。
func (s *Synchronizer) FetchOnce(ctx context.Context, uid string) (*model.Profile, error) {
	profile, err := s.profiles.FindByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if profile != nil {
		return profile, nil
	}

	// 存在しない場合はデフォルトドキュメントを合成して永続化する
	name := model.DefaultProfileName
	email := ""
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity for default profile: %w", err)
	}
	if user != nil {
		if user.Name != "" {
			name = user.Name
		}
		email = user.Email
	}

	now := time.Now()
	profile = &model.Profile{
		UID:       uid,
		Name:      name,
		Email:     email,
		Image:     &model.ImageRef{URL: model.PlaceholderImageURL},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create default profile: %w", err)
	}

	slog.Info("default profile created", slog.String("uid", uid))
	return profile, nil
}

// Subscribe は指定UIDのプロフィール変化の購読を登録し、解除関数を返す。
// 登録時に初期スナップショットが同期配信され、以降は保存のたびに
// 新しいスナップショットが配信される。
//
// 初期取得が失敗した場合はSyncErrorがonErrorへ報告され、続けて
// 一回限りのフォールバック取得が試行される。フォールバックが成功すれば
// スナップショットはonChangeへ配信される。
func (s *Synchronizer) Subscribe(ctx context.Context, uid string, onChange func(*model.Profile), onError func(error)) func() {
	// 初期配信とSaveの配信が交錯しないよう、配信ロックの下で行う
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	unsubscribe := s.hub(uid).Subscribe(onChange)

	profile, err := s.FetchOnce(ctx, uid)
	if err != nil {
		onError(model.NewSyncError(err))
		// フォールバックの一括取得で表示の停滞を回避する
		profile, err = s.FetchOnce(ctx, uid)
		if err != nil {
			slog.Warn("fallback profile fetch failed",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
			return unsubscribe
		}
	}
	onChange(profile)

	return unsubscribe
}

// Save はマージ書き込みを行い、更新後のプロフィールを返す。
// patchのnilフィールドは既存の値を維持する。
//
// LocalImageURIが設定されている場合はアップロードパイプラインを先に実行し、
// 失敗した場合はプロフィールに触れずにUploadErrorを返す。
func (s *Synchronizer) Save(ctx context.Context, uid string, patch model.ProfilePatch) (*model.Profile, error) {
	if patch.LocalImageURI != "" {
		ref, err := s.uploader.Upload(ctx, patch.LocalImageURI, uid)
		if err != nil {
			return nil, err
		}
		patch.Image = ref
		patch.LocalImageURI = ""
	}

	// マージと配信をひとまとめに直列化する。並行Saveが許されるのは
	// アップロードまでで、それ以降は必ずこの順序で購読者へ届く。
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	merged, err := s.profiles.Merge(ctx, uid, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	if merged == nil {
		// ドキュメント未作成の状態からの保存: 先にデフォルトを作成する
		if _, err := s.FetchOnce(ctx, uid); err != nil {
			return nil, err
		}
		merged, err = s.profiles.Merge(ctx, uid, patch)
		if err != nil {
			return nil, fmt.Errorf("failed to save profile: %w", err)
		}
		if merged == nil {
			return nil, fmt.Errorf("profile disappeared during save: %s", uid)
		}
	}

	s.hub(uid).Publish(merged)
	return merged, nil
}
