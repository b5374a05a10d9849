// Package session はプロセス全体で共有される現在アイデンティティの
// 単一の保持者（セッションストア）を提供する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/wallxpress/internal/auth"
	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/notify"
	"github.com/hitoshi/wallxpress/internal/repository"
)

// Authenticator はストアが利用するIDプロバイダーのインターフェース。
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	SignUp(ctx context.Context, email, password, name string) (*model.User, *model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	DeleteAccount(ctx context.Context, userID string) error
	RefreshSession(ctx context.Context, sessionID string) error
	SubscribeEvents(fn func(model.AuthEvent)) func()
}

var _ Authenticator = (*auth.Provider)(nil)

// authEventEnvelope はイベントと適用完了通知をまとめる。
type authEventEnvelope struct {
	event   model.AuthEvent
	applied chan struct{}
}

// Store は現在のアイデンティティを保持し、変化を購読者へ配信する。
//
// IDプロバイダーからの認証イベントは単一の消費goroutineで直列化され、
// 状態更新と購読者への通知が常にイベント到着順で行われる。
// 購読者への配信は同期的なため、イベント順序がそのまま観測順序になる。
type Store struct {
	provider Authenticator
	profiles repository.ProfileRepository

	mu      sync.RWMutex
	current *model.User
	session *model.Session
	loading bool

	hub         *notify.Hub[*model.User]
	events      chan authEventEnvelope
	done        chan struct{}
	unsubscribe func()
	closeOnce   sync.Once
}

// NewStore はStoreを生成する。Startを呼ぶまでイベントは処理されない。
func NewStore(provider Authenticator, profiles repository.ProfileRepository) *Store {
	return &Store{
		provider: provider,
		profiles: profiles,
		loading:  true,
		hub:      notify.NewHub[*model.User](),
		events:   make(chan authEventEnvelope),
		done:     make(chan struct{}),
	}
}

// Start はイベント消費goroutineを起動し、初期状態を解決する。
// 初期状態の解決が完了するとIsLoadingはfalseを返すようになる。
func (s *Store) Start() {
	s.unsubscribe = s.provider.SubscribeEvents(func(e model.AuthEvent) {
		env := authEventEnvelope{event: e, applied: make(chan struct{})}
		select {
		case s.events <- env:
			<-env.applied
		case <-s.done:
		}
	})

	go s.consume()

	// デーモン起動時は常にサインアウト状態から始まる
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

// Close はイベント処理を停止する。以降のイベントは配信されない。
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.done)
	})
}

// consume は認証イベントを到着順に適用する唯一のgoroutine。
func (s *Store) consume() {
	for {
		select {
		case env := <-s.events:
			s.apply(env.event)
			close(env.applied)
		case <-s.done:
			return
		}
	}
}

// apply はイベントを状態に反映し、購読者へ新しいスナップショットを配信する。
func (s *Store) apply(e model.AuthEvent) {
	s.mu.Lock()
	switch e.Kind {
	case model.AuthEventSignedIn:
		s.current = e.User
	case model.AuthEventSignedOut:
		s.current = nil
		s.session = nil
	}
	snapshot := s.current
	s.mu.Unlock()

	s.hub.Publish(snapshot)
}

// Current は現在のアイデンティティを返す。サインアウト中はnil。
func (s *Store) Current() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsLoading は初期状態の解決が完了するまでtrueを返す。
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SessionID は現在のセッショントークンIDを返す。サインアウト中は空文字。
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}

// Subscribe はアイデンティティ変化の購読を登録し、解除関数を返す。
// 登録時点の現在値が直ちに同期配信され、以降は変化のたびに配信される。
// 解除関数は配信中の呼び出しが完了するまでブロックするため、
// 解除後にコールバックが呼ばれることはない。
func (s *Store) Subscribe(fn func(*model.User)) func() {
	unsubscribe := s.hub.Subscribe(fn)
	fn(s.Current())
	return unsubscribe
}

// SignIn は資格情報でサインインする。
// 成功時、戻り値が返る時点でCurrentは新しいアイデンティティを反映している。
// 失敗時は状態を変更しない。
func (s *Store) SignIn(ctx context.Context, email, password string) (*model.User, error) {
	user, sess, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	return user, nil
}

// SignUp は新規アカウントを作成し、プロフィールドキュメントを初期化する。
// プロフィール作成に失敗した場合はアカウントをベストエフォートで削除し、
// 孤児アカウントを残さない。
func (s *Store) SignUp(ctx context.Context, email, password, name string) (*model.User, error) {
	user, sess, err := s.provider.SignUp(ctx, email, password, name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	profile := &model.Profile{
		UID:       user.UID,
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		slog.Error("failed to create profile, rolling back account",
			slog.String("user_id", user.UID),
			slog.String("error", err.Error()),
		)
		if delErr := s.provider.DeleteAccount(ctx, user.UID); delErr != nil {
			slog.Error("failed to roll back account",
				slog.String("user_id", user.UID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to initialize profile: %w", err)
	}

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	return user, nil
}

// SignOut はサインアウトする。戻り値が返る時点でCurrentはnilを返す。
// サインアウト中に呼ばれた場合は何もしない（冪等）。
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess == nil {
		return nil
	}

	if err := s.provider.SignOut(ctx, sess.ID); err != nil {
		return err
	}
	return nil
}

// RunTokenRefresher はセッショントークンを定期的にリフレッシュする。
// リフレッシュはプロバイダーのサインインイベント再発行として観測される。
// コンテキストのキャンセルで停止する。
func (s *Store) RunTokenRefresher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessionID := s.SessionID()
			if sessionID == "" {
				continue
			}
			if err := s.provider.RefreshSession(ctx, sessionID); err != nil {
				slog.Warn("session refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// DeleteAccount は現在のアカウントと関連データを削除する。
// サインアウト中はNOT_SIGNED_INを返す。
func (s *Store) DeleteAccount(ctx context.Context) error {
	current := s.Current()
	if current == nil {
		return model.NewNotSignedInError()
	}
	return s.provider.DeleteAccount(ctx, current.UID)
}
