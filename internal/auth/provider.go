// Package auth はメール+パスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/notify"
	"github.com/hitoshi/wallxpress/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// ProviderConfig は認証プロバイダーの設定。
type ProviderConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Provider はメール+パスワード認証のビジネスロジックを提供する。
// サインイン・サインアウトのたびに認証イベントを発行し、
// 購読者（セッションストア）はそれを通じてアイデンティティの変化を観測する。
type Provider struct {
	userRepo    repository.UserRepository
	credRepo    repository.CredentialRepository
	sessionRepo repository.SessionRepository
	hasher      *PasswordHasher
	events      *notify.Hub[model.AuthEvent]
	config      ProviderConfig
}

// NewProvider はProviderを生成する。
func NewProvider(
	userRepo repository.UserRepository,
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
	config ProviderConfig,
) *Provider {
	return &Provider{
		userRepo:    userRepo,
		credRepo:    credRepo,
		sessionRepo: sessionRepo,
		hasher:      NewPasswordHasher(),
		events:      notify.NewHub[model.AuthEvent](),
		config:      config,
	}
}

// SubscribeEvents は認証イベントの購読を登録し、解除関数を返す。
func (p *Provider) SubscribeEvents(fn func(model.AuthEvent)) func() {
	return p.events.Subscribe(fn)
}

// SignIn は資格情報を検証し、セッションを発行する。
// 資格情報が一致しない場合はINVALID_CREDENTIALSを返す。
func (p *Provider) SignIn(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	user, err := p.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	cred, err := p.credRepo.FindByUserID(ctx, user.UID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil || p.hasher.Compare(cred.PasswordHash, password) != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	session, err := p.createSession(ctx, user.UID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user signed in", slog.String("user_id", user.UID))
	p.events.Publish(model.AuthEvent{Kind: model.AuthEventSignedIn, User: user})

	return user, session, nil
}

// SignUp は新規アカウントを作成し、セッションを発行する。
// 既存メールアドレスの場合はACCOUNT_EXISTS、短すぎるパスワードの場合は
// WEAK_PASSWORDを返す。
func (p *Provider) SignUp(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil, model.NewInvalidCredentialsError()
	}
	if len(password) < MinPasswordLength {
		return nil, nil, model.NewWeakPasswordError()
	}

	existing, err := p.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewAccountExistsError(email)
	}

	hash, err := p.hasher.Hash(password)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	user := &model.User{
		UID:       uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
	}
	cred := &model.Credential{
		UserID:       user.UID,
		PasswordHash: hash,
		HashVersion:  "bcrypt",
		CreatedAt:    now,
	}

	if err := p.userRepo.CreateWithCredential(ctx, user, cred); err != nil {
		return nil, nil, fmt.Errorf("failed to create account: %w", err)
	}

	session, err := p.createSession(ctx, user.UID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new account created",
		slog.String("user_id", user.UID),
		slog.String("email", email),
	)
	p.events.Publish(model.AuthEvent{Kind: model.AuthEventSignedIn, User: user})

	return user, session, nil
}

// SignOut はセッションを破棄し、サインアウトイベントを発行する。
func (p *Provider) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := p.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))
	p.events.Publish(model.AuthEvent{Kind: model.AuthEventSignedOut})
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。
// セッションが無効または期限切れの場合はNOT_SIGNED_INを返す。
func (p *Provider) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewNotSignedInError()
	}

	session, err := p.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewNotSignedInError()
	}

	user, err := p.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewNotSignedInError()
	}

	return user, nil
}

// RefreshSession はセッションの有効期限を延長し、
// トークンリフレッシュとしてサインインイベントを再発行する。
// セッションが失効していた場合はNOT_SIGNED_INを返す。
func (p *Provider) RefreshSession(ctx context.Context, sessionID string) error {
	session, err := p.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return model.NewNotSignedInError()
	}

	session.ExpiresAt = time.Now().Add(time.Duration(p.config.SessionMaxAge) * time.Second)
	if err := p.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	user, err := p.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil {
		p.events.Publish(model.AuthEvent{Kind: model.AuthEventSignedIn, User: user})
	}
	return nil
}

// DeleteAccount はアカウントと関連データを削除し、全セッションを破棄する。
// サインアウトイベントを発行する。
func (p *Provider) DeleteAccount(ctx context.Context, userID string) error {
	if err := p.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	if err := p.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	slog.Info("account deleted", slog.String("user_id", userID))
	p.events.Publish(model.AuthEvent{Kind: model.AuthEventSignedOut})
	return nil
}

// createSession はセッションを作成し永続化する。
func (p *Provider) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(p.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := p.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
