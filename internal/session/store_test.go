package session

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/notify"
)

// --- モック ---

type mockAuthenticator struct {
	hub *notify.Hub[model.AuthEvent]

	signInFn        func(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	signUpFn        func(ctx context.Context, email, password, name string) (*model.User, *model.Session, error)
	signOutFn       func(ctx context.Context, sessionID string) error
	deleteAccountFn func(ctx context.Context, userID string) error
}

func newMockAuthenticator() *mockAuthenticator {
	return &mockAuthenticator{hub: notify.NewHub[model.AuthEvent]()}
}

func (m *mockAuthenticator) SignIn(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	user, sess, err := m.signInFn(ctx, email, password)
	if err == nil {
		m.hub.Publish(model.AuthEvent{Kind: model.AuthEventSignedIn, User: user})
	}
	return user, sess, err
}

func (m *mockAuthenticator) SignUp(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
	user, sess, err := m.signUpFn(ctx, email, password, name)
	if err == nil {
		m.hub.Publish(model.AuthEvent{Kind: model.AuthEventSignedIn, User: user})
	}
	return user, sess, err
}

func (m *mockAuthenticator) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		if err := m.signOutFn(ctx, sessionID); err != nil {
			return err
		}
	}
	m.hub.Publish(model.AuthEvent{Kind: model.AuthEventSignedOut})
	return nil
}

func (m *mockAuthenticator) DeleteAccount(ctx context.Context, userID string) error {
	if m.deleteAccountFn != nil {
		if err := m.deleteAccountFn(ctx, userID); err != nil {
			return err
		}
	}
	m.hub.Publish(model.AuthEvent{Kind: model.AuthEventSignedOut})
	return nil
}

func (m *mockAuthenticator) RefreshSession(ctx context.Context, sessionID string) error {
	return nil
}

func (m *mockAuthenticator) SubscribeEvents(fn func(model.AuthEvent)) func() {
	return m.hub.Subscribe(fn)
}

type mockProfileRepo struct {
	findByUIDFn func(ctx context.Context, uid string) (*model.Profile, error)
	createFn    func(ctx context.Context, profile *model.Profile) error
	mergeFn     func(ctx context.Context, uid string, patch model.ProfilePatch) (*model.Profile, error)
}

func (m *mockProfileRepo) FindByUID(ctx context.Context, uid string) (*model.Profile, error) {
	return m.findByUIDFn(ctx, uid)
}

func (m *mockProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	if m.createFn != nil {
		return m.createFn(ctx, profile)
	}
	return nil
}

func (m *mockProfileRepo) Merge(ctx context.Context, uid string, patch model.ProfilePatch) (*model.Profile, error) {
	return m.mergeFn(ctx, uid, patch)
}

func signInOK(user *model.User) func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	return func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
		return user, &model.Session{ID: "sess-1", UserID: user.UID}, nil
	}
}

// --- テスト ---

// TestStore_InitialState は起動直後にサインアウト状態で、
// 初期解決後はIsLoadingがfalseになることを確認する。
func TestStore_InitialState(t *testing.T) {
	store := NewStore(newMockAuthenticator(), &mockProfileRepo{})
	if !store.IsLoading() {
		t.Error("expected loading before Start")
	}

	store.Start()
	defer store.Close()

	if store.IsLoading() {
		t.Error("expected not loading after Start")
	}
	if store.Current() != nil {
		t.Error("expected signed-out initial state")
	}
}

// TestStore_SignIn はサインイン成功後、戻り値が返る時点で
// Currentが新しいアイデンティティを反映していることを確認する。
func TestStore_SignIn(t *testing.T) {
	provider := newMockAuthenticator()
	provider.signInFn = signInOK(&model.User{UID: "user-1", Email: "a@example.com"})

	store := NewStore(provider, &mockProfileRepo{})
	store.Start()
	defer store.Close()

	user, err := store.SignIn(context.Background(), "a@example.com", "password123")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if user.UID != "user-1" {
		t.Errorf("expected user-1, got %s", user.UID)
	}

	current := store.Current()
	if current == nil || current.UID != "user-1" {
		t.Errorf("expected Current to reflect user-1 immediately, got %v", current)
	}
	if store.SessionID() != "sess-1" {
		t.Errorf("expected session sess-1, got %q", store.SessionID())
	}
}

// TestStore_SignIn_FailureLeavesStateUnchanged はサインイン失敗時に
// 状態が変化しないことを確認する。
func TestStore_SignIn_FailureLeavesStateUnchanged(t *testing.T) {
	provider := newMockAuthenticator()
	provider.signInFn = signInOK(&model.User{UID: "user-1"})

	store := NewStore(provider, &mockProfileRepo{})
	store.Start()
	defer store.Close()

	if _, err := store.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	provider.signInFn = func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	_, err := store.SignIn(context.Background(), "b@example.com", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	current := store.Current()
	if current == nil || current.UID != "user-1" {
		t.Errorf("expected previous identity preserved, got %v", current)
	}
}

// TestStore_SignOut はサインアウト完了後にCurrentがnilを返すことを確認する。
func TestStore_SignOut(t *testing.T) {
	provider := newMockAuthenticator()
	provider.signInFn = signInOK(&model.User{UID: "user-1"})

	store := NewStore(provider, &mockProfileRepo{})
	store.Start()
	defer store.Close()

	if _, err := store.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if err := store.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	if store.Current() != nil {
		t.Error("expected Current to be nil after SignOut")
	}
	if store.SessionID() != "" {
		t.Error("expected session cleared after SignOut")
	}
}

// TestStore_SignOut_Idempotent はサインアウト中のSignOutが何もしないことを確認する。
func TestStore_SignOut_Idempotent(t *testing.T) {
	provider := newMockAuthenticator()
	called := false
	provider.signOutFn = func(ctx context.Context, sessionID string) error {
		called = true
		return nil
	}

	store := NewStore(provider, &mockProfileRepo{})
	store.Start()
	defer store.Close()

	if err := store.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if called {
		t.Error("expected no provider call when already signed out")
	}
}

// TestStore_Subscribe は購読時に現在値が直ちに配信され、
// 以降の変化がイベント順に配信されることを確認する。
func TestStore_Subscribe(t *testing.T) {
	provider := newMockAuthenticator()
	provider.signInFn = signInOK(&model.User{UID: "user-1"})

	store := NewStore(provider, &mockProfileRepo{})
	store.Start()
	defer store.Close()

	var snapshots []*model.User
	unsubscribe := store.Subscribe(func(u *model.User) {
		snapshots = append(snapshots, u)
	})
	defer unsubscribe()

	if len(snapshots) != 1 || snapshots[0] != nil {
		t.Fatalf("expected immediate nil snapshot, got %v", snapshots)
	}

	if _, err := store.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if err := store.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}

	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}
	if snapshots[1] == nil || snapshots[1].UID != "user-1" {
		t.Errorf("expected second snapshot to be user-1, got %v", snapshots[1])
	}
	if snapshots[2] != nil {
		t.Errorf("expected third snapshot to be nil, got %v", snapshots[2])
	}
}

// TestStore_Unsubscribe は解除後にコールバックが呼ばれないことを確認する。
func TestStore_Unsubscribe(t *testing.T) {
	provider := newMockAuthenticator()
	provider.signInFn = signInOK(&model.User{UID: "user-1"})

	store := NewStore(provider, &mockProfileRepo{})
	store.Start()
	defer store.Close()

	count := 0
	unsubscribe := store.Subscribe(func(*model.User) { count++ })
	unsubscribe()

	if _, err := store.SignIn(context.Background(), "a@example.com", "pw"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	if count != 1 {
		t.Errorf("expected only the immediate snapshot, got %d calls", count)
	}
}

// TestStore_SignUp_CreatesProfile はサインアップで渡した名前とメールの
// プロフィールドキュメントが作成されることを確認する。
func TestStore_SignUp_CreatesProfile(t *testing.T) {
	provider := newMockAuthenticator()
	provider.signUpFn = func(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
		return &model.User{UID: "user-new", Email: email, Name: name},
			&model.Session{ID: "sess-new", UserID: "user-new"}, nil
	}

	var created *model.Profile
	profiles := &mockProfileRepo{
		createFn: func(ctx context.Context, profile *model.Profile) error {
			created = profile
			return nil
		},
	}

	store := NewStore(provider, profiles)
	store.Start()
	defer store.Close()

	user, err := store.SignUp(context.Background(), "new@example.com", "password123", "Hanako")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if user.UID != "user-new" {
		t.Errorf("expected user-new, got %s", user.UID)
	}
	if created == nil {
		t.Fatal("expected profile created")
	}
	if created.UID != "user-new" || created.Name != "Hanako" || created.Email != "new@example.com" {
		t.Errorf("unexpected profile: %+v", created)
	}
}

// TestStore_SignUp_ProfileFailureRollsBack はプロフィール作成失敗時に
// アカウントがベストエフォートで削除されることを確認する。
func TestStore_SignUp_ProfileFailureRollsBack(t *testing.T) {
	provider := newMockAuthenticator()
	provider.signUpFn = func(ctx context.Context, email, password, name string) (*model.User, *model.Session, error) {
		return &model.User{UID: "user-new"}, &model.Session{ID: "sess-new"}, nil
	}
	deletedUserID := ""
	provider.deleteAccountFn = func(ctx context.Context, userID string) error {
		deletedUserID = userID
		return nil
	}

	profiles := &mockProfileRepo{
		createFn: func(ctx context.Context, profile *model.Profile) error {
			return errors.New("write denied")
		},
	}

	store := NewStore(provider, profiles)
	store.Start()
	defer store.Close()

	_, err := store.SignUp(context.Background(), "new@example.com", "password123", "X")
	if err == nil {
		t.Fatal("expected error")
	}
	if deletedUserID != "user-new" {
		t.Errorf("expected account user-new rolled back, got %q", deletedUserID)
	}
	if store.Current() != nil {
		t.Error("expected signed-out state after rollback")
	}
}

// TestStore_DeleteAccount_NotSignedIn はサインアウト中の削除要求が
// NOT_SIGNED_INを返すことを確認する。
func TestStore_DeleteAccount_NotSignedIn(t *testing.T) {
	store := NewStore(newMockAuthenticator(), &mockProfileRepo{})
	store.Start()
	defer store.Close()

	err := store.DeleteAccount(context.Background())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotSignedIn {
		t.Fatalf("expected NOT_SIGNED_IN, got %v", err)
	}
}
