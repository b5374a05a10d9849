// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/wallxpress/internal/model"
)

const sessionCookieName = "session_id"

// SessionStoreInterface は認証ハンドラーが必要とするセッションストアのインターフェース。
type SessionStoreInterface interface {
	SignIn(ctx context.Context, email, password string) (*model.User, error)
	SignUp(ctx context.Context, email, password, name string) (*model.User, error)
	SignOut(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
	Current() *model.User
	IsLoading() bool
	SessionID() string
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメール・パスワード認証のHTTPハンドラー。
type AuthHandler struct {
	store  SessionStoreInterface
	config AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(store SessionStoreInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		store:  store,
		config: config,
	}
}

// credentialsRequest はサインイン・サインアップリクエストのボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// userResponse はアイデンティティ情報のAPIレスポンス。
type userResponse struct {
	UID       string          `json:"uid"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Image     *model.ImageRef `json:"image,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		UID:       u.UID,
		Email:     u.Email,
		Name:      u.Name,
		Image:     u.Image,
		CreatedAt: u.CreatedAt,
	}
}

// Register は新規アカウントを作成しサインインする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, err := h.store.SignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, h.store.SessionID())
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login は資格情報でサインインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	user, err := h.store.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, h.store.SessionID())
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はサインアウトする。サインアウト中でも成功を返す（冪等）。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SignOut(r.Context()); err != nil {
		slog.Error("failed to sign out", slog.String("error", err.Error()))
		// サインアウト失敗してもCookieはクリアする
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のアイデンティティを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := h.store.Current()
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotSignedInError())
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Withdraw は現在のアカウントと関連データを削除する。
// DELETE /auth/me
func (h *AuthHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAccount(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを破棄する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeInvalidRequestBody はリクエストボディ解析失敗の統一レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}
