package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/wallxpress/internal/metrics"
	"github.com/hitoshi/wallxpress/internal/middleware"
	"github.com/hitoshi/wallxpress/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// FetchOnce はプロフィールを1回取得する。未作成ならデフォルト値で合成する。
	FetchOnce(ctx context.Context, uid string) (*model.Profile, error)
	// Subscribe はプロフィール変化のライブ購読を登録し、解除関数を返す。
	Subscribe(ctx context.Context, uid string, onChange func(*model.Profile), onError func(error)) func()
	// Save はマージ書き込みでプロフィールを更新する。
	Save(ctx context.Context, uid string, patch model.ProfilePatch) (*model.Profile, error)
}

// ProfileHandler はプロフィール同期のHTTPハンドラー。
type ProfileHandler struct {
	service   ProfileServiceInterface
	collector metrics.MetricsCollector
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, collector metrics.MetricsCollector) *ProfileHandler {
	return &ProfileHandler{service: service, collector: collector}
}

// profilePatchRequest はプロフィール更新リクエストのボディ。
// nilフィールドは変更されない（部分更新）。
type profilePatchRequest struct {
	Name          *string         `json:"name"`
	Email         *string         `json:"email"`
	Image         *model.ImageRef `json:"image"`
	LocalImageURI string          `json:"local_image_uri,omitempty"`
}

// profileResponse はプロフィール情報のAPIレスポンス。
type profileResponse struct {
	UID       string          `json:"uid"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Image     *model.ImageRef `json:"image,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		UID:       p.UID,
		Name:      p.Name,
		Email:     p.Email,
		Image:     p.Image,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// GetProfile は現在のアイデンティティのプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotSignedInError())
		return
	}

	profile, err := h.service.FetchOnce(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// UpdateProfile はプロフィールをマージ書き込みで更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotSignedInError())
		return
	}

	var req profilePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	profile, err := h.service.Save(r.Context(), uid, model.ProfilePatch{
		Name:          req.Name,
		Email:         req.Email,
		Image:         req.Image,
		LocalImageURI: req.LocalImageURI,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// StreamProfile はプロフィール変化のSSEストリームを提供する。
// 接続直後に現在のスナップショットが配信され、以降は変化のたびに配信される。
// GET /api/profile/stream
func (h *ProfileHandler) StreamProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewNotSignedInError())
		return
	}

	serveSSE(w, r, func(pump *ssePump) func() {
		return h.service.Subscribe(r.Context(), uid,
			func(profile *model.Profile) {
				pump.push("profile", toProfileResponse(profile))
				h.collector.RecordSnapshotDelivered("profile")
			},
			func(err error) {
				pump.push("sync_error", toSyncErrorPayload(err))
			},
		)
	})
}

// toSyncErrorPayload はライブ購読のエラーをSSEペイロードに変換する。
func toSyncErrorPayload(err error) apiErrorResponse {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewSyncError(err)
	}
	return apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
}
