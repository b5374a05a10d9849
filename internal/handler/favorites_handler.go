package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/wallxpress/internal/metrics"
	"github.com/hitoshi/wallxpress/internal/model"
)

// FavoritesStoreInterface はお気に入りハンドラーが必要とするストアのインターフェース。
type FavoritesStoreInterface interface {
	// Toggle はお気に入りの有無を反転し、追加されたかを返す。
	Toggle(ref model.ImageRef) bool
	// IsFavorite はお気に入り登録済みかを返す。
	IsFavorite(ref model.ImageRef) bool
	// List は登録順の全お気に入りを返す。
	List() []model.ImageRef
	// Subscribe はお気に入り変化の購読を登録し、解除関数を返す。
	Subscribe(fn func([]model.ImageRef)) func()
}

// FavoritesHandler はお気に入り管理のHTTPハンドラー。
// お気に入りはメモリ上にのみ保持され、プロセス終了で消える。
type FavoritesHandler struct {
	store     FavoritesStoreInterface
	collector metrics.MetricsCollector
}

// NewFavoritesHandler はFavoritesHandlerを生成する。
func NewFavoritesHandler(store FavoritesStoreInterface, collector metrics.MetricsCollector) *FavoritesHandler {
	return &FavoritesHandler{store: store, collector: collector}
}

// toggleResponse はトグル操作の結果。
type toggleResponse struct {
	Added bool `json:"added"`
}

// ListFavorites は登録順の全お気に入りを返す。
// GET /api/favorites
func (h *FavoritesHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// ToggleFavorite はお気に入りの有無を反転する。
// 同一URLの参照が登録済みなら削除し、未登録なら追加する。
// POST /api/favorites/toggle
func (h *FavoritesHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var ref model.ImageRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if ref.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "画像URLが空です。",
			Category: "validation",
			Action:   "urlフィールドを指定してください。",
		})
		return
	}

	added := h.store.Toggle(ref)
	writeJSON(w, http.StatusOK, toggleResponse{Added: added})
}

// containsResponse は登録有無の照会結果。
type containsResponse struct {
	Favorite bool `json:"favorite"`
}

// ContainsFavorite は指定URLの画像がお気に入り登録済みかを返す。
// GET /api/favorites/contains?url=...
func (h *FavoritesHandler) ContainsFavorite(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "画像URLが空です。",
			Category: "validation",
			Action:   "urlクエリパラメータを指定してください。",
		})
		return
	}

	favorite := h.store.IsFavorite(model.ImageRef{URL: url})
	writeJSON(w, http.StatusOK, containsResponse{Favorite: favorite})
}

// StreamFavorites はお気に入り変化のSSEストリームを提供する。
// GET /api/favorites/stream
func (h *FavoritesHandler) StreamFavorites(w http.ResponseWriter, r *http.Request) {
	serveSSE(w, r, func(pump *ssePump) func() {
		// Subscribeは登録時点のスナップショットを直ちに配信する
		return h.store.Subscribe(func(refs []model.ImageRef) {
			pump.push("favorites", refs)
			h.collector.RecordSnapshotDelivered("favorites")
		})
	})
}
