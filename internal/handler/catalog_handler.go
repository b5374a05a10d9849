package handler

import (
	"context"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wallxpress/internal/catalog"
	"github.com/hitoshi/wallxpress/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	// Categories は構成済みカテゴリ名の一覧を返す。
	Categories() []string
	// List はカテゴリの壁紙一覧を返す。未知のカテゴリはエラー。
	List(ctx context.Context, category string) ([]catalog.Wallpaper, error)
}

// CatalogHandler は壁紙カタログのHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// categoriesResponse はカテゴリ一覧のAPIレスポンス。
type categoriesResponse struct {
	Categories []string `json:"categories"`
}

// ListCategories は構成済みカテゴリの一覧を返す。
// GET /api/catalog
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: h.service.Categories()})
}

// ListWallpapers はカテゴリの壁紙一覧を返す。
// GET /api/catalog/{category}
func (h *CatalogHandler) ListWallpapers(w http.ResponseWriter, r *http.Request) {
	category, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if !slices.Contains(h.service.Categories(), category) {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "CATEGORY_NOT_FOUND",
			Message:  "指定されたカテゴリが見つかりません: " + category,
			Category: "not_found",
			Action:   "GET /api/catalogでカテゴリ一覧を確認してください。",
		})
		return
	}

	wallpapers, err := h.service.List(r.Context(), category)
	if err != nil {
		handleServiceError(w, model.NewSyncError(err))
		return
	}

	writeJSON(w, http.StatusOK, wallpapers)
}
