package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/wallxpress/internal/metrics"
	"github.com/hitoshi/wallxpress/internal/model"
)

// removeBGMaxUploadSize はリクエストで受け付ける画像の最大サイズ。
// remove.bg APIの上限に合わせる。
const removeBGMaxUploadSize = 25 << 20 // 25MB

// BackgroundRemover は背景除去ハンドラーが必要とするクライアントのインターフェース。
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error)
}

// RemoveBGHandler は背景除去プロキシのHTTPハンドラー。
// 外部APIのキーをクライアントに露出させないため、サーバー側で中継する。
type RemoveBGHandler struct {
	remover   BackgroundRemover
	collector metrics.MetricsCollector
}

// NewRemoveBGHandler はRemoveBGHandlerを生成する。
func NewRemoveBGHandler(remover BackgroundRemover, collector metrics.MetricsCollector) *RemoveBGHandler {
	return &RemoveBGHandler{
		remover:   remover,
		collector: collector,
	}
}

// RemoveBackground は画像の背景除去を中継する。
// multipart/form-dataのimage_fileフィールドで画像を受け取り、
// 処理済み画像のバイナリをそのまま返す。
// POST /api/removebg
func (h *RemoveBGHandler) RemoveBackground(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(removeBGMaxUploadSize); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "マルチパートフォームの解析に失敗しました。",
			Category: "validation",
			Action:   "multipart/form-dataのimage_fileフィールドで画像を送信してください。",
		})
		return
	}

	file, header, err := r.FormFile("image_file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "image_fileフィールドがありません。",
			Category: "validation",
			Action:   "画像をimage_fileフィールドで送信してください。",
		})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, removeBGMaxUploadSize))
	if err != nil {
		writeInvalidRequestBody(w)
		return
	}

	result, err := h.remover.RemoveBackground(r.Context(), image, header.Filename)
	if err != nil {
		h.collector.RecordRemoveBGCall(false)
		handleServiceError(w, err)
		return
	}
	h.collector.RecordRemoveBGCall(true)

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}
