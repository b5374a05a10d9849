// Package removebg は背景除去API（remove.bg）の呼び出しを提供する。
package removebg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/hitoshi/wallxpress/internal/model"
)

// defaultEndpoint は背景除去APIのエンドポイント。
const defaultEndpoint = "https://api.remove.bg/v1.0/removebg"

// maxResultSize は背景除去結果として受け入れる最大バイト数。
const maxResultSize = 25 << 20 // 25MB

// Client は背景除去APIのクライアント。
// 画像1枚を送信し、背景が除去されたバイナリ画像を受け取る。
// APIの内部動作は不透明として扱う。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
	}
}

// RemoveBackground は画像の背景を除去し、結果のバイナリ画像を返す。
// リクエストはmultipart/form-dataで、image_fileフィールドに画像本体、
// sizeフィールドに"auto"を指定する。失敗時はREMOVEBG_FAILEDを返す。
func (c *Client) RemoveBackground(ctx context.Context, image []byte, filename string) ([]byte, error) {
	if len(image) == 0 {
		return nil, model.NewRemoveBGError(fmt.Errorf("画像が空です"))
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}
	if err := writer.WriteField("size", "auto"); err != nil {
		return nil, fmt.Errorf("sizeフィールドの書き込みに失敗しました: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("マルチパートのクローズに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("背景除去APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewRemoveBGError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("背景除去APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewRemoveBGError(fmt.Errorf("背景除去APIがステータス %d を返しました", resp.StatusCode))
	}

	result, err := io.ReadAll(io.LimitReader(resp.Body, maxResultSize))
	if err != nil {
		return nil, model.NewRemoveBGError(fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
	}
	if len(result) == 0 {
		return nil, model.NewRemoveBGError(fmt.Errorf("空のレスポンスが返されました"))
	}

	return result, nil
}
