// Package upload はローカル画像参照をリモートオブジェクトへ変換する
// アップロードパイプラインを提供する。
package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/storage"
)

// Converter はローカル参照をバイト列へ変換する。
type Converter interface {
	// Convert はローカル参照からバイナリデータとMIMEタイプを取得する。
	Convert(ctx context.Context, localRef string) (data []byte, mime string, err error)
}

// FetchConverter はHTTP取得による主経路の変換器。
// SSRF防止機能付きクライアントを通してローカル参照URIを取得する。
type FetchConverter struct {
	client  *http.Client
	maxSize int64
}

// NewFetchConverter はFetchConverterを生成する。
func NewFetchConverter(client *http.Client, maxSize int64) *FetchConverter {
	return &FetchConverter{client: client, maxSize: maxSize}
}

// Convert はローカル参照URIをHTTPで取得する。
func (c *FetchConverter) Convert(ctx context.Context, localRef string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, localRef, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch local ref: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status fetching local ref: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read local ref body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty response body")
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return data, mime, nil
}

// DataURIConverter はフォールバック経路の変換器。
// data URIまたは生のbase64文字列をデコードする。
type DataURIConverter struct{}

// NewDataURIConverter はDataURIConverterを生成する。
func NewDataURIConverter() *DataURIConverter {
	return &DataURIConverter{}
}

// Convert はdata URI（data:<mime>;base64,<payload>）または
// 生のbase64文字列をデコードする。
func (c *DataURIConverter) Convert(ctx context.Context, localRef string) ([]byte, string, error) {
	mime := "image/jpeg"
	payload := localRef

	if strings.HasPrefix(localRef, "data:") {
		rest := strings.TrimPrefix(localRef, "data:")
		meta, encoded, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("unsupported data URI encoding: %s", meta)
		}
		if m := strings.TrimSuffix(meta, ";base64"); m != "" {
			mime = m
		}
		payload = encoded
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty payload")
	}
	return data, mime, nil
}

// Pipeline はローカル参照をアップロードし、リモート参照を返す。
//
// 変換は主経路（HTTP取得）→フォールバック経路（base64デコード）の順に
// 試行され、両方失敗した場合にのみUploadErrorを返す。
// 部分的な失敗で残る孤児オブジェクトは掃除しない。
type Pipeline struct {
	primary  Converter
	fallback Converter
	store    storage.ObjectStore
	now      func() time.Time
}

// NewPipeline はPipelineを生成する。
func NewPipeline(primary, fallback Converter, store storage.ObjectStore) *Pipeline {
	return &Pipeline{
		primary:  primary,
		fallback: fallback,
		store:    store,
		now:      time.Now,
	}
}

// Upload はローカル参照を変換・保存し、リモート画像参照を返す。
// 保存先パスは profileImages/{ownerID}_{unixMillis}.jpg で決定される。
func (p *Pipeline) Upload(ctx context.Context, localRef, ownerID string) (*model.ImageRef, error) {
	data, mime, err := p.primary.Convert(ctx, localRef)
	if err != nil {
		slog.Warn("primary conversion failed, trying fallback",
			slog.String("error", err.Error()),
		)
		data, mime, err = p.fallback.Convert(ctx, localRef)
		if err != nil {
			return nil, model.NewUploadError(err)
		}
	}

	path := fmt.Sprintf("profileImages/%s_%d.jpg", ownerID, p.now().UnixMilli())
	if err := p.store.PutObject(ctx, path, data, mime); err != nil {
		return nil, model.NewUploadError(err)
	}

	return &model.ImageRef{
		URL:  p.store.DownloadURL(path),
		Path: path,
		Name: fmt.Sprintf("%s.jpg", ownerID),
		Size: int64(len(data)),
		Mime: mime,
	}, nil
}
