// Package catalog は壁紙カタログの取り込みとキャッシュを提供する。
// キュレーション済みカテゴリの壁紙一覧をリモートフィードから取り込み、
// メモリ上にキャッシュする。
package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

// Category はキュレーション済みカテゴリとその取り込み元フィードを表す。
type Category struct {
	Name    string
	FeedURL string
}

// DefaultCategories は標準のカテゴリ構成。
var DefaultCategories = []string{"Trending", "Aesthetic", "Space", "Technology"}

// Wallpaper はカタログ上の壁紙1枚を表す。
type Wallpaper struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Thumbnail   string     `json:"thumbnail,omitempty"`
	Category    string     `json:"category"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Service はカテゴリごとの壁紙一覧をキャッシュ付きで提供する。
// 取り込みはSSRF防止機能付きHTTPクライアント経由で行う。
type Service struct {
	httpClient  *http.Client
	logger      *slog.Logger
	categories  []Category
	maxBodySize int64

	mu          sync.RWMutex
	cache       map[string][]Wallpaper
	refreshedAt map[string]time.Time
}

// NewService はServiceを生成する。
func NewService(httpClient *http.Client, logger *slog.Logger, categories []Category, maxBodySize int64) *Service {
	return &Service{
		httpClient:  httpClient,
		logger:      logger,
		categories:  categories,
		maxBodySize: maxBodySize,
		cache:       make(map[string][]Wallpaper),
		refreshedAt: make(map[string]time.Time),
	}
}

// Categories はカテゴリ名の一覧を構成順で返す。
func (s *Service) Categories() []string {
	names := make([]string, 0, len(s.categories))
	for _, c := range s.categories {
		names = append(names, c.Name)
	}
	return names
}

// List は指定カテゴリの壁紙一覧を返す。
// キャッシュが空の場合はその場で取り込みを試行する。
func (s *Service) List(ctx context.Context, category string) ([]Wallpaper, error) {
	s.mu.RLock()
	cached, ok := s.cache[category]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	for _, c := range s.categories {
		if c.Name == category {
			if err := s.refreshCategory(ctx, c); err != nil {
				return nil, err
			}
			s.mu.RLock()
			defer s.mu.RUnlock()
			return s.cache[category], nil
		}
	}
	return nil, fmt.Errorf("未知のカテゴリです: %s", category)
}

// RefreshAll は全カテゴリを取り込み直す。
// 一部カテゴリの失敗は他カテゴリの取り込みを妨げない（前回値を維持する）。
func (s *Service) RefreshAll(ctx context.Context) error {
	var lastErr error
	for _, c := range s.categories {
		if err := s.refreshCategory(ctx, c); err != nil {
			s.logger.Warn("カテゴリの取り込みに失敗しました",
				slog.String("category", c.Name),
				slog.String("error", err.Error()),
			)
			lastErr = err
		}
	}
	return lastErr
}

// refreshCategory は1カテゴリのフィードを取得・パースしてキャッシュを更新する。
func (s *Service) refreshCategory(ctx context.Context, category Category) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, category.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "WallXpress/1.0 Catalog Fetcher")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("フィードがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		return fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	wallpapers := convertFeedItems(category.Name, parsedFeed.Items)

	s.mu.Lock()
	s.cache[category.Name] = wallpapers
	s.refreshedAt[category.Name] = time.Now()
	s.mu.Unlock()

	s.logger.Info("カテゴリを取り込みました",
		slog.String("category", category.Name),
		slog.Int("wallpapers", len(wallpapers)),
	)
	return nil
}

// convertFeedItems はフィード記事を壁紙エントリに変換する。
// 画像URLはenclosureまたは記事の画像メタデータから解決し、
// どちらも無い記事はスキップする。
func convertFeedItems(category string, items []*gofeed.Item) []Wallpaper {
	wallpapers := make([]Wallpaper, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		imageURL := ""
		for _, enc := range item.Enclosures {
			if enc != nil && enc.URL != "" {
				imageURL = enc.URL
				break
			}
		}
		if imageURL == "" && item.Image != nil {
			imageURL = item.Image.URL
		}
		if imageURL == "" {
			continue
		}

		wallpaper := Wallpaper{
			Title:     item.Title,
			URL:       imageURL,
			Thumbnail: item.Link,
			Category:  category,
		}
		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			wallpaper.PublishedAt = &t
		}
		wallpapers = append(wallpapers, wallpaper)
	}

	return wallpapers
}
