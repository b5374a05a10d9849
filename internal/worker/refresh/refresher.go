// Package refresh は壁紙カタログのバックグラウンド更新処理を提供する。
package refresh

import (
	"context"
	"log/slog"
	"time"
)

// CatalogService はカタログ更新の実行インターフェース。
type CatalogService interface {
	// RefreshAll は全カテゴリを取り込み直す。
	RefreshAll(ctx context.Context) error
}

// Refresher はカタログの定期更新を行う。
type Refresher struct {
	catalog CatalogService
	logger  *slog.Logger
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
func NewRefresher(catalog CatalogService, logger *slog.Logger) *Refresher {
	return &Refresher{
		catalog: catalog,
		logger:  logger,
	}
}

// Start は指定間隔でカタログ更新を繰り返し実行する。
// 起動直後に1回実行し、以降はティッカーに従う。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("カタログ更新ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	if err := r.catalog.RefreshAll(ctx); err != nil {
		r.logger.Error("カタログ更新に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("カタログ更新ジョブを停止しました")
			return
		case <-ticker.C:
			if err := r.catalog.RefreshAll(ctx); err != nil {
				r.logger.Error("カタログ更新に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
