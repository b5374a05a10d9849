package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wallxpress/internal/metrics"
	"github.com/hitoshi/wallxpress/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ヘルスチェック
	HealthChecker HealthChecker

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	SessionStore SessionStoreInterface
	AuthConfig   AuthHandlerConfig

	// 同期サービス
	ProfileService  ProfileServiceInterface
	TaskService     TaskServiceInterface
	FavoritesStore  FavoritesStoreInterface
	BackgroundRemover BackgroundRemover
	CatalogService  CatalogServiceInterface

	// オブジェクトストアの公開ディレクトリ
	ObjectsDir string

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → SessionMiddleware → RateLimit(General)
//
// 認証ルート（/auth/*）、オブジェクト配信（/objects/*）、/health、/metricsは
// セッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(newHTTPStatusMiddleware(deps.Collector))

	authHandler := NewAuthHandler(deps.SessionStore, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.Collector)
	taskHandler := NewTaskHandler(deps.TaskService, deps.Collector)
	favoritesHandler := NewFavoritesHandler(deps.FavoritesStore, deps.Collector)
	removeBGHandler := NewRemoveBGHandler(deps.BackgroundRemover, deps.Collector)
	catalogHandler := NewCatalogHandler(deps.CatalogService)

	// --- 認証不要のルート ---

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Delete("/me", authHandler.Withdraw)
	})

	// アップロード済みオブジェクトの配信
	r.Handle("/objects/*", http.StripPrefix("/objects/", http.FileServer(http.Dir(deps.ObjectsDir))))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// プロフィール同期
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
			r.Get("/stream", profileHandler.StreamProfile)
		})

		// タスクコレクション同期
		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListTasks)
			r.Post("/", taskHandler.CreateTask)
			r.Get("/stream", taskHandler.StreamTasks)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Put("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)
			})
		})

		// お気に入り管理
		r.Route("/api/favorites", func(r chi.Router) {
			r.Get("/", favoritesHandler.ListFavorites)
			r.Get("/contains", favoritesHandler.ContainsFavorite)
			r.Post("/toggle", favoritesHandler.ToggleFavorite)
			r.Get("/stream", favoritesHandler.StreamFavorites)
		})

		// 背景除去プロキシ（専用レート制限を追加）
		r.With(deps.RateLimiter.RemoveBGMiddleware()).Post("/api/removebg", removeBGHandler.RemoveBackground)

		// 壁紙カタログ
		r.Route("/api/catalog", func(r chi.Router) {
			r.Get("/", catalogHandler.ListCategories)
			r.Get("/{category}", catalogHandler.ListWallpapers)
		})
	})

	return r
}

// statusWriter はレスポンスのステータスコードを記録するラッパー。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

// Flush はSSEストリーミングのためにフラッシュを委譲する。
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// newHTTPStatusMiddleware はレスポンスのステータスコードをメトリクスに記録する。
func newHTTPStatusMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			collector.RecordHTTPStatus(sw.status)
		})
	}
}
