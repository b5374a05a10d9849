package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/wallxpress/internal/auth"
	"github.com/hitoshi/wallxpress/internal/catalog"
	"github.com/hitoshi/wallxpress/internal/config"
	"github.com/hitoshi/wallxpress/internal/database"
	"github.com/hitoshi/wallxpress/internal/favorites"
	"github.com/hitoshi/wallxpress/internal/handler"
	"github.com/hitoshi/wallxpress/internal/logger"
	"github.com/hitoshi/wallxpress/internal/metrics"
	"github.com/hitoshi/wallxpress/internal/middleware"
	"github.com/hitoshi/wallxpress/internal/model"
	"github.com/hitoshi/wallxpress/internal/profile"
	"github.com/hitoshi/wallxpress/internal/removebg"
	"github.com/hitoshi/wallxpress/internal/repository"
	"github.com/hitoshi/wallxpress/internal/security"
	"github.com/hitoshi/wallxpress/internal/session"
	"github.com/hitoshi/wallxpress/internal/storage"
	"github.com/hitoshi/wallxpress/internal/task"
	"github.com/hitoshi/wallxpress/internal/upload"
	"github.com/hitoshi/wallxpress/internal/worker/cleanup"
	"github.com/hitoshi/wallxpress/internal/worker/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newSessionRepo はセッショントークンの保存先リポジトリを生成する。
// REDIS_ADDRが設定されている場合はRedis、それ以外はPostgreSQLを使用する。
func newSessionRepo(cfg *config.Config, db *sql.DB) repository.SessionRepository {
	if cfg.UseRedisSessions() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		slog.Info("using redis session store", slog.String("addr", cfg.RedisAddr))
		return repository.NewRedisSessionRepo(client)
	}
	return repository.NewPostgresSessionRepo(db)
}

// instrumentedUploader はアップロードの成否とレイテンシをメトリクスに記録する。
type instrumentedUploader struct {
	pipeline  *upload.Pipeline
	collector metrics.MetricsCollector
}

func (u *instrumentedUploader) Upload(ctx context.Context, localRef, ownerID string) (*model.ImageRef, error) {
	start := time.Now()
	ref, err := u.pipeline.Upload(ctx, localRef, ownerID)
	u.collector.RecordUploadLatency(time.Since(start))
	if err != nil {
		u.collector.RecordUploadFailure()
		return nil, err
	}
	u.collector.RecordUploadSuccess()
	return ref, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	credRepo := repository.NewPostgresCredentialRepo(db)
	sessionRepo := newSessionRepo(cfg, db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. IDプロバイダーとセッションストアの初期化
	provider := auth.NewProvider(userRepo, credRepo, sessionRepo,
		auth.ProviderConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	provider.SubscribeEvents(func(e model.AuthEvent) {
		collector.RecordAuthEvent(string(e.Kind))
	})

	sessionStore := session.NewStore(provider, profileRepo)
	sessionStore.Start()
	defer sessionStore.Close()

	// 5. ストレージとアップロードパイプラインの初期化
	objectStore, err := storage.NewDiskStore(cfg.StorageDir, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	ssrfGuard := security.NewSSRFGuard()
	fetchClient := ssrfGuard.NewSafeClient(cfg.UploadTimeout, cfg.UploadMaxSize)
	pipeline := upload.NewPipeline(
		upload.NewFetchConverter(fetchClient, cfg.UploadMaxSize),
		upload.NewDataURIConverter(),
		objectStore,
	)
	uploader := &instrumentedUploader{pipeline: pipeline, collector: collector}

	// 6. 同期サービスの初期化
	profileSync := profile.NewSynchronizer(profileRepo, userRepo, uploader)

	sanitizer := security.NewTextSanitizer()
	taskSync := task.NewSynchronizer(taskRepo, sanitizer, func() string {
		if u := sessionStore.Current(); u != nil {
			return u.UID
		}
		return ""
	})

	favoritesStore := favorites.NewStore()
	// サインアウトでお気に入りをリセットする
	sessionStore.Subscribe(func(u *model.User) {
		if u == nil {
			favoritesStore.Clear()
		}
	})

	// 7. 外部APIクライアントの初期化
	removeBGClient := removebg.NewClient(
		&http.Client{Timeout: cfg.RemoveBGTimeout},
		slog.Default(),
		cfg.RemoveBGAPIKey,
	)

	catalogFeeds := make([]catalog.Category, 0, 4)
	for _, c := range cfg.CatalogCategories() {
		catalogFeeds = append(catalogFeeds, catalog.Category{Name: c.Name, FeedURL: c.FeedURL})
	}
	catalogService := catalog.NewService(
		ssrfGuard.NewSafeClient(cfg.UploadTimeout, cfg.CatalogMaxFeedSize),
		slog.Default(),
		catalogFeeds,
		cfg.CatalogMaxFeedSize,
	)

	// 8. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.RemoveBGRate = rate.Limit(float64(cfg.RemoveBGRateLimit) / 60.0)
	rateLimiterCfg.RemoveBGBurst = cfg.RemoveBGRateLimit
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		SessionStore: sessionStore,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure:  false,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		ProfileService:    profileSync,
		TaskService:       taskSync,
		FavoritesStore:    favoritesStore,
		BackgroundRemover: removeBGClient,
		CatalogService:    catalogService,

		ObjectsDir: objectStore.RootDir(),

		Collector: collector,
		Gatherer:  registry,
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSEストリーミングのため無制限
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// セッショントークンの定期リフレッシュをバックグラウンドで実行
	go sessionStore.RunTokenRefresher(ctx, cfg.SessionRefreshInterval)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップとカタログの定期取り込みを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. セッションクリーンアップジョブの初期化
	sessionRepo := newSessionRepo(cfg, db)
	cleanupJob := cleanup.NewSessionCleanupJob(sessionRepo, slog.Default())

	// 3. カタログリフレッシャーの初期化
	ssrfGuard := security.NewSSRFGuard()
	catalogFeeds := make([]catalog.Category, 0, 4)
	for _, c := range cfg.CatalogCategories() {
		catalogFeeds = append(catalogFeeds, catalog.Category{Name: c.Name, FeedURL: c.FeedURL})
	}
	catalogService := catalog.NewService(
		ssrfGuard.NewSafeClient(cfg.UploadTimeout, cfg.CatalogMaxFeedSize),
		slog.Default(),
		catalogFeeds,
		cfg.CatalogMaxFeedSize,
	)
	refresher := refresh.NewRefresher(catalogService, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
		slog.Duration("catalog_refresh_interval", cfg.CatalogRefreshEvery),
	)

	// セッションクリーンアップをバックグラウンドで実行
	go cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	// カタログリフレッシャーをメインgoroutineで実行（ブロッキング）
	refresher.Start(ctx, cfg.CatalogRefreshEvery)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
