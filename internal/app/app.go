// Package app はアプリケーションの起動とワイヤリングを担当する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/castman/internal/config"
	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/genai"
	"github.com/hitoshi/castman/internal/handler"
	"github.com/hitoshi/castman/internal/identity"
	"github.com/hitoshi/castman/internal/logger"
	"github.com/hitoshi/castman/internal/metrics"
	"github.com/hitoshi/castman/internal/middleware"
	"github.com/hitoshi/castman/internal/pipeline"
	"github.com/hitoshi/castman/internal/ranking"
	"github.com/hitoshi/castman/internal/repository"
	"github.com/hitoshi/castman/internal/security"
	"github.com/hitoshi/castman/internal/storage"
	"github.com/hitoshi/castman/internal/webhook"
	"github.com/hitoshi/castman/internal/worker/reconcile"
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
	podcastRepo := repository.NewPostgresPodcastRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 5. Webhook署名検証器の初期化
	verifier, err := webhook.NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook verifier: %w", err)
	}

	// 6. 著者画像カスケードキューとIDリコンサイルサービスの初期化
	cascadeQueue := reconcile.NewQueue(podcastRepo, slog.Default(), collector, reconcile.QueueConfig{
		Size:        cfg.CascadeQueueSize,
		MaxAttempts: cfg.CascadeMaxAttempts,
	})
	identityService := identity.NewService(userRepo, podcastRepo, cascadeQueue, slog.Default())

	// 7. 生成・ストレージクライアントの初期化
	genaiClient := genai.NewClient(
		&http.Client{Timeout: cfg.GenAITimeout},
		slog.Default(),
		genai.Config{
			BaseURL:     cfg.GenAIBaseURL,
			APIKey:      cfg.GenAIAPIKey,
			SpeechModel: cfg.SpeechModel,
			ImageModel:  cfg.ImageModel,
		},
	)
	storageClient := storage.NewClient(
		&http.Client{Timeout: cfg.StorageTimeout},
		slog.Default(),
		cfg.StorageBaseURL, cfg.StorageAPIKey,
	)

	// 8. メディアパイプラインの初期化
	// 画像取り込みはSSRF防止付きクライアントで行う
	pipelineService := pipeline.NewService(
		genaiClient, genaiClient, storageClient, podcastRepo, ssrfGuard,
		ssrfGuard.NewSafeClient(cfg.ImportTimeout, cfg.ImportMaxSize),
		cfg.ImportMaxSize,
		collector, slog.Default(),
	)

	// 9. ランキングサービスの初期化
	rankingService := ranking.NewService(userRepo, podcastRepo)

	// 10. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.GenerateRate = rate.Limit(float64(cfg.RateLimitGenerate) / 60.0)
	rateLimiterCfg.GenerateBurst = cfg.RateLimitGenerate

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		UserFinder:        userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.SetupMetricsRoute(registry),

		WebhookVerifier: verifier,
		IdentityApplier: identityService,
		WebhookRecorder: collector,

		PodcastRepo:     podcastRepo,
		CallerFinder:    userRepo,
		PipelineService: pipelineService,
		Sanitizer:       sanitizer,
		ViewRecorder:    collector,
		MaxUploadSize:   cfg.MaxUploadSize,

		RankingService: rankingService,
	}

	router := handler.NewRouter(deps)

	// 11. カスケードワーカーの起動
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	cascadeQueue.Start(workerCtx)

	// 12. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 受付停止後にカスケードワーカーを止める
	workerCancel()
	cascadeQueue.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、著者画像の定期修復ジョブを起動する。
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

	// 2. リポジトリとメトリクスの初期化
	podcastRepo := repository.NewPostgresPodcastRepo(db)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 修復ジョブの初期化
	repairJob := reconcile.NewRepairJob(podcastRepo, slog.Default(), collector)

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
		slog.Duration("repair_interval", cfg.RepairInterval),
	)

	// 修復ジョブをメインgoroutineで実行（ブロッキング）
	repairJob.Start(ctx, cfg.RepairInterval)

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

	slog.Info("database migrations completed successfully")
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
