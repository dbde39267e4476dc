package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/castman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// Webhook受信
	WebhookVerifier WebhookVerifier
	IdentityApplier IdentityApplier
	WebhookRecorder WebhookRecorder

	// ポッドキャスト
	PodcastRepo     PodcastRepoInterface
	CallerFinder    UserFinderInterface
	PipelineService PipelineServiceInterface
	Sanitizer       TextSanitizer
	ViewRecorder    ViewRecorder
	MaxUploadSize   int64

	// ランキング
	RankingService RankingServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → RequestIdentity → RateLimit(General)
//
// Webhook受信（/webhooks/*）、/health、/metricsは認証チェーンの外に配置する。
// Webhookの信頼性は署名検証が担保する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	webhookHandler := NewWebhookHandler(deps.WebhookVerifier, deps.IdentityApplier, deps.WebhookRecorder)
	podcastHandler := NewPodcastHandler(
		deps.PodcastRepo, deps.CallerFinder, deps.PipelineService,
		deps.Sanitizer, deps.ViewRecorder, deps.MaxUploadSize,
	)
	rankingHandler := NewRankingHandler(deps.RankingService)

	// --- 認証不要のルート ---

	// IDプロバイダWebhook（署名検証で保護される）
	r.Post("/webhooks/identity", webhookHandler.HandleIdentityEvent)

	// ヘルスチェック
	r.Get("/health", newHealthHandler(deps.HealthChecker))

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: RequestIdentity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequestIdentityMiddleware(deps.UserFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ポッドキャスト管理
		r.Route("/api/podcasts", func(r chi.Router) {
			r.Post("/", podcastHandler.CreatePodcast)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", podcastHandler.GetPodcast)
				r.Post("/views", podcastHandler.IncrementViews)

				// 生成エンドポイントは外部APIを呼ぶため専用レート制限を追加
				r.With(deps.RateLimiter.GenerateMiddleware()).
					Post("/audio/generate", podcastHandler.GenerateAudio)
				r.Post("/audio", podcastHandler.UploadAudio)

				r.With(deps.RateLimiter.GenerateMiddleware()).
					Post("/image/generate", podcastHandler.GenerateImage)
				r.Post("/image", podcastHandler.UploadImage)
				r.Post("/image/import", podcastHandler.ImportImage)
			})
		})

		// ランキング
		r.Get("/api/rankings/podcasters", rankingHandler.TopPodcasters)
	})

	return r
}

// newHealthHandler はDB疎通確認を行うヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
