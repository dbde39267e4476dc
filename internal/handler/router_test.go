package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/castman/internal/middleware"
	"github.com/hitoshi/castman/internal/model"
	"github.com/hitoshi/castman/internal/ranking"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// newTestRouter は全依存をモックで満たしたルーターを組み立てる。
func newTestRouter(t *testing.T, health *mockHealthChecker) http.Handler {
	t.Helper()

	users := &mockUsers{
		findFunc: func(ctx context.Context, providerUserID string) (*model.User, error) {
			if providerUserID == "user_2abc" {
				return &model.User{ID: "internal-uuid", ProviderUserID: providerUserID, Name: "Alice"}, nil
			}
			return nil, nil
		},
	}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	deps := &RouterDeps{
		UserFinder:        users,
		CORSAllowedOrigin: "https://app.example.com",
		RateLimiter:       limiter,
		HealthChecker:     health,
		WebhookVerifier:   &mockVerifier{},
		IdentityApplier:   &mockApplier{},
		WebhookRecorder:   &mockWebhookRecorder{},
		PodcastRepo:       &mockPodcastRepo{},
		CallerFinder:      users,
		PipelineService:   &mockPipeline{},
		Sanitizer:         passthroughSanitizer{},
		ViewRecorder:      &mockViewRecorder{},
		MaxUploadSize:     1024 * 1024,
		RankingService: &mockRankingService{
			topFunc: func(ctx context.Context) ([]ranking.RankedPodcaster, error) {
				return []ranking.RankedPodcaster{}, nil
			},
		},
	}

	return NewRouter(deps)
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %s, want ok", body["status"])
	}
}

func TestRouter_HealthEndpoint_DBDown_Returns503(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRouter_WebhookEndpoint_NoIdentityHeaderRequired(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, newWebhookRequest(createdEventBody))

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_PodcastRoutes_RequireIdentityHeader(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/podcasts/pod-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_PodcastRoutes_UnknownIdentity_Returns401(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/podcasts/pod-1", nil)
	req.Header.Set("X-Provider-User-Id", "user_unknown")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_RankingRoute_Reachable(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/api/rankings/podcasters", nil)
	req.Header.Set("X-Provider-User-Id", "user_2abc")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Result().Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %s, want nosniff", got)
	}
}
