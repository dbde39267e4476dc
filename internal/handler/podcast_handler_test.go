package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/castman/internal/middleware"
	"github.com/hitoshi/castman/internal/model"
)

// --- モック定義 ---

type mockPodcastRepo struct {
	createFunc func(ctx context.Context, podcast *model.Podcast) error
	findFunc   func(ctx context.Context, id string) (*model.Podcast, error)
	incFunc    func(ctx context.Context, podcastID string) (int64, error)
	created    []*model.Podcast
}

func (m *mockPodcastRepo) Create(ctx context.Context, podcast *model.Podcast) error {
	m.created = append(m.created, podcast)
	if m.createFunc != nil {
		return m.createFunc(ctx, podcast)
	}
	return nil
}

func (m *mockPodcastRepo) FindByID(ctx context.Context, id string) (*model.Podcast, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockPodcastRepo) IncrementViews(ctx context.Context, podcastID string) (int64, error) {
	if m.incFunc != nil {
		return m.incFunc(ctx, podcastID)
	}
	return 1, nil
}

type mockUsers struct {
	findFunc func(ctx context.Context, providerUserID string) (*model.User, error)
}

func (m *mockUsers) FindByProviderID(ctx context.Context, providerUserID string) (*model.User, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, providerUserID)
	}
	return nil, nil
}

type mockPipeline struct {
	generateAudioFunc func(ctx context.Context, podcastID, voiceType, prompt string, durationSeconds float64) (model.AssetRef, error)
	importImageFunc   func(ctx context.Context, podcastID, sourceURL string) (model.AssetRef, error)
	uploadAudioCalls  []float64
}

func (m *mockPipeline) GenerateAudio(ctx context.Context, podcastID, voiceType, prompt string, durationSeconds float64) (model.AssetRef, error) {
	if m.generateAudioFunc != nil {
		return m.generateAudioFunc(ctx, podcastID, voiceType, prompt, durationSeconds)
	}
	return model.AssetRef{StorageID: "st_audio", URL: "https://store.example.com/st_audio"}, nil
}

func (m *mockPipeline) UploadAudio(ctx context.Context, podcastID string, data []byte, mediaType string, durationSeconds float64) (model.AssetRef, error) {
	m.uploadAudioCalls = append(m.uploadAudioCalls, durationSeconds)
	return model.AssetRef{StorageID: "st_audio", URL: "https://store.example.com/st_audio"}, nil
}

func (m *mockPipeline) GenerateImage(ctx context.Context, podcastID, prompt string) (model.AssetRef, error) {
	return model.AssetRef{StorageID: "st_image", URL: "https://store.example.com/st_image"}, nil
}

func (m *mockPipeline) UploadImage(ctx context.Context, podcastID string, data []byte, mediaType string) (model.AssetRef, error) {
	return model.AssetRef{StorageID: "st_image", URL: "https://store.example.com/st_image"}, nil
}

func (m *mockPipeline) ImportImage(ctx context.Context, podcastID, sourceURL string) (model.AssetRef, error) {
	if m.importImageFunc != nil {
		return m.importImageFunc(ctx, podcastID, sourceURL)
	}
	return model.AssetRef{StorageID: "st_image", URL: "https://store.example.com/st_image"}, nil
}

// passthroughSanitizer はHTMLタグ除去を模したサニタイザのモック。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(raw string) string {
	out := raw
	for {
		start := strings.Index(out, "<")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], ">")
		if end < 0 {
			break
		}
		out = out[:start] + out[start+end+1:]
	}
	return strings.TrimSpace(out)
}

type mockViewRecorder struct {
	count int
}

func (m *mockViewRecorder) RecordViewIncrement() { m.count++ }

// podcastTestEnv はポッドキャストハンドラーのテスト環境。
type podcastTestEnv struct {
	repo     *mockPodcastRepo
	users    *mockUsers
	pipeline *mockPipeline
	views    *mockViewRecorder
	router   http.Handler
}

// newPodcastTestEnv はハンドラーとルーティングを組み立てたテスト環境を返す。
func newPodcastTestEnv() *podcastTestEnv {
	env := &podcastTestEnv{
		repo: &mockPodcastRepo{},
		users: &mockUsers{
			findFunc: func(ctx context.Context, providerUserID string) (*model.User, error) {
				return &model.User{
					ID:             "internal-uuid",
					ProviderUserID: providerUserID,
					Name:           "Alice",
					ImageURL:       "https://img.example.com/alice.png",
				}, nil
			},
		},
		pipeline: &mockPipeline{},
		views:    &mockViewRecorder{},
	}

	h := NewPodcastHandler(env.repo, env.users, env.pipeline, passthroughSanitizer{}, env.views, 1024*1024)

	r := chi.NewRouter()
	r.Post("/api/podcasts", h.CreatePodcast)
	r.Get("/api/podcasts/{id}", h.GetPodcast)
	r.Post("/api/podcasts/{id}/views", h.IncrementViews)
	r.Post("/api/podcasts/{id}/audio/generate", h.GenerateAudio)
	r.Post("/api/podcasts/{id}/audio", h.UploadAudio)
	r.Post("/api/podcasts/{id}/image/generate", h.GenerateImage)
	r.Post("/api/podcasts/{id}/image", h.UploadImage)
	r.Post("/api/podcasts/{id}/image/import", h.ImportImage)
	env.router = r

	return env
}

// newAuthedRequest は認証済みコンテキスト付きのリクエストを生成する。
func newAuthedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := middleware.ContextWithProviderUserID(req.Context(), "user_2abc")
	return req.WithContext(ctx)
}

// --- テスト ---

func TestCreatePodcast_DenormalizesAuthorFields(t *testing.T) {
	env := newPodcastTestEnv()

	body := `{"title": "朝のニュース", "description": "毎朝のまとめ", "voice_type": "alloy"}`
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	if len(env.repo.created) != 1 {
		t.Fatalf("created = %d, want 1", len(env.repo.created))
	}
	p := env.repo.created[0]
	if p.OwnerProviderID != "user_2abc" {
		t.Errorf("OwnerProviderID = %s, want user_2abc", p.OwnerProviderID)
	}
	if p.AuthorName != "Alice" {
		t.Errorf("AuthorName = %s, want Alice", p.AuthorName)
	}
	if p.AuthorImageURL != "https://img.example.com/alice.png" {
		t.Errorf("AuthorImageURL = %s, want https://img.example.com/alice.png", p.AuthorImageURL)
	}
	if p.ID == "" {
		t.Error("ID should be assigned")
	}
}

func TestCreatePodcast_SetsCreationTimestamps(t *testing.T) {
	env := newPodcastTestEnv()

	before := time.Now()
	body := `{"title": "番組", "description": "説明"}`
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts", body))

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	p := env.repo.created[0]
	if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
		t.Fatalf("timestamps should be set, got created_at=%v updated_at=%v", p.CreatedAt, p.UpdatedAt)
	}
	if p.CreatedAt.Before(before) || p.CreatedAt.After(time.Now()) {
		t.Errorf("created_at = %v, want within test window", p.CreatedAt)
	}
	if !p.UpdatedAt.Equal(p.CreatedAt) {
		t.Errorf("updated_at = %v, want equal to created_at %v", p.UpdatedAt, p.CreatedAt)
	}
}

func TestCreatePodcast_SanitizesTitleAndDescription(t *testing.T) {
	env := newPodcastTestEnv()

	body := `{"title": "番組<script>x</script>名", "description": "<p>説明</p>"}`
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts", body))

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	p := env.repo.created[0]
	if p.Title != "番組x名" {
		t.Errorf("Title = %q, want %q", p.Title, "番組x名")
	}
	if p.Description != "説明" {
		t.Errorf("Description = %q, want %q", p.Description, "説明")
	}
}

func TestCreatePodcast_EmptyTitle_Returns400(t *testing.T) {
	env := newPodcastTestEnv()

	body := `{"title": "  <b></b> ", "description": "desc"}`
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if len(env.repo.created) != 0 {
		t.Errorf("created = %d, want 0", len(env.repo.created))
	}
}

func TestCreatePodcast_NoIdentity_Returns401(t *testing.T) {
	env := newPodcastTestEnv()

	req := httptest.NewRequest(http.MethodPost, "/api/podcasts",
		bytes.NewBufferString(`{"title": "t"}`))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestGetPodcast_NotFound_Returns404(t *testing.T) {
	env := newPodcastTestEnv()

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodGet, "/api/podcasts/missing", ""))

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodePodcastNotFound {
		t.Errorf("code = %s, want %s", body.Code, model.ErrCodePodcastNotFound)
	}
}

func TestGetPodcast_ReturnsAssetSlots(t *testing.T) {
	env := newPodcastTestEnv()
	env.repo.findFunc = func(ctx context.Context, id string) (*model.Podcast, error) {
		return &model.Podcast{
			ID:    id,
			Title: "番組",
			Audio: model.AssetRef{StorageID: "st_a", URL: "https://store.example.com/st_a"},
			Image: model.AssetRef{StorageID: "st_i", URL: "https://store.example.com/st_i"},
		}, nil
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodGet, "/api/podcasts/pod-1", ""))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body podcastResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Audio == nil || body.Audio.StorageID != "st_a" {
		t.Errorf("Audio = %+v, want storage_id st_a", body.Audio)
	}
	if body.Image == nil || body.Image.URL != "https://store.example.com/st_i" {
		t.Errorf("Image = %+v, want st_i url", body.Image)
	}
}

func TestIncrementViews_ReturnsNewCount(t *testing.T) {
	env := newPodcastTestEnv()
	env.repo.incFunc = func(ctx context.Context, podcastID string) (int64, error) {
		return 42, nil
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/views", ""))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body map[string]int64
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["views"] != 42 {
		t.Errorf("views = %d, want 42", body["views"])
	}
	if env.views.count != 1 {
		t.Errorf("recorded increments = %d, want 1", env.views.count)
	}
}

func TestGenerateAudio_PassesRequestFields(t *testing.T) {
	env := newPodcastTestEnv()

	var gotVoice, gotPrompt string
	var gotDuration float64
	env.pipeline.generateAudioFunc = func(ctx context.Context, podcastID, voiceType, prompt string, durationSeconds float64) (model.AssetRef, error) {
		gotVoice, gotPrompt, gotDuration = voiceType, prompt, durationSeconds
		return model.AssetRef{StorageID: "st_audio", URL: "https://store.example.com/st_audio"}, nil
	}

	body := `{"prompt": "今日のニュース", "voice": "alloy", "duration": 12.5}`
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/audio/generate", body))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotVoice != "alloy" || gotPrompt != "今日のニュース" || gotDuration != 12.5 {
		t.Errorf("got (%s, %s, %v), want (alloy, 今日のニュース, 12.5)", gotVoice, gotPrompt, gotDuration)
	}
}

func TestGenerateAudio_PipelineError_MapsStatus(t *testing.T) {
	env := newPodcastTestEnv()
	env.pipeline.generateAudioFunc = func(ctx context.Context, podcastID, voiceType, prompt string, durationSeconds float64) (model.AssetRef, error) {
		return model.AssetRef{}, model.NewGenerationFailedError("上流エラー")
	}

	body := `{"prompt": "p", "voice": "alloy"}`
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/audio/generate", body))

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadGateway)
	}
}

func TestUploadAudio_DurationQueryParam(t *testing.T) {
	env := newPodcastTestEnv()

	req := newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/audio?duration=33.5", "mp3-bytes")
	req.Header.Set("Content-Type", "audio/mpeg")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if len(env.pipeline.uploadAudioCalls) != 1 || env.pipeline.uploadAudioCalls[0] != 33.5 {
		t.Errorf("upload durations = %v, want [33.5]", env.pipeline.uploadAudioCalls)
	}
}

func TestUploadAudio_OversizePayload_Returns413(t *testing.T) {
	env := newPodcastTestEnv()
	h := NewPodcastHandler(env.repo, env.users, env.pipeline, passthroughSanitizer{}, env.views, 4)

	r := chi.NewRouter()
	r.Post("/api/podcasts/{id}/audio", h.UploadAudio)

	req := newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/audio", "123456")
	req.Header.Set("Content-Type", "audio/mpeg")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusRequestEntityTooLarge)
	}
	// 切り詰めた断片がパイプラインへ渡っていないこと
	if len(env.pipeline.uploadAudioCalls) != 0 {
		t.Errorf("pipeline calls = %d, want 0", len(env.pipeline.uploadAudioCalls))
	}
}

func TestUploadImage_OversizePayload_Returns413(t *testing.T) {
	env := newPodcastTestEnv()
	h := NewPodcastHandler(env.repo, env.users, env.pipeline, passthroughSanitizer{}, env.views, 4)

	r := chi.NewRouter()
	r.Post("/api/podcasts/{id}/image", h.UploadImage)

	req := newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/image", "123456")
	req.Header.Set("Content-Type", "image/png")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusRequestEntityTooLarge)
	}
}

func TestUploadAudio_PayloadAtLimit_Succeeds(t *testing.T) {
	env := newPodcastTestEnv()
	h := NewPodcastHandler(env.repo, env.users, env.pipeline, passthroughSanitizer{}, env.views, 4)

	r := chi.NewRouter()
	r.Post("/api/podcasts/{id}/audio", h.UploadAudio)

	req := newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/audio", "1234")
	req.Header.Set("Content-Type", "audio/mpeg")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

func TestUploadAudio_InvalidDuration_Returns400(t *testing.T) {
	env := newPodcastTestEnv()

	req := newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/audio?duration=abc", "mp3-bytes")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestImportImage_EmptyURL_Returns400(t *testing.T) {
	env := newPodcastTestEnv()

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/image/import", `{"url": ""}`))

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestImportImage_SSRFBlocked_Returns403(t *testing.T) {
	env := newPodcastTestEnv()
	env.pipeline.importImageFunc = func(ctx context.Context, podcastID, sourceURL string) (model.AssetRef, error) {
		return model.AssetRef{}, model.NewSSRFBlockedError()
	}

	body := `{"url": "http://169.254.169.254/latest/meta-data/"}`
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, newAuthedRequest(http.MethodPost, "/api/podcasts/pod-1/image/import", body))

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}
