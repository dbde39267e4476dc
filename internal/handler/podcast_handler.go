package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/castman/internal/middleware"
	"github.com/hitoshi/castman/internal/model"
)

// PodcastRepoInterface はポッドキャストハンドラーが必要とする永続化インターフェース。
type PodcastRepoInterface interface {
	Create(ctx context.Context, podcast *model.Podcast) error
	FindByID(ctx context.Context, id string) (*model.Podcast, error)
	IncrementViews(ctx context.Context, podcastID string) (int64, error)
}

// UserFinderInterface は呼び出しユーザーの検索インターフェース。
type UserFinderInterface interface {
	FindByProviderID(ctx context.Context, providerUserID string) (*model.User, error)
}

// PipelineServiceInterface はメディアパイプラインのサービスインターフェース。
type PipelineServiceInterface interface {
	GenerateAudio(ctx context.Context, podcastID, voiceType, prompt string, durationSeconds float64) (model.AssetRef, error)
	UploadAudio(ctx context.Context, podcastID string, data []byte, mediaType string, durationSeconds float64) (model.AssetRef, error)
	GenerateImage(ctx context.Context, podcastID, prompt string) (model.AssetRef, error)
	UploadImage(ctx context.Context, podcastID string, data []byte, mediaType string) (model.AssetRef, error)
	ImportImage(ctx context.Context, podcastID, sourceURL string) (model.AssetRef, error)
}

// TextSanitizer はユーザー入力テキストのサニタイズインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// ViewRecorder は再生カウンタ加算のメトリクス記録インターフェース。
type ViewRecorder interface {
	RecordViewIncrement()
}

// PodcastHandler はポッドキャスト管理のHTTPハンドラー。
type PodcastHandler struct {
	podcasts      PodcastRepoInterface
	users         UserFinderInterface
	pipeline      PipelineServiceInterface
	sanitizer     TextSanitizer
	views         ViewRecorder
	maxUploadSize int64
}

// NewPodcastHandler はPodcastHandlerを生成する。
func NewPodcastHandler(
	podcasts PodcastRepoInterface,
	users UserFinderInterface,
	pipeline PipelineServiceInterface,
	sanitizer TextSanitizer,
	views ViewRecorder,
	maxUploadSize int64,
) *PodcastHandler {
	return &PodcastHandler{
		podcasts:      podcasts,
		users:         users,
		pipeline:      pipeline,
		sanitizer:     sanitizer,
		views:         views,
		maxUploadSize: maxUploadSize,
	}
}

// createPodcastRequest はポッドキャスト作成リクエストのボディ。
type createPodcastRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	VoiceType   string `json:"voice_type"`
	VoicePrompt string `json:"voice_prompt"`
	ImagePrompt string `json:"image_prompt"`
}

// generateAudioRequest は音声生成リクエストのボディ。
type generateAudioRequest struct {
	Prompt   string  `json:"prompt"`
	Voice    string  `json:"voice"`
	Duration float64 `json:"duration"`
}

// generateImageRequest は画像生成リクエストのボディ。
type generateImageRequest struct {
	Prompt string `json:"prompt"`
}

// importImageRequest は画像取り込みリクエストのボディ。
type importImageRequest struct {
	URL string `json:"url"`
}

// assetResponse はアセットスロットのAPIレスポンス。
type assetResponse struct {
	StorageID string `json:"storage_id"`
	URL       string `json:"url"`
}

// podcastResponse はポッドキャスト情報のAPIレスポンス。
type podcastResponse struct {
	ID              string         `json:"id"`
	OwnerProviderID string         `json:"owner_provider_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	VoiceType       string         `json:"voice_type"`
	VoicePrompt     string         `json:"voice_prompt"`
	ImagePrompt     string         `json:"image_prompt"`
	Audio           *assetResponse `json:"audio,omitempty"`
	AudioDuration   float64        `json:"audio_duration,omitempty"`
	Image           *assetResponse `json:"image,omitempty"`
	AuthorName      string         `json:"author_name"`
	AuthorImageURL  string         `json:"author_image_url"`
	Views           int64          `json:"views"`
	CreatedAt       time.Time      `json:"created_at"`
}

// CreatePodcast はポッドキャスト作成を処理する。
// 著者表示フィールドは作成時点の呼び出しユーザーから非正規化コピーされる。
// POST /api/podcasts
func (h *PodcastHandler) CreatePodcast(w http.ResponseWriter, r *http.Request) {
	providerUserID, err := middleware.ProviderUserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedResponse(w)
		return
	}

	var req createPodcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	title := h.sanitizer.Sanitize(req.Title)
	if title == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidTitleError("タイトルが空です"))
		return
	}
	description := h.sanitizer.Sanitize(req.Description)

	user, err := h.users.FindByProviderID(r.Context(), providerUserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound,
			model.NewUserNotFoundError(providerUserID))
		return
	}

	now := time.Now()
	podcast := &model.Podcast{
		ID:              uuid.NewString(),
		OwnerProviderID: providerUserID,
		Title:           title,
		Description:     description,
		VoiceType:       req.VoiceType,
		VoicePrompt:     req.VoicePrompt,
		ImagePrompt:     req.ImagePrompt,
		AuthorName:      user.Name,
		AuthorImageURL:  user.ImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.podcasts.Create(r.Context(), podcast); err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.podcasts.FindByID(r.Context(), podcast.ID)
	if err != nil || created == nil {
		// 作成は成功しているため、読み返しに失敗しても入力値で応答する
		created = podcast
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toPodcastResponse(created))
}

// GetPodcast はポッドキャスト詳細を取得する。
// GET /api/podcasts/:id
func (h *PodcastHandler) GetPodcast(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	podcast, err := h.podcasts.FindByID(r.Context(), podcastID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if podcast == nil {
		writeAPIErrorResponse(w, http.StatusNotFound,
			model.NewPodcastNotFoundError(podcastID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPodcastResponse(podcast))
}

// IncrementViews は再生カウンタを加算する。
// POST /api/podcasts/:id/views
func (h *PodcastHandler) IncrementViews(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	views, err := h.podcasts.IncrementViews(r.Context(), podcastID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.views.RecordViewIncrement()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"views": views})
}

// GenerateAudio はプロンプトからの音声生成を処理する。
// POST /api/podcasts/:id/audio/generate
func (h *PodcastHandler) GenerateAudio(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	var req generateAudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	ref, err := h.pipeline.GenerateAudio(r.Context(), podcastID, req.Voice, req.Prompt, req.Duration)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeAssetResponse(w, ref)
}

// UploadAudio はクライアントからの音声アップロードを処理する。
// 再生時間はdurationクエリパラメータで受け取る（再生時間はクライアントが計測する）。
// POST /api/podcasts/:id/audio
func (h *PodcastHandler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	duration := 0.0
	if raw := r.URL.Query().Get("duration"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			writeInvalidRequestResponse(w)
			return
		}
		duration = parsed
	}

	data, err := readUploadBody(r, h.maxUploadSize)
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			writePayloadTooLargeResponse(w, h.maxUploadSize)
		} else {
			writeInvalidRequestResponse(w)
		}
		return
	}

	ref, err := h.pipeline.UploadAudio(r.Context(), podcastID, data, r.Header.Get("Content-Type"), duration)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeAssetResponse(w, ref)
}

// GenerateImage はプロンプトからの画像生成を処理する。
// POST /api/podcasts/:id/image/generate
func (h *PodcastHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	var req generateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}

	ref, err := h.pipeline.GenerateImage(r.Context(), podcastID, req.Prompt)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeAssetResponse(w, ref)
}

// UploadImage はクライアントからの画像アップロードを処理する。
// POST /api/podcasts/:id/image
func (h *PodcastHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	data, err := readUploadBody(r, h.maxUploadSize)
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			writePayloadTooLargeResponse(w, h.maxUploadSize)
		} else {
			writeInvalidRequestResponse(w)
		}
		return
	}

	ref, err := h.pipeline.UploadImage(r.Context(), podcastID, data, r.Header.Get("Content-Type"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeAssetResponse(w, ref)
}

// ImportImage は外部URLからの画像取り込みを処理する。
// POST /api/podcasts/:id/image/import
func (h *PodcastHandler) ImportImage(w http.ResponseWriter, r *http.Request) {
	podcastID := chi.URLParam(r, "id")

	var req importImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestResponse(w)
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidImageURLError("URLが空です"))
		return
	}

	ref, err := h.pipeline.ImportImage(r.Context(), podcastID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeAssetResponse(w, ref)
}

// --- ヘルパー関数 ---

// errPayloadTooLarge はアップロードボディがサイズ上限を超えたことを示す。
var errPayloadTooLarge = errors.New("upload payload exceeds size limit")

// readUploadBody はアップロードボディをサイズ上限まで読み込む。
// 上限+1バイトまで読んで超過を検出し、切り詰めた断片を保存しないようにする。
func readUploadBody(r *http.Request, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, errPayloadTooLarge
	}
	return data, nil
}

// toPodcastResponse はmodel.PodcastからAPIレスポンスに変換する。
func toPodcastResponse(p *model.Podcast) podcastResponse {
	resp := podcastResponse{
		ID:              p.ID,
		OwnerProviderID: p.OwnerProviderID,
		Title:           p.Title,
		Description:     p.Description,
		VoiceType:       p.VoiceType,
		VoicePrompt:     p.VoicePrompt,
		ImagePrompt:     p.ImagePrompt,
		AudioDuration:   p.AudioDuration,
		AuthorName:      p.AuthorName,
		AuthorImageURL:  p.AuthorImageURL,
		Views:           p.Views,
		CreatedAt:       p.CreatedAt,
	}
	if !p.Audio.IsZero() {
		resp.Audio = &assetResponse{StorageID: p.Audio.StorageID, URL: p.Audio.URL}
	}
	if !p.Image.IsZero() {
		resp.Image = &assetResponse{StorageID: p.Image.StorageID, URL: p.Image.URL}
	}
	return resp
}

// writeAssetResponse は完了したアセットスロットのレスポンスを書き込む。
func writeAssetResponse(w http.ResponseWriter, ref model.AssetRef) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(assetResponse{
		StorageID: ref.StorageID,
		URL:       ref.URL,
	})
}
