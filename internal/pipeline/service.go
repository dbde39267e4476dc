// Package pipeline はメディアアセットの取得から永続化までの一連の流れを提供する。
//
// 入口は3種類（プロンプトからの生成、クライアントからの直接アップロード、
// 外部URLからの取り込み）あるが、いずれも同一の末尾処理に合流する:
// UUIDベースのオブジェクト名を発行し、耐久ストアへ保存し、公開URLを解決し、
// 最後に番組レコードのスロットへ参照を書き込む。
// スロットへの書き込みはURL解決が成功した後にのみ行われるため、
// 途中で失敗したパイプラインはレコードに痕跡を残さない。
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/castman/internal/model"
)

// SpeechGenerator は音声合成のインターフェース。
type SpeechGenerator interface {
	GenerateSpeech(ctx context.Context, voice, input string) ([]byte, error)
}

// ImageGenerator は画像生成のインターフェース。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// AssetStore は耐久ストアのインターフェース。
type AssetStore interface {
	Upload(ctx context.Context, objectName, mediaType string, data []byte) (string, error)
	ResolveURL(ctx context.Context, storageID string) (string, error)
}

// SlotWriter は番組レコードのアセットスロット書き込みインターフェース。
// repository.PodcastRepositoryの部分集合として定義する。
type SlotWriter interface {
	SetAudioSlot(ctx context.Context, podcastID string, ref model.AssetRef, durationSeconds float64) error
	SetImageSlot(ctx context.Context, podcastID string, ref model.AssetRef) error
}

// URLValidator は取り込み元URLの事前検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// StageRecorder はパイプラインの観測値を記録するインターフェース。
type StageRecorder interface {
	RecordPipelineFailure(stage string)
	RecordUploadBytes(n int)
	RecordHTTPStatus(statusCode int)
}

// パイプラインの段階名。StageRecorderのラベルに使用する。
const (
	StageGenerate = "generate"
	StageImport   = "import"
	StageUpload   = "upload"
	StageResolve  = "resolve"
	StageWrite    = "write"
)

// Service はメディアパイプラインのサービス層。
type Service struct {
	speech       SpeechGenerator
	image        ImageGenerator
	store        AssetStore
	slots        SlotWriter
	validator    URLValidator
	importClient *http.Client // SSRF防止付きクライアント
	importMax    int64
	recorder     StageRecorder
	logger       *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// importClientにはSSRF防止付きのHTTPクライアントを渡すこと。
func NewService(
	speech SpeechGenerator,
	image ImageGenerator,
	store AssetStore,
	slots SlotWriter,
	validator URLValidator,
	importClient *http.Client,
	importMax int64,
	recorder StageRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		speech:       speech,
		image:        image,
		store:        store,
		slots:        slots,
		validator:    validator,
		importClient: importClient,
		importMax:    importMax,
		recorder:     recorder,
		logger:       logger,
	}
}

// GenerateAudio はプロンプトから音声を生成し、番組の音声スロットへ保存する。
// 再生時間は生成バイト列から自動では判定できないため、呼び出し側から受け取る。
func (s *Service) GenerateAudio(ctx context.Context, podcastID, voiceType, prompt string, durationSeconds float64) (model.AssetRef, error) {
	if strings.TrimSpace(prompt) == "" {
		return model.AssetRef{}, model.NewInvalidPromptError()
	}

	data, err := s.speech.GenerateSpeech(ctx, voiceType, prompt)
	if err != nil {
		s.recorder.RecordPipelineFailure(StageGenerate)
		s.logger.Error("音声生成に失敗しました",
			slog.String("podcast_id", podcastID),
			slog.String("error", err.Error()),
		)
		return model.AssetRef{}, model.NewGenerationFailedError(err.Error())
	}

	return s.storeAudio(ctx, podcastID, data, "audio/mpeg", durationSeconds)
}

// UploadAudio はクライアントから受け取った音声バイト列を番組の音声スロットへ保存する。
func (s *Service) UploadAudio(ctx context.Context, podcastID string, data []byte, mediaType string, durationSeconds float64) (model.AssetRef, error) {
	if len(data) == 0 {
		return model.AssetRef{}, model.NewUploadFailedError("ペイロードが空です")
	}
	if mediaType == "" {
		mediaType = "audio/mpeg"
	}
	return s.storeAudio(ctx, podcastID, data, mediaType, durationSeconds)
}

// GenerateImage はプロンプトから画像を生成し、番組の画像スロットへ保存する。
func (s *Service) GenerateImage(ctx context.Context, podcastID, prompt string) (model.AssetRef, error) {
	if strings.TrimSpace(prompt) == "" {
		return model.AssetRef{}, model.NewInvalidPromptError()
	}

	data, err := s.image.GenerateImage(ctx, prompt)
	if err != nil {
		s.recorder.RecordPipelineFailure(StageGenerate)
		s.logger.Error("画像生成に失敗しました",
			slog.String("podcast_id", podcastID),
			slog.String("error", err.Error()),
		)
		return model.AssetRef{}, model.NewGenerationFailedError(err.Error())
	}

	return s.storeImage(ctx, podcastID, data, "image/png")
}

// UploadImage はクライアントから受け取った画像バイト列を番組の画像スロットへ保存する。
func (s *Service) UploadImage(ctx context.Context, podcastID string, data []byte, mediaType string) (model.AssetRef, error) {
	if len(data) == 0 {
		return model.AssetRef{}, model.NewUploadFailedError("ペイロードが空です")
	}
	if mediaType == "" {
		mediaType = "image/png"
	}
	return s.storeImage(ctx, podcastID, data, mediaType)
}

// ImportImage は外部URLから画像を取得し、番組の画像スロットへ保存する。
// 取得前にURLの静的検証を行い、取得時はSSRF防止付きクライアントを使用する。
func (s *Service) ImportImage(ctx context.Context, podcastID, sourceURL string) (model.AssetRef, error) {
	if err := s.validator.ValidateURL(sourceURL); err != nil {
		return model.AssetRef{}, model.NewInvalidImageURLError(err.Error())
	}

	data, mediaType, err := s.fetchImage(ctx, sourceURL)
	if err != nil {
		s.recorder.RecordPipelineFailure(StageImport)
		return model.AssetRef{}, err
	}

	return s.storeImage(ctx, podcastID, data, mediaType)
}

// fetchImage は検証済みURLから画像バイト列を取得する。
// DialerレベルのSSRFブロックはSSRF_BLOCKEDとして区別して返す。
func (s *Service) fetchImage(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", model.NewInvalidImageURLError(err.Error())
	}

	resp, err := s.importClient.Do(req)
	if err != nil {
		s.logger.Warn("画像取り込みリクエストがブロックまたは失敗しました",
			slog.String("source_url", sourceURL),
			slog.String("error", err.Error()),
		)
		return nil, "", model.NewSSRFBlockedError()
	}
	defer resp.Body.Close()
	s.recorder.RecordHTTPStatus(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, "", model.NewInvalidImageURLError(
			fmt.Sprintf("取り込み元がステータス %d を返しました", resp.StatusCode))
	}

	mediaType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", model.NewInvalidImageURLError(
			fmt.Sprintf("取り込み元のContent-Typeが画像ではありません: %s", mediaType))
	}

	// サイズ上限+1まで読み、超過を検出する
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.importMax+1))
	if err != nil {
		return nil, "", model.NewInvalidImageURLError(err.Error())
	}
	if int64(len(data)) > s.importMax {
		return nil, "", model.NewInvalidImageURLError(
			fmt.Sprintf("取り込み元のサイズが上限 %d バイトを超えています", s.importMax))
	}
	if len(data) == 0 {
		return nil, "", model.NewInvalidImageURLError("取り込み元のボディが空です")
	}

	return data, mediaType, nil
}

// storeAudio は音声バイト列を耐久ストアへ保存し、音声スロットへ書き込む。
func (s *Service) storeAudio(ctx context.Context, podcastID string, data []byte, mediaType string, durationSeconds float64) (model.AssetRef, error) {
	objectName := fmt.Sprintf("audio-%s%s", uuid.NewString(), audioExtension(mediaType))

	ref, err := s.persist(ctx, objectName, mediaType, data)
	if err != nil {
		return model.AssetRef{}, err
	}

	if err := s.slots.SetAudioSlot(ctx, podcastID, ref, durationSeconds); err != nil {
		s.recorder.RecordPipelineFailure(StageWrite)
		return model.AssetRef{}, err
	}

	s.logger.Info("音声アセットを保存しました",
		slog.String("podcast_id", podcastID),
		slog.String("object_name", objectName),
		slog.String("storage_id", ref.StorageID),
	)
	return ref, nil
}

// storeImage は画像バイト列を耐久ストアへ保存し、画像スロットへ書き込む。
func (s *Service) storeImage(ctx context.Context, podcastID string, data []byte, mediaType string) (model.AssetRef, error) {
	objectName := fmt.Sprintf("image-%s%s", uuid.NewString(), imageExtension(mediaType))

	ref, err := s.persist(ctx, objectName, mediaType, data)
	if err != nil {
		return model.AssetRef{}, err
	}

	if err := s.slots.SetImageSlot(ctx, podcastID, ref); err != nil {
		s.recorder.RecordPipelineFailure(StageWrite)
		return model.AssetRef{}, err
	}

	s.logger.Info("画像アセットを保存しました",
		slog.String("podcast_id", podcastID),
		slog.String("object_name", objectName),
		slog.String("storage_id", ref.StorageID),
	)
	return ref, nil
}

// persist はアップロードとURL解決の共通末尾処理。
// 解決済みURLが得られるまでAssetRefは発行されない。
func (s *Service) persist(ctx context.Context, objectName, mediaType string, data []byte) (model.AssetRef, error) {
	storageID, err := s.store.Upload(ctx, objectName, mediaType, data)
	if err != nil {
		s.recorder.RecordPipelineFailure(StageUpload)
		return model.AssetRef{}, model.NewUploadFailedError(err.Error())
	}
	s.recorder.RecordUploadBytes(len(data))

	url, err := s.store.ResolveURL(ctx, storageID)
	if err != nil {
		s.recorder.RecordPipelineFailure(StageResolve)
		return model.AssetRef{}, model.NewResolutionFailedError(err.Error())
	}

	return model.AssetRef{StorageID: storageID, URL: url}, nil
}

// audioExtension はメディアタイプから音声ファイルの拡張子を決める。
func audioExtension(mediaType string) string {
	switch mediaType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".mp3"
	}
}

// imageExtension はメディアタイプから画像ファイルの拡張子を決める。
func imageExtension(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
