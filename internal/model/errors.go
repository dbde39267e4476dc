// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: webhook, identity, pipeline, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeVerificationFailed = "VERIFICATION_FAILED"
	ErrCodeMalformedEvent     = "MALFORMED_EVENT"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUserAlreadyExists  = "USER_ALREADY_EXISTS"
	ErrCodePodcastNotFound    = "PODCAST_NOT_FOUND"
	ErrCodeInvalidPrompt      = "INVALID_PROMPT"
	ErrCodeGenerationFailed   = "GENERATION_FAILED"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeResolutionFailed   = "RESOLUTION_FAILED"
	ErrCodeInvalidImageURL    = "INVALID_IMAGE_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeInvalidTitle       = "INVALID_TITLE"
)

// NewVerificationFailedError は署名検証失敗エラーを生成する。
// 信頼境界での拒否であり、リトライしても成功しない。
func NewVerificationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeVerificationFailed,
		Message:  fmt.Sprintf("Webhook署名の検証に失敗しました: %s", reason),
		Category: "webhook",
		Action:   "IDプロバイダ側のWebhook設定とシークレットを確認してください。",
	}
}

// NewMalformedEventError はペイロードの形式不正エラーを生成する。
func NewMalformedEventError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMalformedEvent,
		Message:  fmt.Sprintf("Webhookペイロードの解析に失敗しました: %s", reason),
		Category: "webhook",
		Action:   "IDプロバイダが送信するイベント形式を確認してください。",
	}
}

// NewUserNotFoundError は対象ユーザーが存在しない場合のエラーを生成する。
// プロバイダが正であるため、ローカルに該当ユーザーがいないのは
// ストアの整合性が崩れている兆候であり、握りつぶさず通知する。
func NewUserNotFoundError(providerUserID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", providerUserID),
		Category: "identity",
		Action:   "IDプロバイダとローカルストアの同期状態を確認してください。",
	}
}

// NewUserAlreadyExistsError は既存ユーザーへのcreatedイベント受信エラーを生成する。
// 適用済みイベントの再配送が疑われるため、上書きせずに報告する。
func NewUserAlreadyExistsError(providerUserID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  fmt.Sprintf("ユーザーは既に存在します: %s", providerUserID),
		Category: "identity",
		Action:   "user.createdイベントの重複配送が発生していないか確認してください。",
	}
}

// NewPodcastNotFoundError はPodcast未検出エラーを生成する。
func NewPodcastNotFoundError(podcastID string) *APIError {
	return &APIError{
		Code:     ErrCodePodcastNotFound,
		Message:  fmt.Sprintf("指定されたポッドキャストが見つかりません: %s", podcastID),
		Category: "validation",
		Action:   "ポッドキャストIDを確認してください。",
	}
}

// NewInvalidPromptError は空または不正なプロンプトのエラーを生成する。
// 生成APIの呼び出し前に拒否される。
func NewInvalidPromptError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPrompt,
		Message:  "生成プロンプトが空です。",
		Category: "validation",
		Action:   "生成したい内容を表すテキストを入力してください。",
	}
}

// NewGenerationFailedError は生成API呼び出し失敗のエラーを生成する。
// この段階の失敗ではバイト列は一切生成されていない。
func NewGenerationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeGenerationFailed,
		Message:  fmt.Sprintf("メディアの生成に失敗しました: %s", reason),
		Category: "pipeline",
		Action:   "しばらく待ってから再度生成をお試しください。",
	}
}

// NewUploadFailedError は耐久ストアへのアップロード失敗のエラーを生成する。
// バイト列は生成済みだが保存されていない状態を表す。
func NewUploadFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("生成されたメディアの保存に失敗しました: %s", reason),
		Category: "pipeline",
		Action:   "ストレージサービスの状態を確認し、再度お試しください。",
	}
}

// NewResolutionFailedError はストレージIDのURL解決失敗のエラーを生成する。
// アップロードは完了しているがURLが未取得の状態を表す。
func NewResolutionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeResolutionFailed,
		Message:  fmt.Sprintf("保存されたメディアのURL解決に失敗しました: %s", reason),
		Category: "pipeline",
		Action:   "ストレージサービスの状態を確認し、再度お試しください。",
	}
}

// NewInvalidImageURLError は画像取り込みURLの形式不正エラーを生成する。
func NewInvalidImageURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageURL,
		Message:  fmt.Sprintf("無効な画像URLです: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まる公開画像のURLを入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewInvalidTitleError はタイトル/説明の入力不正エラーを生成する。
func NewInvalidTitleError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTitle,
		Message:  fmt.Sprintf("タイトルまたは説明が不正です: %s", reason),
		Category: "validation",
		Action:   "タイトルと説明を入力してください。",
	}
}
