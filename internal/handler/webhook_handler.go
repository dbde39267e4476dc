package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/castman/internal/model"
	"github.com/hitoshi/castman/internal/webhook"
)

// maxWebhookBodySize はWebhookリクエストボディの上限サイズ。
const maxWebhookBodySize = 1 << 20 // 1MiB

// WebhookVerifier は署名検証のインターフェース。
type WebhookVerifier interface {
	Verify(body []byte, headers webhook.SignatureHeaders) error
}

// IdentityApplier はデコード済みイベントの適用インターフェース。
type IdentityApplier interface {
	Apply(ctx context.Context, event webhook.Event) error
}

// WebhookRecorder はWebhook処理結果のメトリクス記録インターフェース。
type WebhookRecorder interface {
	RecordWebhookEvent(eventType, result string)
}

// WebhookHandler はIDプロバイダのWebhook受信ハンドラー。
// 署名検証 → デコード → リコンサイルの順に処理し、
// 検証を通過しないリクエストはボディに触れる前に拒否する。
type WebhookHandler struct {
	verifier WebhookVerifier
	applier  IdentityApplier
	recorder WebhookRecorder
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(verifier WebhookVerifier, applier IdentityApplier, recorder WebhookRecorder) *WebhookHandler {
	return &WebhookHandler{
		verifier: verifier,
		applier:  applier,
		recorder: recorder,
	}
}

// HandleIdentityEvent はIDプロバイダからのWebhook配送を処理する。
// POST /webhooks/identity
func (h *WebhookHandler) HandleIdentityEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewMalformedEventError("リクエストボディの読み取りに失敗しました"))
		return
	}

	headers := webhook.SignatureHeaders{
		ID:        r.Header.Get("svix-id"),
		Timestamp: r.Header.Get("svix-timestamp"),
		Signature: r.Header.Get("svix-signature"),
	}

	if err := h.verifier.Verify(body, headers); err != nil {
		h.recorder.RecordWebhookEvent("unknown", "rejected")
		slog.Warn("webhook signature verification failed",
			slog.String("svix_id", headers.ID),
		)
		handleServiceError(w, err)
		return
	}

	event, err := webhook.Decode(body)
	if err != nil {
		h.recorder.RecordWebhookEvent("unknown", "rejected")
		handleServiceError(w, err)
		return
	}

	eventType := eventTypeOf(event)

	if err := h.applier.Apply(r.Context(), event); err != nil {
		result := "failed"
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case model.ErrCodeUserAlreadyExists:
				result = "conflict"
			case model.ErrCodeUserNotFound:
				result = "not_found"
			}
		}
		h.recorder.RecordWebhookEvent(eventType, result)
		slog.Warn("webhook event apply failed",
			slog.String("svix_id", headers.ID),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, err)
		return
	}

	result := "applied"
	if _, ok := event.(webhook.Ignored); ok {
		result = "ignored"
	}
	h.recorder.RecordWebhookEvent(eventType, result)

	slog.Info("webhook event applied",
		slog.String("svix_id", headers.ID),
		slog.String("event_type", eventType),
		slog.String("result", result),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": result})
}

// eventTypeOf はメトリクスラベル用のイベント種別文字列を返す。
func eventTypeOf(event webhook.Event) string {
	switch e := event.(type) {
	case webhook.UserCreated:
		return "user.created"
	case webhook.UserUpdated:
		return "user.updated"
	case webhook.UserDeleted:
		return "user.deleted"
	case webhook.Ignored:
		return e.Type
	default:
		return "unknown"
	}
}
