// Package webhook はIDプロバイダからの署名付きWebhookイベントの
// 検証とデコードを提供する。
// このパッケージが外界とリコンサイル処理の間の唯一の信頼境界であり、
// 検証に成功するまでペイロードの内容は一切信用しない。
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/castman/internal/model"
)

const (
	// secretPrefix はプロバイダが配布するWebhookシークレットの接頭辞。
	// 接頭辞の後ろにbase64エンコードされた鍵本体が続く。
	secretPrefix = "whsec_"

	// signatureVersion は対応する署名スキームのバージョン識別子。
	signatureVersion = "v1"
)

// SignatureHeaders はWebhookリクエストに必須の3ヘッダーの値を保持する。
type SignatureHeaders struct {
	ID        string // 配送ID（svix-id）
	Timestamp string // Unix秒（svix-timestamp）
	Signature string // スペース区切りの "v1,<base64>" リスト（svix-signature）
}

// Verifier はHMAC-SHA256によるWebhook署名検証を行う。
// 検証は純粋なバリデーションであり副作用を持たない。
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time // テスト用に差し替え可能
}

// NewVerifier はVerifierを生成する。
// シークレットが空の場合は署名検証失敗とは区別される設定エラーを返す。
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is not configured")
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}

	return &Verifier{
		secret:    key,
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

// decodeSecret は "whsec_" 接頭辞付きシークレットから鍵本体を取り出す。
func decodeSecret(secret string) ([]byte, error) {
	raw := strings.TrimPrefix(secret, secretPrefix)
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret: %w", err)
	}
	return key, nil
}

// Verify は生のリクエストボディと署名ヘッダーを検証する。
// 以下をすべて拒否する:
//   - 必須ヘッダーの欠落
//   - 許容範囲（tolerance）外のタイムスタンプ
//   - HMAC検証に一致しない署名
//
// 成功時はnilを返す。失敗はすべて*model.APIError（VERIFICATION_FAILED）。
func (v *Verifier) Verify(body []byte, headers SignatureHeaders) error {
	if headers.ID == "" {
		return model.NewVerificationFailedError("svix-idヘッダーがありません")
	}
	if headers.Timestamp == "" {
		return model.NewVerificationFailedError("svix-timestampヘッダーがありません")
	}
	if headers.Signature == "" {
		return model.NewVerificationFailedError("svix-signatureヘッダーがありません")
	}

	// タイムスタンプ検証（リプレイ対策）
	ts, err := strconv.ParseInt(headers.Timestamp, 10, 64)
	if err != nil {
		return model.NewVerificationFailedError("タイムスタンプの形式が不正です")
	}
	sent := time.Unix(ts, 0)
	diff := v.now().Sub(sent)
	if diff < 0 {
		diff = -diff
	}
	if diff > v.tolerance {
		return model.NewVerificationFailedError("タイムスタンプが許容範囲外です")
	}

	// 署名対象は "id.timestamp.body" の連結
	signedContent := fmt.Sprintf("%s.%s.%s", headers.ID, headers.Timestamp, body)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signedContent))
	expected := mac.Sum(nil)

	// ヘッダーにはシークレットローテーション中の複数署名が
	// スペース区切りで並ぶ。いずれか1つが一致すれば受理する。
	for _, candidate := range strings.Fields(headers.Signature) {
		version, sig, found := strings.Cut(candidate, ",")
		if !found || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return model.NewVerificationFailedError("署名が一致しません")
}
