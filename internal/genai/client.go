// Package genai はテキストプロンプトからバイナリメディアを生成する
// 外部生成APIのクライアントを提供する。
// 生成APIは不透明な関数（プロンプト → バイト列、失敗あり）として扱う。
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client は生成APIのクライアント。
// 音声合成と画像生成の2つのエンドポイントを呼び出す。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	baseURL     string // テスト用にエンドポイントを差し替え可能
	apiKey      string
	speechModel string
	imageModel  string
}

// Config はClientの設定。
type Config struct {
	BaseURL     string
	APIKey      string
	SpeechModel string
	ImageModel  string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config) *Client {
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		baseURL:     config.BaseURL,
		apiKey:      config.APIKey,
		speechModel: config.SpeechModel,
		imageModel:  config.ImageModel,
	}
}

// speechRequest は音声合成APIのリクエスト。
type speechRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
	Input string `json:"input"`
}

// imageRequest は画像生成APIのリクエスト。
type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

// imageResponse は画像生成APIのレスポンス。
type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// GenerateSpeech はテキストを音声バイト列（MP3）に変換する。
func (c *Client) GenerateSpeech(ctx context.Context, voice, input string) ([]byte, error) {
	payload, err := json.Marshal(speechRequest{
		Model: c.speechModel,
		Voice: voice,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	body, err := c.post(ctx, "/v1/audio/speech", payload)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("生成APIが空の音声を返しました")
	}
	return body, nil
}

// GenerateImage はプロンプトから画像バイト列（PNG）を生成する。
// 生成APIはbase64で画像を返すため、デコードしてから返す。
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	payload, err := json.Marshal(imageRequest{
		Model:          c.imageModel,
		Prompt:         prompt,
		N:              1,
		Size:           "1024x1024",
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	body, err := c.post(ctx, "/v1/images/generations", payload)
	if err != nil {
		return nil, err
	}

	var result imageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if len(result.Data) == 0 || result.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("レスポンスに画像データが含まれていません")
	}

	decoded, err := base64.StdEncoding.DecodeString(result.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("画像データのデコードに失敗しました: %w", err)
	}
	return decoded, nil
}

// post はJSONペイロードをPOSTし、成功時のレスポンスボディを返す。
func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("生成APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("生成APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("path", path),
		)
		return nil, fmt.Errorf("生成APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return body, nil
}
