// Package storage は耐久オブジェクトストアのクライアントを提供する。
// ストアはバイト列を不透明なストレージIDで保持し、IDから公開URLを解決する。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client は耐久ストアAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	apiKey     string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// uploadResponse はアップロードAPIのレスポンス。
type uploadResponse struct {
	StorageID string `json:"storage_id"`
}

// resolveResponse はURL解決APIのレスポンス。
type resolveResponse struct {
	URL string `json:"url"`
}

// Upload はバイト列を指定のオブジェクト名とメディアタイプで保存し、
// ストアが発行した不透明なストレージIDを返す。
func (c *Client) Upload(ctx context.Context, objectName, mediaType string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/files", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", mediaType)
	req.Header.Set("X-Object-Name", objectName)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("耐久ストアへのアップロードに失敗しました",
			slog.String("object_name", objectName),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("耐久ストアがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("object_name", objectName),
		)
		return "", fmt.Errorf("耐久ストアがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result uploadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if result.StorageID == "" {
		return "", fmt.Errorf("レスポンスにstorage_idが含まれていません")
	}

	return result.StorageID, nil
}

// ResolveURL はストレージIDを公開URLへ解決する。
// 未知のIDに対してストアは404を返す。
func (c *Client) ResolveURL(ctx context.Context, storageID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/files/"+storageID+"/url", nil)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("URL解決リクエストに失敗しました",
			slog.String("storage_id", storageID),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("ストレージID %s が見つかりません", storageID)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("URL解決がエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("storage_id", storageID),
		)
		return "", fmt.Errorf("URL解決がステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result resolveResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("レスポンスにurlが含まれていません")
	}

	return result.URL, nil
}
