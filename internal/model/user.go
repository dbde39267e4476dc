// Package model はドメインモデルを定義する。
package model

import "time"

// User はIDプロバイダから同期されたユーザーを表す。
// ProviderUserIDが外部IDプロバイダとの相関キーであり、
// ローカルでの作成・変更・削除は一切行わない（Webhookイベントのみが更新経路）。
type User struct {
	ID             string
	ProviderUserID string
	Email          string
	Name           string
	ImageURL       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
