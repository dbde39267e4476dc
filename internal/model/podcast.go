// Package model はドメインモデルを定義する。
package model

import "time"

// AssetRef は耐久ストアに保存されたバイナリアセットへの参照を表す。
// StorageIDは耐久ストアが発行する不透明なID、URLはそのIDを解決した公開URL。
// 一度発行されたら不変であり、Podcastはポインタとして保持するだけで所有しない。
type AssetRef struct {
	StorageID string
	URL       string
}

// IsZero はアセット参照が未設定かどうかを返す。
func (a AssetRef) IsZero() bool {
	return a.StorageID == "" && a.URL == ""
}

// Podcast は生成・アップロードされたメディアコンテンツを表す。
// 音声スロットと画像スロットは独立しており、レコード作成後に
// パイプラインの完了によって個別に埋められる。
// AuthorName / AuthorImageURL は所有ユーザーの表示フィールドの非正規化コピーで、
// user.updatedイベントのリコンサイル完了時点で正本と一致する（結果整合）。
type Podcast struct {
	ID              string
	OwnerProviderID string
	Title           string
	Description     string

	VoiceType   string
	VoicePrompt string
	ImagePrompt string

	// 音声スロット
	Audio         AssetRef
	AudioDuration float64 // 秒

	// 画像スロット
	Image AssetRef

	// 所有ユーザーの非正規化スナップショット
	AuthorName     string
	AuthorImageURL string

	Views     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
