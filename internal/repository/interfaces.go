// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/castman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// ユーザーはIDプロバイダのWebhookイベントのみが作成・更新・削除する。
type UserRepository interface {
	// FindByProviderID は外部プロバイダIDでユーザーを取得する。見つからない場合はnilを返す。
	FindByProviderID(ctx context.Context, providerUserID string) (*model.User, error)

	// Create はユーザーを作成する。
	// 同一プロバイダIDのユーザーが既に存在する場合はUSER_ALREADY_EXISTSを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はemailとimage_urlをパッチ更新する。
	// 対象ユーザーが存在しない場合はfalseを返す。
	UpdateProfile(ctx context.Context, providerUserID, email, imageURL string) (bool, error)

	// DeleteByProviderID は外部プロバイダIDでユーザーを削除する。
	// 対象ユーザーが存在しない場合はfalseを返す。
	DeleteByProviderID(ctx context.Context, providerUserID string) (bool, error)

	// ListAll は全ユーザーを作成順で返す。ランキング集計用のスナップショット読み取り。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// PodcastRepository はポッドキャストデータの永続化インターフェース。
type PodcastRepository interface {
	// Create はポッドキャストを作成する。
	// 作成時点の所有ユーザー表示フィールドを非正規化コピーとして保存する。
	Create(ctx context.Context, podcast *model.Podcast) error

	// FindByID は指定IDのポッドキャストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Podcast, error)

	// ListIDsByOwner は指定所有者のポッドキャストID一覧を返す。
	// カスケード更新の行単位ジョブ列挙に使用する。
	ListIDsByOwner(ctx context.Context, ownerProviderID string) ([]string, error)

	// ListByOwner は指定所有者のポッドキャスト一覧を作成順で返す。
	ListByOwner(ctx context.Context, ownerProviderID string) ([]*model.Podcast, error)

	// UpdateAuthorImage は1行の非正規化著者画像フィールドをパッチする。
	// 同一値への再適用は結果を変えない（冪等）。
	UpdateAuthorImage(ctx context.Context, podcastID, imageURL string) error

	// SetAudioSlot は音声スロットにアセット参照と再生時間を書き込む。
	// 対象が存在しない場合はPODCAST_NOT_FOUNDを返す。
	SetAudioSlot(ctx context.Context, podcastID string, ref model.AssetRef, durationSeconds float64) error

	// SetImageSlot は画像スロットにアセット参照を書き込む。
	// 対象が存在しない場合はPODCAST_NOT_FOUNDを返す。
	SetImageSlot(ctx context.Context, podcastID string, ref model.AssetRef) error

	// IncrementViews は再生カウンタを1増やし、更新後の値を返す。
	IncrementViews(ctx context.Context, podcastID string) (int64, error)

	// RepairAuthorImages は所有ユーザーの現在のimage_urlと食い違っている
	// 非正規化著者画像を1クエリで一括修復し、修復行数を返す。
	// カスケード途中のクラッシュからの収束復旧に使用する。
	RepairAuthorImages(ctx context.Context) (int64, error)
}
