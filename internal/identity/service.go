// Package identity はIDプロバイダのライフサイクルイベントを
// ローカルのユーザーレコードへリコンサイルするドメインロジックを提供する。
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/castman/internal/model"
	"github.com/hitoshi/castman/internal/repository"
	"github.com/hitoshi/castman/internal/webhook"
)

// CascadeEnqueuer は著者画像パッチの行単位ジョブを投入するインターフェース。
// キュー満杯時はfalseを返す（定期修復ジョブが取りこぼしを収束させる）。
type CascadeEnqueuer interface {
	Enqueue(podcastID, imageURL string) bool
}

// PodcastIDLister はカスケード対象のポッドキャストID列挙インターフェース。
// repository.PodcastRepositoryの部分集合として定義する。
type PodcastIDLister interface {
	ListIDsByOwner(ctx context.Context, ownerProviderID string) ([]string, error)
}

// Service はIDイベントのリコンサイルを行うサービス層。
// 外部ID1つごとの状態遷移は NonExistent → Active → Deleted であり、
// 遷移に合わないイベントは整合性エラーとして上位へ報告する。
// 同一IDのイベントの順序保証は配送側の責務で、このエンジンは順序入替えを補正しない。
type Service struct {
	users    repository.UserRepository
	podcasts PodcastIDLister
	cascade  CascadeEnqueuer
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users repository.UserRepository, podcasts PodcastIDLister, cascade CascadeEnqueuer, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		podcasts: podcasts,
		cascade:  cascade,
		logger:   logger,
	}
}

// Apply は検証・デコード済みのイベントを1件適用する。
// Ignoredイベントはログのみでエラーにしない。
func (s *Service) Apply(ctx context.Context, event webhook.Event) error {
	switch e := event.(type) {
	case webhook.UserCreated:
		return s.applyCreated(ctx, e)
	case webhook.UserUpdated:
		return s.applyUpdated(ctx, e)
	case webhook.UserDeleted:
		return s.applyDeleted(ctx, e)
	case webhook.Ignored:
		s.logger.Info("ignored identity event",
			slog.String("event_type", e.Type),
		)
		return nil
	default:
		return fmt.Errorf("unexpected event type: %T", event)
	}
}

// applyCreated はuser.createdイベントを適用する。
// 既存IDへのcreatedは適用済みイベントの再配送が疑われるため、
// 上書きせずUSER_ALREADY_EXISTSとして報告する
// （盲目的な上書きは後続のupdatedを踏み潰す恐れがある）。
func (s *Service) applyCreated(ctx context.Context, e webhook.UserCreated) error {
	now := time.Now()
	user := &model.User{
		ID:             uuid.NewString(),
		ProviderUserID: e.ProviderUserID,
		Email:          e.Email,
		Name:           e.Name,
		ImageURL:       e.ImageURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user created",
		slog.String("provider_user_id", e.ProviderUserID),
	)
	return nil
}

// applyUpdated はuser.updatedイベントを適用する。
// ユーザー行へのパッチが耐久性の境界であり、コミット後は適用済みとみなす。
// 非正規化著者画像へのカスケードは行単位の冪等ジョブとして非同期に適用され、
// 途中失敗しても一時的に古い値が残るだけで、修復ジョブにより収束する。
func (s *Service) applyUpdated(ctx context.Context, e webhook.UserUpdated) error {
	updated, err := s.users.UpdateProfile(ctx, e.ProviderUserID, e.Email, e.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to apply user update: %w", err)
	}
	if !updated {
		return model.NewUserNotFoundError(e.ProviderUserID)
	}

	s.fanOutAuthorImage(ctx, e.ProviderUserID, e.ImageURL)

	s.logger.Info("user updated",
		slog.String("provider_user_id", e.ProviderUserID),
	)
	return nil
}

// fanOutAuthorImage は所有ポッドキャストを列挙し、著者画像パッチを1行ずつ投入する。
// ユーザー行のパッチは既にコミット済みのため、ここでの失敗はログに留める。
func (s *Service) fanOutAuthorImage(ctx context.Context, ownerProviderID, imageURL string) {
	ids, err := s.podcasts.ListIDsByOwner(ctx, ownerProviderID)
	if err != nil {
		s.logger.Error("failed to enumerate podcasts for cascade",
			slog.String("provider_user_id", ownerProviderID),
			slog.String("error", err.Error()),
		)
		return
	}

	dropped := 0
	for _, id := range ids {
		if !s.cascade.Enqueue(id, imageURL) {
			dropped++
		}
	}
	if dropped > 0 {
		s.logger.Error("cascade queue full, patches dropped",
			slog.String("provider_user_id", ownerProviderID),
			slog.Int("dropped", dropped),
		)
	}
}

// applyDeleted はuser.deletedイベントを適用する。
// ハード削除であり墓石は残さない。所有ポッドキャストは削除もNULL化もせず、
// 非正規化著者フィールドを履歴スナップショットとして保存する。
func (s *Service) applyDeleted(ctx context.Context, e webhook.UserDeleted) error {
	deleted, err := s.users.DeleteByProviderID(ctx, e.ProviderUserID)
	if err != nil {
		return fmt.Errorf("failed to apply user delete: %w", err)
	}
	if !deleted {
		return model.NewUserNotFoundError(e.ProviderUserID)
	}

	s.logger.Info("user deleted",
		slog.String("provider_user_id", e.ProviderUserID),
	)
	return nil
}
