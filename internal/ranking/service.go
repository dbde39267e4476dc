// Package ranking は配信者ランキングの集計を提供する。
package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/hitoshi/castman/internal/model"
)

// UserLister は集計対象ユーザーの列挙インターフェース。
type UserLister interface {
	ListAll(ctx context.Context) ([]*model.User, error)
}

// PodcastLister は所有者ごとのポッドキャスト列挙インターフェース。
type PodcastLister interface {
	ListByOwner(ctx context.Context, ownerProviderID string) ([]*model.Podcast, error)
}

// RankedPodcast はランキング内の1番組。
type RankedPodcast struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Views int64  `json:"views"`
}

// RankedPodcaster はランキング内の1配信者。
// Podcastsは再生数の多い順に並ぶ。
type RankedPodcaster struct {
	ProviderUserID string          `json:"provider_user_id"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"image_url"`
	TotalPodcasts  int             `json:"total_podcasts"`
	TotalViews     int64           `json:"total_views"`
	Podcasts       []RankedPodcast `json:"podcasts"`
}

// Service は配信者ランキングの集計サービス。
type Service struct {
	users    UserLister
	podcasts PodcastLister
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users UserLister, podcasts PodcastLister) *Service {
	return &Service{
		users:    users,
		podcasts: podcasts,
	}
}

// TopPodcasters は全配信者を番組数の多い順に集計して返す。
// 番組数が同じ場合は元の列挙順を保つ。
// 番組を1件も持たないユーザーも結果に含まれる（番組数0）。
func (s *Service) TopPodcasters(ctx context.Context) ([]RankedPodcaster, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	ranked := make([]RankedPodcaster, 0, len(users))
	for _, user := range users {
		podcasts, err := s.podcasts.ListByOwner(ctx, user.ProviderUserID)
		if err != nil {
			return nil, fmt.Errorf("ポッドキャスト一覧の取得に失敗しました: %w", err)
		}

		entry := RankedPodcaster{
			ProviderUserID: user.ProviderUserID,
			Name:           user.Name,
			ImageURL:       user.ImageURL,
			TotalPodcasts:  len(podcasts),
			Podcasts:       make([]RankedPodcast, 0, len(podcasts)),
		}
		for _, p := range podcasts {
			entry.TotalViews += p.Views
			entry.Podcasts = append(entry.Podcasts, RankedPodcast{
				ID:    p.ID,
				Title: p.Title,
				Views: p.Views,
			})
		}

		// 配信者内の番組は再生数の多い順
		sort.SliceStable(entry.Podcasts, func(i, j int) bool {
			return entry.Podcasts[i].Views > entry.Podcasts[j].Views
		})

		ranked = append(ranked, entry)
	}

	// 番組数のみで順位を決め、同数のユーザーは元の列挙順を保つ
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalPodcasts > ranked[j].TotalPodcasts
	})

	return ranked, nil
}
