package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/castman/internal/ranking"
)

// RankingServiceInterface はランキングハンドラーが必要とするサービスインターフェース。
type RankingServiceInterface interface {
	TopPodcasters(ctx context.Context) ([]ranking.RankedPodcaster, error)
}

// RankingHandler は配信者ランキングのHTTPハンドラー。
type RankingHandler struct {
	service RankingServiceInterface
}

// NewRankingHandler はRankingHandlerを生成する。
func NewRankingHandler(service RankingServiceInterface) *RankingHandler {
	return &RankingHandler{service: service}
}

// rankingResponse はランキングのAPIレスポンス。
type rankingResponse struct {
	Podcasters []ranking.RankedPodcaster `json:"podcasters"`
}

// TopPodcasters は配信者ランキングを返す。
// GET /api/rankings/podcasters
func (h *RankingHandler) TopPodcasters(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.service.TopPodcasters(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rankingResponse{Podcasters: ranked})
}
