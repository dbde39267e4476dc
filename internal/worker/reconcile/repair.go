package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AuthorImageRepairer は食い違った著者画像の一括修復インターフェース。
// repository.PodcastRepositoryの部分集合として定義する。
type AuthorImageRepairer interface {
	RepairAuthorImages(ctx context.Context) (int64, error)
}

// RepairRecorder は修復ジョブの結果を記録するインターフェース。
type RepairRecorder interface {
	RecordRepairedRows(count int64)
}

// RepairJob は非正規化著者画像の定期修復ジョブ。
// カスケード途中のクラッシュやキュー溢れで取り残された行を
// 所有ユーザーの現在値へ収束させる。冪等であり何度実行しても安全。
type RepairJob struct {
	repairer AuthorImageRepairer
	logger   *slog.Logger
	recorder RepairRecorder
}

// NewRepairJob は新しいRepairJobを生成する。
func NewRepairJob(repairer AuthorImageRepairer, logger *slog.Logger, recorder RepairRecorder) *RepairJob {
	return &RepairJob{
		repairer: repairer,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は修復を1回実行する。
func (j *RepairJob) Run(ctx context.Context) error {
	start := time.Now()

	repaired, err := j.repairer.RepairAuthorImages(ctx)
	if err != nil {
		j.logger.Error("著者画像修復ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("著者画像修復の実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordRepairedRows(repaired)
	}

	j.logger.Info("著者画像修復ジョブが完了しました",
		slog.Int64("repaired_count", repaired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は指定間隔の定期実行でジョブを起動する。
// 起動直後に1回実行し、以降はティッカーで繰り返す。
// コンテキストがキャンセルされるまでブロックする。
func (j *RepairJob) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("著者画像修復ジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("修復サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("著者画像修復ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("修復サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
