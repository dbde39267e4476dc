// Package reconcile は非正規化著者フィールドの整合性維持処理を提供する。
// カスケードキュー、リトライ/バックオフ戦略、定期修復ジョブを含む。
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuthorImagePatcher は1行の著者画像パッチを適用するインターフェース。
// repository.PodcastRepositoryの部分集合として定義する。
type AuthorImagePatcher interface {
	UpdateAuthorImage(ctx context.Context, podcastID, imageURL string) error
}

// PatchRecorder はカスケードパッチの適用結果を記録するインターフェース。
// metricsパッケージが実装する。nilの場合は記録しない。
type PatchRecorder interface {
	RecordCascadePatch(success bool)
}

// patch は1行分の著者画像パッチジョブ。
// 同じジョブを何度適用しても結果は変わらない（冪等）。
type patch struct {
	podcastID string
	imageURL  string
	attempts  int
}

// Queue は著者画像パッチの行単位ジョブキュー。
// user.updatedのユーザー行パッチがコミットされた後のベストエフォート
// ファンアウトを担う。行ごとに独立してリトライするため、
// 一部の行の失敗が他の行の適用を妨げない。
type Queue struct {
	patcher     AuthorImagePatcher
	logger      *slog.Logger
	recorder    PatchRecorder
	jobs        chan patch
	maxAttempts int

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// QueueConfig はQueueの設定。
type QueueConfig struct {
	Size        int // キュー容量
	MaxAttempts int // 行ごとの最大試行回数
}

// DefaultQueueConfig はデフォルトのキュー設定を返す。
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Size:        1024,
		MaxAttempts: 5,
	}
}

// NewQueue はQueueの新しいインスタンスを生成する。
// 値が0以下の設定項目はデフォルト値で補完される。
func NewQueue(patcher AuthorImagePatcher, logger *slog.Logger, recorder PatchRecorder, config QueueConfig) *Queue {
	def := DefaultQueueConfig()
	if config.Size <= 0 {
		config.Size = def.Size
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	return &Queue{
		patcher:     patcher,
		logger:      logger,
		recorder:    recorder,
		jobs:        make(chan patch, config.Size),
		maxAttempts: config.MaxAttempts,
	}
}

// Enqueue は著者画像パッチジョブを投入する。
// キュー満杯時はfalseを返す（取りこぼしは定期修復ジョブが収束させる）。
func (q *Queue) Enqueue(podcastID, imageURL string) bool {
	select {
	case q.jobs <- patch{podcastID: podcastID, imageURL: imageURL}:
		return true
	default:
		return false
	}
}

// Start はワーカーゴルーチンを起動する。
// コンテキストのキャンセルで停止する。
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.run(ctx)
	}()
}

// Wait はワーカーゴルーチンの終了を待つ。
func (q *Queue) Wait() {
	q.wg.Wait()
}

// run はジョブを1件ずつ取り出して適用する。
// 失敗した行は指数バックオフ付きで再投入し、最大試行回数を超えた行は
// エラーログを残して破棄する（修復ジョブが後から収束させる）。
func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.apply(ctx, job)
		}
	}
}

// apply は1行分のパッチを適用する。
func (q *Queue) apply(ctx context.Context, job patch) {
	err := q.patcher.UpdateAuthorImage(ctx, job.podcastID, job.imageURL)
	if err == nil {
		if q.recorder != nil {
			q.recorder.RecordCascadePatch(true)
		}
		return
	}

	if q.recorder != nil {
		q.recorder.RecordCascadePatch(false)
	}

	job.attempts++
	if job.attempts >= q.maxAttempts {
		q.logger.Error("著者画像パッチの適用を断念しました",
			slog.String("podcast_id", job.podcastID),
			slog.Int("attempts", job.attempts),
			slog.String("error", err.Error()),
		)
		return
	}

	q.logger.Warn("著者画像パッチの適用に失敗しました（リトライします）",
		slog.String("podcast_id", job.podcastID),
		slog.Int("attempts", job.attempts),
		slog.String("error", err.Error()),
	)

	// バックオフしてから再投入する。キューが満杯なら破棄する。
	delay := CalculateBackoff(job.attempts)
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	select {
	case q.jobs <- job:
	default:
		q.logger.Error("カスケードキューが満杯のためパッチを破棄しました",
			slog.String("podcast_id", job.podcastID),
		)
	}
}
