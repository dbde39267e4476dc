package reconcile

import "time"

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 100 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 10 * time.Second
)

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 初回100ミリ秒、2倍ずつ増加、最大10秒。
func CalculateBackoff(attempts int) time.Duration {
	delay := initialBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
