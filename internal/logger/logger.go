// Package logger はcastmanの構造化ログ設定を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// 全エントリにservice属性を付与し、集約先で複数サービスのログが混在しても
// castman由来のエントリを識別できるようにする。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(handler).With(slog.String("service", "castman"))
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// APIサーバーとワーカーの両モードで起動時に一度だけ呼ばれる。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w)
	slog.SetDefault(logger)
}
