// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/castman/internal/model"
)

const providerUserIDHeader = "X-Provider-User-Id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// providerUserIDContextKey はリクエストコンテキストにプロバイダユーザーIDを格納するためのキー。
var providerUserIDContextKey = contextKey("provider_user_id")

// UserFinder は呼び出しユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByProviderID(ctx context.Context, providerUserID string) (*model.User, error)
}

// NewRequestIdentityMiddleware はX-Provider-User-Idヘッダーから呼び出しユーザーを特定し、
// Webhook経由で同期済みのユーザーであることを検証するミドルウェアを返す。
// 検証済みプロバイダユーザーIDをリクエストコンテキストに注入する。
// 未同期または未指定のリクエストには401 Unauthorizedを返す。
// トークン検証そのものはAPIゲートウェイの責務で、この層はヘッダーを信頼する。
func NewRequestIdentityMiddleware(userFinder UserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. ヘッダーからプロバイダユーザーIDを取得
			providerUserID := r.Header.Get(providerUserIDHeader)
			if providerUserID == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 2. 同期済みユーザーであることを検証
			user, err := userFinder.FindByProviderID(r.Context(), providerUserID)
			if err != nil {
				slog.Error("failed to find user",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 3. 検証済みプロバイダユーザーIDをコンテキストに注入
			ctx := context.WithValue(r.Context(), providerUserIDContextKey, user.ProviderUserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProviderUserIDFromContext はリクエストコンテキストからプロバイダユーザーIDを取得する。
// RequestIdentityミドルウェアを通過したリクエストでのみ有効。
func ProviderUserIDFromContext(ctx context.Context) (string, error) {
	providerUserID, ok := ctx.Value(providerUserIDContextKey).(string)
	if !ok || providerUserID == "" {
		return "", fmt.Errorf("provider user ID not found in context")
	}
	return providerUserID, nil
}

// ContextWithProviderUserID はコンテキストにプロバイダユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithProviderUserID(ctx context.Context, providerUserID string) context.Context {
	return context.WithValue(ctx, providerUserIDContextKey, providerUserID)
}
