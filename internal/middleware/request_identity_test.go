package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/castman/internal/model"
)

// --- モック定義 ---

type mockUserFinder struct {
	findByProviderIDFn func(ctx context.Context, providerUserID string) (*model.User, error)
}

func (m *mockUserFinder) FindByProviderID(ctx context.Context, providerUserID string) (*model.User, error) {
	if m.findByProviderIDFn != nil {
		return m.findByProviderIDFn(ctx, providerUserID)
	}
	return nil, nil
}

// --- テスト ---

func TestRequestIdentityMiddleware_SyncedUser_InjectsProviderUserID(t *testing.T) {
	finder := &mockUserFinder{
		findByProviderIDFn: func(ctx context.Context, providerUserID string) (*model.User, error) {
			if providerUserID == "user_2abc" {
				return &model.User{
					ID:             "internal-uuid",
					ProviderUserID: "user_2abc",
					Email:          "alice@example.com",
				}, nil
			}
			return nil, nil
		},
	}

	mw := NewRequestIdentityMiddleware(finder)

	var capturedID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ProviderUserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedID = id
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("X-Provider-User-Id", "user_2abc")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if capturedID != "user_2abc" {
		t.Errorf("providerUserID = %q, want %q", capturedID, "user_2abc")
	}
}

func TestRequestIdentityMiddleware_NoHeader_Returns401(t *testing.T) {
	finder := &mockUserFinder{}
	mw := NewRequestIdentityMiddleware(finder)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestRequestIdentityMiddleware_UnknownUser_Returns401(t *testing.T) {
	finder := &mockUserFinder{
		findByProviderIDFn: func(ctx context.Context, providerUserID string) (*model.User, error) {
			return nil, nil
		},
	}
	mw := NewRequestIdentityMiddleware(finder)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("X-Provider-User-Id", "user_unknown")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestRequestIdentityMiddleware_FinderError_Returns401(t *testing.T) {
	finder := &mockUserFinder{
		findByProviderIDFn: func(ctx context.Context, providerUserID string) (*model.User, error) {
			return nil, errors.New("db error")
		},
	}
	mw := NewRequestIdentityMiddleware(finder)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("X-Provider-User-Id", "user_2abc")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestProviderUserIDFromContext_MissingValue(t *testing.T) {
	if _, err := ProviderUserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing provider user ID")
	}
}

func TestContextWithProviderUserID_RoundTrip(t *testing.T) {
	ctx := ContextWithProviderUserID(context.Background(), "user_xyz")

	got, err := ProviderUserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("ProviderUserIDFromContext() error = %v", err)
	}
	if got != "user_xyz" {
		t.Errorf("providerUserID = %q, want %q", got, "user_xyz")
	}
}
