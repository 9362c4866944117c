package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"dealradar/backend/internal/crypto"
	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/storage"
	"dealradar/backend/internal/storage/memory"
)

func newTestManager(t *testing.T, tokenURL string) (*Manager, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	encryptor, err := crypto.NewEncryptor("test-secret")
	assert.NoError(t, err)

	endpoints := map[domain.Provider]OAuthEndpoint{
		domain.ProviderMicrosoft: {
			TokenURL:     tokenURL,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Scope:        "https://graph.microsoft.com/Mail.Read",
		},
	}
	return NewManager(store, encryptor, endpoints, zap.NewNop()), store
}

func seedIntegration(t *testing.T, m *Manager, store *memory.Store, userID string) {
	t.Helper()

	encAccess, err := m.encryptor.Encrypt("old-access")
	assert.NoError(t, err)
	encRefresh, err := m.encryptor.Encrypt("old-refresh")
	assert.NoError(t, err)

	err = store.SaveIntegration(&domain.Integration{
		ID:           "int-1",
		UserID:       userID,
		Provider:     domain.ProviderMicrosoft,
		AccessToken:  encAccess,
		RefreshToken: encRefresh,
		IsActive:     true,
	})
	assert.NoError(t, err)
}

func TestManager_GetDecryptsTokens(t *testing.T) {
	m, store := newTestManager(t, "http://unused")
	seedIntegration(t, m, store, "user-1")

	tokens, err := m.Get(context.Background(), "user-1", domain.ProviderMicrosoft)
	assert.NoError(t, err)
	assert.Equal(t, "old-access", tokens.AccessToken)
	assert.Equal(t, "old-refresh", tokens.RefreshToken)
}

func TestManager_GetNotFound(t *testing.T) {
	m, _ := newTestManager(t, "http://unused")

	_, err := m.Get(context.Background(), "nobody", domain.ProviderMicrosoft)
	assert.ErrorIs(t, err, storage.ErrIntegrationNotFound)
}

func TestManager_RefreshExchangesAndPersists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		assert.Equal(t, "client-id", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer server.Close()

	m, store := newTestManager(t, server.URL)
	seedIntegration(t, m, store, "user-1")

	tokens, err := m.Refresh(context.Background(), "user-1", domain.ProviderMicrosoft)
	assert.NoError(t, err)
	assert.Equal(t, "new-access", tokens.AccessToken)
	assert.Equal(t, "new-refresh", tokens.RefreshToken)
	assert.NotNil(t, tokens.ExpiresAt)

	// 新令牌应已加密落库
	persisted, err := m.Get(context.Background(), "user-1", domain.ProviderMicrosoft)
	assert.NoError(t, err)
	assert.Equal(t, "new-access", persisted.AccessToken)

	stored, err := store.GetIntegration("user-1", domain.ProviderMicrosoft)
	assert.NoError(t, err)
	assert.NotEqual(t, "new-access", stored.AccessToken)
}

func TestManager_RefreshKeepsOldRefreshToken(t *testing.T) {
	// 提供方刷新时未轮换 refresh token 的场景
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","expires_in":3600}`))
	}))
	defer server.Close()

	m, store := newTestManager(t, server.URL)
	seedIntegration(t, m, store, "user-1")

	tokens, err := m.Refresh(context.Background(), "user-1", domain.ProviderMicrosoft)
	assert.NoError(t, err)
	assert.Equal(t, "old-refresh", tokens.RefreshToken)
}

func TestManager_RefreshRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	m, store := newTestManager(t, server.URL)
	seedIntegration(t, m, store, "user-1")

	_, err := m.Refresh(context.Background(), "user-1", domain.ProviderMicrosoft)
	assert.Error(t, err)
}

func TestManager_RefreshSingleflight(t *testing.T) {
	var calls int64
	gate := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		<-gate
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer server.Close()

	m, store := newTestManager(t, server.URL)
	seedIntegration(t, m, store, "user-1")

	// 并发触发多次刷新，上游应只收到一次请求
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens, err := m.Refresh(context.Background(), "user-1", domain.ProviderMicrosoft)
			assert.NoError(t, err)
			assert.Equal(t, "new-access", tokens.AccessToken)
		}()
	}
	time.Sleep(100 * time.Millisecond) // 等全部调用挂在同一 flight 上
	close(gate)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}
