package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
	"dealradar/backend/internal/provider"
)

type staticCreds struct{}

func (staticCreds) Get(ctx context.Context, userID string, p domain.Provider) (domain.Tokens, error) {
	return domain.Tokens{AccessToken: "token"}, nil
}

func (staticCreds) Refresh(ctx context.Context, userID string, p domain.Provider) (domain.Tokens, error) {
	return domain.Tokens{AccessToken: "token"}, nil
}

func newTestClient(serverURL string) *Client {
	caller := provider.NewCaller(domain.ProviderMicrosoft, staticCreds{}, 0, zap.NewNop())
	return NewClient(serverURL, caller, zap.NewNop())
}

func TestClient_GetMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/ms-user-9/messages/msg-1", r.URL.Path)
		w.Write([]byte(`{
			"id": "msg-1",
			"subject": "Pump inquiry",
			"from": {"emailAddress": {"address": "lars@grundfos.com"}},
			"toRecipients": [{"emailAddress": {"address": "sales@dealradar.dk"}}],
			"body": {"content": "We need 200 pumps."},
			"sentDateTime": "2026-08-30T10:00:00Z"
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	email, err := client.GetMessage(context.Background(), "user-1", "ms-user-9", "msg-1")
	assert.NoError(t, err)
	assert.Equal(t, "msg-1", email.ID)
	assert.Equal(t, "user-1", email.UserID)
	assert.Equal(t, "Pump inquiry", email.Subject)
	assert.Equal(t, "lars@grundfos.com", email.From)
	assert.Equal(t, []string{"sales@dealradar.dk"}, email.To)
	assert.Equal(t, "We need 200 pumps.", email.Body)
	assert.NotNil(t, email.SentAt)
}

func TestClient_GetMessageFallsBackToMe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages/msg-2", r.URL.Path)
		w.Write([]byte(`{"id":"msg-2","subject":"Hi","from":{"emailAddress":{"address":"a@b.c"}},"body":{"content":"x"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	email, err := client.GetMessage(context.Background(), "user-1", "", "msg-2")
	assert.NoError(t, err)
	assert.Equal(t, "msg-2", email.ID)
}

func TestClient_GetUserInfoPrefersMail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		w.Write([]byte(`{"id":"ms-user-9","displayName":"Jeppe","mail":"","userPrincipalName":"jeppe@firma.dk"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	info, err := client.GetUserInfo(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, "ms-user-9", info.ID)
	assert.Equal(t, "jeppe@firma.dk", info.Email)
}

func TestClient_CreateSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "created", body["changeType"])
		assert.Equal(t, "https://app.dealradar.dk/webhook/email", body["notificationUrl"])
		assert.Equal(t, "/me/messages", body["resource"])
		assert.Equal(t, "signed-state", body["clientState"])

		// 过期时间应在 3 天左右
		expiresAt, err := time.Parse(time.RFC3339, body["expirationDateTime"])
		assert.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC().Add(subscriptionTTL), expiresAt, time.Minute)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"sub-1","resource":"/me/messages","clientState":"signed-state","expirationDateTime":"2026-09-04T10:00:00Z"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	info, err := client.CreateSubscription(context.Background(), "user-1", "https://app.dealradar.dk/webhook/email", "", "signed-state")
	assert.NoError(t, err)
	assert.Equal(t, "sub-1", info.ID)
	assert.NotNil(t, info.ExpiresAt)
}

func TestClient_ListSubscriptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[{"id":"sub-1"},{"id":"sub-2"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	subs, err := client.ListSubscriptions(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestClient_RenewSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/subscriptions/sub-1", r.URL.Path)
		w.Write([]byte(`{"id":"sub-1","expirationDateTime":"2026-09-04T10:00:00Z"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	expiresAt, err := client.RenewSubscription(context.Background(), "user-1", "sub-1")
	assert.NoError(t, err)
	assert.NotNil(t, expiresAt)
}

func TestClient_DeleteSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.DeleteSubscription(context.Background(), "user-1", "sub-1"))
}
