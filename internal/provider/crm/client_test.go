package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

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
	caller := provider.NewCaller(domain.ProviderPipedrive, staticCreds{}, 0, zap.NewNop())
	return NewClient(serverURL, caller, zap.NewNop())
}

func TestClient_SearchContactByEmail_ExactMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/persons/search", r.URL.Path)
		assert.Equal(t, "lars@grundfos.com", r.URL.Query().Get("term"))
		assert.Equal(t, "email", r.URL.Query().Get("fields"))
		w.Write([]byte(`{"data":{"items":[
			{"item":{"id":7,"name":"Lars Jensen","emails":["LARS@GRUNDFOS.COM"],"organization":{"id":3,"name":"Grundfos"}}}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	contact, err := client.SearchContactByEmail(context.Background(), "user-1", "lars@grundfos.com")
	assert.NoError(t, err)
	assert.NotNil(t, contact)
	assert.Equal(t, 7, contact.ID)
	assert.Equal(t, "Lars Jensen", contact.Name)
	assert.Equal(t, 3, contact.OrgID)
	assert.Equal(t, "Grundfos", contact.OrgName)
}

func TestClient_SearchContactByEmail_NoExactMatch(t *testing.T) {
	// 搜索命中但邮箱不完全一致时视为不存在
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"items":[
			{"item":{"id":7,"name":"Lars Jensen","emails":["lars.jensen@grundfos.com"]}}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	contact, err := client.SearchContactByEmail(context.Background(), "user-1", "lars@grundfos.com")
	assert.NoError(t, err)
	assert.Nil(t, contact)
}

func TestClient_HasOpenDeal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/deals", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("person_id"))
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		w.Write([]byte(`{"data":[{"id":11,"title":"Pump deal","status":"open"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	has, err := client.HasOpenDeal(context.Background(), "user-1", 7)
	assert.NoError(t, err)
	assert.True(t, has)
}

func TestClient_HasOpenDeal_None(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	has, err := client.HasOpenDeal(context.Background(), "user-1", 7)
	assert.NoError(t, err)
	assert.False(t, has)
}

func TestClient_CreateContact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/persons", r.URL.Path)

		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Lars Jensen", payload["name"])
		assert.Equal(t, float64(3), payload["org_id"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":7,"name":"Lars Jensen"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	contact, err := client.CreateContact(context.Background(), "user-1", "Lars Jensen", "lars@grundfos.com", 3)
	assert.NoError(t, err)
	assert.Equal(t, 7, contact.ID)
	assert.Equal(t, "lars@grundfos.com", contact.Email)
	assert.Equal(t, 3, contact.OrgID)
}

func TestClient_SearchOrganizationByName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/search", r.URL.Path)
		w.Write([]byte(`{"data":{"items":[
			{"item":{"id":3,"name":"GRUNDFOS"}},
			{"item":{"id":4,"name":"Grundfos Holding"}}
		]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	org, err := client.SearchOrganizationByName(context.Background(), "user-1", "grundfos")
	assert.NoError(t, err)
	assert.NotNil(t, org)
	assert.Equal(t, 3, org.ID)
}

func TestClient_CreateDeal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "AI: Lars Jensen - Grundfos", payload["title"])
		assert.Equal(t, float64(7), payload["person_id"])
		assert.Equal(t, float64(250000), payload["value"])
		assert.Equal(t, "DKK", payload["currency"])
		assert.Equal(t, float64(3), payload["org_id"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":11,"title":"AI: Lars Jensen - Grundfos","value":250000,"currency":"DKK","status":"open"}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	deal, err := client.CreateDeal(context.Background(), "user-1", 7, "AI: Lars Jensen - Grundfos", 250000, "DKK", 3)
	assert.NoError(t, err)
	assert.Equal(t, 11, deal.ID)
	assert.Equal(t, "open", deal.Status)
}

func TestClient_CreateDeal_MissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":null}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateDeal(context.Background(), "user-1", 7, "AI: X - Y", 0, "DKK", 0)
	assert.Error(t, err)
}

func TestClient_CreateNote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notes", r.URL.Path)

		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(11), payload["deal_id"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":99}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	assert.NoError(t, client.CreateNote(context.Background(), "user-1", 11, "Opsummering af samtalen"))
}
