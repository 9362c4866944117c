package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"dealradar/backend/internal/domain"
)

func chatResponse(content string) string {
	payload := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func newTestClient(serverURL string) *Client {
	return NewClient(Config{BaseURL: serverURL, APIKey: "test-key"}, zap.NewNop())
}

func sampleEmail() *domain.InboundEmail {
	return &domain.InboundEmail{
		ID:      "msg-1",
		UserID:  "user-1",
		Subject: "Pump inquiry",
		From:    "jeppe@firma.dk",
		To:      []string{"lars@grundfos.com"},
		Body:    "We would like a quote for 200 pumps.",
		Thread: []domain.ThreadMessage{
			{From: "lars@grundfos.com", To: "jeppe@firma.dk", Subject: "Re: Pump inquiry", Content: "Sounds interesting."},
		},
	}
}

func TestClassify_ParsesModelOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)
		// 会话文本包含当前邮件与线程
		assert.Contains(t, req.Messages[0].Content, "Current Email:")
		assert.Contains(t, req.Messages[0].Content, "Previous emails in thread:")

		w.Write([]byte(chatResponse(`Here is my analysis:
{"is_sales_opportunity": true, "confidence": 0.92, "opportunity_type": "new_business",
 "estimated_value": 250000, "currency": "DKK", "urgency": "high",
 "next_action": "send_proposal", "person_name": "Lars Jensen",
 "organization_name": "Grundfos", "key_points": ["200 pumps", "quote requested"]}
Let me know if you need more.`)))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Classify(context.Background(), sampleEmail())
	assert.True(t, result.IsOpportunity)
	assert.Equal(t, 0.92, result.Confidence)
	assert.Equal(t, domain.OpportunityNewBusiness, result.OpportunityType)
	assert.Equal(t, "Lars Jensen", result.PersonName)
	assert.Equal(t, "Grundfos", result.OrganizationName)
	assert.Len(t, result.KeyPoints, 2)
}

func TestClassify_MalformedOutputYieldsDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse("I could not produce structured output, sorry.")))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Classify(context.Background(), sampleEmail())
	assert.False(t, result.IsOpportunity)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, domain.DefaultCurrency, result.Currency)
	assert.Equal(t, domain.ActionNoAction, result.NextAction)
	assert.NotNil(t, result.KeyPoints)
}

func TestClassify_UpstreamFailureYieldsDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := newTestClient(server.URL).Classify(context.Background(), sampleEmail())
	assert.False(t, result.IsOpportunity)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestClassify_NormalizesOutOfRangeFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(`{"is_sales_opportunity": true, "confidence": 1.7,
			"opportunity_type": "mega_deal", "estimated_value": -500,
			"currency": "KRONER", "urgency": "extreme", "next_action": "call_now"}`)))
	}))
	defer server.Close()

	result := newTestClient(server.URL).Classify(context.Background(), sampleEmail())
	assert.True(t, result.IsOpportunity)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, domain.OpportunityOther, result.OpportunityType)
	assert.Equal(t, 0.0, result.EstimatedValue)
	assert.Equal(t, domain.DefaultCurrency, result.Currency)
	assert.Equal(t, domain.UrgencyLow, result.Urgency)
	assert.Equal(t, domain.ActionNoAction, result.NextAction)
}

func TestSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Messages[0].Content, "Opsummer denne e-mail samtale")
		assert.Equal(t, 150, req.MaxTokens)

		w.Write([]byte(chatResponse("  Kunden ønsker et tilbud på 200 pumper.  ")))
	}))
	defer server.Close()

	summary, err := newTestClient(server.URL).Summarize(context.Background(), "conversation text")
	assert.NoError(t, err)
	assert.Equal(t, "Kunden ønsker et tilbud på 200 pumper.", summary)
}

func TestSummarize_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Summarize(context.Background(), "conversation text")
	assert.Error(t, err)
}

func TestExtractOrganizationName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse("Grundfos")))
	}))
	defer server.Close()

	name := newTestClient(server.URL).ExtractOrganizationName(context.Background(), "grundfos.com", "body")
	assert.Equal(t, "Grundfos", name)
}

func TestExtractOrganizationName_FiltersPersonalProviders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse("Gmail")))
	}))
	defer server.Close()

	name := newTestClient(server.URL).ExtractOrganizationName(context.Background(), "gmail.com", "body")
	assert.Equal(t, "", name)
}

func TestBuildTranscript_NoThread(t *testing.T) {
	email := sampleEmail()
	email.Thread = nil

	transcript := buildTranscript(email)
	assert.True(t, strings.HasPrefix(transcript, "Current Email:"))
	assert.NotContains(t, transcript, "Previous emails in thread:")
}
