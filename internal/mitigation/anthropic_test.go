package mitigation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilience/internal/types"
)

func messageServer(t *testing.T, status int, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "floodScore: 45")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`)) //nolint:errcheck
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":          "msg_test_001",
			"type":        "message",
			"role":        "assistant",
			"content":     []map[string]any{{"type": "text", "text": text}},
			"model":       "claude-sonnet-4-5",
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 120, "output_tokens": 80},
		})
	}))
}

func newTestProvider(t *testing.T, baseURL string) *AnthropicProvider {
	t.Helper()
	noRetries := 0
	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey:     "test-key",
		Model:      "claude-sonnet-4-5",
		BaseURL:    baseURL,
		MaxRetries: &noRetries,
	})
	require.NoError(t, err)
	return p
}

var testInput = Input{
	RiskLevel: types.RiskLevelMedium, RiskScore: 47,
	WeatherScore: 46, FloodScore: 45, EarthquakeScore: 50,
}

func TestAnthropicProvider_Generate(t *testing.T) {
	ts := messageServer(t, http.StatusOK, "Here is the plan:\n```json\n"+
		`{"recommendations":[{"title":"Raise ground floor","details":"Elevate slab 60cm.","category":"FLOOD","status":"DONE"}]}`+
		"\n```")
	defer ts.Close()

	recs, err := newTestProvider(t, ts.URL).Generate(context.Background(), testInput)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Raise ground floor", recs[0].Title)
	assert.Equal(t, types.CategoryFlood, recs[0].Category)
	assert.Equal(t, types.RecommendationPending, recs[0].Status, "model-supplied status is ignored")
}

func TestAnthropicProvider_UpstreamError(t *testing.T) {
	ts := messageServer(t, http.StatusInternalServerError, "")
	defer ts.Close()

	_, err := newTestProvider(t, ts.URL).Generate(context.Background(), testInput)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamAI))
}

func TestNewAnthropicProvider_RequiresKey(t *testing.T) {
	_, err := NewAnthropicProvider(AnthropicConfig{Model: "claude-sonnet-4-5"})
	assert.Error(t, err)
}

func TestParseRecommendations(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"plain", `{"recommendations":[{"title":"A","details":"d","category":"WEATHER"}]}`, false},
		{"fenced with prose", "Sure!\n```json\n{\"recommendations\":[{\"title\":\"A\",\"category\":\"GENERAL\"}]}\n```\nThanks", false},
		{"no json", "I cannot help with that.", true},
		{"malformed", `{"recommendations":[{"title":}`, true},
		{"empty list", `{"recommendations":[]}`, true},
		{"unknown category", `{"recommendations":[{"title":"A","category":"FIRE"}]}`, true},
		{"blank title", `{"recommendations":[{"title":"  ","category":"FLOOD"}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := parseRecommendations(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, recs)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := buildPrompt(testInput)
	require.NoError(t, err)
	assert.Contains(t, prompt, "riskLevel: MEDIUM")
	assert.Contains(t, prompt, "riskScore: 47")
	assert.Contains(t, prompt, "earthquakeScore: 50")
	assert.Contains(t, prompt, "FLOOD|EARTHQUAKE|WEATHER|GENERAL")
}
