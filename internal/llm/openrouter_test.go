package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenRouterProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     OpenRouterConfig
		model   string
		wantErr bool
	}{
		{"vendor prefixed model", OpenRouterConfig{APIKey: "sk-or-test", Model: "openai/gpt-4o"}, "openai/gpt-4o", false},
		{"custom base URL", OpenRouterConfig{APIKey: "sk-or-test", Model: "anthropic/claude-3-haiku", BaseURL: "https://example.test/v1"}, "anthropic/claude-3-haiku", false},
		{"empty API key", OpenRouterConfig{Model: "openai/gpt-4o", AppName: "assessgen"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewOpenRouterProvider(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.model, p.ModelID())
		})
	}
}

func TestOpenRouterProvider_AttributionHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion("[]", "stop"))
	}))
	t.Cleanup(server.Close)

	p, err := NewOpenRouterProvider(OpenRouterConfig{
		APIKey:  "sk-or-test",
		Model:   "openai/gpt-4o",
		BaseURL: server.URL + "/v1",
		AppName: "assessgen",
		SiteURL: "https://school.example",
	})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), UserPrompt("x", 10, 0))
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text())
	assert.Equal(t, "assessgen", got.Get("X-Title"))
	assert.Equal(t, "https://school.example", got.Get("HTTP-Referer"))
	assert.Equal(t, "Bearer sk-or-test", got.Get("Authorization"))
}

func TestOpenRouterProvider_MissingKeyNamesGateway(t *testing.T) {
	_, err := NewOpenRouterProvider(OpenRouterConfig{Model: "openai/gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter API key is required")
}
