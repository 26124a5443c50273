package capability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generate", r.URL.Path)
		require.Equal(t, "query_generation", r.Header.Get("X-Purpose"))

		var req GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "query_generation", req.Purpose)

		_ = json.NewEncoder(w).Encode(GenerationResponse{
			Success: true,
			ToolCalls: []ToolCall{
				{Name: "emit_queries", Arguments: json.RawMessage(`{"queries":[]}`)},
			},
			TokensUsed: 42,
		})
	}))
	defer srv.Close()

	client := NewHTTPAIClient(srv.URL, 5*time.Second, 100, 100, zap.NewNop())
	resp, err := client.Generate(context.Background(), GenerationRequest{
		Purpose:  "query_generation",
		Messages: []Message{{Role: "user", Content: "Radwege"}},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "emit_queries", resp.ToolCalls[0].Name)
	assert.Equal(t, 42, resp.TokensUsed)
}

func TestGenerateSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPAIClient(srv.URL, 5*time.Second, 100, 100, zap.NewNop())
	_, err := client.Generate(context.Background(), GenerationRequest{Purpose: "x"})
	assert.Error(t, err)
}
