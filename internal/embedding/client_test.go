package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1/",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(ClientConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.Model())
}

func TestClient_CreateEmbedding(t *testing.T) {
	var body map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.25, -0.5, 1]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	})

	emb, err := client.CreateEmbedding(context.Background(), "hello there")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, -0.5, 1}, emb.Vector)
	assert.Equal(t, "text-embedding-3-small", emb.Model)
	assert.Equal(t, 4, emb.TokenCount)

	assert.Equal(t, "hello there", body["input"])
	assert.Equal(t, DefaultModel, body["model"])
	assert.Equal(t, "float", body["encoding_format"])
	assert.NotContains(t, body, "dimensions")
}

func TestClient_Dimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 256, body["dimensions"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}],"model":"m","usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: server.URL + "/v1/", Dimensions: 256})
	require.NoError(t, err)
	_, err = client.CreateEmbedding(context.Background(), "x")
	require.NoError(t, err)
}

func TestClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"rate limited", http.StatusTooManyRequests},
		{"unauthorized", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","type":"error"}}`))
			})

			_, err := client.CreateEmbedding(context.Background(), "hello")
			var perr *ProviderError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.status == http.StatusTooManyRequests, isRateLimitError(err))
			assert.Equal(t, 1, calls)
		})
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[],"model":"m","usage":{"prompt_tokens":0,"total_tokens":0}}`))
	})

	_, err := client.CreateEmbedding(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{APIKey: "k", BaseURL: server.URL + "/v1/", Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = client.CreateEmbedding(context.Background(), "hello")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, isRateLimitError(err))
}
