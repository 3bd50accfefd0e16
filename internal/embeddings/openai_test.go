package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_EmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(&Config{Provider: "openai", Model: "m", APIKey: "k", BaseURL: srv.URL + "/"})
	assert.Equal(t, "openai:m", p.ModelID())

	got, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
}

func TestOpenAI_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAI(&Config{Model: "m", APIKey: "k", BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")

	_, err = p.Embed(context.Background(), []string{"  "})
	assert.Error(t, err)

	_, err = NewOpenAI(&Config{APIKey: "k"}).Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	_, err := NewFromConfig(nil)
	assert.Error(t, err)
	_, err = NewFromConfig(&Config{})
	assert.Error(t, err)
	_, err = NewFromConfig(&Config{Provider: "other"})
	assert.Error(t, err)
	p, err := NewFromConfig(&Config{Provider: "openai", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "openai:m", p.ModelID())
}
