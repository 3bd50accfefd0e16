package sae

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEncoder_Encode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/encode", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body struct {
			Model      string      `json:"model"`
			KExpansion string      `json:"k_expansion"`
			Embeddings [][]float32 `json:"embeddings"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m", body.Model)
		assert.Equal(t, "64_32", body.KExpansion)
		assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, body.Embeddings)
		_, _ = w.Write([]byte(`{"top_indices":[[0,2],[2,3]],"top_acts":[[0.5,0.9],[0.1,0]],"num_latents":4}`))
	}))
	defer srv.Close()

	enc := NewHTTPEncoder(&EncoderConfig{BaseURL: srv.URL, APIKey: "k"})
	res, err := enc.Encode(context.Background(), EncodeRequest{
		ModelID: "m", KExpansion: "64_32", Dim: 2, Embeddings: []float32{1, 2, 3, 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.NumLatents)
	assert.Equal(t, Activations{
		Rows: 2, K: 2,
		Indices: []int32{0, 2, 2, 3},
		Values:  []float32{0.5, 0.9, 0.1, 0},
	}, res.Activations)
}

func TestHTTPEncoder_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"http error", `boom`, http.StatusInternalServerError},
		{"bad json", `{`, http.StatusOK},
		{"row count", `{"top_indices":[[0]],"top_acts":[[1]],"num_latents":2}`, http.StatusOK},
		{"ragged k", `{"top_indices":[[0],[0,1]],"top_acts":[[1],[1,1]],"num_latents":2}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			enc := NewHTTPEncoder(&EncoderConfig{BaseURL: srv.URL})
			_, err := enc.Encode(context.Background(), EncodeRequest{ModelID: "m", Dim: 1, Embeddings: []float32{1, 2}})
			assert.ErrorIs(t, err, ErrEncoderFailure)
		})
	}
}
