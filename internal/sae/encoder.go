package sae

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kamusis/lscope/internal/config"
)

// ErrEncoderFailure wraps every error raised while encoding embeddings.
var ErrEncoderFailure = errors.New("encoder failure")

// EncodeRequest is one batch of dense embeddings to encode.
type EncodeRequest struct {
	ModelID    string
	KExpansion string
	Dim        int
	Embeddings []float32 // rows x Dim, row-major
}

// Rows returns the number of embeddings in the batch.
func (r EncodeRequest) Rows() int {
	if r.Dim <= 0 {
		return 0
	}
	return len(r.Embeddings) / r.Dim
}

// EncodeResult is the sparse top-k encoding of a batch.
type EncodeResult struct {
	Activations Activations
	NumLatents  int
}

// Encoder maps dense embeddings to their sparse top-k encoding.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest) (*EncodeResult, error)
}

// EncoderConfig locates a remote encoder.
type EncoderConfig struct {
	BaseURL string
	APIKey  string
}

// LoadEncoderConfig resolves encoder config from environment variables first, then ~/.lscope/.env.
func LoadEncoderConfig() (*EncoderConfig, error) {
	baseURL, err := config.GetConfigValue("LSCOPE_ENCODER_BASE_URL")
	if err != nil {
		return nil, err
	}
	apiKey, err := config.GetConfigValue("LSCOPE_ENCODER_API_KEY")
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		return nil, fmt.Errorf("encoder is not configured (set LSCOPE_ENCODER_BASE_URL)")
	}
	return &EncoderConfig{BaseURL: baseURL, APIKey: apiKey}, nil
}

// HTTPEncoder calls an encoding service over HTTP.
//
// It uses the REST endpoint:
//
//	POST {baseURL}/encode
//
// with JSON body:
//
//	{"model": "...", "k_expansion": "...", "embeddings": [[...], ...]}
//
// and expects:
//
//	{"top_indices": [[...], ...], "top_acts": [[...], ...], "num_latents": N}
type HTTPEncoder struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPEncoder constructs an HTTPEncoder.
func NewHTTPEncoder(cfg *EncoderConfig) *HTTPEncoder {
	return &HTTPEncoder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

func (e *HTTPEncoder) Encode(ctx context.Context, req EncodeRequest) (*EncodeResult, error) {
	res, err := e.encode(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoderFailure, err)
	}
	return res, nil
}

func (e *HTTPEncoder) encode(ctx context.Context, req EncodeRequest) (*EncodeResult, error) {
	if req.Dim <= 0 || len(req.Embeddings)%req.Dim != 0 {
		return nil, fmt.Errorf("embeddings length %d is not a multiple of dim %d", len(req.Embeddings), req.Dim)
	}
	rows := req.Rows()
	batch := make([][]float32, rows)
	for i := range batch {
		batch[i] = req.Embeddings[i*req.Dim : (i+1)*req.Dim]
	}
	b, err := json.Marshal(map[string]any{
		"model":       req.ModelID,
		"k_expansion": req.KExpansion,
		"embeddings":  batch,
	})
	if err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/encode", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		hreq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("encode request failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		TopIndices [][]int32   `json:"top_indices"`
		TopActs    [][]float32 `json:"top_acts"`
		NumLatents int         `json:"num_latents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("cannot parse encode response: %w", err)
	}
	if len(parsed.TopIndices) != rows || len(parsed.TopActs) != rows {
		return nil, fmt.Errorf("encode response has %d/%d rows for %d inputs", len(parsed.TopIndices), len(parsed.TopActs), rows)
	}
	if parsed.NumLatents < 0 {
		return nil, fmt.Errorf("encode response has invalid num_latents %d", parsed.NumLatents)
	}

	acts := Activations{Rows: rows}
	if rows > 0 {
		acts.K = len(parsed.TopIndices[0])
	}
	acts.Indices = make([]int32, 0, rows*acts.K)
	acts.Values = make([]float32, 0, rows*acts.K)
	for i := 0; i < rows; i++ {
		if len(parsed.TopIndices[i]) != acts.K || len(parsed.TopActs[i]) != acts.K {
			return nil, fmt.Errorf("encode response row %d has k=%d/%d want %d", i, len(parsed.TopIndices[i]), len(parsed.TopActs[i]), acts.K)
		}
		acts.Indices = append(acts.Indices, parsed.TopIndices[i]...)
		acts.Values = append(acts.Values, parsed.TopActs[i]...)
	}
	return &EncodeResult{Activations: acts, NumLatents: parsed.NumLatents}, nil
}
