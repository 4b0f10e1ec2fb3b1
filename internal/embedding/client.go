package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings.
	DefaultModel = "text-embedding-3-small"

	// DefaultDimension is the vector dimension for text-embedding-3-small.
	DefaultDimension = 1536

	DefaultTimeout = 30 * time.Second
)

// Embedding is one vector returned by a Provider.
type Embedding struct {
	Vector     []float32
	Model      string
	TokenCount int
}

// Provider creates an embedding for a single input.
type Provider interface {
	CreateEmbedding(ctx context.Context, input string) (*Embedding, error)
	Model() string
}

// ClientConfig holds the provider credentials and model selection.
type ClientConfig struct {
	APIKey     string
	BaseURL    string // Optional, for OpenAI-compatible endpoints
	Model      string
	Dimensions int // Optional, requests shortened vectors when set
	Timeout    time.Duration
}

// Client calls the OpenAI embeddings endpoint.
type Client struct {
	client     *openai.Client
	model      string
	dimensions int
}

var _ Provider = (*Client)(nil)

// NewClient creates a client from explicit configuration. It fails with
// ErrMissingAPIKey before any request is made when no key is given.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// Rate limits are retried by the Embedder; everything else fails the item.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client, model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// CreateEmbedding embeds input with a single provider call.
func (c *Client) CreateEmbedding(ctx context.Context, input string) (*Embedding, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(input),
		},
		Model:          openai.EmbeddingModel(c.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, &ProviderError{Err: err}
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &ProviderError{Err: fmt.Errorf("%w: no embedding data", ErrMalformedResponse)}
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &Embedding{
		Vector:     toFloat32(resp.Data[0].Embedding),
		Model:      model,
		TokenCount: int(resp.Usage.TotalTokens),
	}, nil
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
