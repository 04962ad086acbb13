package vectorizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/redivec/internal/metrics"
)

// OpenAI is an embedding provider speaking the OpenAI-compatible API.
// Any service exposing /embeddings in that shape works via BaseURL.
type OpenAI struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	dims     int
	user     string
	provider string
	log      *zap.Logger
}

// OpenAIConfig holds the provider settings.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint for compatible providers;
	// empty means api.openai.com.
	BaseURL string
	Model   string
	// Dimensions requests a fixed output dimensionality when the model
	// supports it; 0 uses the model default.
	Dimensions int
	User       string
	// Provider labels metrics, defaults to "openai".
	Provider string
	Logger   *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible embedding provider.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    openai.EmbeddingModel(cfg.Model),
		dims:     cfg.Dimensions,
		user:     cfg.User,
		provider: cfg.Provider,
		log:      cfg.Logger,
	}
}

// Dims returns the configured output dimensionality, 0 for model default.
func (o *OpenAI) Dims() int { return o.dims }

// Embed returns the embedding for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one provider round trip, preserving input order.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          o.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           o.user,
	}
	if o.dims > 0 {
		req.Dimensions = o.dims
	}

	start := time.Now()
	resp, err := o.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(o.provider, string(o.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(o.provider, string(o.model), "api_error").Inc()
		return nil, parseAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(o.provider, string(o.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(o.provider, string(o.model), "count_mismatch").Inc()
		return nil, fmt.Errorf("provider returned %d embeddings for %d texts: %w",
			len(resp.Data), len(texts), ErrProvider)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(o.provider, string(o.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(o.provider, string(o.model)).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(o.provider, string(o.model), "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(o.provider, string(o.model), "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	// The API may return items out of order; Index restores input order.
	data := resp.Data
	sort.Slice(data, func(a, b int) bool { return data[a].Index < data[b].Index })

	vecs := make([][]float32, len(data))
	for n, d := range data {
		vecs[n] = d.Embedding
	}
	return vecs, nil
}

// parseAPIError extracts a readable message from the provider response and
// wraps it with ErrProvider.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("embedding API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, ErrProvider)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), ErrProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, ErrProvider)
	}

	return fmt.Errorf("embedding request failed: %v: %w", err, ErrProvider)
}

// extractDetail reads the "detail" field some compatible providers use for
// JSON error bodies.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
