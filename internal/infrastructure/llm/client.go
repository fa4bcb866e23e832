package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lostfound/backend/internal/logger"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// ClientConfig holds configuration for an OpenAI-compatible API
type ClientConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	EmbeddingsModel string
	Timeout         time.Duration
	MaxRetries      int

	// RequestsPerSecond and Burst bound outgoing calls across all capabilities
	RequestsPerSecond float64
	Burst             int

	// RetryInitialInterval is the first backoff delay; later delays double
	RetryInitialInterval time.Duration
}

// Client is a rate-limited, retrying wrapper around the OpenAI chat and
// embeddings endpoints. It is shared by the normalizer, comparers and explainer.
type Client struct {
	api             *openai.Client
	model           string
	embeddingsModel string
	maxRetries      int
	initialWait     time.Duration
	rateLimiter     *rate.Limiter
	logger          logger.Logger
}

// NewClient creates a new LLM client
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.EmbeddingsModel == "" {
		cfg.EmbeddingsModel = string(openai.SmallEmbedding3)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 4
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:             openai.NewClientWithConfig(apiConfig),
		model:           cfg.Model,
		embeddingsModel: cfg.EmbeddingsModel,
		maxRetries:      cfg.MaxRetries,
		initialWait:     cfg.RetryInitialInterval,
		rateLimiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:          log.WithFields(map[string]interface{}{"component": "llm_client"}),
	}
}

// Complete sends a single user prompt and returns the first choice's content
func (c *Client) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: temperature,
	}

	var content string
	err := c.retry(ctx, "chat completion", func() error {
		resp, err := c.api.CreateChatCompletion(ctx, request)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("chat completion returned no choices"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Embed returns one embedding per input text, in input order
func (c *Client) Embed(ctx context.Context, texts ...string) ([][]float32, error) {
	request := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingsModel),
		Input: texts,
	}

	var vectors [][]float32
	err := c.retry(ctx, "embeddings", func() error {
		resp, err := c.api.CreateEmbeddings(ctx, request)
		if err != nil {
			return classify(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
		}

		data := append([]openai.Embedding(nil), resp.Data...)
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		vectors = make([][]float32, len(data))
		for i, d := range data {
			vectors[i] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *Client) retry(ctx context.Context, operation string, fn func() error) error {
	attempt := func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return fn()
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("llm request failed, retrying", map[string]interface{}{
			"operation":  operation,
			"error":      err,
			"retryAfter": wait.String(),
		})
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.initialWait
	expBackoff.Multiplier = 2.0
	expBackoff.RandomizationFactor = 0.1
	expBackoff.MaxInterval = 10 * time.Second
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.maxRetries)), ctx)
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// classify marks client errors other than 429 as permanent
func classify(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return backoff.Permanent(err)
	}

	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}
