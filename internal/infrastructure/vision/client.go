package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
	"golang.org/x/time/rate"
)

// ClientConfig holds configuration for the Vision client
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxLabels  int
	MaxObjects int
	MaxRetries int

	// RequestsPerSecond and Burst bound outgoing calls
	RequestsPerSecond float64
	Burst             int

	// RetryInitialInterval is the first backoff delay; later delays double
	RetryInitialInterval time.Duration
}

// Client extracts image features through the Vision images:annotate API.
// It implements domain.FeatureExtractor.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	maxLabels   int
	maxObjects  int
	maxRetries  int
	initialWait time.Duration
	rateLimiter *rate.Limiter
	logger      logger.Logger
}

// NewClient creates a new Vision API client
func NewClient(cfg ClientConfig, log logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = 10
	}
	if cfg.MaxObjects <= 0 {
		cfg.MaxObjects = 10
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		maxLabels:   cfg.MaxLabels,
		maxObjects:  cfg.MaxObjects,
		maxRetries:  cfg.MaxRetries,
		initialWait: cfg.RetryInitialInterval,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:      log.WithFields(map[string]interface{}{"component": "vision_client"}),
	}
}

// ExtractFeatures annotates the image at imageRef with labels, objects,
// dominant colors and text. Failures are returned as feature extraction
// collaborator errors.
func (c *Client) ExtractFeatures(ctx context.Context, imageRef string) (*domain.ImageFeatureSet, error) {
	if strings.TrimSpace(imageRef) == "" {
		return nil, domain.NewCollaboratorError(domain.CapabilityFeatureExtraction,
			fmt.Errorf("%w: image reference is empty", domain.ErrValidation))
	}

	body, err := json.Marshal(c.buildRequest(imageRef))
	if err != nil {
		return nil, domain.NewCollaboratorError(domain.CapabilityFeatureExtraction, err)
	}

	var result *domain.ImageFeatureSet
	operation := func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		resp, err := c.annotate(ctx, body)
		if err != nil {
			return err
		}
		if len(resp.Responses) == 0 {
			return backoff.Permanent(errors.New("annotate response is empty"))
		}

		first := resp.Responses[0]
		if first.Error != nil {
			return backoff.Permanent(fmt.Errorf("annotate error %d: %s", first.Error.Code, first.Error.Message))
		}

		result = mapToFeatureSet(first)
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("vision request failed, retrying", map[string]interface{}{
			"imageRef":   imageRef,
			"error":      err,
			"retryAfter": wait.String(),
		})
	}

	if err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify); err != nil {
		c.logger.Error("feature extraction failed", map[string]interface{}{
			"imageRef": imageRef,
			"error":    err,
		})
		return nil, domain.NewCollaboratorError(domain.CapabilityFeatureExtraction, err)
	}

	c.logger.Debug("features extracted", map[string]interface{}{
		"imageRef": imageRef,
		"labels":   len(result.Labels),
		"objects":  len(result.Objects),
		"colors":   len(result.Colors),
	})
	return result, nil
}

func (c *Client) buildRequest(imageRef string) annotateRequest {
	return annotateRequest{
		Requests: []imageRequest{{
			Image: image{Source: imageSource{ImageURI: imageRef}},
			Features: []feature{
				{Type: "LABEL_DETECTION", MaxResults: c.maxLabels},
				{Type: "OBJECT_LOCALIZATION", MaxResults: c.maxObjects},
				{Type: "IMAGE_PROPERTIES"},
				{Type: "TEXT_DETECTION"},
			},
		}},
	}
}

// annotate performs one POST. Client errors other than 429 are permanent.
func (c *Client) annotate(ctx context.Context, body []byte) (*annotateResponse, error) {
	endpoint := fmt.Sprintf("%s/images:annotate", c.baseURL)
	if c.apiKey != "" {
		endpoint += "?" + url.Values{"key": {c.apiKey}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LostFound/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("vision api status %d: %s", resp.StatusCode, truncate(string(payload), 200))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	var out annotateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return &out, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.initialWait
	expBackoff.Multiplier = 2.0
	expBackoff.RandomizationFactor = 0.1
	expBackoff.MaxInterval = 10 * time.Second
	expBackoff.MaxElapsedTime = 0
	expBackoff.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(c.maxRetries)), ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
