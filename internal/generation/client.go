// Package generation provides answer text generation via a TGI-compatible
// HTTP endpoint.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPrompt indicates an empty prompt
	ErrEmptyPrompt = errors.New("empty prompt")

	// ErrGenerationFailed indicates the backend failed to produce text
	ErrGenerationFailed = errors.New("generation failed")
)

const instrumentationName = "github.com/caretext/answerd/internal/generation"

// Config holds configuration for the generation client.
type Config struct {
	// BaseURL is the base URL for the generation API
	BaseURL string `koanf:"base_url"`

	// Model is the model name, recorded in metrics labels
	Model string `koanf:"model"`

	// APIKey is the API key (optional for self-hosted backends)
	APIKey string `koanf:"api_key"`

	// MaxTokens caps generated output length. Default: 512.
	MaxTokens int `koanf:"max_tokens"`

	// Temperature controls sampling. Zero keeps output deterministic.
	Temperature float64 `koanf:"temperature"`

	// Timeout bounds each HTTP request. Default: 60s.
	Timeout time.Duration `koanf:"timeout"`
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0, 2]", ErrInvalidConfig)
	}
	return nil
}

// Client calls a TGI server's /generate endpoint.
type Client struct {
	config   Config
	client   *http.Client
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewClient creates a generation client with the given configuration.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	c := &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}

	meter := otel.Meter(instrumentationName)
	c.duration, _ = meter.Float64Histogram(
		"answerd.generation.duration_seconds",
		metric.WithDescription("Duration of text generation in seconds, labeled by model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	c.errors, _ = meter.Int64Counter(
		"answerd.generation.errors_total",
		metric.WithDescription("Total text generation errors by model"),
		metric.WithUnit("{error}"),
	)

	return c, nil
}

// tgiRequest is the request body for the TGI generate endpoint.
type tgiRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters tgiParameters `json:"parameters"`
}

type tgiParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature,omitempty"`
	DoSample     bool    `json:"do_sample"`
}

type tgiResponse struct {
	GeneratedText string `json:"generated_text"`
}

// Generate produces completion text for the prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	var genErr error
	defer func() {
		attrs := metric.WithAttributes(attribute.String("model", c.config.Model))
		if c.duration != nil {
			c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if genErr != nil && c.errors != nil {
			c.errors.Add(ctx, 1, attrs)
		}
	}()

	if prompt == "" {
		genErr = ErrEmptyPrompt
		return "", genErr
	}

	body, err := json.Marshal(tgiRequest{
		Inputs: prompt,
		Parameters: tgiParameters{
			MaxNewTokens: c.config.MaxTokens,
			Temperature:  c.config.Temperature,
			DoSample:     c.config.Temperature > 0,
		},
	})
	if err != nil {
		genErr = fmt.Errorf("marshaling request: %w", err)
		return "", genErr
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		genErr = fmt.Errorf("creating request: %w", err)
		return "", genErr
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		genErr = fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		return "", genErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		genErr = fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(respBody))
		return "", genErr
	}

	var out tgiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		genErr = fmt.Errorf("decoding response: %w", err)
		return "", genErr
	}
	if out.GeneratedText == "" {
		genErr = fmt.Errorf("%w: empty generated text", ErrGenerationFailed)
		return "", genErr
	}

	return out.GeneratedText, nil
}
