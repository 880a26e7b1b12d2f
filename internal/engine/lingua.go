package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultLinguaModel is the multilingual LLMLingua-2 checkpoint.
	DefaultLinguaModel = "microsoft/llmlingua-2-bert-base-multilingual-cased-meetingbank"

	// DefaultLinguaTimeout bounds a single compress_prompt call.
	DefaultLinguaTimeout = 60 * time.Second

	// maxResponseSize prevents OOM on unexpectedly large engine responses (10MB).
	maxResponseSize = 10 * 1024 * 1024

	// maxErrorBodyLen limits error body in error messages to avoid log bloat.
	maxErrorBodyLen = 500
)

// LinguaClient calls an LLMLingua-2 compression service over HTTP.
//
//	POST {endpoint}/compress_prompt  {"prompt","rate","model","device"}
//	-> {"compressed_prompt","origin_tokens","compressed_tokens"}
type LinguaClient struct {
	endpoint   string
	apiKey     string
	model      string
	device     string
	httpClient *http.Client
}

// LinguaOption configures the LinguaClient.
type LinguaOption func(*LinguaClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) LinguaOption {
	return func(client *LinguaClient) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) LinguaOption {
	return func(client *LinguaClient) {
		client.httpClient.Timeout = timeout
	}
}

// WithModel overrides the compression model.
func WithModel(model string) LinguaOption {
	return func(client *LinguaClient) {
		if model != "" {
			client.model = model
		}
	}
}

// WithDevice selects the device the service should run the model on.
func WithDevice(device string) LinguaOption {
	return func(client *LinguaClient) {
		if device != "" {
			client.device = device
		}
	}
}

// WithAPIKey sets a bearer token for the service.
func WithAPIKey(key string) LinguaOption {
	return func(client *LinguaClient) {
		client.apiKey = key
	}
}

// NewLinguaClient creates a client for the service at endpoint.
func NewLinguaClient(endpoint string, opts ...LinguaOption) *LinguaClient {
	c := &LinguaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    DefaultLinguaModel,
		device:   "auto",
		httpClient: &http.Client{
			Timeout: DefaultLinguaTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the engine identifier.
func (c *LinguaClient) Name() string { return StrategyLingua }

type compressPromptRequest struct {
	Prompt string  `json:"prompt"`
	Rate   float64 `json:"rate"`
	Model  string  `json:"model,omitempty"`
	Device string  `json:"device,omitempty"`
}

// CompressPrompt sends text to the service and returns its result.
func (c *LinguaClient) CompressPrompt(ctx context.Context, text string, rate float64) (*Result, error) {
	var result Result
	req := compressPromptRequest{Prompt: text, Rate: rate, Model: c.model, Device: c.device}
	if err := c.post(ctx, "/compress_prompt", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks GET {endpoint}/health.
func (c *LinguaClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("engine health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyLen))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *LinguaClient) post(ctx context.Context, path string, body, result any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errBody := string(respBody)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen] + "..."
		}
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, errBody)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *LinguaClient) setAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
