package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize limits the backend response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Ollama calls a local OpenAI-compatible chat server (Ollama, vLLM, etc.).
type Ollama struct {
	name        string
	baseURL     string
	model       string
	temperature *float64
	maxTokens   int
	httpClient  *http.Client
	logger      *slog.Logger
}

// OllamaOption configures an Ollama backend.
type OllamaOption func(*Ollama)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) {
		o.httpClient = c
	}
}

// WithTemperature sets the sampling temperature. nil uses the server default.
func WithTemperature(t float64) OllamaOption {
	return func(o *Ollama) {
		o.temperature = &t
	}
}

// WithMaxTokens limits the response length. 0 uses the server default.
func WithMaxTokens(n int) OllamaOption {
	return func(o *Ollama) {
		o.maxTokens = n
	}
}

// WithOllamaLogger sets the logger.
func WithOllamaLogger(logger *slog.Logger) OllamaOption {
	return func(o *Ollama) {
		o.logger = logger
	}
}

// NewOllama creates a backend talking to an OpenAI-compatible server at
// baseURL with the given model.
func NewOllama(name, baseURL, model string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		name:    name,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Allow time for local model responses
		},
		logger: slog.Default(),
	}
	if o.baseURL == "" {
		o.baseURL = "http://localhost:11434/v1"
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Name returns the registry name of this backend.
func (o *Ollama) Name() string {
	return o.name
}

// chatRequest is the OpenAI-compatible request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI-compatible response format.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Chat sends one exchange to the chat completions endpoint.
func (o *Ollama) Chat(ctx context.Context, instructions, message string) (string, string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: message},
		},
		Temperature: o.temperature,
		MaxTokens:   maxTokensPtr(o.maxTokens),
	})
	if err != nil {
		return "", "", NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	url := chatCompletionsURL(o.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", "", NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return "", "", NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", "", NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", "", classifyHTTPError(httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", "", NewTransientError(fmt.Errorf("parse chat response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", "", NewTransientError(fmt.Errorf("no choices in response"))
	}

	model := resp.Model
	if model == "" {
		model = o.model
	}
	return resp.Choices[0].Message.Content, model, nil
}

func chatCompletionsURL(baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func maxTokensPtr(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("backend API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusNotFound && strings.Contains(bodyStr, "model"):
		// Ollama reports a missing model as 404 with a model error message
		return NewFatalError(fmt.Errorf("%w: %s", ErrNotInstalled, bodyStr))
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	default:
		// Unknown client errors default to fatal
		return NewFatalError(err)
	}
}
