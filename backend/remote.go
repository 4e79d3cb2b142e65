package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Remote calls a hosted OpenAI-compatible provider. It refuses to run unless
// the operator has acknowledged that student messages leave the deployment.
type Remote struct {
	name         string
	baseURL      string
	model        string
	apiKey       string
	acknowledged bool
	httpClient   *http.Client
}

// RemoteOption configures a Remote backend.
type RemoteOption func(*Remote)

// WithRemoteHTTPClient sets a custom HTTP client.
func WithRemoteHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.httpClient = c
	}
}

// WithAcknowledged records the operator's consent to send messages off-host.
func WithAcknowledged(ok bool) RemoteOption {
	return func(r *Remote) {
		r.acknowledged = ok
	}
}

// NewRemote creates a hosted-provider backend.
func NewRemote(name, baseURL, model, apiKey string, opts ...RemoteOption) *Remote {
	r := &Remote{
		name:    name,
		baseURL: baseURL,
		model:   model,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Name returns the registry name of this backend.
func (r *Remote) Name() string {
	return r.name
}

// Chat sends one exchange to the hosted provider. The acknowledgement gate
// runs before any network activity.
func (r *Remote) Chat(ctx context.Context, instructions, message string) (string, string, error) {
	if !r.acknowledged {
		return "", "", NewFatalError(ErrNotAcknowledged)
	}
	if r.apiKey == "" {
		return "", "", NewFatalError(fmt.Errorf("remote backend %q: api key not configured", r.name))
	}

	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: message},
		},
	})
	if err != nil {
		return "", "", NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatCompletionsURL(r.baseURL), bytes.NewReader(body))
	if err != nil {
		return "", "", NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)

	httpResp, err := r.httpClient.Do(httpReq)
	if err != nil {
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
		model = r.model
	}
	return resp.Choices[0].Message.Content, model, nil
}
