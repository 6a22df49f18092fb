package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicName    = "anthropic"
	anthropicVersion = "2023-06-01"

	// anthropicDefaultMaxTokens is used when neither the request nor the
	// client sets a limit; the messages API requires one.
	anthropicDefaultMaxTokens = 1024
)

// AnthropicClient calls the messages API.
type AnthropicClient struct {
	opts   Options
	client *http.Client
}

// NewAnthropicClient creates a client. BaseURL excludes the version prefix,
// for example https://api.anthropic.com.
func NewAnthropicClient(opts Options) (*AnthropicClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", anthropicName, ErrMissingAPIKey)
	}
	return &AnthropicClient{opts: opts, client: opts.httpClient()}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

// Analyze implements Analyzer.
func (c *AnthropicClient) Analyze(ctx context.Context, req Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	blocks := make([]anthropicBlock, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Image != nil {
			blocks = append(blocks, anthropicBlock{
				Type: "image",
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: p.Image.MediaType,
					Data:      p.Image.Data,
				},
			})
			continue
		}
		blocks = append(blocks, anthropicBlock{Type: "text", Text: p.Text})
	}

	maxTokens := c.opts.maxTokens(req)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	payload, err := json.Marshal(anthropicRequest{
		Model:       c.opts.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint(c.opts.BaseURL, "/v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.opts.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, err, anthropicName)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", MapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), anthropicName)
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{
			Code:       ErrUpstreamError,
			Message:    "decoding response: " + err.Error(),
			HTTPStatus: resp.StatusCode,
			Retryable:  true,
			Provider:   anthropicName,
		}
	}

	var sb strings.Builder
	for _, b := range out.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", &Error{
			Code:       ErrEmptyResponse,
			Message:    "response has no text content",
			HTTPStatus: resp.StatusCode,
			Retryable:  true,
			Provider:   anthropicName,
		}
	}
	return sb.String(), nil
}
