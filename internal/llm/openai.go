package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const openAIName = "openai"

// OpenAIClient calls the chat completions API.
type OpenAIClient struct {
	opts   Options
	client *http.Client
}

// NewOpenAIClient creates a client. BaseURL includes the version prefix,
// for example https://api.openai.com/v1.
func NewOpenAIClient(opts Options) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", openAIName, ErrMissingAPIKey)
	}
	return &OpenAIClient{opts: opts, client: opts.httpClient()}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze implements Analyzer.
func (c *OpenAIClient) Analyze(ctx context.Context, req Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	parts := make([]openAIContentPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Image != nil {
			parts = append(parts, openAIContentPart{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: p.Image.DataURL()},
			})
			continue
		}
		parts = append(parts, openAIContentPart{Type: "text", Text: p.Text})
	}

	var messages []openAIMessage
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: parts})

	payload, err := json.Marshal(openAIRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		MaxTokens:   c.opts.maxTokens(req),
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint(c.opts.BaseURL, "/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, err, openAIName)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", MapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), openAIName)
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &Error{
			Code:       ErrUpstreamError,
			Message:    "decoding response: " + err.Error(),
			HTTPStatus: resp.StatusCode,
			Retryable:  true,
			Provider:   openAIName,
		}
	}

	if len(out.Choices) == 0 {
		return "", &Error{
			Code:       ErrEmptyResponse,
			Message:    "response has no choices",
			HTTPStatus: resp.StatusCode,
			Retryable:  true,
			Provider:   openAIName,
		}
	}
	return out.Choices[0].Message.Content, nil
}
