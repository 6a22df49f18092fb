// Package llm talks to the vision-capable chat APIs used by endokit.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const defaultTimeout = 2 * time.Minute

// Common client errors.
var (
	ErrMissingAPIKey   = errors.New("api key is required")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyRequest    = errors.New("request has no content")
)

// Analyzer sends one request and returns the model's text answer.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// Request is a single-turn prompt. Parts are sent in order as the user
// message; System, when set, is sent as the system instruction.
type Request struct {
	System    string
	Parts     []Part
	MaxTokens int
	// Temperature is sent when non-nil, including an explicit 0. Nil keeps
	// the provider default.
	Temperature *float64
}

// Part is either text or an image.
type Part struct {
	Text  string
	Image *Image
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart returns an image part.
func ImagePart(img Image) Part {
	return Part{Image: &img}
}

// Options configures a client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return o.MaxTokens
}

// New returns the client for the named provider.
func New(provider string, opts Options) (Analyzer, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(opts)
	case ProviderAnthropic:
		return NewAnthropicClient(opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

func validateRequest(req Request) error {
	if len(req.Parts) == 0 {
		return ErrEmptyRequest
	}
	return nil
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
