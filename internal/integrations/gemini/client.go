package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-1.5-pro"

// generator is the subset of genai.Models used by Client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// StatusError carries the HTTP status the Gemini API reported.
type StatusError struct {
	StatusCode int
	Message    string
	err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.err }

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// Client sends single-turn text prompts to a Gemini model.
type Client struct {
	gen         generator
	model       string
	temperature *float32
}

type Option func(*Client)

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// NewClient dials the Gemini API with apiKey.
func NewClient(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return New(gc.Models, model, opts...)
}

// New wraps an existing generator. An empty model selects DefaultModel.
func New(gen generator, model string, opts ...Option) (*Client, error) {
	if gen == nil {
		return nil, errors.New("gemini: generator must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	c := &Client{gen: gen, model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model reports the model the client targets.
func (c *Client) Model() string { return c.model }

// Complete sends prompt as a single user turn and returns the concatenated text
// parts of the first candidate. An empty string means the model produced no text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var cfg *genai.GenerateContentConfig
	if c.temperature != nil {
		cfg = &genai.GenerateContentConfig{Temperature: c.temperature}
	}

	resp, err := c.gen.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", wrapError(err)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// wrapError surfaces the API status code so callers can tell rate limiting from
// other upstream failures. Context errors pass through untouched.
func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("gemini: generate content: %w", err)
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := any(e).(type) {
		case genai.APIError:
			return &StatusError{StatusCode: v.Code, Message: v.Message, err: err}
		case *genai.APIError:
			return &StatusError{StatusCode: v.Code, Message: v.Message, err: err}
		}
	}
	return fmt.Errorf("gemini: generate content: %w", err)
}
