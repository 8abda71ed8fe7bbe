// Package llm round-trips composed prompts against the generative
// backend and extracts the reply plus continuation state.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// maxErrorBodySize limits how much error response body we read.
// This prevents memory exhaustion from malformed error responses.
const maxErrorBodySize = 1 * 1024 * 1024

// PlaceholderReply stands in when the backend answers successfully but
// with a missing or empty reply field. A soft failure, not an error.
const PlaceholderReply = "No response available"

// BackendError reports a transport failure or non-success status from
// the generative backend.
type BackendError struct {
	Status int
	Body   string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: generative backend: %v", e.Err)
	}
	return fmt.Sprintf("llm: generative backend returned status %d: %s", e.Status, e.Body)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Message is one chat-mode conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReplyResult carries the reply text and the backend's updated
// continuation state: a context vector in prompt mode, the assistant
// message in chat mode.
type ReplyResult struct {
	Text      string
	Context   []int
	Assistant Message
}

// Config holds the fixed sampling configuration for every request.
type Config struct {
	Endpoint    string
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Timeout     time.Duration
}

// Client is the generative backend client. One synchronous request per
// turn, no retries, no streaming.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient applies defaults matching the deployed backend.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://127.0.0.1:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Stream      bool    `json:"stream"`
	Context     []int   `json:"context,omitempty"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	Stream      bool      `json:"stream"`
}

type backendResponse struct {
	Response string `json:"response"`
	Message  struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Context []int `json:"context"`
}

// Generate sends the rendered prompt together with the prior context
// vector and returns the reply plus the updated vector. The updated
// context is returned unconditionally so the store can persist it.
func (c *Client) Generate(ctx context.Context, prompt string, prior []int) (*ReplyResult, error) {
	req := generateRequest{
		Model:       c.cfg.Model,
		Prompt:      prompt,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		Stream:      false,
		Context:     prior,
	}
	resp, err := c.post(ctx, "/api/generate", req)
	if err != nil {
		return nil, err
	}

	text := resp.Response
	if text == "" {
		log.Warn().Msg("generative backend returned empty reply, substituting placeholder")
		text = PlaceholderReply
	}
	return &ReplyResult{Text: text, Context: resp.Context}, nil
}

// Chat sends the ordered message list and returns the reply plus the
// assistant message continuation.
func (c *Client) Chat(ctx context.Context, messages []Message) (*ReplyResult, error) {
	req := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		Stream:      false,
	}
	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return nil, err
	}

	text := resp.Message.Content
	if text == "" {
		text = resp.Response
	}
	if text == "" {
		log.Warn().Msg("generative backend returned empty reply, substituting placeholder")
		text = PlaceholderReply
	}
	return &ReplyResult{
		Text:      text,
		Assistant: Message{Role: "assistant", Content: text},
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*backendResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		log.Error().Int("status", resp.StatusCode).Str("body", string(raw)).
			Msg("generative backend failed")
		return nil, &BackendError{Status: resp.StatusCode, Body: string(raw)}
	}

	var decoded backendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &BackendError{Err: fmt.Errorf("decode response: %w", err)}
	}

	log.Debug().Str("model", c.cfg.Model).Dur("duration", time.Since(start)).
		Msg("generative reply received")
	return &decoded, nil
}

// Available probes the backend's model listing. Useful at startup to
// surface a misconfigured endpoint before the first turn.
func (c *Client) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
