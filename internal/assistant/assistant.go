// Package assistant relays coding questions to an OpenAI-compatible
// chat-completion endpoint (OpenRouter by default).
//
// CREDENTIAL INJECTION:
// The API key never touches request-building code. It lives in an
// oauth2.StaticTokenSource, and the oauth2.Transport wrapped around the HTTP
// client stamps "Authorization: Bearer <key>" onto every outgoing request.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/ai-code-relay/internal/apperror"
)

// SystemPrompt is the fixed system-role message sent with every question.
const SystemPrompt = "You are a helpful coding assistant."

const maxErrorBody = 4096

// ErrMissingAPIKey is returned by New when no credential is configured.
var ErrMissingAPIKey = errors.New("assistant: API key is required")

// Config holds the chat backend settings.
type Config struct {
	// URL is the full chat-completions endpoint.
	URL string
	// APIKey is sent as a bearer token. Required.
	APIKey string
	// Model is the model identifier sent upstream.
	Model string
	// Referer and Title are OpenRouter's optional app attribution headers.
	Referer string
	Title   string
	// Timeout bounds the whole upstream round trip.
	Timeout time.Duration
}

// DefaultConfig targets OpenRouter. APIKey must still be filled in.
func DefaultConfig() Config {
	return Config{
		URL:     "https://openrouter.ai/api/v1/chat/completions",
		Model:   "openchat/openchat-3.5-1210",
		Referer: "https://ai-code-editor.vercel.app",
		Title:   "AI Code Editor",
		Timeout: 30 * time.Second,
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

// Reply is the assistant's answer plus the bookkeeping the upstream returned.
type Reply struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Client sends questions to the chat backend. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// New creates a Client. It fails when cfg.APIKey is empty so the service
// cannot start without a credential.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	return &Client{
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.config.Model }

// Close releases idle upstream connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// BuildMessages assembles the system+user pair for a prompt and its code context.
func BuildMessages(prompt, userCode string) []Message {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\nThe user is writing the following code:\n\n```python\n")
	b.WriteString(userCode)
	b.WriteString("\n```\n\nNow respond to the user's query:\n")
	b.WriteString(prompt)
	b.WriteString("\n")

	return []Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// Ask sends the prompt with its code context and returns the first completion.
func (c *Client) Ask(ctx context.Context, prompt, userCode string) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(completionRequest{
		Model:    c.config.Model,
		Messages: BuildMessages(prompt, userCode),
	})
	if err != nil {
		return nil, fmt.Errorf("assistant: marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, apperror.Transport(fmt.Sprintf("Exception: %s", err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Referer != "" {
		req.Header.Set("HTTP-Referer", c.config.Referer)
	}
	if c.config.Title != "" {
		req.Header.Set("X-Title", c.config.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("chat backend rejected request",
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.config.Model),
		)
		return nil, apperror.Upstream(resp.StatusCode, fmt.Sprintf("Error: %s", strings.TrimSpace(string(text))))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, c.transportError(fmt.Errorf("decoding response: %w", err))
	}
	if len(out.Choices) == 0 {
		return nil, apperror.Upstream(resp.StatusCode, "Error: upstream returned no choices")
	}
	if strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, apperror.Upstream(resp.StatusCode, "Error: upstream returned an empty reply")
	}

	reply := &Reply{
		Text:  out.Choices[0].Message.Content,
		Model: out.Model,
	}
	if reply.Model == "" {
		reply.Model = c.config.Model
	}
	if out.Usage != nil {
		reply.PromptTokens = out.Usage.PromptTokens
		reply.CompletionTokens = out.Usage.CompletionTokens
	}
	return reply, nil
}

func (c *Client) transportError(err error) error {
	if apperror.IsDeadline(err) {
		return apperror.Timeout("Assistant request", c.config.Timeout)
	}
	return apperror.Transport(fmt.Sprintf("Exception: %s", err.Error()))
}
