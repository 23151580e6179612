package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

const (
	chatPath = "/api/chat"
	tagsPath = "/api/tags"
)

// ErrModelNotFound is returned when the server does not know the requested model.
var ErrModelNotFound = errors.New("model not found")

var errDecode = errors.New("decode response")

// APIError is a non-success response from the model server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama http %d: %s", e.StatusCode, e.Message)
}

// Options configure the client.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// ModelOptions are sampling parameters forwarded with each request.
type ModelOptions struct {
	Temperature float64
	TopP        float64
	TopK        int
	MaxTokens   int
}

// Message is one chat turn. Images hold base64-encoded pictures.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Model describes an installed model.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// Client talks to a local Ollama server.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	delay    time.Duration
	logger   zerolog.Logger
}

// NewClient constructs a client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		attempts: attempts,
		delay:    delay,
		logger:   logger.With().Str("component", "ollama_client").Logger(),
	}
}

// Chat sends a non-streaming chat request. Images are attached to the last user
// message.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, opts ModelOptions, images [][]byte) (string, error) {
	if model == "" {
		return "", errors.New("model name required")
	}
	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	if len(images) > 0 {
		idx := -1
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == "user" {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", errors.New("images require a user message")
		}
		encoded := make([]string, 0, len(msgs[idx].Images)+len(images))
		encoded = append(encoded, msgs[idx].Images...)
		for _, img := range images {
			encoded = append(encoded, base64.StdEncoding.EncodeToString(img))
		}
		msgs[idx].Images = encoded
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options:  opts.payload(),
	})
	if err != nil {
		return "", err
	}

	var res chatResponse
	if err := c.do(ctx, http.MethodPost, chatPath, body, &res); err != nil {
		return "", fmt.Errorf("chat %s: %w", model, err)
	}
	return res.Message.Content, nil
}

// Generate sends a single user prompt and returns the reply text.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts ModelOptions, images [][]byte) (string, error) {
	return c.Chat(ctx, model, []Message{{Role: "user", Content: prompt}}, opts, images)
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var res tagsResponse
	if err := c.do(ctx, http.MethodGet, tagsPath, nil, &res); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return res.Models, nil
}

// HasModel reports whether name is installed. A bare name matches any tag.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	return ContainsModel(models, name), nil
}

// ContainsModel reports whether name is among models. A bare name matches any tag.
func ContainsModel(models []Model, name string) bool {
	for _, m := range models {
		if m.Name == name || strings.HasPrefix(m.Name, name+":") {
			return true
		}
	}
	return false
}

func (o ModelOptions) payload() map[string]any {
	p := map[string]any{"temperature": o.Temperature}
	if o.TopP > 0 {
		p["top_p"] = o.TopP
	}
	if o.TopK > 0 {
		p["top_k"] = o.TopK
	}
	if o.MaxTokens > 0 {
		p["num_predict"] = o.MaxTokens
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	b := &backoff.Backoff{Min: c.delay, Max: 8 * c.delay, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err := c.once(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == c.attempts || ctx.Err() != nil {
			break
		}

		wait := b.Duration()
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Str("path", path).Msg("request failed, retrying")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %v", errDecode, err)
	}
	return nil
}

func parseHTTPError(status int, payload []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(payload))
	if err := json.Unmarshal(payload, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	apiErr := &APIError{StatusCode: status, Message: msg}
	if status == http.StatusNotFound && strings.Contains(strings.ToLower(msg), "not found") {
		return fmt.Errorf("%w: %w", ErrModelNotFound, apiErr)
	}
	return apiErr
}

// retryable reports whether err is a transport failure or a 5xx response.
func retryable(err error) bool {
	if errors.Is(err, errDecode) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}
