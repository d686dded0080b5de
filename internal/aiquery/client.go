package aiquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sparoodata/mainai-sub000/internal/obs"
)

var (
	// ErrCredentialsExhausted means every configured key was rate limited.
	// User-facing advice: try again shortly.
	ErrCredentialsExhausted = errors.New("aiquery: all credentials exhausted")
	// ErrPayloadTooLarge means the prompt itself was rejected; retrying
	// with another credential cannot help.
	ErrPayloadTooLarge = errors.New("aiquery: payload too large")
)

const preamble = "You are a property-management assistant. Answer the " +
	"user's question using only the account data provided below. When the " +
	"answer is a listing, reply with a JSON array of flat objects sharing " +
	"the same keys; otherwise reply in plain prose. Never invent records."

const truncationMarker = "\n...[context truncated]"

// Client answers natural-language queries through an OpenAI-compatible
// chat-completions endpoint, rotating across pooled credentials when rate
// limited. Stateless across calls.
type Client struct {
	pool    *CredentialPool
	baseURL string
	model   string
	hc      *http.Client

	contextMaxBytes int
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests use this).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithContextCap overrides the serialized-context byte cap.
func WithContextCap(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.contextMaxBytes = n
		}
	}
}

// NewClient constructs a client. Timeout bounds each provider call so a
// slow upstream never occupies a worker slot indefinitely.
func NewClient(pool *CredentialPool, baseURL, model string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		pool:            pool,
		baseURL:         strings.TrimRight(baseURL, "/"),
		model:           model,
		hc:              &http.Client{Timeout: timeout},
		contextMaxBytes: 3000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask combines the instruction preamble, a size-capped context block and
// the user's query into one prompt and returns the trimmed answer text.
//
// Retry policy: up to pool-size attempts, fresh random credential each
// time. 429 moves to the next credential; 413 and every other failure
// propagate immediately since a different key cannot change the outcome.
func (c *Client) Ask(ctx context.Context, contextText, queryText string) (string, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return "", errors.New("aiquery: query is required")
	}

	prompt := c.buildPrompt(contextText, queryText)

	for _, cred := range c.pool.Shuffled() {
		answer, err := c.complete(ctx, cred, prompt)
		if err == nil {
			return answer, nil
		}
		if errors.Is(err, errRateLimited) {
			continue
		}
		return "", err
	}
	return "", ErrCredentialsExhausted
}

func (c *Client) buildPrompt(contextText, queryText string) string {
	contextText = strings.TrimSpace(contextText)
	if len(contextText) > c.contextMaxBytes {
		contextText = contextText[:c.contextMaxBytes] + truncationMarker
	}
	var b strings.Builder
	b.WriteString(preamble)
	if contextText != "" {
		b.WriteString("\n\nAccount data:\n")
		b.WriteString(contextText)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(queryText)
	return b.String()
}

// errRateLimited is internal: Ask converts it into either a retry or
// ErrCredentialsExhausted. It never escapes this package.
var errRateLimited = errors.New("aiquery: rate limited")

func (c *Client) complete(ctx context.Context, cred Credential, prompt string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		obs.ObserveAIRequest("error", time.Since(start))
		return "", fmt.Errorf("aiquery: provider call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		obs.ObserveAIRequest("rate_limited", time.Since(start))
		drain(resp.Body)
		return "", errRateLimited
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		obs.ObserveAIRequest("payload_too_large", time.Since(start))
		drain(resp.Body)
		return "", ErrPayloadTooLarge
	case resp.StatusCode >= 300:
		obs.ObserveAIRequest("error", time.Since(start))
		drain(resp.Body)
		return "", fmt.Errorf("aiquery: provider error: %s", resp.Status)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		obs.ObserveAIRequest("error", time.Since(start))
		return "", fmt.Errorf("aiquery: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		obs.ObserveAIRequest("error", time.Since(start))
		return "", errors.New("aiquery: no choices returned")
	}
	obs.ObserveAIRequest("ok", time.Since(start))
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 4096))
}
