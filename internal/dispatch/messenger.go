package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sparoodata/mainai-sub000/internal/obs"
)

// Messenger is the outbound delivery capability: send a message or a
// document to a chat recipient. The concrete channel protocol lives in
// the gateway service; this core only posts to it.
type Messenger interface {
	SendText(ctx context.Context, recipient, text string) error
	SendDocument(ctx context.Context, recipient string, data []byte, filename, mime string) error
}

// HTTPMessenger forwards messages to the configured gateway endpoint.
type HTTPMessenger struct {
	url   string
	token string
	hc    *http.Client
}

var _ Messenger = (*HTTPMessenger)(nil)

func NewHTTPMessenger(url, token string) *HTTPMessenger {
	return &HTTPMessenger{
		url:   strings.TrimRight(url, "/"),
		token: token,
		hc:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *HTTPMessenger) SendText(ctx context.Context, recipient, text string) error {
	return m.post(ctx, map[string]any{
		"recipient": recipient,
		"type":      "text",
		"text":      text,
	})
}

func (m *HTTPMessenger) SendDocument(ctx context.Context, recipient string, data []byte, filename, mime string) error {
	return m.post(ctx, map[string]any{
		"recipient": recipient,
		"type":      "document",
		"filename":  filename,
		"mime":      mime,
		"data":      base64.StdEncoding.EncodeToString(data),
	})
}

func (m *HTTPMessenger) post(ctx context.Context, payload map[string]any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}
	resp, err := m.hc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway error: %s", resp.Status)
	}
	return nil
}

// LogMessenger logs outbound messages instead of delivering them. Used in
// development when no gateway is configured.
type LogMessenger struct{}

var _ Messenger = LogMessenger{}

func (LogMessenger) SendText(ctx context.Context, recipient, text string) error {
	obs.LogRequest(map[string]any{
		"msg": "messenger_send_text", "recipient": recipient, "bytes": len(text),
	})
	return nil
}

func (LogMessenger) SendDocument(ctx context.Context, recipient string, data []byte, filename, mime string) error {
	obs.LogRequest(map[string]any{
		"msg": "messenger_send_document", "recipient": recipient,
		"filename": filename, "mime": mime, "bytes": len(data),
	})
	return nil
}
