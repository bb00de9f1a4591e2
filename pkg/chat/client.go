// Package chat implements the client side of the relay protocol: it owns a
// session store's conversation buffer, submits messages to the relay route,
// and records replies. This is the re-architected widget logic: an explicit
// object instead of page-global state.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mindbridge-dev/mindbridge/pkg/session"
)

var (
	// ErrEmptyMessage is returned for messages that are empty after trimming.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrSendInFlight is returned when a send is attempted while a previous
	// relay call is still outstanding. Sends are serialized: interleaved
	// buffer appends from concurrent calls are never allowed.
	ErrSendInFlight = errors.New("a relay call is already in flight")
)

// defaultTimeout bounds a relay call when no timeout is configured.
const defaultTimeout = 30 * time.Second

// Config configures a chat client.
type Config struct {
	// BaseURL is the relay server address (e.g. "http://localhost:8080").
	BaseURL string
	// Timeout bounds each relay call (default 30s).
	Timeout time.Duration
}

// Client submits messages to the relay service on behalf of a session store.
// Client serializes sends; it is safe for concurrent use, but only one relay
// call may be outstanding at a time.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	inFlight   atomic.Bool
}

// NewClient creates a chat client over the given session store.
func NewClient(cfg Config, store *session.Store) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
	}
}

// Wire shapes for the chat route. History entries use the backend's nested
// "parts" wrapper, which differs from the flat Turn shape held in the store.
type chatRequest struct {
	Message string        `json:"message"`
	History []wireContent `json:"history,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text string `json:"text"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

// Send submits a message with the buffered history as context and returns
// the reply. The user turn is appended to the buffer before the call and the
// model turn after it; on failure the buffer keeps the user turn so the same
// message can be retried. There is no automatic retry.
func (c *Client) Send(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return "", ErrSendInFlight
	}
	defer c.inFlight.Store(false)

	history := historyToWire(c.store.Turns())
	c.store.AppendTurn(session.RoleUser, message)

	reply, err := c.post(ctx, chatRequest{Message: message, History: history})
	if err != nil {
		return "", err
	}

	c.store.AppendTurn(session.RoleModel, reply)
	return reply, nil
}

func (c *Client) post(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("relay call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if decoded.Error != "" {
			return "", fmt.Errorf("relay error: %s", decoded.Error)
		}
		return "", fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	return decoded.Reply, nil
}

// historyToWire wraps flat turns in the backend's parts shape.
func historyToWire(turns []session.Turn) []wireContent {
	if len(turns) == 0 {
		return nil
	}

	history := make([]wireContent, 0, len(turns))
	for _, t := range turns {
		history = append(history, wireContent{
			Role:  t.Role,
			Parts: []wirePart{{Text: t.Content}},
		})
	}
	return history
}
