// Package relay implements the stateless forwarding service between chat
// clients and the generative backend. It validates incoming messages, builds
// the backend conversation from the caller-supplied history, and returns the
// generated reply verbatim. No turn history is retained between calls.
package relay

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/mindbridge-dev/mindbridge/internal/llm/provider"
	"github.com/mindbridge-dev/mindbridge/pkg/session"
)

// defaultPolicy is the fixed behavioral policy injected as the backend's
// system instruction. It is configuration data, immutable for the process
// lifetime, and never user-configurable per request.
//
//go:embed policy.txt
var defaultPolicy string

var (
	// ErrEmptyMessage is returned when the message is empty after trimming.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrNotConfigured is returned when no backend credential was available
	// at startup. Requests fail fast without contacting the backend.
	ErrNotConfigured = errors.New("relay backend is not configured")
)

// ServiceConfig configures the relay service.
type ServiceConfig struct {
	// Model is the backend model name (provider default if empty).
	Model string
	// MaxTokens caps the reply length (0 = provider default).
	MaxTokens int
	// Policy overrides the embedded policy document (rarely needed).
	Policy string
}

// Service forwards messages to the generative backend.
// Service is stateless and safe for concurrent use.
type Service struct {
	provider  provider.Provider
	policy    string
	model     string
	maxTokens int
}

// NewService creates a relay service over the given provider.
// A nil provider produces a service whose calls fail fast with
// ErrNotConfigured; the process stays up so the failure is observable.
func NewService(p provider.Provider, cfg ServiceConfig) *Service {
	policy := cfg.Policy
	if policy == "" {
		policy = defaultPolicy
	}

	return &Service{
		provider:  p,
		policy:    policy,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Configured reports whether a backend provider is available.
func (s *Service) Configured() bool {
	return s.provider != nil
}

// Relay forwards message with the caller-supplied prior history and returns
// the generated reply unmodified. The history must be in chronological
// order; an empty history starts a fresh conversation. Trust in the safety
// policy is delegated entirely to the backend's adherence to the system
// instruction; no post-filtering is applied.
func (s *Service) Relay(ctx context.Context, message string, history []session.Turn) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	if s.provider == nil {
		return "", ErrNotConfigured
	}

	messages := make([]provider.Message, 0, len(history)+2)
	messages = append(messages, provider.Message{Role: "system", Content: s.policy})
	for _, turn := range history {
		messages = append(messages, provider.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, provider.Message{Role: session.RoleUser, Content: message})

	resp, err := s.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Messages:  messages,
		Model:     s.model,
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("backend call failed: %w", err)
	}

	return resp.Content, nil
}
