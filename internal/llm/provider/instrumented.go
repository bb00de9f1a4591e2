package provider

import (
	"context"
	"time"

	"github.com/mindbridge-dev/mindbridge/pkg/observability"
)

// InstrumentedProvider wraps a Provider with Prometheus metrics:
// call counts by outcome, call duration, and token usage.
type InstrumentedProvider struct {
	provider Provider
}

// NewInstrumentedProvider wraps a provider with metrics recording.
func NewInstrumentedProvider(p Provider) *InstrumentedProvider {
	return &InstrumentedProvider{provider: p}
}

// Name returns the underlying provider name
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// CreateCompletion creates a completion and records call metrics
func (p *InstrumentedProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	response, err := p.provider.CreateCompletion(ctx, request)

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordBackendCall(p.provider.Name(), status, time.Since(start))

	if response != nil {
		observability.RecordBackendTokens(p.provider.Name(),
			response.Usage.PromptTokens, response.Usage.CompletionTokens)
	}

	return response, err
}
