package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Manager manages grounding providers with fallback logic
type Manager struct {
	providers []Provider
	logger    *zap.Logger
}

// NewManager creates a new grounding provider manager
func NewManager(providers []Provider, logger *zap.Logger) *Manager {
	return &Manager{
		providers: providers,
		logger:    logger,
	}
}

// GetAvailableProvider returns the first available provider
func (m *Manager) GetAvailableProvider() Provider {
	for _, provider := range m.providers {
		if provider.IsAvailable() {
			return provider
		}
	}
	return nil
}

// executeWithFallback runs a method across providers until one succeeds.
func (m *Manager) executeWithFallback(
	ctx context.Context,
	method func(Provider, context.Context) (string, error),
) (string, error) {
	if len(m.providers) == 0 {
		return "", fmt.Errorf("no grounding providers available")
	}

	var lastErr error
	for _, provider := range m.providers {
		if !provider.IsAvailable() {
			continue
		}

		result, err := method(provider, ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err
		m.logger.Warn("grounding provider failed, trying next",
			zap.String("provider", provider.Name()),
			zap.Error(err),
		)
	}

	return "", fmt.Errorf("all grounding providers failed. Last error: %w", lastErr)
}

// GenerateQuery translates a question to SQL with provider fallback.
func (m *Manager) GenerateQuery(ctx context.Context, req *QueryRequest) (string, error) {
	return m.executeWithFallback(ctx, func(provider Provider, ctx context.Context) (string, error) {
		return provider.GenerateQuery(ctx, req)
	})
}

// SummarizeRows renders result rows to a spoken answer with provider fallback.
func (m *Manager) SummarizeRows(ctx context.Context, req *SummarizeRowsRequest) (string, error) {
	return m.executeWithFallback(ctx, func(provider Provider, ctx context.Context) (string, error) {
		return provider.SummarizeRows(ctx, req)
	})
}
