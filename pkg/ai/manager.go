package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/pkg/circuitbreaker"
	"github.com/troikatech/voice-ivr/pkg/metrics"
)

// ErrNoProvider is returned when every provider is unconfigured or tripped.
var ErrNoProvider = errors.New("no AI providers available")

// Manager manages AI providers with fallback logic
type Manager struct {
	providers []Provider
	breakers  map[string]*circuitbreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewManager creates a new AI provider manager. Providers are tried in order.
func NewManager(providers []Provider, breakerCfg circuitbreaker.Config, logger *zap.Logger) *Manager {
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(name string, to circuitbreaker.State) {
			logger.Warn("Completion provider breaker changed state",
				zap.String("provider", name),
				zap.String("state", to.String()),
			)
			metrics.RecordBreakerTransition(context.Background(), name, to.String())
		}
	}

	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		breakers[p.Name()] = circuitbreaker.New(p.Name(), breakerCfg)
	}
	return &Manager{
		providers: providers,
		breakers:  breakers,
		logger:    logger,
	}
}

// GetAvailableProvider returns the first configured provider whose breaker is not open
func (m *Manager) GetAvailableProvider() Provider {
	for _, provider := range m.providers {
		if provider.IsAvailable() && m.breakers[provider.Name()].Allow() {
			return provider
		}
	}
	return nil
}

// ExecuteWithFallback runs method against each usable provider in turn and
// returns the first success.
func (m *Manager) ExecuteWithFallback(
	ctx context.Context,
	method func(context.Context, Provider) (string, error),
) (string, error) {
	lastErr := ErrNoProvider
	for _, provider := range m.providers {
		if !provider.IsAvailable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		start := time.Now()
		var result string
		err := m.breakers[provider.Name()].Execute(ctx, func(ctx context.Context) error {
			var err error
			result, err = method(ctx, provider)
			return err
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			m.logger.Debug("Skipping provider with open breaker", zap.String("provider", provider.Name()))
			lastErr = err
			continue
		}
		metrics.RecordServiceCall(ctx, "llm."+provider.Name(), err == nil, time.Since(start))
		if err == nil {
			return result, nil
		}

		lastErr = err
		m.logger.Warn("AI provider failed, trying next",
			zap.String("provider", provider.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}

	return "", fmt.Errorf("all AI providers failed: %w", lastErr)
}

// Complete returns a chat completion with fallback
func (m *Manager) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	return m.ExecuteWithFallback(ctx, func(ctx context.Context, p Provider) (string, error) {
		return p.Complete(ctx, req)
	})
}

const summarizePrompt = `You are a call analytics assistant for a government services helpline.
Summarise the conversation below in two or three plain sentences: what the caller
asked about, what guidance was given, and whether the caller was referred to an
official helpline. Do not add information that is not in the transcript.`

// SummarizeCall produces a short English summary of a finished call
func (m *Manager) SummarizeCall(ctx context.Context, req *SummarizeRequest) (*SummarizeResponse, error) {
	if len(req.Transcript) == 0 {
		return nil, fmt.Errorf("call %s has no transcript", req.CallSID)
	}

	var b strings.Builder
	for _, msg := range req.Transcript {
		if msg.Role == RoleSystem {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}

	var used string
	summary, err := m.ExecuteWithFallback(ctx, func(ctx context.Context, p Provider) (string, error) {
		used = p.Name()
		return p.Complete(ctx, &CompletionRequest{
			Messages: []Message{
				{Role: RoleSystem, Content: summarizePrompt},
				{Role: RoleUser, Content: b.String()},
			},
			MaxTokens:   200,
			Temperature: 0.3,
		})
	})
	if err != nil {
		return nil, err
	}
	return &SummarizeResponse{Summary: summary, Provider: used}, nil
}
