package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// GuardedProvider implements [stt.Provider] by forwarding to a single backend
// through a [CircuitBreaker]. While the breaker is open, Transcribe fails fast
// with an error wrapping [ErrCircuitOpen].
type GuardedProvider struct {
	provider stt.Provider
	breaker  *CircuitBreaker
}

// Compile-time interface assertion.
var _ stt.Provider = (*GuardedProvider)(nil)

// NewGuardedProvider wraps provider with a breaker built from cfg. Unless cfg
// sets IsFailure, neither [stt.ErrUnsupportedTask] nor [context.Canceled]
// counts as a failure since they say nothing about the backend's health. A
// deadline that expires while the backend works still counts.
func NewGuardedProvider(provider stt.Provider, cfg CircuitBreakerConfig) *GuardedProvider {
	if cfg.IsFailure == nil {
		cfg.IsFailure = isBackendFailure
	}
	return &GuardedProvider{provider: provider, breaker: NewCircuitBreaker(cfg)}
}

func isBackendFailure(err error) bool {
	return err != nil && !errors.Is(err, stt.ErrUnsupportedTask) && !errors.Is(err, context.Canceled)
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedProvider) Breaker() *CircuitBreaker { return g.breaker }

// Transcribe forwards req when the breaker allows it.
func (g *GuardedProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	var tr stt.Transcript
	err := g.breaker.Execute(func() error {
		var err error
		tr, err = g.provider.Transcribe(ctx, req)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return stt.Transcript{}, fmt.Errorf("resilience: stt provider %q: %w", g.breaker.Name(), err)
	}
	return tr, err
}
