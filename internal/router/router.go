// Package router maps rewrite intents to model backends.
// Routing is semantic: the intent category alone decides the backend,
// never the runtime content of the text. Mostly-mechanical rewrites
// (simplify, grammar) tolerate a cheaper model; rewrites needing
// semantic judgment get the high-reasoning tier.
package router

import (
	"context"
	"fmt"

	"github.com/prosegate/prosegate/internal/circuitbreaker"
	"github.com/prosegate/prosegate/internal/domain"
)

// Provider is a streaming model backend. Generate opens the upstream
// connection and emits output chunks in order; the error channel
// carries at most one terminal error. Both channels close when the
// stream ends.
type Provider interface {
	ID() string
	Generate(ctx context.Context, prompt string, modelID string) (<-chan string, <-chan error)
	HealthCheck(ctx context.Context) error
}

// Models per tier. Opaque identifiers passed through to the provider.
const (
	lowCostModel       = "gpt-4o-mini"
	highReasoningModel = "claude-3-5-sonnet-20241022"
)

// Select maps an intent to its backend. Total over the intent
// enumeration and deterministic; an unknown intent is the only error.
func Select(intent domain.Intent) (domain.ModelSelection, error) {
	switch intent {
	case domain.IntentSimplify, domain.IntentGrammar:
		return domain.ModelSelection{Kind: domain.ProviderLowCost, ModelID: lowCostModel}, nil
	case domain.IntentHumanize, domain.IntentSummarize, domain.IntentExpand:
		return domain.ModelSelection{Kind: domain.ProviderHighReasoning, ModelID: highReasoningModel}, nil
	default:
		return domain.ModelSelection{}, fmt.Errorf("select model: %w: %q", domain.ErrUnknownIntent, intent)
	}
}

// Router holds one provider per tier, each behind a circuit breaker.
type Router struct {
	providers map[domain.ProviderKind]Provider
	breakers  *circuitbreaker.Manager
}

func New(providers map[domain.ProviderKind]Provider, breakers *circuitbreaker.Manager) *Router {
	return &Router{
		providers: providers,
		breakers:  breakers,
	}
}

// Route resolves the intent to a selection and its provider. The
// provider's circuit breaker must admit the request.
func (r *Router) Route(ctx context.Context, intent domain.Intent) (domain.ModelSelection, Provider, error) {
	selection, err := Select(intent)
	if err != nil {
		return domain.ModelSelection{}, nil, err
	}

	provider, ok := r.providers[selection.Kind]
	if !ok {
		return domain.ModelSelection{}, nil, fmt.Errorf("route %s: %w", selection.Kind, domain.ErrProviderNotFound)
	}

	if err := r.breakers.Get(provider.ID()).Allow(ctx); err != nil {
		return domain.ModelSelection{}, nil, fmt.Errorf("route %s: %w", provider.ID(), err)
	}

	return selection, provider, nil
}

// RecordSuccess reports a clean stream end to the provider's breaker.
func (r *Router) RecordSuccess(ctx context.Context, providerID string) {
	r.breakers.Get(providerID).RecordSuccess(ctx)
}

// RecordFailure reports a provider failure to its breaker.
func (r *Router) RecordFailure(ctx context.Context, providerID string) {
	r.breakers.Get(providerID).RecordFailure(ctx)
}

// Providers returns the registered providers keyed by tier.
func (r *Router) Providers() map[domain.ProviderKind]Provider {
	return r.providers
}

// BreakerStates reports the current state of every provider breaker.
func (r *Router) BreakerStates(ctx context.Context) map[string]string {
	states := make(map[string]string, len(r.providers))
	for _, p := range r.providers {
		states[p.ID()] = r.breakers.Get(p.ID()).State(ctx).String()
	}
	return states
}
