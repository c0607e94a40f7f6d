package domain

import "errors"

var (
	ErrEmptyText          = errors.New("text must not be empty")
	ErrUnknownIntent      = errors.New("unknown intent")
	ErrUnknownLength      = errors.New("unknown target length")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrProviderNotFound   = errors.New("provider not found")
	ErrProviderError      = errors.New("provider error")
	ErrStreamInterrupted  = errors.New("stream interrupted")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)
