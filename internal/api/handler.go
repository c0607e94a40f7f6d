package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prosegate/prosegate/internal/billing"
	"github.com/prosegate/prosegate/internal/diagnostics"
	"github.com/prosegate/prosegate/internal/domain"
	"github.com/prosegate/prosegate/internal/metrics"
	"github.com/prosegate/prosegate/internal/prompt"
	"github.com/prosegate/prosegate/internal/ratelimit"
	"github.com/prosegate/prosegate/internal/relay"
	"github.com/prosegate/prosegate/internal/repository"
	"github.com/prosegate/prosegate/internal/router"
	"github.com/prosegate/prosegate/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

type HandlerConfig struct {
	Accounts    repository.AccountRepository
	Ledger      repository.Ledger
	RateLimiter ratelimit.RateLimiter
	Router      *router.Router
	Finalizer   *billing.Finalizer
}

type Handler struct {
	accounts    repository.AccountRepository
	ledger      repository.Ledger
	rateLimiter ratelimit.RateLimiter
	router      *router.Router
	finalizer   *billing.Finalizer
	mux         *http.ServeMux

	healthCheckers []HealthChecker
	healthTimeout  time.Duration
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		accounts:    cfg.Accounts,
		ledger:      cfg.Ledger,
		rateLimiter: cfg.RateLimiter,
		router:      cfg.Router,
		finalizer:   cfg.Finalizer,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/rewrite", h.handleRewrite)
	h.mux.HandleFunc("GET /v1/usage", h.handleUsage)
	h.mux.HandleFunc("GET /v1/credits", h.handleCredits)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// authenticate resolves the bearer API key to an account.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, requestID string) *domain.Account {
	apiKey := extractAPIKey(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return nil
	}

	account, err := h.accounts.GetByAPIKey(r.Context(), apiKey)
	if err != nil {
		slog.Warn("invalid API key", "error", err, "request_id", requestID)
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return nil
	}
	return account
}

func (h *Handler) handleRewrite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx, span := telemetry.StartSpan(ctx, "rewrite")
	defer span.End()

	account := h.authenticate(w, r, requestID)
	if account == nil {
		return
	}

	allowed, remaining, resetAt, err := h.rateLimiter.Allow(ctx, account.ID, account.RateLimitRPM)
	if err != nil {
		slog.Error("rate limiter error", "error", err, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(account.RateLimitRPM))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

	if !allowed {
		metrics.RecordRateLimitHit(account.ID)
		slog.Warn("rate limit exceeded", "account_id", account.ID, "request_id", requestID)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req domain.RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Pre-flight credit check. The authoritative check happens at
	// billing time; this only blocks callers that are already empty.
	balance, err := h.ledger.Balance(ctx, account.ID)
	if err != nil {
		slog.Error("balance check failed", "error", err, "account_id", account.ID, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if balance <= 0 {
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return
	}

	diag := diagnostics.Analyze(req.Text)
	modelPrompt, err := prompt.Compose(req, diag)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	selection, provider, err := h.router.Route(ctx, req.Intent)
	if err != nil {
		slog.Error("routing failed", "error", err, "intent", req.Intent, "request_id", requestID)
		writeError(w, http.StatusInternalServerError, "no backend available")
		return
	}

	telemetry.AddRewriteAttributes(span, account.ID, string(req.Intent), provider.ID(), selection.ModelID, requestID)
	telemetry.AddDiagnosticsAttributes(span, diag)

	h.streamRewrite(w, r, streamParams{
		account:   account,
		req:       req,
		selection: selection,
		provider:  provider,
		prompt:    modelPrompt,
		requestID: requestID,
		span:      span,
		start:     start,
	})
}

type streamParams struct {
	account   *domain.Account
	req       domain.RewriteRequest
	selection domain.ModelSelection
	provider  router.Provider
	prompt    string
	requestID string
	span      trace.Span
	start     time.Time
}

func (h *Handler) streamRewrite(w http.ResponseWriter, r *http.Request, p streamParams) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Request-ID", p.requestID)
	w.Header().Set("X-Model", p.selection.ModelID)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	chunks, errs := p.provider.Generate(ctx, p.prompt, p.selection.ModelID)

	title := prompt.Title(p.req.Intent, p.req.TargetTone)
	outcome, err := relay.Run(ctx, w, p.selection.ModelID, title, chunks, errs)

	latency := time.Since(p.start)

	switch {
	case err == nil:
		h.router.RecordSuccess(ctx, p.provider.ID())
		metrics.RecordRewrite(p.account.ID, string(p.req.Intent), p.provider.ID(), "success", latency.Seconds())
		metrics.RecordStreamedWords(p.account.ID, p.selection.ModelID, outcome.WordCount)
		telemetry.AddOutcomeAttributes(p.span, outcome.WordCount)

		// Billing runs detached; the caller has its response already
		// and must never wait on, or hear about, the ledger.
		h.finalizer.FinalizeDetached(p.account.ID, p.requestID, outcome)

		slog.Info("rewrite completed",
			"request_id", p.requestID,
			"account_id", p.account.ID,
			"intent", p.req.Intent,
			"provider", p.provider.ID(),
			"model_id", p.selection.ModelID,
			"word_count", outcome.WordCount,
			"latency_ms", latency.Milliseconds(),
		)

	case errors.Is(err, domain.ErrProviderError):
		// Nothing reached the caller yet; surface the failure.
		h.router.RecordFailure(ctx, p.provider.ID())
		metrics.RecordRewrite(p.account.ID, string(p.req.Intent), p.provider.ID(), "provider_error", latency.Seconds())
		metrics.RecordProviderError(p.provider.ID(), "connect")
		slog.Error("provider failed before first byte",
			"error", err,
			"provider", p.provider.ID(),
			"request_id", p.requestID,
		)
		writeError(w, http.StatusInternalServerError, "upstream provider failure")

	default:
		// Partial output was already delivered, or the caller left.
		// The stream just ends; no billing for an unclean stop.
		h.router.RecordFailure(ctx, p.provider.ID())
		metrics.RecordRewrite(p.account.ID, string(p.req.Intent), p.provider.ID(), "interrupted", latency.Seconds())
		slog.Warn("stream interrupted, billing skipped",
			"error", err,
			"provider", p.provider.ID(),
			"request_id", p.requestID,
		)
	}
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := uuid.New().String()
	account := h.authenticate(w, r, requestID)
	if account == nil {
		return
	}

	since := time.Now().AddDate(0, -1, 0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}

	entries, err := h.ledger.UsageSince(ctx, account.ID, since)
	if err != nil {
		slog.Error("usage query failed", "error", err, "account_id", account.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"usage": entries,
		"count": len(entries),
	})
}

func (h *Handler) handleCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := uuid.New().String()
	account := h.authenticate(w, r, requestID)
	if account == nil {
		return
	}

	balance, err := h.ledger.Balance(ctx, account.ID)
	if err != nil {
		slog.Error("balance query failed", "error", err, "account_id", account.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"account_id": account.ID,
		"credits":    balance,
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
