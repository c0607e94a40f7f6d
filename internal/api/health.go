package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthChecker defines the interface for dependency health checks.
type HealthChecker interface {
	Check(ctx context.Context) error
	Name() string
}

// HealthStatus represents the result of a health check.
type HealthStatus struct {
	Status   string                 `json:"status"`
	Checks   map[string]CheckResult `json:"checks,omitempty"`
	Breakers map[string]string      `json:"breakers,omitempty"`
	Version  string                 `json:"version,omitempty"`
}

// CheckResult represents the result of a single dependency check.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RedisHealthChecker checks Redis connectivity.
type RedisHealthChecker struct {
	client *redis.Client
}

// NewRedisHealthChecker creates a health checker with an existing client.
func NewRedisHealthChecker(client *redis.Client) *RedisHealthChecker {
	return &RedisHealthChecker{client: client}
}

func (c *RedisHealthChecker) Name() string {
	return "redis"
}

func (c *RedisHealthChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PostgresHealthChecker checks PostgreSQL connectivity.
type PostgresHealthChecker struct {
	db *sql.DB
}

// NewPostgresHealthChecker creates a health checker for PostgreSQL.
func NewPostgresHealthChecker(db *sql.DB) *PostgresHealthChecker {
	return &PostgresHealthChecker{db: db}
}

func (c *PostgresHealthChecker) Name() string {
	return "postgres"
}

func (c *PostgresHealthChecker) Check(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ProviderHealthChecker wraps a model backend's own health probe.
type ProviderHealthChecker struct {
	name     string
	provider interface {
		HealthCheck(ctx context.Context) error
	}
}

// NewProviderHealthChecker creates a health checker for a model backend.
func NewProviderHealthChecker(name string, provider interface {
	HealthCheck(ctx context.Context) error
}) *ProviderHealthChecker {
	return &ProviderHealthChecker{name: name, provider: provider}
}

func (c *ProviderHealthChecker) Name() string {
	return "provider:" + c.name
}

func (c *ProviderHealthChecker) Check(ctx context.Context) error {
	return c.provider.HealthCheck(ctx)
}

// SetHealthCheckers registers dependency checks for the readiness probe.
func (h *Handler) SetHealthCheckers(checkers []HealthChecker, timeout time.Duration) {
	h.healthCheckers = checkers
	h.healthTimeout = timeout
}

// runHealthChecks executes all health checks concurrently.
func runHealthChecks(ctx context.Context, checkers []HealthChecker) map[string]CheckResult {
	results := make(map[string]CheckResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			duration := time.Since(start)

			result := CheckResult{
				Status:   "ok",
				Duration: duration.String(),
			}
			if err != nil {
				result.Status = "error"
				result.Error = err.Error()
			}

			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:   "ok",
		Breakers: h.router.BreakerStates(r.Context()),
		Version:  version,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthStatus{Status: "alive"})
}

func (h *Handler) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	timeout := h.healthTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	results := runHealthChecks(ctx, h.healthCheckers)

	allHealthy := true
	for _, result := range results {
		if result.Status != "ok" {
			allHealthy = false
			break
		}
	}

	status := HealthStatus{
		Status:  "ready",
		Checks:  results,
		Version: version,
	}

	httpStatus := http.StatusOK
	if !allHealthy {
		status.Status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(status)
}

const version = "0.1.0"
