package billing

import (
	"context"
	"log/slog"
	"sync"
)

// AlertLevel classifies a credit alert.
type AlertLevel string

const (
	AlertLevelLow         AlertLevel = "low_credit"
	AlertLevelExhausted   AlertLevel = "exhausted"
	AlertLevelUnderfunded AlertLevel = "underfunded_completion"
)

// Alert describes one credit event worth telling an operator about.
type Alert struct {
	AccountID string
	Level     AlertLevel
	Balance   int64
}

// AlertHandler receives raised alerts. Handlers must not block.
type AlertHandler func(ctx context.Context, alert Alert)

// CreditMonitor watches post-debit balances and raises threshold
// alerts. A level fires once per account until the account leaves that
// level again, mirroring how repeated identical alerts are suppressed.
type CreditMonitor struct {
	mu         sync.Mutex
	threshold  int64
	handlers   []AlertHandler
	lastAlerts map[string]AlertLevel
}

// NewCreditMonitor alerts when a balance drops below threshold words.
func NewCreditMonitor(threshold int64) *CreditMonitor {
	return &CreditMonitor{
		threshold:  threshold,
		lastAlerts: make(map[string]AlertLevel),
	}
}

func (m *CreditMonitor) OnAlert(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Observe records a post-debit balance. underfunded marks a completion
// whose cost exceeded the remaining balance.
func (m *CreditMonitor) Observe(ctx context.Context, accountID string, balance int64, underfunded bool) {
	var level AlertLevel
	switch {
	case underfunded:
		level = AlertLevelUnderfunded
	case balance == 0:
		level = AlertLevelExhausted
	case balance < m.threshold:
		level = AlertLevelLow
	default:
		m.mu.Lock()
		delete(m.lastAlerts, accountID)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.lastAlerts[accountID] == level {
		m.mu.Unlock()
		return
	}
	m.lastAlerts[accountID] = level
	handlers := make([]AlertHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	alert := Alert{AccountID: accountID, Level: level, Balance: balance}
	for _, handler := range handlers {
		handler(ctx, alert)
	}
}

// LogAlertHandler writes alerts to the structured log.
func LogAlertHandler(ctx context.Context, alert Alert) {
	slog.Warn("credit alert",
		"account_id", alert.AccountID,
		"level", alert.Level,
		"balance", alert.Balance,
	)
}
