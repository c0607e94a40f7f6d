package domain

import (
	"strings"
	"time"
)

// Intent is the fixed category of rewrite a caller can request.
type Intent string

const (
	IntentHumanize  Intent = "humanize"
	IntentSummarize Intent = "summarize"
	IntentExpand    Intent = "expand"
	IntentSimplify  Intent = "simplify"
	IntentGrammar   Intent = "grammar"
)

// Intents lists every valid intent, in declaration order.
func Intents() []Intent {
	return []Intent{IntentHumanize, IntentSummarize, IntentExpand, IntentSimplify, IntentGrammar}
}

func (i Intent) Valid() bool {
	switch i {
	case IntentHumanize, IntentSummarize, IntentExpand, IntentSimplify, IntentGrammar:
		return true
	}
	return false
}

// TargetLength is the three-valued output length knob.
type TargetLength string

const (
	LengthShort  TargetLength = "short"
	LengthMedium TargetLength = "medium"
	LengthLong   TargetLength = "long"
)

func (l TargetLength) Valid() bool {
	switch l {
	case LengthShort, LengthMedium, LengthLong:
		return true
	}
	return false
}

// RewriteRequest is the immutable per-call input to the pipeline.
type RewriteRequest struct {
	Text         string       `json:"text"`
	Intent       Intent       `json:"intent"`
	TargetTone   string       `json:"target_tone,omitempty"`
	TargetLength TargetLength `json:"target_length,omitempty"`
	StyleSamples []string     `json:"style_samples,omitempty"`
}

// Validate rejects requests the pipeline must never see.
func (r RewriteRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if !r.Intent.Valid() {
		return ErrUnknownIntent
	}
	if r.TargetLength != "" && !r.TargetLength.Valid() {
		return ErrUnknownLength
	}
	return nil
}

// TextDiagnostics holds the structural metrics computed from the source
// text. Each value is in [0,100], rounded to two decimal places.
type TextDiagnostics struct {
	PassiveVoiceRatio      float64 `json:"passive_voice_ratio"`
	SentenceLengthVariance float64 `json:"sentence_length_variance"`
	ComplexWordDensity     float64 `json:"complex_word_density"`
}

// ProviderKind distinguishes the two backend tiers.
type ProviderKind string

const (
	ProviderLowCost       ProviderKind = "low-cost"
	ProviderHighReasoning ProviderKind = "high-reasoning"
)

// ModelSelection describes the backend chosen for a request.
// Derived purely from intent; identical inputs yield identical selections.
type ModelSelection struct {
	Kind    ProviderKind `json:"kind"`
	ModelID string       `json:"model_id"`
}

// RewriteOutcome accumulates streamed output during a relay and becomes
// the immutable billing record once the stream closes cleanly.
type RewriteOutcome struct {
	buf       strings.Builder
	completed bool

	WordCount int
	ModelID   string
	Title     string
}

func NewRewriteOutcome(modelID string) *RewriteOutcome {
	return &RewriteOutcome{ModelID: modelID}
}

// Append adds a streamed chunk to the accumulator. No-op after Complete.
func (o *RewriteOutcome) Append(chunk string) {
	if o.completed {
		return
	}
	o.buf.WriteString(chunk)
}

// Complete seals the outcome: further appends are ignored and the word
// count is fixed.
func (o *RewriteOutcome) Complete(title string) {
	if o.completed {
		return
	}
	o.completed = true
	o.Title = title
	o.WordCount = len(strings.Fields(o.buf.String()))
}

func (o *RewriteOutcome) Completed() bool { return o.completed }

// Output returns the accumulated text, byte-identical to what was
// forwarded to the caller.
func (o *RewriteOutcome) Output() string { return o.buf.String() }

// Account is a billed caller of the rewrite API.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyHash   string    `json:"-"`
	Credits      int64     `json:"credits"`
	RateLimitRPM int       `json:"rate_limit_rpm"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UsageEntry is one row of the usage log, written by the billing
// finalizer after a clean stream.
type UsageEntry struct {
	AccountID   string    `json:"account_id"`
	RequestID   string    `json:"request_id"`
	ModelID     string    `json:"model_id"`
	WordCount   int       `json:"word_count"`
	Title       string    `json:"title"`
	Underfunded bool      `json:"underfunded"`
	CreatedAt   time.Time `json:"created_at"`
}
