// Package prompt synthesizes the model prompt for a rewrite request.
// Section order encodes priority for the model and must stay stable:
// preamble, task, diagnostic directives, style exemplars, tone and
// length, source text, closing instruction.
package prompt

import (
	"fmt"
	"strings"

	"github.com/prosegate/prosegate/internal/domain"
)

// Directive thresholds. Three discrete tiers per dimension keep the
// emitted prompt set small and reproducible; continuous tuning would
// destabilize downstream prompt caching and evaluation.
const (
	passiveDrastic  = 20
	passiveModerate = 10

	varianceCritical = 20
	varianceModerate = 40

	densityHigh = 30
	densityLow  = 5
)

const preamble = `You are a precise text rewriting engine. Rewrite the text you are given literally and faithfully. Do not embellish, do not add facts, claims, or opinions that are not present in the source.`

const closing = `Output only the rewritten text. Do not include commentary, preamble, or explanations of your changes.`

var taskLines = map[domain.Intent]string{
	domain.IntentHumanize:  "Rewrite the text so it reads as natural, conversational human writing.",
	domain.IntentSummarize: "Condense the text into a faithful summary that preserves every key point.",
	domain.IntentExpand:    "Elaborate on the text, developing each point with supporting detail drawn only from what is already stated or directly implied.",
	domain.IntentSimplify:  "Rewrite the text in plain language a general reader can follow without losing meaning.",
	domain.IntentGrammar:   "Correct all grammar, spelling, and punctuation errors while changing nothing else.",
}

var lengthLines = map[domain.TargetLength]string{
	domain.LengthShort:  "Compress the output: favor brevity, cut redundancy, keep it noticeably shorter than the source.",
	domain.LengthMedium: "Keep the output at roughly the same length as the source.",
	domain.LengthLong:   "Elaborate the output: develop phrasing fully, keep it noticeably longer than the source.",
}

// Compose builds the full model prompt. It fails only on an intent
// outside the fixed enumeration.
func Compose(req domain.RewriteRequest, diag domain.TextDiagnostics) (string, error) {
	task, ok := taskLines[req.Intent]
	if !ok {
		return "", fmt.Errorf("compose prompt: %w: %q", domain.ErrUnknownIntent, req.Intent)
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\n\n")

	b.WriteString("Editing instructions:\n")
	for _, d := range directives(diag) {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(req.StyleSamples) > 0 {
		b.WriteString("Match the voice of these style samples:\n")
		for i, sample := range req.StyleSamples {
			fmt.Fprintf(&b, "Sample %d: %q\n", i+1, sample)
		}
		b.WriteString("\n")
	}

	if req.TargetTone != "" {
		fmt.Fprintf(&b, "Tone: write in a %s tone.\n", req.TargetTone)
	}
	length := req.TargetLength
	if length == "" {
		length = domain.LengthMedium
	}
	b.WriteString(lengthLines[length])
	b.WriteString("\n\n")

	b.WriteString("=== SOURCE TEXT ===\n")
	b.WriteString(req.Text)
	b.WriteString("\n=== END SOURCE TEXT ===\n\n")

	b.WriteString(closing)

	return b.String(), nil
}

// directives translates diagnostics into discrete editing instructions.
// At most one directive fires per dimension; if none fire, a single
// neutral line keeps the section non-empty.
func directives(diag domain.TextDiagnostics) []string {
	var out []string

	switch {
	case diag.PassiveVoiceRatio > passiveDrastic:
		out = append(out, "Drastically reduce the use of passive voice; rewrite passive constructions as active ones.")
	case diag.PassiveVoiceRatio >= passiveModerate:
		out = append(out, "Moderately reduce the use of passive voice where it reads flat.")
	}

	switch {
	case diag.SentenceLengthVariance < varianceCritical:
		out = append(out, "Critically increase sentence length variation; the current rhythm is mechanical.")
	case diag.SentenceLengthVariance <= varianceModerate:
		out = append(out, "Moderately increase sentence length variation.")
	}

	switch {
	case diag.ComplexWordDensity > densityHigh:
		out = append(out, "Reduce the density of complex words; prefer plain alternatives.")
	case diag.ComplexWordDensity < densityLow:
		out = append(out, "You may add a few precise, specific terms where they sharpen meaning.")
	}

	if len(out) == 0 {
		out = append(out, "Maintain the current balance of voice, rhythm, and vocabulary.")
	}

	return out
}

// Title derives a short label for the usage log from intent and tone.
func Title(intent domain.Intent, tone string) string {
	title := strings.ToUpper(string(intent)[:1]) + string(intent)[1:] + " rewrite"
	if tone != "" {
		title += " (" + tone + ")"
	}
	return title
}
