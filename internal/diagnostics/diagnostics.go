// Package diagnostics computes structural metrics from raw text.
// The metrics steer the directives emitted by the prompt composer.
// Analysis is pure CPU work with no I/O and no error paths; degenerate
// input yields all-zero diagnostics rather than blocking the pipeline.
package diagnostics

import (
	"math"
	"regexp"
	"strings"

	"github.com/prosegate/prosegate/internal/domain"
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)

	// Auxiliary verb followed by a past participle, the usual shape of
	// an English passive construction ("was written", "has been sent").
	passivePattern = regexp.MustCompile(`(?i)\b(am|is|are|was|were|be|been|being)\s+(\w+ed|\w+en|born|brought|bought|built|caught|chosen|done|drawn|eaten|found|given|gone|held|kept|known|laid|led|left|lost|made|meant|met|paid|put|read|said|seen|sent|set|shown|sold|sung|spoken|taken|taught|thought|told|understood|worn|written)\b`)

	suffixes = []string{"es", "ed", "ing", "ly", "ment", "ness", "tion", "sion"}

	vowelRun = regexp.MustCompile(`[aeiouy]+`)
)

// Analyze computes the three diagnostics for text. Every metric lands
// in [0,100] rounded to two decimal places; empty or whitespace-only
// text yields the zero value.
func Analyze(text string) domain.TextDiagnostics {
	sentences := splitSentences(text)
	tokens := strings.Fields(text)

	if len(sentences) == 0 || len(tokens) == 0 {
		return domain.TextDiagnostics{}
	}

	return domain.TextDiagnostics{
		PassiveVoiceRatio:      passiveRatio(text, len(sentences)),
		SentenceLengthVariance: lengthVariance(sentences),
		ComplexWordDensity:     complexDensity(tokens),
	}
}

func splitSentences(text string) []string {
	var sentences []string
	for _, frag := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(frag) != "" {
			sentences = append(sentences, frag)
		}
	}
	return sentences
}

// passiveRatio counts passive constructions per sentence, capped at 100.
func passiveRatio(text string, sentenceCount int) float64 {
	matches := len(passivePattern.FindAllString(text, -1))
	ratio := float64(matches) / float64(sentenceCount) * 100
	return round2(math.Min(ratio, 100))
}

// lengthVariance is the population standard deviation of per-sentence
// token counts, normalized by the mean. Uniform sentence length reads
// as mechanical; higher normalized variance signals natural rhythm.
func lengthVariance(sentences []string) float64 {
	counts := make([]float64, len(sentences))
	var sum float64
	for i, s := range sentences {
		counts[i] = float64(len(strings.Fields(s)))
		sum += counts[i]
	}

	mean := sum / float64(len(counts))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, c := range counts {
		sq += (c - mean) * (c - mean)
	}
	stddev := math.Sqrt(sq / float64(len(counts)))

	return round2(math.Min(stddev/mean*100, 100))
}

// complexDensity is the share of tokens with an estimated syllable
// count of three or more.
func complexDensity(tokens []string) float64 {
	complexCount := 0
	for _, tok := range tokens {
		if estimateSyllables(tok) >= 3 {
			complexCount++
		}
	}
	density := float64(complexCount) / float64(len(tokens)) * 100
	return round2(math.Min(density, 100))
}

// estimateSyllables approximates syllables by counting contiguous vowel
// groups after stripping common suffixes. Minimum of one.
func estimateSyllables(word string) int {
	w := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z')
	}))
	if w == "" {
		return 0
	}

	for _, suffix := range suffixes {
		if strings.HasSuffix(w, suffix) && len(w) > len(suffix)+2 {
			w = strings.TrimSuffix(w, suffix)
			break
		}
	}

	runs := len(vowelRun.FindAllString(w, -1))
	if runs < 1 {
		return 1
	}
	return runs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
