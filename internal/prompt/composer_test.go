package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/prosegate/prosegate/internal/domain"
)

func baseRequest() domain.RewriteRequest {
	return domain.RewriteRequest{
		Text:         "The report covers the third quarter.",
		Intent:       domain.IntentHumanize,
		TargetLength: domain.LengthMedium,
	}
}

func TestCompose_UnknownIntent(t *testing.T) {
	req := baseRequest()
	req.Intent = "translate"

	_, err := Compose(req, domain.TextDiagnostics{})
	if !errors.Is(err, domain.ErrUnknownIntent) {
		t.Fatalf("Compose() error = %v, want ErrUnknownIntent", err)
	}
}

func TestCompose_SectionOrder(t *testing.T) {
	req := baseRequest()
	req.TargetTone = "formal"
	req.StyleSamples = []string{"We ship on Fridays."}

	out, err := Compose(req, domain.TextDiagnostics{SentenceLengthVariance: 50, ComplexWordDensity: 15, PassiveVoiceRatio: 5})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	markers := []string{
		"precise text rewriting engine",
		"Task:",
		"Editing instructions:",
		"style samples",
		"Tone:",
		"=== SOURCE TEXT ===",
		"Output only the rewritten text",
	}

	last := -1
	for _, m := range markers {
		idx := strings.Index(out, m)
		if idx == -1 {
			t.Fatalf("prompt missing section marker %q", m)
		}
		if idx < last {
			t.Errorf("section %q out of order", m)
		}
		last = idx
	}
}

func TestCompose_TaskLinePerIntent(t *testing.T) {
	wantFragments := map[domain.Intent]string{
		domain.IntentHumanize:  "natural, conversational",
		domain.IntentSummarize: "summary",
		domain.IntentExpand:    "Elaborate",
		domain.IntentSimplify:  "plain language",
		domain.IntentGrammar:   "grammar, spelling, and punctuation",
	}

	for intent, fragment := range wantFragments {
		req := baseRequest()
		req.Intent = intent

		out, err := Compose(req, domain.TextDiagnostics{})
		if err != nil {
			t.Fatalf("Compose(%s) error = %v", intent, err)
		}
		if !strings.Contains(out, fragment) {
			t.Errorf("Compose(%s) missing task fragment %q", intent, fragment)
		}
	}
}

func TestCompose_PassiveDirectiveTiers(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{100, "Drastically reduce the use of passive voice"},
		{25, "Drastically reduce the use of passive voice"},
		{15, "Moderately reduce the use of passive voice"},
		{5, ""},
	}

	for _, tt := range tests {
		out, err := Compose(baseRequest(), domain.TextDiagnostics{
			PassiveVoiceRatio:      tt.ratio,
			SentenceLengthVariance: 50,
			ComplexWordDensity:     15,
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}

		if tt.want == "" {
			if strings.Contains(out, "passive voice") {
				t.Errorf("ratio %v: unexpected passive directive", tt.ratio)
			}
			continue
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("ratio %v: missing directive %q", tt.ratio, tt.want)
		}
	}
}

func TestCompose_VarianceDirectiveTiers(t *testing.T) {
	tests := []struct {
		variance float64
		want     string
	}{
		{10, "Critically increase sentence length variation"},
		{30, "Moderately increase sentence length variation"},
		{60, ""},
	}

	for _, tt := range tests {
		out, err := Compose(baseRequest(), domain.TextDiagnostics{
			SentenceLengthVariance: tt.variance,
			ComplexWordDensity:     15,
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}

		if tt.want == "" {
			if strings.Contains(out, "sentence length variation") {
				t.Errorf("variance %v: unexpected variance directive", tt.variance)
			}
			continue
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("variance %v: missing directive %q", tt.variance, tt.want)
		}
	}
}

func TestCompose_DensityDirectiveTiers(t *testing.T) {
	tests := []struct {
		density float64
		want    string
	}{
		{40, "Reduce the density of complex words"},
		{2, "may add a few precise, specific terms"},
		{15, ""},
	}

	for _, tt := range tests {
		out, err := Compose(baseRequest(), domain.TextDiagnostics{
			SentenceLengthVariance: 50,
			ComplexWordDensity:     tt.density,
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}

		if tt.want == "" {
			if strings.Contains(out, "complex words") || strings.Contains(out, "precise, specific terms") {
				t.Errorf("density %v: unexpected density directive", tt.density)
			}
			continue
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("density %v: missing directive %q", tt.density, tt.want)
		}
	}
}

func TestCompose_NeutralLineWhenNoDirectiveFires(t *testing.T) {
	out, err := Compose(baseRequest(), domain.TextDiagnostics{
		PassiveVoiceRatio:      5,
		SentenceLengthVariance: 50,
		ComplexWordDensity:     15,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if !strings.Contains(out, "Maintain the current balance") {
		t.Error("prompt missing neutral directive line")
	}
}

func TestCompose_StyleSamplesVerbatim(t *testing.T) {
	req := baseRequest()
	req.StyleSamples = []string{
		"We keep our sentences tight.",
		"Nobody reads the second paragraph, so the first one has to land.",
	}

	out, err := Compose(req, domain.TextDiagnostics{})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	for i, sample := range req.StyleSamples {
		if !strings.Contains(out, sample) {
			t.Errorf("sample %d not present verbatim", i+1)
		}
	}
	if !strings.Contains(out, "Sample 1:") || !strings.Contains(out, "Sample 2:") {
		t.Error("samples not labeled by ordinal position")
	}
}

func TestCompose_NoStyleSectionWhenEmpty(t *testing.T) {
	out, err := Compose(baseRequest(), domain.TextDiagnostics{})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if strings.Contains(out, "style samples") {
		t.Error("style section should be omitted when no samples are given")
	}
}

func TestCompose_SourceTextVerbatim(t *testing.T) {
	req := baseRequest()
	req.Text = "Exact text, punctuation & all — must appear untouched."

	out, err := Compose(req, domain.TextDiagnostics{})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !strings.Contains(out, req.Text) {
		t.Error("source text not embedded verbatim")
	}
}

func TestTitle(t *testing.T) {
	if got := Title(domain.IntentSummarize, ""); got != "Summarize rewrite" {
		t.Errorf("Title() = %q", got)
	}
	if got := Title(domain.IntentHumanize, "casual"); got != "Humanize rewrite (casual)" {
		t.Errorf("Title() = %q", got)
	}
}
