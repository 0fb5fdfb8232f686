package consensus

import (
	"errors"
	"testing"
)

func TestParseResponseFullForm(t *testing.T) {
	t.Parallel()

	raw := `SUMMARY: Researchers trained a small model that rivals larger ones.
It transfers to robotics tasks.
KEY_POINTS:
- distillation pipeline
- 10x cheaper training
- open weights
RELEVANCE: 8
AI_RELATED: yes`

	parsed, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}

	if parsed.Summary != "Researchers trained a small model that rivals larger ones. It transfers to robotics tasks." {
		t.Fatalf("unexpected summary: %q", parsed.Summary)
	}
	if len(parsed.KeyPoints) != 3 || parsed.KeyPoints[1] != "10x cheaper training" {
		t.Fatalf("unexpected key points: %v", parsed.KeyPoints)
	}
	if !parsed.HasRelevance || parsed.Relevance != 8 {
		t.Fatalf("unexpected relevance: %v (has=%v)", parsed.Relevance, parsed.HasRelevance)
	}
	if !parsed.HasVote || !parsed.AIRelated {
		t.Fatalf("expected a yes vote")
	}
}

func TestParseResponseShortForm(t *testing.T) {
	t.Parallel()

	parsed, err := ParseResponse("SUMMARY: A campus opens a new data center.\nAI_RELATED: no")
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}
	if parsed.AIRelated || !parsed.HasVote {
		t.Fatalf("expected explicit no vote")
	}
	if parsed.HasRelevance {
		t.Fatalf("short form must not carry a relevance score")
	}
}

func TestParseResponseBadRelevance(t *testing.T) {
	t.Parallel()

	parsed, err := ParseResponse("SUMMARY: ok\nRELEVANCE: very high\nAI_RELATED: yes")
	if err != nil {
		t.Fatalf("ParseResponse error: %v", err)
	}
	if parsed.HasRelevance {
		t.Fatalf("unparseable score must be absent, got %v", parsed.Relevance)
	}
}

func TestParseResponseNoMarkers(t *testing.T) {
	t.Parallel()

	_, err := ParseResponse("I'm sorry, I cannot analyze this article.")
	if err == nil {
		t.Fatalf("expected ParseError for unmarked reply")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestFailOpenDefaults(t *testing.T) {
	t.Parallel()

	defaults := failOpenDefaults()
	if defaults.Summary != "" {
		t.Fatalf("default summary must be empty")
	}
	if defaults.Relevance != relevanceMidpoint {
		t.Fatalf("default relevance must be the midpoint, got %v", defaults.Relevance)
	}
	if !defaults.AIRelated {
		t.Fatalf("defaults must assume AI-related")
	}
}
