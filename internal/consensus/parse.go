package consensus

import (
	"fmt"
	"strconv"
	"strings"
)

// Midpoint of the 1-10 relevance scale, used whenever a provider fails to
// supply a usable score.
const relevanceMidpoint = 5.0

// Response markers the providers are prompted to emit.
const (
	markerSummary   = "SUMMARY:"
	markerKeyPoints = "KEY_POINTS:"
	markerRelevance = "RELEVANCE:"
	markerAIRelated = "AI_RELATED:"
)

// Parsed is the structured form of one provider reply.
type Parsed struct {
	Summary      string
	KeyPoints    []string
	Relevance    float64
	HasRelevance bool
	AIRelated    bool
	HasVote      bool
}

// ParseError reports a reply carrying none of the expected markers.
// Callers apply the documented fail-open defaults at this boundary rather
// than deep inside the line matching.
type ParseError struct {
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no response markers found in %q", e.Snippet)
}

// ParseResponse reads a provider reply line by line against the fixed
// markers. A reply with no markers at all is a ParseError; individual
// missing fields are simply absent from the result.
func ParseResponse(raw string) (Parsed, error) {
	parsed := Parsed{}
	sawMarker := false
	section := ""

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, markerSummary):
			parsed.Summary = strings.TrimSpace(strings.TrimPrefix(line, markerSummary))
			section = "summary"
			sawMarker = true
		case strings.HasPrefix(line, markerKeyPoints):
			section = "key_points"
			sawMarker = true
		case strings.HasPrefix(line, markerRelevance):
			sawMarker = true
			section = ""
			text := strings.TrimSpace(strings.TrimPrefix(line, markerRelevance))
			if fields := strings.Fields(text); len(fields) > 0 {
				if score, err := strconv.ParseFloat(fields[0], 64); err == nil {
					parsed.Relevance = score
					parsed.HasRelevance = true
				}
			}
		case strings.HasPrefix(line, markerAIRelated):
			sawMarker = true
			section = ""
			text := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, markerAIRelated)))
			parsed.AIRelated = strings.HasPrefix(text, "yes")
			parsed.HasVote = true
		case strings.HasPrefix(line, "-") && section == "key_points":
			point := strings.TrimSpace(strings.TrimPrefix(line, "-"))
			if point != "" {
				parsed.KeyPoints = append(parsed.KeyPoints, point)
			}
		case section == "summary" && line != "":
			// Multi-line summaries continue until the next marker.
			parsed.Summary = strings.TrimSpace(parsed.Summary + " " + line)
		}
	}

	if !sawMarker {
		snippet := raw
		if len(snippet) > 80 {
			snippet = snippet[:80]
		}
		return Parsed{}, &ParseError{Snippet: snippet}
	}

	return parsed, nil
}

// failOpenDefaults is the documented default policy for a malformed reply:
// empty summary, scale midpoint, assumed AI-related.
func failOpenDefaults() Parsed {
	return Parsed{
		Relevance:    relevanceMidpoint,
		HasRelevance: true,
		AIRelated:    true,
		HasVote:      true,
	}
}
