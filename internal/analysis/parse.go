package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"tapline/internal/domain"
)

var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// decodeObject accepts a bare JSON object, or the first object embedded in
// surrounding prose or code fences.
func decodeObject(text string, v any) error {
	text = strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	if i := strings.IndexByte(text, '{'); i >= 0 {
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(v); err == nil {
			return nil
		}
	}
	if m := objectPattern.FindString(text); m != "" {
		if err := json.Unmarshal([]byte(m), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: no JSON object in model output", ErrUnparseable)
}

// ParseAnalysis decodes and validates an intake analysis.
func ParseAnalysis(text string) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := decodeObject(text, &a); err != nil {
		return nil, err
	}
	if a.LevelAnalysis.RecommendedLevel <= 0 {
		return nil, fmt.Errorf("%w: level_analysis.recommended_level missing", ErrUnparseable)
	}
	if strings.TrimSpace(a.TAPBrief.Summary) == "" {
		return nil, fmt.Errorf("%w: tap_brief.summary missing", ErrUnparseable)
	}
	tensions, err := normalizeTensions(a.Tensions)
	if err != nil {
		return nil, err
	}
	a.Tensions = tensions
	return &a, nil
}

// ParseSynthesis decodes and validates a stakeholder synthesis.
func ParseSynthesis(text string) (*domain.Synthesis, error) {
	var s domain.Synthesis
	if err := decodeObject(text, &s); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.SlackSummary) == "" {
		return nil, fmt.Errorf("%w: slack_summary missing", ErrUnparseable)
	}
	if strings.TrimSpace(s.TapPrivateBrief) == "" {
		return nil, fmt.Errorf("%w: tap_private_brief missing", ErrUnparseable)
	}
	for i, e := range s.LevelSpread {
		if e.LevelPick < 0 {
			return nil, fmt.Errorf("%w: level_spread[%d].level_pick negative", ErrUnparseable, i)
		}
	}
	tensions, err := normalizeTensions(s.Tensions)
	if err != nil {
		return nil, err
	}
	s.Tensions = tensions
	if s.LevelSpread == nil {
		s.LevelSpread = []domain.LevelSpreadEntry{}
	}
	if s.ProbingQuestions == nil {
		s.ProbingQuestions = []string{}
	}
	return &s, nil
}

func normalizeTensions(in []domain.Tension) ([]domain.Tension, error) {
	out := make([]domain.Tension, 0, len(in))
	for i, t := range in {
		t.Severity = domain.Severity(strings.ToLower(strings.TrimSpace(string(t.Severity))))
		switch t.Severity {
		case domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		default:
			return nil, fmt.Errorf("%w: tensions[%d] has severity %q", ErrUnparseable, i, t.Severity)
		}
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("%w: tensions[%d] has no title", ErrUnparseable, i)
		}
		out = append(out, t)
	}
	return out, nil
}
