package analysis

import (
	"bytes"
	"embed"
	"encoding/json"
	"strings"

	"github.com/cbroglie/mustache"

	"tapline/internal/domain"
)

//go:embed prompts/*
var promptFS embed.FS

var (
	systemPrompt      = mustRead("prompts/system.txt")
	analysisTemplate  = mustParse("prompts/analysis.mustache")
	synthesisTemplate = mustParse("prompts/synthesis.mustache")
)

func mustRead(name string) string {
	data, err := promptFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func mustParse(name string) *mustache.Template {
	tmpl, err := mustache.ParseString(mustRead(name))
	if err != nil {
		panic(name + ": " + err.Error())
	}
	return tmpl
}

// SystemPrompt returns the fixed preamble sent with every call.
func SystemPrompt() string { return systemPrompt }

// AnalysisPrompt renders the intake analysis request.
func AnalysisPrompt(answers domain.Answers, track domain.Track, jobFamily string) (string, error) {
	answersJSON, err := indentJSON(answers)
	if err != nil {
		return "", err
	}
	return analysisTemplate.Render(map[string]any{
		"job_family":    jobFamily,
		"track":         string(track),
		"hm_level_pick": answerOr(answers, "hm_level_pick", "not specified"),
		"answers_json":  answersJSON,
	})
}

// SynthesisPrompt renders the stakeholder synthesis request. Responses are
// numbered in the order given.
func SynthesisPrompt(hm domain.Answers, responses []domain.Response, prior *domain.Analysis) (string, error) {
	stakeholders := make([]map[string]any, 0, len(responses))
	for i, r := range responses {
		answersJSON, err := indentJSON(r.Answers)
		if err != nil {
			return "", err
		}
		stakeholders = append(stakeholders, map[string]any{
			"index":        i + 1,
			"role_type":    string(r.RoleType),
			"answers_json": answersJSON,
		})
	}
	recommended := "unknown"
	var tensions []map[string]any
	if prior != nil {
		if prior.LevelAnalysis.RecommendedLevel > 0 {
			recommended = domain.FormatLevel(prior.LevelAnalysis.RecommendedLevel)
		}
		for _, t := range prior.Tensions {
			tensions = append(tensions, map[string]any{
				"severity": strings.ToUpper(string(t.Severity)),
				"title":    t.Title,
			})
		}
	}
	return synthesisTemplate.Render(map[string]any{
		"hm_level_pick":      answerOr(hm, "hm_level_pick", "not specified"),
		"hm_level_rationale": answerOr(hm, "hm_level_rationale", "not provided"),
		"recommended_level":  recommended,
		"stakeholders":       stakeholders,
		"tensions":           tensions,
	})
}

func answerOr(a domain.Answers, key, fallback string) string {
	if v := strings.TrimSpace(a[key]); v != "" {
		return v
	}
	return fallback
}

func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
