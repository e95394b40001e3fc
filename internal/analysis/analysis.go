// Package analysis turns intake answers and stakeholder responses into
// structured level analysis and synthesis through a language model.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tapline/internal/config"
	"tapline/internal/domain"
)

var (
	// ErrUnparseable means the model answered but not with the expected JSON shape.
	ErrUnparseable = errors.New("unparseable model output")
	// ErrModelUnavailable means the model could not be reached or kept failing.
	ErrModelUnavailable = errors.New("model unavailable")
)

// Call kinds and outcomes reported to Observe.
const (
	KindAnalysis  = "analysis"
	KindSynthesis = "synthesis"

	OutcomeOK          = "ok"
	OutcomeRetry       = "retry"
	OutcomeUnavailable = "unavailable"
	OutcomeUnparseable = "unparseable"
	OutcomeOffline     = "offline"
)

// Model is a single-shot text completion.
type Model interface {
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// Orchestrator builds prompts, calls the model with bounded retry and
// validates what comes back. A nil Model runs offline and returns labelled
// placeholder results.
type Orchestrator struct {
	Model              Model
	MaxTokensAnalysis  int
	MaxTokensSynthesis int
	Attempts           int
	Step               time.Duration
	CallTimeout        time.Duration
	Logger             *slog.Logger
	Observe            func(kind, outcome string)
}

// New configures an orchestrator from the model section of tapline.yml.
func New(model Model, cfg config.ModelConfig) *Orchestrator {
	return &Orchestrator{
		Model:              model,
		MaxTokensAnalysis:  cfg.MaxTokensAnalysis,
		MaxTokensSynthesis: cfg.MaxTokensSynthesis,
		Attempts:           cfg.Attempts,
		Step:               cfg.BackoffStep(),
		CallTimeout:        cfg.CallTimeout(),
	}
}

// Offline reports whether model calls are disabled.
func (o *Orchestrator) Offline() bool { return o.Model == nil }

func (o *Orchestrator) AnalyzeIntake(ctx context.Context, answers domain.Answers, track domain.Track, jobFamily string) (*domain.Analysis, error) {
	if o.Offline() {
		o.observe(KindAnalysis, OutcomeOffline)
		return OfflineAnalysis(answers), nil
	}
	prompt, err := AnalysisPrompt(answers, track, jobFamily)
	if err != nil {
		return nil, fmt.Errorf("render analysis prompt: %w", err)
	}
	text, err := o.generate(ctx, KindAnalysis, prompt, o.MaxTokensAnalysis)
	if err != nil {
		return nil, err
	}
	a, err := ParseAnalysis(text)
	if err != nil {
		o.observe(KindAnalysis, OutcomeUnparseable)
		o.logger().Warn("analysis output rejected", "job_family", jobFamily, "err", err)
		return nil, err
	}
	o.observe(KindAnalysis, OutcomeOK)
	return a, nil
}

func (o *Orchestrator) Synthesize(ctx context.Context, hm domain.Answers, responses []domain.Response, prior *domain.Analysis) (*domain.Synthesis, error) {
	if o.Offline() {
		o.observe(KindSynthesis, OutcomeOffline)
		return OfflineSynthesis(responses), nil
	}
	prompt, err := SynthesisPrompt(hm, responses, prior)
	if err != nil {
		return nil, fmt.Errorf("render synthesis prompt: %w", err)
	}
	text, err := o.generate(ctx, KindSynthesis, prompt, o.MaxTokensSynthesis)
	if err != nil {
		return nil, err
	}
	s, err := ParseSynthesis(text)
	if err != nil {
		o.observe(KindSynthesis, OutcomeUnparseable)
		o.logger().Warn("synthesis output rejected", "responses", len(responses), "err", err)
		return nil, err
	}
	o.observe(KindSynthesis, OutcomeOK)
	return s, nil
}

func (o *Orchestrator) observe(kind, outcome string) {
	if o.Observe != nil {
		o.Observe(kind, outcome)
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

const offlineNote = "Analysis unavailable: the model provider is disabled (skip mode)."

// OfflineAnalysis echoes the hiring manager's own level back so the session
// can move through its lifecycle without a model.
func OfflineAnalysis(answers domain.Answers) *domain.Analysis {
	level, _ := domain.ParseLevel(answers["hm_level_pick"])
	return &domain.Analysis{
		LevelAnalysis: domain.LevelAnalysis{
			RecommendedLevel: level,
			HMRequestedLevel: level,
			LevelMatch:       true,
			Reasoning:        offlineNote,
		},
		Tensions: []domain.Tension{},
		TAPBrief: domain.TAPBrief{
			Summary:           offlineNote,
			PriorityQuestions: []string{},
			WatchItems:        []string{},
			LevelSignal:       "Hiring manager request only; no independent assessment.",
		},
	}
}

// OfflineSynthesis lists the stakeholder level picks without interpreting them.
func OfflineSynthesis(responses []domain.Response) *domain.Synthesis {
	spread := make([]domain.LevelSpreadEntry, 0, len(responses))
	for _, r := range responses {
		level, _ := domain.ParseLevel(r.Answers["level_expectation"])
		spread = append(spread, domain.LevelSpreadEntry{
			Respondent: string(r.RoleType),
			RoleType:   string(r.RoleType),
			LevelPick:  level,
		})
	}
	return &domain.Synthesis{
		LevelSpread:      spread,
		Tensions:         []domain.Tension{},
		ProbingQuestions: []string{},
		SlackSummary:     offlineNote,
		TapPrivateBrief:  offlineNote,
		NotionSummary:    offlineNote,
	}
}
