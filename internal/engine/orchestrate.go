package engine

import (
	"context"
	"fmt"

	"tapline/internal/domain"
	"tapline/internal/events"
)

// IntakeResult is a created session plus the outcome of its first analysis.
type IntakeResult struct {
	Session       domain.Session
	AnalysisError string
}

// Intake creates a session and runs the initial analysis. A failed analysis
// leaves ai_analysis null and is reported in AnalysisError.
func (e Engine) Intake(ctx context.Context, opts SessionCreateOptions) (IntakeResult, error) {
	s, err := e.CreateSession(ctx, opts)
	if err != nil {
		return IntakeResult{}, err
	}
	res := IntakeResult{Session: s}
	if e.Analyst == nil {
		res.AnalysisError = ErrNoAnalyst.Error()
	} else if analysis, err := e.Analyst.AnalyzeIntake(ctx, s.HMAnswers.Clone(), s.Track, s.JobFamily); err != nil {
		e.logger().Warn("initial analysis failed", "session_id", s.ID, "err", err)
		res.AnalysisError = err.Error()
	} else {
		updated, err := e.UpdateSession(ctx, s.ID, SessionUpdate{Analysis: analysis})
		if err != nil {
			return IntakeResult{}, fmt.Errorf("record analysis: %w", err)
		}
		res.Session = updated
	}
	e.emit(ctx, events.Event{Type: events.IntakeCompleted, Session: res.Session, Payload: map[string]any{"analysis": res.Session.Analysis != nil}})
	return res, nil
}

// SynthesisInputs splits responses into the merged hiring manager answers and
// the stakeholder set passed to the model.
func SynthesisInputs(s domain.Session) (domain.Answers, []domain.Response) {
	hm := s.HMAnswers.Clone()
	var stakeholders []domain.Response
	merged := false
	for _, r := range s.Responses {
		if r.RoleType == domain.RoleHiringManager && !merged {
			for k, v := range r.Answers {
				hm[k] = v
			}
			merged = true
			continue
		}
		if r.RoleType == domain.RoleHiringManager {
			continue
		}
		stakeholders = append(stakeholders, r)
	}
	return hm, stakeholders
}

// Synthesize reconciles the intake with stakeholder responses. A failure is
// returned to the caller and leaves the session untouched.
func (e Engine) Synthesize(ctx context.Context, id string) (domain.Session, error) {
	s, err := e.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if s.Analysis == nil {
		return domain.Session{}, &PreconditionError{Reason: ReasonAnalysisMissing}
	}
	if len(s.Responses) == 0 {
		return domain.Session{}, &PreconditionError{Reason: ReasonNoResponses}
	}
	if e.Analyst == nil {
		return domain.Session{}, ErrNoAnalyst
	}
	hm, stakeholders := SynthesisInputs(s)
	synthesis, err := e.Analyst.Synthesize(ctx, hm, stakeholders, s.Analysis)
	if err != nil {
		return domain.Session{}, err
	}
	updated, err := e.mutate(ctx, id, func(s *domain.Session) error {
		s.Synthesis = synthesis
		if s.AllSubmitted() && s.Phase.Rank() < domain.PhaseSynthesisComplete.Rank() {
			s.Phase = domain.PhaseSynthesisComplete
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	e.emit(ctx, events.Event{Type: events.SynthesisCompleted, Session: updated, Payload: map[string]any{"stakeholder_responses": len(stakeholders)}})
	return updated, nil
}
