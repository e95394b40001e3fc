package tui

import (
	"context"
	"encoding/json"
	"fmt"

	"tapline/internal/domain"
	"tapline/internal/questions"
	"tapline/internal/wizard"
	taplinesdk "tapline/sdk/go"
)

// NewIntake walks a hiring manager through the intake for jobFamily and
// creates the session through the API.
func NewIntake(client *taplinesdk.Client, jobFamily, tapSlackID string) Model {
	track, qs := questions.ForIntake(jobFamily)
	wiz := wizard.New(wizard.Static(qs), domain.Answers{"job_family": jobFamily})
	title := fmt.Sprintf("Intake · %s (%s)", jobFamily, questions.TrackLabel(track))
	return New(title, wiz, func(ctx context.Context, answers domain.Answers) (string, error) {
		res, err := client.CreateSession(ctx, jobFamily, answers, answers["tap_name"], tapSlackID)
		if err != nil {
			return "", err
		}
		return intakeSummary(res), nil
	})
}

func intakeSummary(res taplinesdk.IntakeResult) string {
	line := fmt.Sprintf("Session %s created.", res.SessionID)
	if res.AnalysisError != "" {
		return line + " Analysis unavailable: " + res.AnalysisError
	}
	var a domain.Analysis
	if len(res.Analysis) > 0 && json.Unmarshal(res.Analysis, &a) == nil && a.LevelAnalysis.RecommendedLevel > 0 {
		line += fmt.Sprintf(" Recommended level %s, %d tension(s) flagged.", domain.FormatLevel(a.LevelAnalysis.RecommendedLevel), len(a.Tensions))
	}
	return line
}

// NewRespond walks a respondent through the form an invite token resolved to.
func NewRespond(client *taplinesdk.Client, token string, form taplinesdk.RespondForm) Model {
	wiz := wizard.New(formResolver(form), nil)
	title := fmt.Sprintf("%s · %s", form.RoleTitle, form.StakeholderName)
	if form.RequesterName != "" {
		title += " · requested by " + form.RequesterName
	}
	return New(title, wiz, func(ctx context.Context, answers domain.Answers) (string, error) {
		res, err := client.SubmitResponse(ctx, token, answers)
		if err != nil {
			return "", err
		}
		if res.AllSubmitted {
			return "Every stakeholder has now responded. Thank you!", nil
		}
		return "Thank you for your input.", nil
	})
}

// formResolver splices the follow-ups for the current relationship answer in
// right after the relationship question.
func formResolver(form taplinesdk.RespondForm) wizard.Resolver {
	base := convert(form.Questions)
	if len(form.FollowUps) == 0 {
		return wizard.Static(base)
	}
	return func(answers domain.Answers) []questions.Question {
		extra := convert(form.FollowUps[answers[questions.RelationshipID]])
		if len(extra) == 0 {
			return base
		}
		out := make([]questions.Question, 0, len(base)+len(extra))
		for _, q := range base {
			out = append(out, q)
			if q.ID == questions.RelationshipID {
				out = append(out, extra...)
			}
		}
		return out
	}
}

func convert(in []taplinesdk.Question) []questions.Question {
	out := make([]questions.Question, 0, len(in))
	for _, q := range in {
		out = append(out, questions.Question{
			ID:       q.ID,
			Label:    q.Label,
			Probe:    q.Probe,
			Kind:     questions.Kind(q.Kind),
			Options:  append([]string(nil), q.Options...),
			Optional: q.Optional,
		})
	}
	return out
}
