package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"tapline/internal/config"
	"tapline/internal/domain"
	"tapline/internal/engine"
	"tapline/internal/questions"
)

var errorStatuses = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

type sessionPath struct {
	ID string `path:"id"`
}

func registerQuestions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-questions",
		Method:      http.MethodGet,
		Path:        "/questions",
		Summary:     "Resolve a question set",
		Description: "Intake questions for a job family, or the respondent form for a role.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		JobFamily    string `query:"job_family"`
		Role         string `query:"role"`
		Relationship string `query:"relationship"`
	}) (*struct {
		Body QuestionsResponse `json:"body"`
	}, error) {
		var resp QuestionsResponse
		switch {
		case input.Role != "":
			cfg := e.Config
			if cfg == nil {
				cfg = config.Default()
			}
			role := domain.RoleType(input.Role)
			if !cfg.ValidRole(role) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role_type", map[string]any{"role": input.Role, "allowed": cfg.RoleTypes()})
			}
			resp.Questions = questions.ForRespondent(role, domain.Answers{questions.RelationshipID: input.Relationship})
		case strings.TrimSpace(input.JobFamily) != "":
			track, qs := questions.ForIntake(input.JobFamily)
			resp.Track = string(track)
			resp.Questions = qs
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "job_family or role is required", nil)
		}
		return &struct {
			Body QuestionsResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Submit an intake",
		Description:   "Creates the session and runs the first-pass analysis. Analysis failure does not fail the request.",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*struct {
		Body CreateSessionResponse `json:"body"`
	}, error) {
		res, err := e.Intake(ctx, engine.SessionCreateOptions{
			JobFamily:  input.Body.JobFamily,
			HMAnswers:  domain.Answers(input.Body.HMAnswers),
			TapName:    input.Body.TapName,
			TapSlackID: input.Body.TapSlackID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateSessionResponse `json:"body"`
		}{Body: CreateSessionResponse{
			SessionID:     res.Session.ID,
			Track:         res.Session.Track,
			Phase:         res.Session.Phase,
			Analysis:      res.Session.Analysis,
			AnalysisError: res.AnalysisError,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions, newest first",
		Errors:      errorStatuses,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Session `json:"body"`
	}, error) {
		items, err := e.ListSessions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Session{}
		}
		return &struct {
			Body []domain.Session `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get session",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		s, err := e.GetSession(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{id}",
		Summary:       "Delete session",
		DefaultStatus: http.StatusNoContent,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		if err := e.DeleteSession(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/close",
		Summary:     "Close session",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		s, err := e.CloseSession(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})
}

func registerInvites(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID:   "create-invite",
		Method:        http.MethodPost,
		Path:          "/sessions/{id}/invites",
		Summary:       "Invite a stakeholder",
		Description:   "Mints a respondent link. The Slack DM, when requested, is sent asynchronously.",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateInviteRequest `json:"body"`
	}) (*struct {
		Body CreateInviteResponse `json:"body"`
	}, error) {
		inv, link, err := e.CreateInvite(ctx, engine.InviteCreateOptions{
			SessionID:   input.ID,
			Name:        input.Body.Name,
			RoleType:    domain.RoleType(input.Body.RoleType),
			SlackUserID: input.Body.SlackUserID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateInviteResponse `json:"body"`
		}{Body: CreateInviteResponse{
			InviteID:  inv.ID,
			Token:     inv.Token,
			FormLink:  link,
			SlackSent: inv.SlackUserID != "" && cfg.SlackEnabled,
			ExpiresAt: inv.ExpiresAt,
		}}, nil
	})
}

func registerSynthesis(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "synthesize",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/synthesize",
		Summary:     "Synthesize stakeholder responses",
		Errors:      append(append([]int(nil), errorStatuses...), http.StatusBadGateway),
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body SynthesizeResponse `json:"body"`
	}, error) {
		s, err := e.Synthesize(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SynthesizeResponse `json:"body"`
		}{Body: SynthesizeResponse{SessionID: s.ID, Phase: s.Phase, Synthesis: s.Synthesis}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-session-events",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/events",
		Summary:     "Session audit log, oldest first",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Type  string `query:"type"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.SessionEvents(ctx, input.ID, input.Type, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}

func registerRespond(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-respond-form",
		Method:      http.MethodGet,
		Path:        "/respond/{token}",
		Summary:     "Load the respondent form for an invite link",
		Errors:      errorStatuses,
	}, func(ctx context.Context, input *struct {
		Token        string `path:"token"`
		Relationship string `query:"relationship"`
	}) (*struct {
		Body RespondFormResponse `json:"body"`
	}, error) {
		ic, err := e.ResolveInvite(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RespondFormResponse `json:"body"`
		}{Body: respondForm(ic, input.Relationship)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-response",
		Method:        http.MethodPost,
		Path:          "/respond/{token}",
		Summary:       "Submit respondent answers",
		DefaultStatus: http.StatusCreated,
		Errors:        errorStatuses,
	}, func(ctx context.Context, input *struct {
		Token string                `path:"token"`
		Body  SubmitResponseRequest `json:"body"`
	}) (*struct {
		Body SubmitResponseResponse `json:"body"`
	}, error) {
		resp, all, err := e.SubmitByToken(ctx, input.Token, domain.Answers(input.Body.Answers))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmitResponseResponse `json:"body"`
		}{Body: SubmitResponseResponse{ResponseID: resp.ID, AllSubmitted: all}}, nil
	})
}
