package server

import (
	"tapline/internal/domain"
	"tapline/internal/engine"
	"tapline/internal/questions"
)

// Request payloads

type CreateSessionRequest struct {
	JobFamily  string            `json:"job_family" minLength:"1"`
	HMAnswers  map[string]string `json:"hm_answers"`
	TapName    string            `json:"tap_name,omitempty"`
	TapSlackID string            `json:"tap_slack_id,omitempty"`
}

type CreateInviteRequest struct {
	Name        string `json:"name" minLength:"1"`
	RoleType    string `json:"role_type" minLength:"1"`
	SlackUserID string `json:"slack_user_id,omitempty"`
}

type SubmitResponseRequest struct {
	Answers map[string]string `json:"answers"`
}

// Response payloads

type QuestionsResponse struct {
	Track     string               `json:"track,omitempty"`
	Questions []questions.Question `json:"questions"`
}

type CreateSessionResponse struct {
	SessionID     string           `json:"session_id"`
	Track         domain.Track     `json:"track"`
	Phase         domain.Phase     `json:"phase"`
	Analysis      *domain.Analysis `json:"analysis"`
	AnalysisError string           `json:"analysis_error,omitempty"`
}

type CreateInviteResponse struct {
	InviteID  string `json:"invite_id"`
	Token     string `json:"token"`
	FormLink  string `json:"form_link"`
	SlackSent bool   `json:"slack_sent"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type SynthesizeResponse struct {
	SessionID string            `json:"session_id"`
	Phase     domain.Phase      `json:"phase"`
	Synthesis *domain.Synthesis `json:"synthesis"`
}

type RespondFormResponse struct {
	InviteID        string                          `json:"invite_id"`
	SessionID       string                          `json:"session_id"`
	RoleType        domain.RoleType                 `json:"role_type"`
	StakeholderName string                          `json:"stakeholder_name"`
	JobFamily       string                          `json:"job_family"`
	RoleTitle       string                          `json:"role_title"`
	RequesterName   string                          `json:"requester_name,omitempty"`
	Questions       []questions.Question            `json:"questions"`
	FollowUps       map[string][]questions.Question `json:"follow_ups,omitempty"`
}

type SubmitResponseResponse struct {
	ResponseID   string `json:"response_id"`
	AllSubmitted bool   `json:"all_submitted"`
}

func requesterName(s domain.Session) string {
	if s.TapName != "" {
		return s.TapName
	}
	return s.HMAnswers["tap_name"]
}

func respondForm(ic engine.InviteContext, relationship string) RespondFormResponse {
	out := RespondFormResponse{
		InviteID:        ic.Invite.ID,
		SessionID:       ic.Session.ID,
		RoleType:        ic.Invite.RoleType,
		StakeholderName: ic.Invite.Name,
		JobFamily:       ic.Session.JobFamily,
		RoleTitle:       ic.Session.RoleTitle(),
		RequesterName:   requesterName(ic.Session),
		Questions:       questions.ForRespondent(ic.Invite.RoleType, domain.Answers{questions.RelationshipID: relationship}),
	}
	if ic.Invite.RoleType != domain.RoleHiringManager {
		out.FollowUps = map[string][]questions.Question{}
		for _, opt := range questions.RelationshipOptions() {
			out.FollowUps[opt] = questions.FollowUps(opt)
		}
	}
	return out
}
