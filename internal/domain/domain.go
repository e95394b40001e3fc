package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type Track string

const (
	TrackProduct     Track = "product"
	TrackEngineering Track = "engineering"
	TrackMarketing   Track = "marketing"
	TrackRevenue     Track = "revenue"
	TrackGA          Track = "ga"
)

type Phase string

const (
	PhaseIntakeComplete      Phase = "intake_complete"
	PhaseStakeholdersInvited Phase = "stakeholders_invited"
	PhaseSynthesisComplete   Phase = "synthesis_complete"
	PhaseClosed              Phase = "closed"
)

// Rank orders phases so transitions can be checked for monotonicity.
func (p Phase) Rank() int {
	switch p {
	case PhaseIntakeComplete:
		return 1
	case PhaseStakeholdersInvited:
		return 2
	case PhaseSynthesisComplete:
		return 3
	case PhaseClosed:
		return 4
	default:
		return 0
	}
}

type InviteStatus string

const (
	InvitePending   InviteStatus = "pending"
	InviteSent      InviteStatus = "sent"
	InviteSubmitted InviteStatus = "submitted"
	InviteExpired   InviteStatus = "expired"
)

type RoleType string

const RoleHiringManager RoleType = "hiring_manager"

// Answers maps question ids to free text or the selected option.
type Answers map[string]string

// Clone returns a shallow copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

type Session struct {
	ID               string     `json:"id"`
	CreatedAt        string     `json:"created_at" format:"date-time"`
	UpdatedAt        string     `json:"updated_at" format:"date-time"`
	Phase            Phase      `json:"phase" enum:"intake_complete,stakeholders_invited,synthesis_complete,closed"`
	RoleSchema       int        `json:"role_schema"`
	JobFamily        string     `json:"job_family"`
	Track            Track      `json:"track" enum:"product,engineering,marketing,revenue,ga"`
	HMAnswers        Answers    `json:"hm_answers"`
	Analysis         *Analysis  `json:"ai_analysis"`
	Invites          []Invite   `json:"invites"`
	Responses        []Response `json:"responses"`
	Synthesis        *Synthesis `json:"synthesis"`
	NotionPageID     string     `json:"notion_page_id,omitempty"`
	SlackChannelID   string     `json:"slack_channel_id,omitempty"`
	SlackChannelName string     `json:"slack_channel_name,omitempty"`
	TapSlackID       string     `json:"tap_slack_id,omitempty"`
	TapName          string     `json:"tap_name,omitempty"`
}

// Invite returns the invite with the given id.
func (s *Session) Invite(id string) (*Invite, bool) {
	for i := range s.Invites {
		if s.Invites[i].ID == id {
			return &s.Invites[i], true
		}
	}
	return nil, false
}

// SubmittedCount returns how many invites have been submitted.
func (s Session) SubmittedCount() int {
	n := 0
	for _, inv := range s.Invites {
		if inv.Status == InviteSubmitted {
			n++
		}
	}
	return n
}

// AllSubmitted is false for a session without invites.
func (s Session) AllSubmitted() bool {
	return len(s.Invites) > 0 && s.SubmittedCount() == len(s.Invites)
}

// RoleTitle falls back to the job family when no title was captured.
func (s Session) RoleTitle() string {
	if t := strings.TrimSpace(s.HMAnswers["role_title"]); t != "" {
		return t
	}
	return s.JobFamily
}

type Invite struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	Name        string       `json:"name"`
	SlackUserID string       `json:"slack_user_id,omitempty"`
	RoleType    RoleType     `json:"role_type"`
	Token       string       `json:"token"`
	Status      InviteStatus `json:"status" enum:"pending,sent,submitted,expired"`
	ExpiresAt   string       `json:"expires_at" format:"date-time"`
	SubmittedAt string       `json:"submitted_at,omitempty" format:"date-time"`
}

type Response struct {
	ID          string   `json:"id"`
	InviteID    string   `json:"invite_id"`
	SessionID   string   `json:"session_id"`
	RoleType    RoleType `json:"role_type"`
	Answers     Answers  `json:"answers"`
	SubmittedAt string   `json:"submitted_at" format:"date-time"`
}

// ParseLevel accepts "L6", "l6" or "6".
func ParseLevel(s string) (int, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "L"), "l")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q", s)
	}
	return n, nil
}

// FormatLevel renders a level as "L<n>".
func FormatLevel(n int) string {
	return "L" + strconv.Itoa(n)
}

// Event is one entry of a session's audit log.
type Event struct {
	ID        string `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	InviteID  string `json:"invite_id,omitempty"`
	Payload   string `json:"payload_json"`
}
