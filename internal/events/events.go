// Package events carries session lifecycle transitions from the engine to
// best-effort subscribers.
package events

import (
	"time"

	"tapline/internal/domain"
)

const (
	SessionCreated       = "session.created"
	IntakeCompleted      = "intake.completed"
	InviteCreated        = "invite.created"
	InviteSent           = "invite.sent"
	ResponseSubmitted    = "response.submitted"
	SynthesisCompleted   = "synthesis.completed"
	SessionChannelLinked = "session.channel_linked"
	SessionClosed        = "session.closed"
	SessionDeleted       = "session.deleted"
)

// Types lists every lifecycle event type.
var Types = []string{
	SessionCreated, IntakeCompleted, InviteCreated, InviteSent, ResponseSubmitted,
	SynthesisCompleted, SessionChannelLinked, SessionClosed, SessionDeleted,
}

// Event is a lifecycle transition plus the session state right after it.
type Event struct {
	ID        string
	Type      string
	SessionID string
	InviteID  string
	At        time.Time
	Session   domain.Session
	Invite    *domain.Invite
	Response  *domain.Response
	// FormLink is set on invite.created and never written to the audit log.
	FormLink string
	Payload  map[string]any
}
