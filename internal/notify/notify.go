// Package notify fans lifecycle events out to Slack, Notion and outbound
// webhooks. Every subscriber is best-effort: failures are logged by the bus
// and never reach the caller that caused the event.
package notify

import (
	"context"
	"log/slog"

	"tapline/internal/domain"
)

// Recorder stores collaborator ids back on the session.
type Recorder interface {
	MarkInviteSent(ctx context.Context, sessionID, inviteID string) (domain.Invite, error)
	SetNotionPage(ctx context.Context, sessionID, pageID string) (domain.Session, error)
	SetSlackChannel(ctx context.Context, sessionID, channelID, channelName string) (domain.Session, error)
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func requesterName(s domain.Session) string {
	if s.TapName != "" {
		return s.TapName
	}
	if v := s.HMAnswers["tap_name"]; v != "" {
		return v
	}
	return "Your Talent partner"
}
