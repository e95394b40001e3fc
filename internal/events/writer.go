package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tapline/internal/domain"
	"tapline/internal/repo"
)

// Writer records an event in the session audit log and then publishes it.
type Writer struct {
	Repo   repo.Repo
	Bus    *Bus
	Now    func() time.Time
	Logger *slog.Logger
}

func (w Writer) Emit(ctx context.Context, e Event) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = w.Now().UTC()
	}
	if e.SessionID == "" {
		e.SessionID = e.Session.ID
	}
	if e.Type != SessionDeleted && w.Repo.Store != nil {
		if err := w.Repo.InsertEvent(ctx, auditRecord(e)); err != nil {
			w.logger().Warn("audit append failed", "type", e.Type, "session_id", e.SessionID, "err", err)
		}
	}
	w.Bus.Publish(e)
}

func (w Writer) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func auditRecord(e Event) domain.Event {
	payload := map[string]any{"phase": e.Session.Phase}
	for k, v := range e.Payload {
		payload[k] = v
	}
	if e.Invite != nil {
		payload["role_type"] = e.Invite.RoleType
		payload["invite_status"] = e.Invite.Status
	}
	if e.Response != nil {
		payload["response_id"] = e.Response.ID
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return domain.Event{
		ID:        e.ID,
		TS:        e.At.UTC().Format(time.RFC3339Nano),
		Type:      e.Type,
		SessionID: e.SessionID,
		InviteID:  e.InviteID,
		Payload:   string(data),
	}
}
