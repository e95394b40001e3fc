package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"tapline/internal/domain"
	"tapline/internal/store"
)

const (
	sessionPrefix = "session:"
	eventPrefix   = "event:"
)

// Repo persists one JSON document per session plus its audit events.
type Repo struct {
	Store store.Store
	// TTL is reapplied on every write; zero keeps records forever.
	TTL time.Duration
}

var ErrNotFound = errors.New("not found")

func sessionKey(id string) string { return sessionPrefix + id }

func eventKey(sessionID string, at time.Time, id string) string {
	return fmt.Sprintf("%s%s:%020d:%s", eventPrefix, sessionID, at.UnixNano(), id)
}

func (r Repo) PutSession(ctx context.Context, s domain.Session) error {
	if s.ID == "" {
		return fmt.Errorf("session id required")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.Store.Set(ctx, sessionKey(s.ID), payload, r.TTL)
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	payload, err := r.Store.Get(ctx, sessionKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var s domain.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions returns every live session, newest first.
func (r Repo) ListSessions(ctx context.Context) ([]domain.Session, error) {
	entries, err := r.Store.List(ctx, sessionPrefix)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Session, 0, len(entries))
	for _, e := range entries {
		var s domain.Session
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		res = append(res, s)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

// DeleteSession removes the session and, best effort, its audit trail.
func (r Repo) DeleteSession(ctx context.Context, id string) error {
	if err := r.Store.Delete(ctx, sessionKey(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	entries, err := r.Store.List(ctx, eventPrefix+id+":")
	if err != nil {
		return nil
	}
	for _, e := range entries {
		_ = r.Store.Delete(ctx, e.Key)
	}
	return nil
}

func (r Repo) InsertEvent(ctx context.Context, e domain.Event) error {
	at, err := time.Parse(time.RFC3339Nano, e.TS)
	if err != nil {
		return fmt.Errorf("event ts: %w", err)
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.Store.Set(ctx, eventKey(e.SessionID, at, e.ID), payload, r.TTL)
}

// ListEvents returns a session's audit events oldest first; limit <= 0 returns all.
func (r Repo) ListEvents(ctx context.Context, sessionID, evtType string, limit int) ([]domain.Event, error) {
	entries, err := r.Store.List(ctx, eventPrefix+sessionID+":")
	if err != nil {
		return nil, err
	}
	var res []domain.Event
	for _, entry := range entries {
		var e domain.Event
		if err := json.Unmarshal(entry.Value, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Key, err)
		}
		if evtType != "" && !strings.EqualFold(e.Type, evtType) {
			continue
		}
		res = append(res, e)
	}
	if limit > 0 && len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res, nil
}
