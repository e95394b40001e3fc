package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tapline/internal/domain"
	"tapline/internal/events"
	"tapline/internal/repo"
	"tapline/internal/token"
)

// InviteCreateOptions are parameters for inviting a stakeholder.
type InviteCreateOptions struct {
	SessionID   string
	Name        string
	RoleType    domain.RoleType
	SlackUserID string
}

// CreateInvite mints a token for a new stakeholder and returns the invite with its form link.
func (e Engine) CreateInvite(ctx context.Context, opts InviteCreateOptions) (domain.Invite, string, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Invite{}, "", fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if !e.config().ValidRole(opts.RoleType) {
		return domain.Invite{}, "", fmt.Errorf("%w: unknown role_type %q", ErrInvalid, opts.RoleType)
	}
	if e.Tokens == nil {
		return domain.Invite{}, "", errors.New("token codec not configured")
	}
	var inv domain.Invite
	s, err := e.mutate(ctx, opts.SessionID, func(s *domain.Session) error {
		if s.Phase == domain.PhaseClosed {
			return ErrSessionClosed
		}
		id := uuid.NewString()
		tok, exp, err := e.Tokens.Issue(token.Claims{InviteID: id, SessionID: s.ID, RoleType: opts.RoleType})
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		inv = domain.Invite{
			ID:          id,
			SessionID:   s.ID,
			Name:        name,
			SlackUserID: strings.TrimSpace(opts.SlackUserID),
			RoleType:    opts.RoleType,
			Token:       tok,
			Status:      domain.InvitePending,
			ExpiresAt:   exp.UTC().Format(time.RFC3339),
		}
		s.Invites = append(s.Invites, inv)
		if s.Phase == domain.PhaseIntakeComplete {
			s.Phase = domain.PhaseStakeholdersInvited
		}
		return nil
	})
	if err != nil {
		return domain.Invite{}, "", err
	}
	link := e.FormLink(inv.Token)
	e.emit(ctx, events.Event{Type: events.InviteCreated, Session: s, InviteID: inv.ID, Invite: &inv, FormLink: link})
	return inv, link, nil
}

// MarkInviteSent moves a pending invite to sent; any later status is left alone.
func (e Engine) MarkInviteSent(ctx context.Context, sessionID, inviteID string) (domain.Invite, error) {
	var (
		inv     domain.Invite
		changed bool
	)
	s, err := e.mutate(ctx, sessionID, func(s *domain.Session) error {
		target, ok := s.Invite(inviteID)
		if !ok {
			return fmt.Errorf("invite %s: %w", inviteID, repo.ErrNotFound)
		}
		if target.Status != domain.InvitePending {
			inv = *target
			return errNoChange
		}
		target.Status = domain.InviteSent
		inv = *target
		changed = true
		return nil
	})
	if err != nil {
		return domain.Invite{}, err
	}
	if changed {
		e.emit(ctx, events.Event{Type: events.InviteSent, Session: s, InviteID: inv.ID, Invite: &inv})
	}
	return inv, nil
}

// SubmitResponse records the single response an invite allows. When it is the
// last outstanding invite the session advances to synthesis_complete.
func (e Engine) SubmitResponse(ctx context.Context, sessionID, inviteID string, answers domain.Answers, role domain.RoleType) (domain.Response, error) {
	if len(answers) == 0 {
		return domain.Response{}, fmt.Errorf("%w: answers are required", ErrInvalid)
	}
	var (
		resp domain.Response
		inv  domain.Invite
	)
	s, err := e.mutate(ctx, sessionID, func(s *domain.Session) error {
		target, ok := s.Invite(inviteID)
		if !ok {
			return fmt.Errorf("invite %s: %w", inviteID, repo.ErrNotFound)
		}
		switch target.Status {
		case domain.InviteSubmitted:
			return ErrAlreadySubmitted
		case domain.InviteExpired:
			return ErrInviteExpired
		}
		if s.Phase == domain.PhaseClosed {
			return ErrSessionClosed
		}
		if role == "" {
			role = target.RoleType
		}
		now := e.stamp()
		resp = domain.Response{
			ID:          uuid.NewString(),
			InviteID:    target.ID,
			SessionID:   s.ID,
			RoleType:    role,
			Answers:     answers.Clone(),
			SubmittedAt: now,
		}
		target.Status = domain.InviteSubmitted
		target.SubmittedAt = now
		inv = *target
		s.Responses = append(s.Responses, resp)
		if s.AllSubmitted() && s.Phase.Rank() < domain.PhaseSynthesisComplete.Rank() {
			s.Phase = domain.PhaseSynthesisComplete
		}
		return nil
	})
	if err != nil {
		return domain.Response{}, err
	}
	e.emit(ctx, events.Event{
		Type:     events.ResponseSubmitted,
		Session:  s,
		InviteID: inv.ID,
		Invite:   &inv,
		Response: &resp,
		Payload:  map[string]any{"submitted": s.SubmittedCount(), "total": len(s.Invites), "all_submitted": s.AllSubmitted()},
	})
	return resp, nil
}

// AllInvitesSubmitted is false for a session without invites.
func (e Engine) AllInvitesSubmitted(ctx context.Context, sessionID string) (bool, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.AllSubmitted(), nil
}

// InviteContext is what a respondent link resolves to.
type InviteContext struct {
	Claims  token.Claims
	Session domain.Session
	Invite  domain.Invite
}

// ResolveInvite verifies a respondent token and loads its invite.
func (e Engine) ResolveInvite(ctx context.Context, raw string) (InviteContext, error) {
	if e.Tokens == nil {
		return InviteContext{}, token.ErrInvalid
	}
	claims, err := e.Tokens.Verify(raw)
	if err != nil {
		return InviteContext{}, err
	}
	s, err := e.GetSession(ctx, claims.SessionID)
	if err != nil {
		return InviteContext{}, err
	}
	inv, ok := s.Invite(claims.InviteID)
	if !ok {
		return InviteContext{}, fmt.Errorf("invite %s: %w", claims.InviteID, repo.ErrNotFound)
	}
	switch inv.Status {
	case domain.InviteSubmitted:
		return InviteContext{}, ErrAlreadySubmitted
	case domain.InviteExpired:
		return InviteContext{}, token.ErrInvalid
	}
	return InviteContext{Claims: claims, Session: s, Invite: *inv}, nil
}

// SubmitByToken records the answers for the invite a token grants. It reports
// whether every invite of the session is now submitted.
func (e Engine) SubmitByToken(ctx context.Context, raw string, answers domain.Answers) (domain.Response, bool, error) {
	if e.Tokens == nil {
		return domain.Response{}, false, token.ErrInvalid
	}
	claims, err := e.Tokens.Verify(raw)
	if err != nil {
		return domain.Response{}, false, err
	}
	resp, err := e.SubmitResponse(ctx, claims.SessionID, claims.InviteID, answers, claims.RoleType)
	if errors.Is(err, ErrInviteExpired) {
		return domain.Response{}, false, token.ErrInvalid
	}
	if err != nil {
		return domain.Response{}, false, err
	}
	all, err := e.AllInvitesSubmitted(ctx, claims.SessionID)
	if err != nil {
		return resp, false, err
	}
	return resp, all, nil
}
