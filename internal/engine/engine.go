package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tapline/internal/config"
	"tapline/internal/domain"
	"tapline/internal/events"
	"tapline/internal/questions"
	"tapline/internal/repo"
	"tapline/internal/token"
)

var (
	ErrInvalid          = errors.New("invalid request")
	ErrAlreadySubmitted = errors.New("invite already submitted")
	ErrInviteExpired    = errors.New("invite expired")
	ErrSessionClosed    = errors.New("session closed")
	ErrNoAnalyst        = errors.New("analysis provider not configured")

	errNoChange = errors.New("no change")
)

// PreconditionError rejects an operation whose inputs are not ready yet.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

const (
	ReasonAnalysisMissing = "analysis_missing"
	ReasonNoResponses     = "no_responses"
)

// Analyst is the model-backed half of intake and synthesis.
type Analyst interface {
	AnalyzeIntake(ctx context.Context, answers domain.Answers, track domain.Track, jobFamily string) (*domain.Analysis, error)
	Synthesize(ctx context.Context, hm domain.Answers, responses []domain.Response, prior *domain.Analysis) (*domain.Synthesis, error)
}

// Engine is the only writer of session state.
type Engine struct {
	Repo    repo.Repo
	Events  events.Writer
	Tokens  *token.Codec
	Analyst Analyst
	Config  *config.Config
	AppURL  string
	Now     func() time.Time
	Logger  *slog.Logger

	locks *lockSet
}

func New(r repo.Repo, cfg *config.Config, codec *token.Codec, bus *events.Bus) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Repo:   r,
		Events: events.Writer{Repo: r, Bus: bus},
		Tokens: codec,
		Config: cfg,
		AppURL: "http://localhost:3000",
		Now:    time.Now,
		locks:  newLockSet(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) emit(ctx context.Context, evt events.Event) {
	evt.At = e.now().UTC()
	if evt.SessionID == "" {
		evt.SessionID = evt.Session.ID
	}
	e.Events.Emit(ctx, evt)
}

// FormLink builds the respondent URL for an invite token.
func (e Engine) FormLink(tok string) string {
	base := strings.TrimRight(e.AppURL, "/")
	if base == "" {
		base = "http://localhost:3000"
	}
	return base + "/respond/" + tok
}

// SessionCreateOptions are parameters for creating a session.
type SessionCreateOptions struct {
	JobFamily  string
	HMAnswers  domain.Answers
	TapName    string
	TapSlackID string
}

func (e Engine) CreateSession(ctx context.Context, opts SessionCreateOptions) (domain.Session, error) {
	jobFamily := strings.TrimSpace(opts.JobFamily)
	if jobFamily == "" {
		jobFamily = strings.TrimSpace(opts.HMAnswers["job_family"])
	}
	if jobFamily == "" {
		return domain.Session{}, fmt.Errorf("%w: job_family is required", ErrInvalid)
	}
	answers := opts.HMAnswers.Clone()
	for _, id := range []string{"hm_level_pick", "hm_level_rationale"} {
		if strings.TrimSpace(answers[id]) == "" {
			return domain.Session{}, fmt.Errorf("%w: %s is required", ErrInvalid, id)
		}
	}
	if _, err := domain.ParseLevel(answers["hm_level_pick"]); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	answers["job_family"] = jobFamily
	tapName := strings.TrimSpace(opts.TapName)
	if tapName == "" {
		tapName = strings.TrimSpace(answers["tap_name"])
	}
	now := e.stamp()
	s := domain.Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Phase:      domain.PhaseIntakeComplete,
		RoleSchema: e.config().Roles.SchemaVersion,
		JobFamily:  jobFamily,
		Track:      questions.DetectTrack(jobFamily),
		HMAnswers:  answers,
		Invites:    []domain.Invite{},
		Responses:  []domain.Response{},
		TapSlackID: strings.TrimSpace(opts.TapSlackID),
		TapName:    tapName,
	}
	if err := e.Repo.PutSession(ctx, s); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	e.emit(ctx, events.Event{Type: events.SessionCreated, Session: s, Payload: map[string]any{"track": s.Track, "job_family": s.JobFamily}})
	return s, nil
}

func (e Engine) GetSession(ctx context.Context, id string) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	e.expireInvites(&s)
	return s, nil
}

// ListSessions returns sessions newest first.
func (e Engine) ListSessions(ctx context.Context) ([]domain.Session, error) {
	list, err := e.Repo.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		e.expireInvites(&list[i])
	}
	return list, nil
}

// SessionUpdate carries the fields to merge; nil fields are left untouched.
type SessionUpdate struct {
	Phase            *domain.Phase
	HMAnswers        domain.Answers
	Analysis         *domain.Analysis
	Synthesis        *domain.Synthesis
	NotionPageID     *string
	SlackChannelID   *string
	SlackChannelName *string
	TapSlackID       *string
	TapName          *string
}

func (e Engine) UpdateSession(ctx context.Context, id string, upd SessionUpdate) (domain.Session, error) {
	return e.mutate(ctx, id, func(s *domain.Session) error {
		if upd.Phase != nil {
			if err := advancePhase(s, *upd.Phase); err != nil {
				return err
			}
		}
		if upd.HMAnswers != nil {
			for k, v := range upd.HMAnswers {
				s.HMAnswers[k] = v
			}
		}
		if upd.Analysis != nil {
			if s.Analysis != nil {
				return fmt.Errorf("%w: analysis already recorded", ErrInvalid)
			}
			s.Analysis = upd.Analysis
		}
		if upd.Synthesis != nil {
			s.Synthesis = upd.Synthesis
		}
		setString(&s.NotionPageID, upd.NotionPageID)
		setString(&s.SlackChannelID, upd.SlackChannelID)
		setString(&s.SlackChannelName, upd.SlackChannelName)
		setString(&s.TapSlackID, upd.TapSlackID)
		setString(&s.TapName, upd.TapName)
		return nil
	})
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// advancePhase moves forward only; synthesis_complete needs every invite submitted.
func advancePhase(s *domain.Session, to domain.Phase) error {
	if to.Rank() == 0 {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalid, to)
	}
	if to.Rank() < s.Phase.Rank() {
		return fmt.Errorf("%w: phase cannot move from %s back to %s", ErrInvalid, s.Phase, to)
	}
	if to == domain.PhaseSynthesisComplete && !s.AllSubmitted() {
		return fmt.Errorf("%w: not every invite has been submitted", ErrInvalid)
	}
	s.Phase = to
	return nil
}

func (e Engine) DeleteSession(ctx context.Context, id string) error {
	unlock := e.lock(id)
	defer unlock()
	s, err := e.Repo.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	e.emit(ctx, events.Event{Type: events.SessionDeleted, Session: s})
	return nil
}

// CloseSession moves a session to closed; closing twice is a no-op.
func (e Engine) CloseSession(ctx context.Context, id string) (domain.Session, error) {
	closed := false
	s, err := e.mutate(ctx, id, func(s *domain.Session) error {
		if s.Phase == domain.PhaseClosed {
			return errNoChange
		}
		s.Phase = domain.PhaseClosed
		closed = true
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	if closed {
		e.emit(ctx, events.Event{Type: events.SessionClosed, Session: s})
	}
	return s, nil
}

// SetNotionPage records the exported page id.
func (e Engine) SetNotionPage(ctx context.Context, id, pageID string) (domain.Session, error) {
	return e.UpdateSession(ctx, id, SessionUpdate{NotionPageID: &pageID})
}

// SetSlackChannel records the search channel and announces the link.
func (e Engine) SetSlackChannel(ctx context.Context, id, channelID, channelName string) (domain.Session, error) {
	s, err := e.UpdateSession(ctx, id, SessionUpdate{SlackChannelID: &channelID, SlackChannelName: &channelName})
	if err != nil {
		return domain.Session{}, err
	}
	e.emit(ctx, events.Event{Type: events.SessionChannelLinked, Session: s, Payload: map[string]any{"slack_channel_name": channelName}})
	return s, nil
}

// SessionEvents returns the audit log of an existing session.
func (e Engine) SessionEvents(ctx context.Context, id, evtType string, limit int) ([]domain.Event, error) {
	if _, err := e.Repo.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListEvents(ctx, id, evtType, limit)
}

// mutate runs fn on the stored session under the per-session lock and saves
// the result. Lapsed invites are expired first.
func (e Engine) mutate(ctx context.Context, id string, fn func(s *domain.Session) error) (domain.Session, error) {
	unlock := e.lock(id)
	defer unlock()
	s, err := e.Repo.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if s.HMAnswers == nil {
		s.HMAnswers = domain.Answers{}
	}
	expired := e.expireInvites(&s)
	if err := fn(&s); err != nil {
		if errors.Is(err, errNoChange) {
			err = nil
		}
		if expired {
			s.UpdatedAt = e.stamp()
			if saveErr := e.Repo.PutSession(ctx, s); saveErr != nil {
				e.logger().Warn("persist invite expiry failed", "session_id", id, "err", saveErr)
			}
		}
		if err != nil {
			return domain.Session{}, err
		}
		return s, nil
	}
	s.UpdatedAt = e.stamp()
	if err := e.Repo.PutSession(ctx, s); err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	return s, nil
}

// expireInvites marks pending or sent invites past expires_at as expired.
func (e Engine) expireInvites(s *domain.Session) bool {
	now := e.now()
	changed := false
	for i := range s.Invites {
		inv := &s.Invites[i]
		if inv.Status != domain.InvitePending && inv.Status != domain.InviteSent {
			continue
		}
		exp, err := time.Parse(time.RFC3339, inv.ExpiresAt)
		if err != nil || now.Before(exp) {
			continue
		}
		inv.Status = domain.InviteExpired
		changed = true
	}
	return changed
}

type lockSet struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newLockSet() *lockSet {
	return &lockSet{locks: make(map[string]*sessionLock)}
}

var sharedLocks = newLockSet()

func (e Engine) lock(id string) func() {
	set := e.locks
	if set == nil {
		set = sharedLocks
	}
	set.mu.Lock()
	l, ok := set.locks[id]
	if !ok {
		l = &sessionLock{}
		set.locks[id] = l
	}
	l.refs++
	set.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		set.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(set.locks, id)
		}
		set.mu.Unlock()
	}
}
