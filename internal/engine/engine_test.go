package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tapline/internal/config"
	"tapline/internal/db"
	"tapline/internal/domain"
	"tapline/internal/engine"
	"tapline/internal/events"
	"tapline/internal/repo"
	"tapline/internal/store/sqlite"
	"tapline/internal/token"
)

type fakeAnalyst struct {
	mu           sync.Mutex
	analyzeErr   error
	synthErr     error
	analyzeCalls int
	synthCalls   int
	gotHM        domain.Answers
	gotResponses []domain.Response
}

func (f *fakeAnalyst) AnalyzeIntake(ctx context.Context, answers domain.Answers, track domain.Track, jobFamily string) (*domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &domain.Analysis{
		LevelAnalysis: domain.LevelAnalysis{RecommendedLevel: 5, HMRequestedLevel: 5, LevelMatch: true},
		TAPBrief:      domain.TAPBrief{Summary: "Engineering hire for " + jobFamily},
	}, nil
}

func (f *fakeAnalyst) Synthesize(ctx context.Context, hm domain.Answers, responses []domain.Response, prior *domain.Analysis) (*domain.Synthesis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthCalls++
	f.gotHM = hm
	f.gotResponses = responses
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &domain.Synthesis{SlackSummary: "aligned", TapPrivateBrief: "private"}, nil
}

type testEnv struct {
	Engine  engine.Engine
	Analyst *fakeAnalyst
	Bus     *events.Bus
	Clock   *time.Time
	Ctx     context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := sqlite.Open(context.Background(), db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	env := &testEnv{Analyst: &fakeAnalyst{}, Bus: events.NewBus(nil), Ctx: context.Background()}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.Clock = &now
	clock := func() time.Time { return *env.Clock }
	st.Now = clock

	codec, err := token.New("test-secret", token.DefaultTTL)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	codec.Now = clock

	eng := engine.New(repo.Repo{Store: st, TTL: 90 * 24 * time.Hour}, config.Default(), codec, env.Bus)
	eng.Now = clock
	eng.Analyst = env.Analyst
	env.Engine = eng
	return env
}

func intakeAnswers() domain.Answers {
	return domain.Answers{
		"role_title":         "Staff Engineer",
		"tap_name":           "Robin",
		"hm_level_pick":      "L6",
		"hm_level_rationale": "Owns the platform roadmap",
	}
}

func (env *testEnv) createSession(t *testing.T) domain.Session {
	t.Helper()
	s, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{JobFamily: "Software Engineering", HMAnswers: intakeAnswers()})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestCreateSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	if s.Track != domain.TrackEngineering || s.Phase != domain.PhaseIntakeComplete {
		t.Fatalf("unexpected session %+v", s)
	}
	if len(s.Invites) != 0 || len(s.Responses) != 0 || s.Analysis != nil || s.Synthesis != nil {
		t.Fatalf("new session must start empty: %+v", s)
	}
	if s.RoleSchema != 1 || s.TapName != "Robin" || s.HMAnswers["job_family"] != "Software Engineering" {
		t.Fatalf("unexpected stamps: %+v", s)
	}

	_, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{JobFamily: "Legal", HMAnswers: domain.Answers{"hm_level_pick": "L4"}})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing rationale: expected ErrInvalid, got %v", err)
	}
	_, err = env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{HMAnswers: intakeAnswers()})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing job family: expected ErrInvalid, got %v", err)
	}
}

func TestSessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GetSession(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if err := env.Engine.DeleteSession(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
	if _, _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: "missing", Name: "A", RoleType: "dri"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("invite: expected ErrNotFound, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	first := env.createSession(t)
	*env.Clock = env.Clock.Add(time.Hour)
	second := env.createSession(t)
	list, err := env.Engine.ListSessions(env.Ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("unexpected order %v", list)
	}
	if err := env.Engine.DeleteSession(env.Ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = env.Engine.ListSessions(env.Ctx)
	if len(list) != 1 {
		t.Fatalf("expected one session after delete, got %d", len(list))
	}
}

func TestInviteLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)

	inv, link, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "Sam", RoleType: domain.RoleHiringManager})
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if inv.Status != domain.InvitePending || link != "http://localhost:3000/respond/"+inv.Token {
		t.Fatalf("unexpected invite %+v link %s", inv, link)
	}
	s, _ = env.Engine.GetSession(env.Ctx, s.ID)
	if s.Phase != domain.PhaseStakeholdersInvited {
		t.Fatalf("expected stakeholders_invited, got %s", s.Phase)
	}

	if _, _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "X", RoleType: "future_peer"}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("role outside generic set: expected ErrInvalid, got %v", err)
	}

	sent, err := env.Engine.MarkInviteSent(env.Ctx, s.ID, inv.ID)
	if err != nil || sent.Status != domain.InviteSent {
		t.Fatalf("mark sent: %+v %v", sent, err)
	}

	ok, _ := env.Engine.AllInvitesSubmitted(env.Ctx, s.ID)
	if ok {
		t.Fatalf("pending invite must not count as submitted")
	}

	resp, all, err := env.Engine.SubmitByToken(env.Ctx, inv.Token, domain.Answers{"org_area": "Platform"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !all || resp.RoleType != domain.RoleHiringManager {
		t.Fatalf("unexpected submit result %+v all=%v", resp, all)
	}
	s, _ = env.Engine.GetSession(env.Ctx, s.ID)
	if s.Phase != domain.PhaseSynthesisComplete || s.Invites[0].Status != domain.InviteSubmitted || s.Invites[0].SubmittedAt == "" {
		t.Fatalf("unexpected session after last submission %+v", s)
	}

	if _, err := env.Engine.MarkInviteSent(env.Ctx, s.ID, inv.ID); err != nil {
		t.Fatalf("mark sent after submit should be a no-op: %v", err)
	}
	s, _ = env.Engine.GetSession(env.Ctx, s.ID)
	if s.Invites[0].Status != domain.InviteSubmitted {
		t.Fatalf("status regressed to %s", s.Invites[0].Status)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	inv, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "Ada", RoleType: "dri"})
	if _, err := env.Engine.SubmitResponse(env.Ctx, s.ID, inv.ID, domain.Answers{"level_expectation": "L5"}, ""); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := env.Engine.SubmitResponse(env.Ctx, s.ID, inv.ID, domain.Answers{"level_expectation": "L7"}, "")
	if !errors.Is(err, engine.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	s, _ = env.Engine.GetSession(env.Ctx, s.ID)
	if len(s.Responses) != 1 || s.Responses[0].Answers["level_expectation"] != "L5" {
		t.Fatalf("existing response altered: %+v", s.Responses)
	}
	if s.Phase != domain.PhaseSynthesisComplete {
		t.Fatalf("phase changed by rejected submit: %s", s.Phase)
	}
	if _, err := env.Engine.SubmitResponse(env.Ctx, s.ID, "nope", domain.Answers{"a": "b"}, ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown invite: expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.ResolveInvite(env.Ctx, inv.Token); !errors.Is(err, engine.ErrAlreadySubmitted) {
		t.Fatalf("resolve submitted invite: expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestAllInvitesSubmitted(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	if ok, _ := env.Engine.AllInvitesSubmitted(env.Ctx, s.ID); ok {
		t.Fatalf("zero invites must not count as all submitted")
	}
	a, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "A", RoleType: "dri"})
	b, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "B", RoleType: "key_stakeholder"})
	if _, err := env.Engine.SubmitResponse(env.Ctx, s.ID, a.ID, domain.Answers{"x": "y"}, ""); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.Engine.AllInvitesSubmitted(env.Ctx, s.ID); ok {
		t.Fatalf("one outstanding invite remains")
	}
	s, _ = env.Engine.GetSession(env.Ctx, s.ID)
	if s.Phase != domain.PhaseStakeholdersInvited {
		t.Fatalf("phase advanced early: %s", s.Phase)
	}
	if _, err := env.Engine.SubmitResponse(env.Ctx, s.ID, b.ID, domain.Answers{"x": "z"}, ""); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.Engine.AllInvitesSubmitted(env.Ctx, s.ID); !ok {
		t.Fatalf("expected all submitted")
	}
}

func TestPhaseNeverMovesBackward(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	inv, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "A", RoleType: "dri"})
	_, _ = env.Engine.SubmitResponse(env.Ctx, s.ID, inv.ID, domain.Answers{"x": "y"}, "")

	// A later invite reopens collection without rewinding the phase.
	if _, _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "B", RoleType: "dri"}); err != nil {
		t.Fatalf("late invite: %v", err)
	}
	s, _ = env.Engine.GetSession(env.Ctx, s.ID)
	if s.Phase != domain.PhaseSynthesisComplete {
		t.Fatalf("phase went backward to %s", s.Phase)
	}
	back := domain.PhaseIntakeComplete
	if _, err := env.Engine.UpdateSession(env.Ctx, s.ID, engine.SessionUpdate{Phase: &back}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid on backward phase, got %v", err)
	}

	closed, err := env.Engine.CloseSession(env.Ctx, s.ID)
	if err != nil || closed.Phase != domain.PhaseClosed {
		t.Fatalf("close: %+v %v", closed, err)
	}
	if _, _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "C", RoleType: "dri"}); !errors.Is(err, engine.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestInvitesExpireLazily(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	inv, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "A", RoleType: "dri"})
	*env.Clock = env.Clock.Add(token.DefaultTTL + time.Minute)

	if _, err := env.Engine.SubmitResponse(env.Ctx, s.ID, inv.ID, domain.Answers{"x": "y"}, ""); !errors.Is(err, engine.ErrInviteExpired) {
		t.Fatalf("expected ErrInviteExpired, got %v", err)
	}
	if _, _, err := env.Engine.SubmitByToken(env.Ctx, inv.Token, domain.Answers{"x": "y"}); !errors.Is(err, token.ErrInvalid) {
		t.Fatalf("expired token: expected ErrInvalid, got %v", err)
	}
	stored, err := env.Engine.Repo.GetSession(env.Ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Invites[0].Status != domain.InviteExpired {
		t.Fatalf("expiry should be persisted, got %s", stored.Invites[0].Status)
	}
}

func TestIntakeToleratesAnalysisFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Analyst.analyzeErr = errors.New("model overloaded")
	res, err := env.Engine.Intake(env.Ctx, engine.SessionCreateOptions{JobFamily: "Design", HMAnswers: intakeAnswers()})
	if err != nil {
		t.Fatalf("intake must not fail on analysis error: %v", err)
	}
	if res.Session.Analysis != nil || res.AnalysisError == "" {
		t.Fatalf("expected null analysis with error, got %+v", res)
	}
	stored, _ := env.Engine.GetSession(env.Ctx, res.Session.ID)
	if stored.Track != domain.TrackProduct || stored.Analysis != nil {
		t.Fatalf("unexpected stored session %+v", stored)
	}

	env.Analyst.analyzeErr = nil
	res, err = env.Engine.Intake(env.Ctx, engine.SessionCreateOptions{JobFamily: "Design", HMAnswers: intakeAnswers()})
	if err != nil || res.Session.Analysis == nil || res.AnalysisError != "" {
		t.Fatalf("expected analysis recorded: %+v %v", res, err)
	}
	analysis := &domain.Analysis{}
	if _, err := env.Engine.UpdateSession(env.Ctx, res.Session.ID, engine.SessionUpdate{Analysis: analysis}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("analysis is set at most once, got %v", err)
	}
}

func TestSynthesizePreconditions(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	var pre *engine.PreconditionError
	if _, err := env.Engine.Synthesize(env.Ctx, s.ID); !errors.As(err, &pre) || pre.Reason != engine.ReasonAnalysisMissing {
		t.Fatalf("expected analysis_missing, got %v", err)
	}

	res, _ := env.Engine.Intake(env.Ctx, engine.SessionCreateOptions{JobFamily: "Legal", HMAnswers: intakeAnswers()})
	if _, err := env.Engine.Synthesize(env.Ctx, res.Session.ID); !errors.As(err, &pre) || pre.Reason != engine.ReasonNoResponses {
		t.Fatalf("expected no_responses, got %v", err)
	}
	if env.Analyst.synthCalls != 0 {
		t.Fatalf("model must not be called when preconditions fail")
	}
}

func TestSynthesizeMergesHiringManagerResponse(t *testing.T) {
	env := newTestEnv(t)
	res, _ := env.Engine.Intake(env.Ctx, engine.SessionCreateOptions{JobFamily: "Software Engineering", HMAnswers: intakeAnswers()})
	id := res.Session.ID
	hm, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: id, Name: "Sam", RoleType: domain.RoleHiringManager})
	peer, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: id, Name: "Ada", RoleType: "dri"})
	_, _ = env.Engine.SubmitResponse(env.Ctx, id, hm.ID, domain.Answers{"hm_level_pick": "L7", "org_area": "Platform"}, domain.RoleHiringManager)
	_, _ = env.Engine.SubmitResponse(env.Ctx, id, peer.ID, domain.Answers{"level_expectation": "L6"}, "dri")

	s, err := env.Engine.Synthesize(env.Ctx, id)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if s.Synthesis == nil || s.Synthesis.SlackSummary != "aligned" || s.Phase != domain.PhaseSynthesisComplete {
		t.Fatalf("unexpected synthesized session %+v", s)
	}
	if env.Analyst.gotHM["hm_level_pick"] != "L7" || env.Analyst.gotHM["role_title"] != "Staff Engineer" {
		t.Fatalf("hiring manager answers not merged: %v", env.Analyst.gotHM)
	}
	if len(env.Analyst.gotResponses) != 1 || env.Analyst.gotResponses[0].RoleType != "dri" {
		t.Fatalf("hiring manager response must be excluded: %+v", env.Analyst.gotResponses)
	}
}

func TestSynthesizeFailureMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	res, _ := env.Engine.Intake(env.Ctx, engine.SessionCreateOptions{JobFamily: "Legal", HMAnswers: intakeAnswers()})
	inv, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: res.Session.ID, Name: "A", RoleType: "dri"})
	_, _ = env.Engine.SubmitResponse(env.Ctx, res.Session.ID, inv.ID, domain.Answers{"x": "y"}, "")
	before, _ := env.Engine.GetSession(env.Ctx, res.Session.ID)

	env.Analyst.synthErr = errors.New("unparseable")
	*env.Clock = env.Clock.Add(time.Minute)
	if _, err := env.Engine.Synthesize(env.Ctx, res.Session.ID); err == nil {
		t.Fatalf("expected synthesis error")
	}
	after, _ := env.Engine.GetSession(env.Ctx, res.Session.ID)
	if after.Synthesis != nil || after.UpdatedAt != before.UpdatedAt || after.Phase != before.Phase {
		t.Fatalf("failed synthesis mutated the session: %+v", after)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	env := newTestEnv(t)
	var mu sync.Mutex
	var seen []string
	env.Bus.Subscribe("test", func(ctx context.Context, e events.Event) error {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		return nil
	})
	s := env.createSession(t)
	inv, _, _ := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "A", RoleType: "dri"})
	_, _ = env.Engine.SubmitResponse(env.Ctx, s.ID, inv.ID, domain.Answers{"x": "y"}, "")
	env.Bus.Wait()

	counts := map[string]int{}
	for _, typ := range seen {
		counts[typ]++
	}
	for _, typ := range []string{events.SessionCreated, events.InviteCreated, events.ResponseSubmitted} {
		if counts[typ] != 1 {
			t.Fatalf("expected one %s event, got %v", typ, seen)
		}
	}
	log, err := env.Engine.SessionEvents(env.Ctx, s.ID, "", 0)
	if err != nil || len(log) != 3 {
		t.Fatalf("expected 3 audit events, got %d %v", len(log), err)
	}
}

func TestConcurrentSubmissionsToDifferentInvites(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t)
	var ids []string
	for i := 0; i < 5; i++ {
		inv, _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{SessionID: s.ID, Name: "P", RoleType: "key_stakeholder"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, inv.ID)
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := env.Engine.SubmitResponse(env.Ctx, s.ID, id, domain.Answers{"x": id}, ""); err != nil {
				t.Errorf("submit %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
	s, _ = env.Engine.GetSession(env.Ctx, s.ID)
	if len(s.Responses) != 5 || s.Phase != domain.PhaseSynthesisComplete {
		t.Fatalf("lost updates: %d responses, phase %s", len(s.Responses), s.Phase)
	}
}
