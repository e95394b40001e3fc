package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"tapline/internal/analysis"
	"tapline/internal/config"
	"tapline/internal/domain"
	"tapline/internal/engine"
	"tapline/internal/repo"
	"tapline/internal/store"
	"tapline/internal/token"
)

type fakeAnalyst struct {
	mu         sync.Mutex
	analyzeErr error
	synthErr   error
}

func (f *fakeAnalyst) AnalyzeIntake(_ context.Context, answers domain.Answers, _ domain.Track, _ string) (*domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	lvl, _ := domain.ParseLevel(answers["hm_level_pick"])
	return &domain.Analysis{
		LevelAnalysis: domain.LevelAnalysis{RecommendedLevel: lvl, HMRequestedLevel: lvl, LevelMatch: true},
		Tensions:      []domain.Tension{},
		TAPBrief:      domain.TAPBrief{Summary: "Clear scope."},
	}, nil
}

func (f *fakeAnalyst) Synthesize(_ context.Context, _ domain.Answers, responses []domain.Response, _ *domain.Analysis) (*domain.Synthesis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &domain.Synthesis{
		LevelSpread:     []domain.LevelSpreadEntry{},
		SlackSummary:    fmt.Sprintf("%d stakeholders aligned.", len(responses)),
		TapPrivateBrief: "private",
	}, nil
}

type testServer struct {
	*httptest.Server
	analyst *fakeAnalyst
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	codec, err := token.New("test-secret", token.DefaultTTL)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	e := engine.New(repo.Repo{Store: store.NewMemory()}, config.Default(), codec, nil)
	fa := &fakeAnalyst{}
	e.Analyst = fa
	cfg := Config{Engine: e, BasePath: "/v0", SlackEnabled: true}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, analyst: fa}
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, data)
	}
	return env.Error.Code, env.Error.Details
}

func intakeBody() map[string]any {
	return map[string]any{
		"job_family": "Software Engineering",
		"tap_name":   "Robin",
		"hm_answers": map[string]string{
			"role_title":         "Staff Engineer",
			"hm_level_pick":      "L6",
			"hm_level_rationale": "Owns the platform",
		},
	}
}

func (s *testServer) createSession(t *testing.T) CreateSessionResponse {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, s.URL+"/v0/sessions", intakeBody(), nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session status %d: %s", res.StatusCode, data)
	}
	var out CreateSessionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return out
}

func (s *testServer) invite(t *testing.T, sessionID, name, role, slackUser string) CreateInviteResponse {
	t.Helper()
	res, data := doJSON(t, http.MethodPost, s.URL+"/v0/sessions/"+sessionID+"/invites", map[string]any{
		"name": name, "role_type": role, "slack_user_id": slackUser,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("invite status %d: %s", res.StatusCode, data)
	}
	var out CreateInviteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode invite: %v", err)
	}
	return out
}

func TestHealthAndQuestions(t *testing.T) {
	srv := newTestServer(t, nil)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"ok"`) {
		t.Fatalf("health %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/questions?job_family=Design", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("questions %d: %s", res.StatusCode, data)
	}
	var qs QuestionsResponse
	_ = json.Unmarshal(data, &qs)
	if qs.Track != "product" || len(qs.Questions) == 0 || qs.Questions[0].ID != "role_title" {
		t.Fatalf("unexpected intake questions %+v", qs)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/questions?role=dri&relationship=dri", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("respondent questions %d: %s", res.StatusCode, data)
	}
	qs = QuestionsResponse{}
	_ = json.Unmarshal(data, &qs)
	if len(qs.Questions) != 6 {
		t.Fatalf("expected relationship + 2 follow-ups + 3 core, got %d", len(qs.Questions))
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/questions", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.StatusCode)
	}
	if code, _ := errorCode(t, data); code != "bad_request" {
		t.Fatalf("unexpected code %q", code)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/questions?role=ceo", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role: expected 400, got %d", res.StatusCode)
	}
}

func TestIntakeToSynthesis(t *testing.T) {
	srv := newTestServer(t, nil)
	created := srv.createSession(t)
	if created.Track != domain.TrackEngineering || created.Phase != domain.PhaseIntakeComplete {
		t.Fatalf("unexpected session %+v", created)
	}
	if created.Analysis == nil || created.Analysis.LevelAnalysis.RecommendedLevel != 6 {
		t.Fatalf("analysis missing: %+v", created)
	}

	inv := srv.invite(t, created.SessionID, "Ana", "dri", "U1")
	if !inv.SlackSent || inv.Token == "" || !strings.HasSuffix(inv.FormLink, "/respond/"+inv.Token) {
		t.Fatalf("unexpected invite %+v", inv)
	}
	plain := srv.invite(t, created.SessionID, "Ben", "key_stakeholder", "")
	if plain.SlackSent {
		t.Fatalf("slack_sent without a slack user")
	}

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/respond/"+inv.Token, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("respond form %d: %s", res.StatusCode, data)
	}
	var form RespondFormResponse
	_ = json.Unmarshal(data, &form)
	if form.StakeholderName != "Ana" || form.RoleTitle != "Staff Engineer" || form.RequesterName != "Robin" {
		t.Fatalf("unexpected form %+v", form)
	}
	if len(form.Questions) != 4 || len(form.FollowUps) != 4 {
		t.Fatalf("expected relationship + core and four follow-up branches, got %d/%d", len(form.Questions), len(form.FollowUps))
	}

	answers := map[string]any{"answers": map[string]string{"relationship": "dri", "level_expectation": "L6"}}
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/respond/"+inv.Token, answers, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit %d: %s", res.StatusCode, data)
	}
	var submitted SubmitResponseResponse
	_ = json.Unmarshal(data, &submitted)
	if submitted.ResponseID == "" || submitted.AllSubmitted {
		t.Fatalf("unexpected submit result %+v", submitted)
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/respond/"+inv.Token, answers, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate submit: expected 409, got %d", res.StatusCode)
	}
	if code, _ := errorCode(t, data); code != "already_submitted" {
		t.Fatalf("unexpected code %q", code)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/respond/"+inv.Token, nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("form after submit: expected 409, got %d", res.StatusCode)
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/respond/"+plain.Token, answers, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("second submit %d: %s", res.StatusCode, data)
	}
	submitted = SubmitResponseResponse{}
	_ = json.Unmarshal(data, &submitted)
	if !submitted.AllSubmitted {
		t.Fatalf("expected all_submitted")
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/sessions/"+created.SessionID+"/synthesize", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("synthesize %d: %s", res.StatusCode, data)
	}
	var synth SynthesizeResponse
	_ = json.Unmarshal(data, &synth)
	if synth.Phase != domain.PhaseSynthesisComplete || synth.Synthesis == nil || synth.Synthesis.SlackSummary != "2 stakeholders aligned." {
		t.Fatalf("unexpected synthesis %+v", synth)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/sessions/"+created.SessionID+"/events?type=response.submitted", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events %d: %s", res.StatusCode, data)
	}
	var evts []domain.Event
	_ = json.Unmarshal(data, &evts)
	if len(evts) != 2 {
		t.Fatalf("expected two submission events, got %d", len(evts))
	}
	if strings.Contains(string(data), inv.Token) {
		t.Fatalf("audit log leaked an invite token")
	}
}

func TestSynthesisPreconditions(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.analyst.analyzeErr = fmt.Errorf("%w: boom", analysis.ErrModelUnavailable)
	noAnalysis := srv.createSession(t)
	if noAnalysis.Analysis != nil || noAnalysis.AnalysisError == "" {
		t.Fatalf("analysis failure should be reported, got %+v", noAnalysis)
	}

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/sessions/"+noAnalysis.SessionID+"/synthesize", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, data)
	}
	code, details := errorCode(t, data)
	if code != "precondition_failed" || details["reason"] != engine.ReasonAnalysisMissing {
		t.Fatalf("unexpected error %s %v", code, details)
	}

	srv.analyst.analyzeErr = nil
	withAnalysis := srv.createSession(t)
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/sessions/"+withAnalysis.SessionID+"/synthesize", nil, nil)
	code, details = errorCode(t, data)
	if res.StatusCode != http.StatusBadRequest || details["reason"] != engine.ReasonNoResponses {
		t.Fatalf("expected no_responses, got %d %s %v", res.StatusCode, code, details)
	}
}

func TestSynthesisModelFailure(t *testing.T) {
	srv := newTestServer(t, nil)
	created := srv.createSession(t)
	inv := srv.invite(t, created.SessionID, "Ana", "dri", "")
	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/respond/"+inv.Token, map[string]any{"answers": map[string]string{"level_expectation": "L6"}}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit %d", res.StatusCode)
	}

	srv.analyst.synthErr = fmt.Errorf("%w: 529 overloaded", analysis.ErrModelUnavailable)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/sessions/"+created.SessionID+"/synthesize", nil, nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.StatusCode)
	}
	if code, _ := errorCode(t, data); code != "model_unavailable" {
		t.Fatalf("unexpected code %q", code)
	}

	srv.analyst.synthErr = fmt.Errorf("%w: no JSON object", analysis.ErrUnparseable)
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/sessions/"+created.SessionID+"/synthesize", nil, nil)
	if code, _ := errorCode(t, data); res.StatusCode != http.StatusBadGateway || code != "unparseable_model_output" {
		t.Fatalf("expected unparseable_model_output, got %d %s", res.StatusCode, code)
	}

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/sessions/"+created.SessionID, nil, nil)
	var s domain.Session
	_ = json.Unmarshal(data, &s)
	if res.StatusCode != http.StatusOK || s.Synthesis != nil {
		t.Fatalf("failed synthesis must not mutate the session: %+v", s.Synthesis)
	}
}

func TestInvalidTokens(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/respond/not-a-token", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "invalid_token" || env.Error.Message != "Invalid or expired link" {
		t.Fatalf("unexpected envelope %+v", env.Error)
	}

	other, _ := token.New("other-secret", token.DefaultTTL)
	forged, _, _ := other.Issue(token.Claims{InviteID: "i", SessionID: "s", RoleType: "dri"})
	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v0/respond/"+forged, map[string]any{"answers": map[string]string{}}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token: expected 401, got %d", res.StatusCode)
	}
}

func TestSessionLifecycleRoutes(t *testing.T) {
	srv := newTestServer(t, nil)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/sessions/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
	if code, _ := errorCode(t, data); code != "not_found" {
		t.Fatalf("unexpected code %q", code)
	}

	body := intakeBody()
	delete(body["hm_answers"].(map[string]string), "hm_level_rationale")
	res, _ = doJSON(t, http.MethodPost, srv.URL+"/v0/sessions", body, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing rationale: expected 400, got %d", res.StatusCode)
	}

	first := srv.createSession(t)
	second := srv.createSession(t)
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/sessions", nil, nil)
	var list []domain.Session
	_ = json.Unmarshal(data, &list)
	if res.StatusCode != http.StatusOK || len(list) != 2 {
		t.Fatalf("list %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/sessions/"+first.SessionID+"/close", nil, nil)
	var closed domain.Session
	_ = json.Unmarshal(data, &closed)
	if res.StatusCode != http.StatusOK || closed.Phase != domain.PhaseClosed {
		t.Fatalf("close %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/sessions/"+first.SessionID+"/invites", map[string]any{"name": "Late", "role_type": "dri"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("invite on closed session: expected 409, got %d: %s", res.StatusCode, data)
	}

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v0/sessions/"+second.SessionID, nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v0/sessions/"+second.SessionID, nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", res.StatusCode)
	}
}

func TestAdminKey(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.AdminKey = "admin-k" })

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/sessions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
	if code, _ := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("unexpected code %q", code)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/sessions", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key: expected 401, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/sessions", nil, map[string]string{"X-Api-Key": "admin-k"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key: expected 200, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/sessions", nil, map[string]string{"Authorization": "Bearer admin-k"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", res.StatusCode)
	}
	for _, public := range []string{"/v0/health", "/v0/questions?job_family=Legal"} {
		res, _ = doJSON(t, http.MethodGet, srv.URL+public, nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s should be public, got %d", public, res.StatusCode)
		}
	}
}

func TestOpenAPIAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "tapline_events_total 0\n")
	})
	srv := newTestServer(t, func(c *Config) { c.Metrics = metrics })

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "/v0/sessions/{id}/synthesize") {
		t.Fatalf("openapi %d", res.StatusCode)
	}
	res, data = doJSON(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "tapline_events_total") {
		t.Fatalf("metrics %d: %s", res.StatusCode, data)
	}
}
