package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"tapline/internal/domain"
	"tapline/internal/questions"
	"tapline/internal/wizard"
	taplinesdk "tapline/sdk/go"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(Model)
	}
	return m, cmd
}

func sample() []questions.Question {
	return []questions.Question{
		{ID: "title", Label: "Title?", Kind: questions.KindText},
		{ID: "level", Label: "Level?", Kind: questions.KindSelect, Options: []string{"L5", "L6"}},
		{ID: "notes", Label: "Notes?", Kind: questions.KindTextarea, Optional: true},
	}
}

func TestModelCollectsAndSubmits(t *testing.T) {
	var got domain.Answers
	m := New("Test", wizard.New(wizard.Static(sample()), domain.Answers{"job_family": "Design"}), func(_ context.Context, a domain.Answers) (string, error) {
		got = a
		return "ok", nil
	})

	m, _ = press(t, m, "enter")
	if m.err != wizard.ErrEmptyAnswer {
		t.Fatalf("expected empty answer error, got %v", m.err)
	}
	m, _ = press(t, m, "Staff", "enter", "down", "enter", "tab")
	if m.wiz.State() != wizard.StateReady {
		t.Fatalf("expected ready, got %s", m.wiz.State())
	}
	if !strings.Contains(m.View(), "All 3 questions answered") {
		t.Fatalf("unexpected ready view:\n%s", m.View())
	}

	m, cmd := press(t, m, "enter")
	if cmd == nil || m.wiz.State() != wizard.StateSubmitting {
		t.Fatalf("expected a submit command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if !m.Done() || m.Result() != "ok" {
		t.Fatalf("expected done, state=%s", m.wiz.State())
	}
	want := domain.Answers{"job_family": "Design", "title": "Staff", "level": "L6", "notes": questions.NotSpecified}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("answer %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestModelSubmitFailureKeepsAnswers(t *testing.T) {
	calls := 0
	m := New("Test", wizard.New(wizard.Static(sample()[:1]), nil), func(context.Context, domain.Answers) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("503 unavailable")
		}
		return "ok", nil
	})
	m, _ = press(t, m, "x", "enter")
	m, cmd := press(t, m, "enter")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.wiz.State() != wizard.StateAsking || m.input.Value() != "x" {
		t.Fatalf("failure should return to the last question with its draft, state=%s value=%q", m.wiz.State(), m.input.Value())
	}
	if !strings.Contains(m.View(), "503 unavailable") {
		t.Fatalf("error not surfaced:\n%s", m.View())
	}

	m, _ = press(t, m, "enter")
	m, cmd = press(t, m, "enter")
	next, _ = m.Update(cmd())
	if !next.(Model).Done() || calls != 2 {
		t.Fatalf("retry should succeed")
	}
}

func TestModelIgnoresKeysWhileSubmitting(t *testing.T) {
	m := New("Test", wizard.New(wizard.Static(sample()[:1]), nil), func(context.Context, domain.Answers) (string, error) {
		return "ok", nil
	})
	m, _ = press(t, m, "x", "enter")
	m, cmd := press(t, m, "enter")
	if cmd == nil {
		t.Fatalf("expected submit command")
	}
	m, cmd = press(t, m, "enter")
	if cmd != nil || m.wiz.State() != wizard.StateSubmitting {
		t.Fatalf("second enter must not start another submission")
	}
}

func TestFormResolverSplicesFollowUps(t *testing.T) {
	form := taplinesdk.RespondForm{
		Questions: []taplinesdk.Question{
			{ID: questions.RelationshipID, Kind: "select", Options: []string{"a", "b"}},
			{ID: "level_expectation", Kind: "select", Options: []string{"L6"}},
		},
		FollowUps: map[string][]taplinesdk.Question{
			"a": {{ID: "fa", Kind: "textarea"}},
			"b": {{ID: "fb1", Kind: "text"}, {ID: "fb2", Kind: "text"}},
		},
	}
	resolve := formResolver(form)
	if got := resolve(domain.Answers{}); len(got) != 2 {
		t.Fatalf("expected base questions only, got %d", len(got))
	}
	got := resolve(domain.Answers{questions.RelationshipID: "b"})
	ids := make([]string, len(got))
	for i, q := range got {
		ids[i] = q.ID
	}
	if strings.Join(ids, ",") != "relationship,fb1,fb2,level_expectation" {
		t.Fatalf("unexpected order %v", ids)
	}
}

func TestIntakeSummary(t *testing.T) {
	res := taplinesdk.IntakeResult{SessionID: "s1", Analysis: []byte(`{"level_analysis":{"recommended_level":6},"tensions":[{"title":"x"}]}`)}
	if got := intakeSummary(res); got != "Session s1 created. Recommended level L6, 1 tension(s) flagged." {
		t.Fatalf("unexpected summary %q", got)
	}
	res = taplinesdk.IntakeResult{SessionID: "s2", AnalysisError: "model unavailable"}
	if got := intakeSummary(res); !strings.Contains(got, "Analysis unavailable") {
		t.Fatalf("unexpected summary %q", got)
	}
}
