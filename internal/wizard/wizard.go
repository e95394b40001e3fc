// Package wizard drives a respondent through a resolved question list one
// question at a time. It performs no I/O; callers run the submission.
package wizard

import (
	"errors"
	"strings"

	"tapline/internal/domain"
	"tapline/internal/questions"
)

type State string

const (
	StateAsking     State = "asking"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
)

var (
	ErrEmptyAnswer   = errors.New("answer required")
	ErrInvalidOption = errors.New("answer is not one of the options")
	ErrNotSkippable  = errors.New("question cannot be skipped")
	ErrWrongState    = errors.New("not accepting input")
)

// Resolver returns the question list for the answers gathered so far.
type Resolver func(answers domain.Answers) []questions.Question

// Static wraps a fixed list as a Resolver.
func Static(qs []questions.Question) Resolver {
	return func(domain.Answers) []questions.Question { return qs }
}

type Wizard struct {
	resolve   Resolver
	questions []questions.Question
	index     int
	answers   domain.Answers
	preset    map[string]bool
	state     State
	err       error
}

// New starts at the first question. preset answers (e.g. job_family) are kept
// on submission even though no question asks for them.
func New(resolve Resolver, preset domain.Answers) *Wizard {
	w := &Wizard{resolve: resolve, answers: domain.Answers{}, preset: map[string]bool{}, state: StateAsking}
	for k, v := range preset {
		w.answers[k] = v
		w.preset[k] = true
	}
	w.questions = resolve(w.answers.Clone())
	if len(w.questions) == 0 {
		w.state = StateReady
	}
	return w
}

func (w *Wizard) State() State { return w.state }

// Err is the last submission error, cleared by the next accepted input.
func (w *Wizard) Err() error { return w.err }

func (w *Wizard) Index() int { return w.index }

func (w *Wizard) Len() int { return len(w.questions) }

func (w *Wizard) Questions() []questions.Question {
	return append([]questions.Question(nil), w.questions...)
}

// Current returns the question being asked.
func (w *Wizard) Current() (questions.Question, bool) {
	if w.state != StateAsking || w.index >= len(w.questions) {
		return questions.Question{}, false
	}
	return w.questions[w.index], true
}

// Draft is the value to pre-fill for the current question: the previous
// answer for text questions, blank for selects.
func (w *Wizard) Draft() string {
	q, ok := w.Current()
	if !ok || q.Kind == questions.KindSelect {
		return ""
	}
	return w.answers[q.ID]
}

// Answers returns the answers for the questions currently resolved plus presets.
func (w *Wizard) Answers() domain.Answers {
	out := domain.Answers{}
	for k := range w.preset {
		out[k] = w.answers[k]
	}
	for _, q := range w.questions {
		if v, ok := w.answers[q.ID]; ok {
			out[q.ID] = v
		}
	}
	return out
}

// Answer records v for the current question and advances.
func (w *Wizard) Answer(v string) error {
	q, ok := w.Current()
	if !ok {
		return ErrWrongState
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return ErrEmptyAnswer
	}
	if q.Kind == questions.KindSelect && !contains(q.Options, v) {
		return ErrInvalidOption
	}
	w.record(q.ID, v)
	return nil
}

// Skip stores the not-specified sentinel for an optional text question.
func (w *Wizard) Skip() error {
	q, ok := w.Current()
	if !ok {
		return ErrWrongState
	}
	if !q.Optional || q.Kind == questions.KindSelect {
		return ErrNotSkippable
	}
	w.record(q.ID, questions.NotSpecified)
	return nil
}

func (w *Wizard) record(id, v string) {
	w.err = nil
	w.answers[id] = v
	w.questions = w.resolve(w.answers.Clone())
	w.index = len(w.questions)
	for i, q := range w.questions {
		if q.ID == id {
			w.index = i + 1
			break
		}
	}
	if w.index >= len(w.questions) {
		w.state = StateReady
	}
}

// Back returns to the previous question. From ready it reopens the last one.
func (w *Wizard) Back() bool {
	switch w.state {
	case StateReady:
		if len(w.questions) == 0 {
			return false
		}
		w.state = StateAsking
		w.index = len(w.questions) - 1
		return true
	case StateAsking:
		if w.index == 0 {
			return false
		}
		w.index--
		return true
	default:
		return false
	}
}

// BeginSubmit moves to submitting and returns the answers to send. It reports
// false while a submission is already in flight or questions remain.
func (w *Wizard) BeginSubmit() (domain.Answers, bool) {
	if w.state != StateReady {
		return nil, false
	}
	w.state = StateSubmitting
	w.err = nil
	return w.Answers(), true
}

func (w *Wizard) SubmitSucceeded() {
	if w.state == StateSubmitting {
		w.state = StateDone
	}
}

// SubmitFailed returns to the last question with err surfaced; answers are kept.
func (w *Wizard) SubmitFailed(err error) {
	if w.state != StateSubmitting {
		return
	}
	w.err = err
	if len(w.questions) == 0 {
		w.state = StateReady
		return
	}
	w.state = StateAsking
	w.index = len(w.questions) - 1
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
