package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultHandlerTimeout = 30 * time.Second

// Handler reacts to one event. Returned errors are logged, never propagated.
type Handler func(ctx context.Context, e Event) error

type subscription struct {
	name    string
	handler Handler
	filter  Filter
}

// Bus fans events out to subscribers on their own goroutines.
type Bus struct {
	Logger  *slog.Logger
	Timeout time.Duration

	mu   sync.RWMutex
	subs []subscription
	wg   sync.WaitGroup
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{Logger: logger}
}

func (b *Bus) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Subscribe registers h for the given event types, or every type when none are given.
func (b *Bus) Subscribe(name string, h Handler, types ...string) {
	b.mu.Lock()
	b.subs = append(b.subs, subscription{name: name, handler: h, filter: NewFilter(types)})
	b.mu.Unlock()
}

// Publish returns immediately; handlers run detached from the caller's context.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter.Match(e.Type) {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	for _, s := range subs {
		b.wg.Add(1)
		go b.run(s, e, timeout)
	}
}

func (b *Bus) run(s subscription, e Event, timeout time.Duration) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger().Error("event handler panicked", "handler", s.name, "type", e.Type, "session_id", e.SessionID, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.handler(ctx, e); err != nil {
		b.logger().Warn("event handler failed", "handler", s.name, "type", e.Type, "session_id", e.SessionID, "err", err)
	}
}

// Wait blocks until every handler started so far has returned.
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

// Filter matches event types; an empty filter matches everything.
type Filter struct {
	all bool
	set map[string]struct{}
}

func NewFilter(types []string) Filter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return Filter{all: true}
	}
	return Filter{set: set}
}

func (f Filter) Match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
