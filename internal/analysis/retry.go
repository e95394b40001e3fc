package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// linearBackOff waits attempt*step between tries.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// IsOverloaded reports whether a provider error is a transient capacity
// failure worth retrying.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "529") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded")
}

// generate calls the model, retrying only overload failures.
func (o *Orchestrator) generate(ctx context.Context, kind, prompt string, maxTokens int) (string, error) {
	attempts := o.Attempts
	if attempts < 1 {
		attempts = 1
	}
	op := func() (string, error) {
		callCtx, cancel := o.callContext(ctx)
		defer cancel()
		text, err := o.Model.Generate(callCtx, SystemPrompt(), prompt, maxTokens)
		if err == nil {
			return text, nil
		}
		if IsOverloaded(err) {
			return "", err
		}
		return "", backoff.Permanent(err)
	}
	text, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{step: o.Step}),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			o.observe(kind, OutcomeRetry)
			o.logger().Warn("model overloaded, retrying", "kind", kind, "wait", wait, "err", err)
		}),
	)
	if err != nil {
		o.observe(kind, OutcomeUnavailable)
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return text, nil
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.CallTimeout)
}
