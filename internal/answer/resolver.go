package answer

import (
	"context"
	"log/slog"
	"time"

	"github.com/durkdan/messenger-gpt/internal/config"
	"github.com/durkdan/messenger-gpt/internal/events"
)

// Status classifies the outcome of a resolve call.
type Status int

const (
	// StatusOK means a known shape matched and Text carries the answer.
	StatusOK Status = iota
	// StatusProviderError means the provider answered with a semantic
	// error (or an unrecognized shape). Terminal: never retried.
	StatusProviderError
	// StatusUnreachable means every attempt failed at the transport
	// level and the retry budget is exhausted.
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusProviderError:
		return "provider_error"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Result is the normalized outcome of one resolve call.
type Result struct {
	Status  Status
	Text    string // answer text when Status == StatusOK
	Message string // provider error message when Status == StatusProviderError
	Shape   string // which shape matcher classified the body
}

// Resolver calls the provider with a bounded retry budget and
// normalizes the heterogeneous response shapes into a Result. It keeps
// no state between calls and never caches answers.
type Resolver struct {
	provider       Provider
	retries        int
	attemptTimeout time.Duration
	backoff        time.Duration
	logger         *slog.Logger
	bus            *events.Bus
}

// NewResolver builds a resolver. Retry budget and timeouts come from
// configuration; the defaults are 2 retries (3 attempts), a 10s
// per-attempt timeout, and a fixed 1s backoff between attempts.
func NewResolver(provider Provider, cfg config.ResolverConfig, logger *slog.Logger, bus *events.Bus) *Resolver {
	return &Resolver{
		provider:       provider,
		retries:        cfg.Retries,
		attemptTimeout: time.Duration(cfg.AttemptTimeoutSec) * time.Second,
		backoff:        time.Duration(cfg.BackoffSec) * time.Second,
		logger:         logger,
		bus:            bus,
	}
}

// Resolve sends the prompt upstream and returns a normalized result.
// Transport failures are retried with a fixed backoff until the budget
// runs out, then surface as StatusUnreachable. Any received body is
// terminal, whatever its shape: semantic errors are not transient
// faults and retrying them would only burn quota.
func (r *Resolver) Resolve(ctx context.Context, prompt string) Result {
	attempts := r.retries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		body, err := r.provider.Generate(attemptCtx, prompt)
		cancel()

		if err == nil {
			res := probeShapes(body)
			r.logger.Debug("resolve completed",
				"status", res.Status.String(),
				"shape", res.Shape,
				"attempts", attempt,
			)
			r.bus.Publish(events.Event{
				Source: events.SourceResolver,
				Kind:   events.KindResolveDone,
				Data:   map[string]any{"status": res.Status.String(), "attempts": attempt},
			})
			return res
		}

		r.logger.Warn("provider attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)
		r.bus.Publish(events.Event{
			Source: events.SourceResolver,
			Kind:   events.KindResolveRetry,
			Data:   map[string]any{"attempt": attempt, "error": err.Error()},
		})

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			// Parent gave up; no point sleeping out the backoff.
			r.publishUnreachable(attempt)
			return Result{Status: StatusUnreachable}
		case <-time.After(r.backoff):
		}
	}

	r.publishUnreachable(attempts)
	return Result{Status: StatusUnreachable}
}

func (r *Resolver) publishUnreachable(attempts int) {
	r.bus.Publish(events.Event{
		Source: events.SourceResolver,
		Kind:   events.KindResolveDone,
		Data:   map[string]any{"status": StatusUnreachable.String(), "attempts": attempts},
	})
}
