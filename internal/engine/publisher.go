package engine

import (
	"context"
	"time"

	"github.com/jaa/resource-fetcher/internal/output"
	"github.com/rs/zerolog"
)

// EventSource is the consumer side of an aggregator.
type EventSource interface {
	Next(ctx context.Context) (Envelope, bool)
}

// Publisher republishes decoded worker events as notifications. Delivery is
// fire-and-forget: emitter failures are logged and dropped.
type Publisher struct {
	SessionID string
	Emitter   output.EventEmitter
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Run consumes source until it is exhausted or ctx ends and returns the
// number of events handed to the emitter.
func (p *Publisher) Run(ctx context.Context, source EventSource) int {
	published := 0
	for {
		env, ok := source.Next(ctx)
		if !ok {
			return published
		}
		p.Publish(env)
		published++
	}
}

func (p *Publisher) Publish(env Envelope) {
	if p.Emitter == nil || env.Event == nil {
		return
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	notification := output.FromProgress(p.SessionID, now(), env.Event)
	if err := p.Emitter.Emit(notification); err != nil {
		p.Logger.Debug().
			Err(err).
			Str("stream", string(env.Stream)).
			Str("event", string(notification.Event)).
			Msg("notification delivery failed")
	}
}
