package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransition EventType = "transition"
	EventRejected   EventType = "transition_rejected"
)

// TransitionEvent describes a state change (or a refused one) of a named machine.
type TransitionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Machine   string    `json:"machine"`
	From      string    `json:"from"`
	To        string    `json:"to"`
}

// TransitionHooks defines callbacks for machine observability.
// Hooks run synchronously on the goroutine that requested the transition and
// must not call back into the machine.
type TransitionHooks struct {
	OnTransition func(context.Context, *TransitionEvent)
	OnRejected   func(context.Context, *TransitionEvent)
}

// Merge returns hooks that invoke h first and then other.
func (h TransitionHooks) Merge(other TransitionHooks) TransitionHooks {
	return TransitionHooks{
		OnTransition: chain(h.OnTransition, other.OnTransition),
		OnRejected:   chain(h.OnRejected, other.OnRejected),
	}
}

func chain(a, b func(context.Context, *TransitionEvent)) func(context.Context, *TransitionEvent) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *TransitionEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
