// Package fsm implements the guarded finite-state machine both settle engines are
// built on: an enumerated state set, a transition table and a current state that
// changes only through explicit, validated transition requests.
//
// A Machine never resets itself and owns no timers or locks; owners serialize
// access.
package fsm

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/settle/pkg/domain"
)

// State is the constraint for state labels.
type State interface {
	comparable
	fmt.Stringer
}

// Table maps each state to the states directly reachable from it.
type Table[S State] map[S][]S

// Allows reports whether to is directly reachable from from.
func (t Table[S]) Allows(from, to S) bool {
	return slices.Contains(t[from], to)
}

// Machine holds the current state of one logical device or session.
type Machine[S State] struct {
	name    string
	table   Table[S]
	current S
	hooks   domain.TransitionHooks
	now     func() time.Time
}

type options struct {
	hooks domain.TransitionHooks
	now   func() time.Time
}

// Option configures a Machine.
type Option func(*options)

// WithHooks registers observability hooks.
func WithHooks(hooks domain.TransitionHooks) Option {
	return func(o *options) {
		o.hooks = o.hooks.Merge(hooks)
	}
}

// WithNow overrides the timestamp source of emitted events.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New returns a machine in initial. It panics if initial has no entry in the
// table, as that is a construction bug rather than a runtime condition.
func New[S State](name string, table Table[S], initial S, opts ...Option) *Machine[S] {
	if _, ok := table[initial]; !ok {
		panic(fmt.Sprintf("fsm %s: initial state %s missing from table", name, initial))
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Machine[S]{
		name:    name,
		table:   table,
		current: initial,
		hooks:   o.hooks,
		now:     o.now,
	}
}

// Name returns the machine name used in errors and events.
func (m *Machine[S]) Name() string {
	return m.name
}

// Current returns the current state.
func (m *Machine[S]) Current() S {
	return m.current
}

// Is reports whether the machine is in s.
func (m *Machine[S]) Is(s S) bool {
	return m.current == s
}

// CanTransition reports whether to is reachable from the current state.
func (m *Machine[S]) CanTransition(to S) bool {
	return m.table.Allows(m.current, to)
}

// Allowed returns the states reachable from the current state.
func (m *Machine[S]) Allowed() []S {
	return slices.Clone(m.table[m.current])
}

// Transition moves to the given state. See TransitionContext.
func (m *Machine[S]) Transition(to S) error {
	return m.TransitionContext(context.Background(), to)
}

// TransitionContext moves to the given state if the table allows it. Otherwise it
// returns an *domain.InvalidTransitionError and the current state is unchanged.
func (m *Machine[S]) TransitionContext(ctx context.Context, to S) error {
	from := m.current
	if !m.table.Allows(from, to) {
		if m.hooks.OnRejected != nil {
			m.hooks.OnRejected(ctx, m.event(domain.EventRejected, from, to))
		}
		return &domain.InvalidTransitionError{Machine: m.name, From: from.String(), To: to.String()}
	}
	m.current = to
	if m.hooks.OnTransition != nil {
		m.hooks.OnTransition(ctx, m.event(domain.EventTransition, from, to))
	}
	return nil
}

func (m *Machine[S]) event(typ domain.EventType, from, to S) *domain.TransitionEvent {
	return &domain.TransitionEvent{
		Timestamp: m.now(),
		Type:      typ,
		Machine:   m.name,
		From:      from.String(),
		To:        to.String(),
	}
}
