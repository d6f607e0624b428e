package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/settle/pkg/clock"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/fsm"
	"github.com/aretw0/settle/pkg/pending"
	"github.com/aretw0/settle/pkg/ports"
	"github.com/google/uuid"
)

// ErrAborted fails a session ended by Reset or by its caller giving up.
var ErrAborted = errors.New("acquisition aborted")

var acquisitionTable = fsm.Table[domain.AcquisitionState]{
	domain.AcquisitionIdle:      {domain.AcquisitionTriggered, domain.AcquisitionFailed},
	domain.AcquisitionTriggered: {domain.AcquisitionAcquire, domain.AcquisitionFailed},
	domain.AcquisitionAcquire:   {domain.AcquisitionValidate, domain.AcquisitionFailed},
	domain.AcquisitionValidate:  {domain.AcquisitionFinished, domain.AcquisitionFailed},
	domain.AcquisitionFinished:  {domain.AcquisitionIdle, domain.AcquisitionFailed},
	domain.AcquisitionFailed:    {domain.AcquisitionIdle},
}

// Signals are the three detector values an Engine watches.
type Signals[P any] struct {
	Ready   ports.Signal[bool]
	Counter ports.Signal[int64]
	Payload ports.Signal[P]
}

// Reading is the result of a successful session.
type Reading[P any] struct {
	SessionID string
	Payload   P
	Counter   int64
	Timestamp time.Time
	Elapsed   time.Duration
	// WindowResets counts validation windows restarted by late updates.
	WindowResets int
}

type signalKind int

const (
	signalReady signalKind = iota
	signalCounter
	signalPayload
)

func (k signalKind) String() string {
	return [...]string{"ready", "counter", "payload"}[k]
}

type event struct {
	kind  signalKind
	ready ports.Update[bool]
	at    time.Time
}

type handler[P any] func(s *session[P], ev event) error

type session[P any] struct {
	id         string
	started    time.Time
	timeout    time.Duration
	validation time.Duration
	generation uint64
	resets     int
	closed     bool
	result     *pending.Result[Reading[P]]

	subMu    sync.Mutex
	released bool
	releases []func()
}

// hold registers an unsubscribe. Once the session is released it runs at once.
func (s *session[P]) hold(release func()) {
	s.subMu.Lock()
	if s.released {
		s.subMu.Unlock()
		release()
		return
	}
	s.releases = append(s.releases, release)
	s.subMu.Unlock()
}

// releaseSubscriptions runs the held unsubscribes once and reports how many ran.
func (s *session[P]) releaseSubscriptions() int {
	s.subMu.Lock()
	if s.released {
		s.subMu.Unlock()
		return 0
	}
	s.released = true
	releases := s.releases
	s.releases = nil
	s.subMu.Unlock()

	for _, r := range releases {
		r()
	}
	return len(releases)
}

// Engine coordinates one detector. It runs at most one session at a time and is
// safe for concurrent use: signal updates, deferred checks and timeouts are
// serialized by an internal lock. Signal I/O (Subscribe, Get, Unsubscribe) runs
// outside that lock, so a slow transport never delays the timeout.
type Engine[P any] struct {
	name     string
	signals  Signals[P]
	clock    clock.Clock
	logger   *slog.Logger
	policy   CounterPolicy
	observer Observer
	locker   ports.Locker

	mu       sync.Mutex
	machine  *fsm.Machine[domain.AcquisitionState]
	session  *session[P]
	handlers [domain.NumAcquisitionStates]handler[P]
}

// New creates an idle engine watching signals.
func New[P any](signals Signals[P], opts ...Option) (*Engine[P], error) {
	c := defaults()
	for _, opt := range opts {
		opt(&c)
	}
	if signals.Ready == nil || signals.Counter == nil || signals.Payload == nil {
		return nil, fmt.Errorf("%s: ready, counter and payload signals are required", c.name)
	}

	logger := c.logger.With("engine", c.name)
	hooks := domain.TransitionHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.Debug("acquisition state changed", "from", e.From, "to", e.To)
		},
	}.Merge(c.hooks)

	e := &Engine[P]{
		name:     c.name,
		signals:  signals,
		clock:    c.clock,
		logger:   logger,
		policy:   c.policy,
		observer: c.observer,
		locker:   c.locker,
		machine:  fsm.New(c.name, acquisitionTable, domain.AcquisitionIdle, fsm.WithHooks(hooks), fsm.WithNow(c.clock.Now)),
	}
	e.handlers = [domain.NumAcquisitionStates]handler[P]{
		domain.AcquisitionIdle:      e.unexpected,
		domain.AcquisitionTriggered: e.onTriggered,
		domain.AcquisitionAcquire:   e.onAcquire,
		domain.AcquisitionValidate:  e.onValidate,
		domain.AcquisitionFinished:  e.unexpected,
		domain.AcquisitionFailed:    e.unexpected,
	}
	return e, nil
}

// Name returns the engine name.
func (e *Engine[P]) Name() string { return e.name }

// State returns the current acquisition state.
func (e *Engine[P]) State() domain.AcquisitionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.Current()
}

// StateName returns the current acquisition state as a string.
func (e *Engine[P]) StateName() string { return e.State().String() }

// WatchAndTakeData starts a session and returns its pending result.
//
// The result succeeds once the detector has gone through a full cycle and then
// stayed silent for validationTime. It fails with the dispatch error, or with an
// *domain.AcquisitionTimeoutError after timeout. The engine must be idle;
// otherwise an *domain.InvalidTransitionError is returned and nothing changes.
func (e *Engine[P]) WatchAndTakeData(timeout, validationTime time.Duration) (*pending.Result[Reading[P]], error) {
	s, err := e.start(timeout, validationTime)
	if err != nil {
		return nil, err
	}
	return s.result, nil
}

// Acquire returns the engine to idle if the previous session is over, whether it
// finished, failed or timed out, then runs a session and waits for its result.
// A session still running is left alone and an *domain.InvalidTransitionError
// is returned. If ctx ends first the session is aborted. With WithLocker, the
// lease is taken before the session starts.
func (e *Engine[P]) Acquire(ctx context.Context, timeout, validationTime time.Duration) (Reading[P], error) {
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, e.name, timeout+validationTime)
		if err != nil {
			return Reading[P]{}, fmt.Errorf("%s: taking lease: %w", e.name, err)
		}
		defer func() {
			if err := unlock(context.Background()); err != nil {
				e.logger.Warn("lease release failed", "err", err)
			}
		}()
	}

	e.mu.Lock()
	if e.session == nil || e.session.closed {
		if err := e.toIdle(ctx); err != nil {
			e.mu.Unlock()
			return Reading[P]{}, err
		}
	}
	e.mu.Unlock()

	s, err := e.start(timeout, validationTime)
	if err != nil {
		return Reading[P]{}, err
	}
	reading, err := s.result.Wait(ctx)
	if err != nil && errors.Is(err, ctx.Err()) {
		e.mu.Lock()
		finish := e.abort(s, fmt.Errorf("%w: %w", ErrAborted, err), OutcomeAborted)
		e.mu.Unlock()
		finish()
	}
	return reading, err
}

func (e *Engine[P]) start(timeout, validationTime time.Duration) (*session[P], error) {
	if timeout <= 0 || validationTime <= 0 || validationTime > timeout {
		return nil, fmt.Errorf("%s: %w: timeout %s, validation %s", e.name, domain.ErrInvalidTiming, timeout, validationTime)
	}

	e.mu.Lock()
	if err := e.machine.Transition(domain.AcquisitionTriggered); err != nil {
		e.mu.Unlock()
		return nil, err
	}

	s := &session[P]{
		id:         uuid.NewString(),
		started:    e.clock.Now(),
		timeout:    timeout,
		validation: validationTime,
	}
	s.result = pending.New[Reading[P]](e.clock, timeout, func() (bool, error) { return e.expire(s) })
	s.result.OnComplete(func(Reading[P], error) { e.release(s) })
	e.session = s
	e.mu.Unlock()

	if err := e.subscribe(s); err != nil {
		err = fmt.Errorf("%s: subscribing: %w", e.name, err)
		e.mu.Lock()
		finish := e.abort(s, err, OutcomeFailed)
		e.mu.Unlock()
		finish()
		return nil, err
	}

	e.logger.Debug("acquisition started", "session", s.id, "timeout", timeout, "validation", validationTime)
	return s, nil
}

// Reset returns the engine to idle. A running session is aborted with
// ErrAborted. States other than finished and failed pass through failed.
func (e *Engine[P]) Reset() error {
	e.mu.Lock()
	finish := func() {}
	if e.session != nil && !e.session.closed {
		finish = e.abort(e.session, ErrAborted, OutcomeAborted)
	}
	err := e.toIdle(context.Background())
	e.session = nil
	e.mu.Unlock()

	finish()
	return err
}

// toIdle must be called with e.mu held.
func (e *Engine[P]) toIdle(ctx context.Context) error {
	switch e.machine.Current() {
	case domain.AcquisitionIdle:
		return nil
	case domain.AcquisitionFinished, domain.AcquisitionFailed:
		return e.machine.TransitionContext(ctx, domain.AcquisitionIdle)
	default:
		if err := e.machine.TransitionContext(ctx, domain.AcquisitionFailed); err != nil {
			return err
		}
		return e.machine.TransitionContext(ctx, domain.AcquisitionIdle)
	}
}

func (e *Engine[P]) release(s *session[P]) {
	if n := s.releaseSubscriptions(); n > 0 {
		e.logger.Debug("subscriptions released", "session", s.id, "count", n)
	}
}

// subscribe runs without e.mu; a session closed meanwhile has its handles
// released as soon as they are held.
func (e *Engine[P]) subscribe(s *session[P]) error {
	hr, err := e.signals.Ready.Subscribe(func(u ports.Update[bool]) {
		e.dispatch(s, event{kind: signalReady, ready: u, at: u.Timestamp})
	})
	if err != nil {
		return err
	}
	s.hold(e.unsubscriber(e.signals.Ready.Name(), e.signals.Ready.Unsubscribe, hr))

	hc, err := e.signals.Counter.Subscribe(func(u ports.Update[int64]) {
		e.dispatch(s, event{kind: signalCounter, at: u.Timestamp})
	})
	if err != nil {
		return err
	}
	s.hold(e.unsubscriber(e.signals.Counter.Name(), e.signals.Counter.Unsubscribe, hc))

	hp, err := e.signals.Payload.Subscribe(func(u ports.Update[P]) {
		e.dispatch(s, event{kind: signalPayload, at: u.Timestamp})
	})
	if err != nil {
		return err
	}
	s.hold(e.unsubscriber(e.signals.Payload.Name(), e.signals.Payload.Unsubscribe, hp))
	return nil
}

func (e *Engine[P]) unsubscriber(name string, unsubscribe func(ports.Handle) error, h ports.Handle) func() {
	return func() {
		if err := unsubscribe(h); err != nil {
			e.logger.Error("unsubscribe failed", "signal", name, "err", err)
		}
	}
}

func (e *Engine[P]) dispatch(s *session[P], ev event) {
	e.mu.Lock()
	if s.closed || e.session != s {
		e.mu.Unlock()
		e.logger.Debug("update after release dropped", "session", s.id, "signal", ev.kind)
		return
	}
	state := e.machine.Current()
	finish := func() {}
	if err := e.handlers[state](s, ev); err != nil {
		finish = e.abort(s, err, OutcomeFailed)
	}
	e.mu.Unlock()
	finish()
}

func (e *Engine[P]) onTriggered(s *session[P], ev event) error {
	if ev.kind == signalReady && ev.ready.Old && !ev.ready.Value {
		return e.machine.Transition(domain.AcquisitionAcquire)
	}
	e.logger.Debug("update ignored while triggered", "session", s.id, "signal", ev.kind)
	return nil
}

func (e *Engine[P]) onAcquire(s *session[P], ev event) error {
	switch ev.kind {
	case signalReady:
		if !ev.ready.Old && ev.ready.Value {
			return e.enterValidate(s)
		}
	case signalCounter:
		if e.policy == CounterForcesValidate {
			return e.enterValidate(s)
		}
		e.logger.Debug("counter changed while acquiring", "session", s.id)
		return nil
	case signalPayload:
		return e.enterValidate(s)
	}
	e.logger.Debug("update ignored while acquiring", "session", s.id, "signal", ev.kind)
	return nil
}

func (e *Engine[P]) onValidate(s *session[P], ev event) error {
	s.resets++
	e.logger.Debug("validation window restarted", "session", s.id, "signal", ev.kind, "at", ev.at, "resets", s.resets)
	e.schedule(s)
	return nil
}

func (e *Engine[P]) unexpected(s *session[P], ev event) error {
	return &domain.DeviceDesyncError{State: e.machine.Current(), Signal: ev.kind.String()}
}

func (e *Engine[P]) enterValidate(s *session[P]) error {
	if err := e.machine.Transition(domain.AcquisitionValidate); err != nil {
		return err
	}
	e.schedule(s)
	return nil
}

// schedule arms a check for the current generation; older checks become no-ops.
func (e *Engine[P]) schedule(s *session[P]) {
	s.generation++
	gen := s.generation
	e.clock.AfterFunc(s.validation, func() { e.check(s, gen) })
}

func (e *Engine[P]) check(s *session[P], gen uint64) {
	e.mu.Lock()
	live := e.due(s, gen)
	validation := s.validation
	e.mu.Unlock()
	if !live {
		return
	}

	payload, counter, err := e.read(validation)

	// an update or the timeout may have won while the signals were read
	e.mu.Lock()
	if !e.due(s, gen) {
		e.mu.Unlock()
		return
	}
	var finish func()
	if err != nil {
		finish = e.abort(s, err, OutcomeFailed)
	} else {
		now := e.clock.Now()
		finish = e.succeed(s, Reading[P]{
			SessionID:    s.id,
			Payload:      payload,
			Counter:      counter,
			Timestamp:    now,
			Elapsed:      now.Sub(s.started),
			WindowResets: s.resets,
		})
	}
	e.mu.Unlock()
	finish()
}

// due must be called with e.mu held.
func (e *Engine[P]) due(s *session[P], gen uint64) bool {
	return !s.closed && e.session == s && gen == s.generation && e.machine.Is(domain.AcquisitionValidate)
}

func (e *Engine[P]) read(limit time.Duration) (P, int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), limit)
	defer cancel()

	var zero P
	payload, err := e.signals.Payload.Get(ctx)
	if err != nil {
		return zero, 0, fmt.Errorf("%s: reading %s: %w", e.name, e.signals.Payload.Name(), err)
	}
	counter, err := e.signals.Counter.Get(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoValue) {
		return zero, 0, fmt.Errorf("%s: reading %s: %w", e.name, e.signals.Counter.Name(), err)
	}
	return payload, counter, nil
}

// succeed and abort close the session under e.mu, which makes them the only
// writer of its result, and return the completion to run once the lock is
// released. Subscriptions are dropped before the caller is woken.

func (e *Engine[P]) succeed(s *session[P], reading Reading[P]) func() {
	if err := e.machine.Transition(domain.AcquisitionFinished); err != nil {
		return e.abort(s, err, OutcomeFailed)
	}
	s.closed = true
	e.logger.Info("acquisition finished", "session", s.id, "elapsed", reading.Elapsed, "resets", s.resets)
	e.report(OutcomeSuccess, reading.Elapsed, s.resets)
	return func() {
		e.release(s)
		s.result.Succeed(reading)
	}
}

func (e *Engine[P]) abort(s *session[P], err error, outcome string) func() {
	if s == nil || s.closed {
		return func() {}
	}
	s.closed = true
	if !e.machine.Is(domain.AcquisitionFailed) {
		_ = e.machine.Transition(domain.AcquisitionFailed)
	}
	elapsed := e.clock.Now().Sub(s.started)
	e.logger.Warn("acquisition failed", "session", s.id, "outcome", outcome, "err", err)
	e.report(outcome, elapsed, s.resets)
	return func() {
		e.release(s)
		s.result.Fail(err)
	}
}

// expire runs on the timeout timer. The state is left as-is for diagnosis. A
// session already closed by succeed or abort keeps their outcome.
func (e *Engine[P]) expire(s *session[P]) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return false, nil
	}
	s.closed = true
	state := e.machine.Current()
	elapsed := e.clock.Now().Sub(s.started)
	e.logger.Warn("acquisition timed out", "session", s.id, "state", state, "timeout", s.timeout)
	e.report(OutcomeTimeout, elapsed, s.resets)
	return true, &domain.AcquisitionTimeoutError{Timeout: s.timeout, State: state}
}

func (e *Engine[P]) report(outcome string, elapsed time.Duration, resets int) {
	if e.observer != nil {
		e.observer.AcquisitionDone(e.name, outcome, elapsed, resets)
	}
}
