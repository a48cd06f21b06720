package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// State is the externally visible lifecycle state of a holder.
type State int

const (
	Unallocated State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Backend is the transport-specific half of a holder.
type Backend[S any] interface {
	// Name identifies the backend in errors, logs and metrics.
	Name() string

	// Allocate builds a new session from cfg. cfg is a private copy.
	Allocate(ctx context.Context, cfg Config) (S, error)

	// IsClosed reports whether s can no longer serve requests.
	IsClosed(s S) bool

	// Release closes s. It is only called on sessions that report open.
	Release(ctx context.Context, s S) error
}

// slot is the tagged holder state. Only unallocated, active and closed implement it.
type slot[S any] interface {
	state() State
}

type unallocated[S any] struct{}

type active[S any] struct{ session S }

type closed[S any] struct{ session S }

func (unallocated[S]) state() State { return Unallocated }
func (active[S]) state() State      { return Active }
func (closed[S]) state() State      { return Closed }

// Option configures a Lifecycle.
type Option interface{ apply(*options) }

type options struct {
	observer Observer
	logger   zerolog.Logger
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithObserver registers o for lifecycle events.
func WithObserver(o Observer) Option {
	return optionFunc(func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	})
}

// WithLogger sets the logger used for lifecycle transitions.
func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(opts *options) { opts.logger = l })
}

// Lifecycle implements the allocate/reuse/close state machine on top of a Backend.
// Concrete holders embed it and add ParseResponse.
type Lifecycle[S any] struct {
	backend  Backend[S]
	cfg      Config
	slot     slot[S]
	observer Observer
	logger   zerolog.Logger
}

// NewLifecycle returns an unallocated lifecycle. cfg is copied.
func NewLifecycle[S any](backend Backend[S], cfg Config, opts ...Option) *Lifecycle[S] {
	o := options{
		observer: nopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt.apply(&o)
	}

	return &Lifecycle[S]{
		backend:  backend,
		cfg:      cfg.Clone(),
		slot:     unallocated[S]{},
		observer: o.observer,
		logger:   o.logger.With().Str("backend", backend.Name()).Logger(),
	}
}

// refresh demotes an active slot whose session was closed behind the holder's back.
func (l *Lifecycle[S]) refresh() {
	if cur, ok := l.slot.(active[S]); ok && l.backend.IsClosed(cur.session) {
		l.logger.Debug().Msg("session closed externally")
		l.slot = closed[S](cur)
		l.observer.SessionLost(l.backend.Name())
	}
}

// State returns the current state, taking external closure into account.
func (l *Lifecycle[S]) State() State {
	l.refresh()
	return l.slot.state()
}

// GetSession returns the open session or allocates a new one.
func (l *Lifecycle[S]) GetSession(ctx context.Context) (S, error) {
	l.refresh()
	if cur, ok := l.slot.(active[S]); ok {
		return cur.session, nil
	}

	s, err := l.backend.Allocate(ctx, l.cfg.Clone())
	if err != nil {
		l.observer.AllocationFailed(l.backend.Name(), err)
		l.logger.Warn().Err(err).Msg("session allocation failed")

		var ae *AllocationError
		if errors.As(err, &ae) {
			return s, err
		}
		return s, &AllocationError{Backend: l.backend.Name(), Err: err}
	}

	l.slot = active[S]{session: s}
	l.observer.SessionAllocated(l.backend.Name())
	l.logger.Debug().Msg("session allocated")
	return s, nil
}

// Close releases the open session. It is a no-op in any other state.
func (l *Lifecycle[S]) Close(ctx context.Context) error {
	l.refresh()
	cur, ok := l.slot.(active[S])
	if !ok {
		return nil
	}

	err := l.backend.Release(ctx, cur.session)
	l.slot = closed[S](cur)
	l.observer.SessionClosed(l.backend.Name(), err)
	if err != nil {
		l.logger.Warn().Err(err).Msg("session close failed")
		return &CloseError{Backend: l.backend.Name(), Err: err}
	}
	l.logger.Debug().Msg("session closed")
	return nil
}

// UpdateConfig merges overrides into the configuration used for future allocations.
func (l *Lifecycle[S]) UpdateConfig(overrides Config) {
	l.cfg = l.cfg.Merge(overrides)
}

// Config returns a copy of the configuration the next allocation will use.
func (l *Lifecycle[S]) Config() Config {
	return l.cfg.Clone()
}

// Observer returns the registered observer for backends reporting parse events.
func (l *Lifecycle[S]) Observer() Observer {
	return l.observer
}

// Backend returns the backend name.
func (l *Lifecycle[S]) Backend() string {
	return l.backend.Name()
}
