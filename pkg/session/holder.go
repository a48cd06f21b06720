package session

import (
	"context"
	"errors"
)

// Holder owns one lazily created session of type S and turns raw transport
// responses of type R into Responses. Implementations must tolerate any number
// of Close calls, including before the first GetSession.
type Holder[S any, R any] interface {
	// GetSession returns an open session, allocating one if there is none or
	// the current one has been closed.
	GetSession(ctx context.Context) (S, error)

	// Close releases the current session if it is open.
	Close(ctx context.Context) error

	// ParseResponse drains raw and returns its normalized form.
	// raw must not be read again afterwards.
	ParseResponse(ctx context.Context, raw R) (*Response, error)

	// UpdateConfig merges overrides into the stored configuration.
	// Only sessions allocated after the call observe the change.
	UpdateConfig(overrides Config)
}

// Use acquires a session from h, passes it to fn and closes h when fn returns,
// panics, or when acquisition fails. A close failure is joined onto fn's error.
func Use[S any, R any](ctx context.Context, h Holder[S, R], fn func(ctx context.Context, s S) error) (err error) {
	defer func() {
		if cerr := h.Close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	s, err := h.GetSession(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, s)
}
