// Package probe issues requests against configured targets through session holders.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sessionhold/internal/config"
	"github.com/sessionhold/pkg/session"
	"github.com/sessionhold/pkg/session/grpcsession"
	"github.com/sessionhold/pkg/session/httpsession"
	"google.golang.org/grpc"
)

// Result is the outcome of a single probe.
type Result struct {
	Target   string
	Response *session.Response
	Duration time.Duration
	Err      error
	Passed   bool
	State    session.State // holder state once the probe finished
}

// StatusCode returns the response status, or 0 when no response was produced.
func (r Result) StatusCode() int {
	if r.Response == nil {
		return 0
	}
	return r.Response.StatusCode()
}

// Prober probes one target through its own holder. Like the holder it wraps,
// a Prober must not be used from more than one goroutine at a time.
type Prober interface {
	Target() config.Target

	// Probe runs one exchange on the holder's current session, allocating
	// it if needed, and leaves the session open for the next probe.
	Probe(ctx context.Context) Result

	// Once runs one exchange in its own scope: the session is closed afterwards.
	Once(ctx context.Context) Result

	// Recycle closes the current session; the next Probe allocates a fresh one.
	Recycle(ctx context.Context) error

	// UpdateSession merges overrides into the holder config for future sessions.
	UpdateSession(overrides session.Config)

	State() session.State
	Close(ctx context.Context) error
}

// holder is a session.Holder that also reports its state.
type holder[S any, R any] interface {
	session.Holder[S, R]
	State() session.State
}

type prober[S any, R any] struct {
	target config.Target
	holder holder[S, R]
	call   func(ctx context.Context, s S) (R, error)
	check  *Check
}

// New builds a prober for t. cfg is the holder configuration, usually
// config.Config.SessionConfig(t).
func New(t config.Target, cfg session.Config, opts ...session.Option) (Prober, error) {
	check, err := CompileCheck(t.Expect)
	if err != nil {
		return nil, err
	}

	switch t.Backend {
	case config.BackendHTTP, "":
		return &prober[*httpsession.Client, *http.Response]{
			target: t,
			holder: httpsession.New(cfg, opts...),
			call:   httpCall(t),
			check:  check,
		}, nil

	case config.BackendGRPC:
		if _, ok := cfg[grpcsession.KeyTarget]; !ok {
			cfg = cfg.Merge(session.Config{grpcsession.KeyTarget: t.URL})
		}
		return &prober[*grpc.ClientConn, *grpcsession.Reply]{
			target: t,
			holder: grpcsession.New(cfg, opts...),
			call: func(ctx context.Context, conn *grpc.ClientConn) (*grpcsession.Reply, error) {
				return grpcsession.CheckHealth(ctx, conn, t.Service), nil
			},
			check: check,
		}, nil
	}

	return nil, fmt.Errorf("backend %q is not supported", t.Backend)
}

func httpCall(t config.Target) func(ctx context.Context, c *httpsession.Client) (*http.Response, error) {
	return func(ctx context.Context, c *httpsession.Client) (*http.Response, error) {
		var body io.Reader
		if t.Body != "" {
			body = strings.NewReader(t.Body)
		}

		req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range t.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		return resp, nil
	}
}

func (p *prober[S, R]) Target() config.Target { return p.target }

func (p *prober[S, R]) State() session.State { return p.holder.State() }

func (p *prober[S, R]) Recycle(ctx context.Context) error { return p.holder.Close(ctx) }

func (p *prober[S, R]) Close(ctx context.Context) error { return p.holder.Close(ctx) }

func (p *prober[S, R]) UpdateSession(overrides session.Config) {
	p.holder.UpdateConfig(overrides)
}

func (p *prober[S, R]) Probe(ctx context.Context) Result {
	start := time.Now()

	s, err := p.holder.GetSession(ctx)
	if err != nil {
		return p.finish(start, nil, err)
	}
	resp, err := p.exchange(ctx, s)
	return p.finish(start, resp, err)
}

func (p *prober[S, R]) Once(ctx context.Context) Result {
	start := time.Now()

	var resp *session.Response
	err := session.Use(ctx, p.holder, func(ctx context.Context, s S) error {
		var err error
		resp, err = p.exchange(ctx, s)
		return err
	})
	return p.finish(start, resp, err)
}

// exchange sends the request and normalizes the reply within the target timeout.
func (p *prober[S, R]) exchange(ctx context.Context, s S) (*session.Response, error) {
	if p.target.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.target.Timeout)
		defer cancel()
	}

	raw, err := p.call(ctx, s)
	if err != nil {
		return nil, err
	}
	return p.holder.ParseResponse(ctx, raw)
}

func (p *prober[S, R]) finish(start time.Time, resp *session.Response, err error) Result {
	res := Result{
		Target:   p.target.Name,
		Response: resp,
		Duration: time.Since(start),
		Err:      err,
		State:    p.holder.State(),
	}
	if err != nil || resp == nil {
		return res
	}

	res.Passed, res.Err = p.check.Eval(resp)
	return res
}
