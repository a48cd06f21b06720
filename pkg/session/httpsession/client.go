package httpsession

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ErrClientClosed is returned for any request issued through a closed Client.
var ErrClientClosed = errors.New("httpsession: client is closed")

// Client is the session handed out by Holder. It is a regular *http.Client
// that refuses to send requests once closed.
type Client struct {
	*http.Client
	closed atomic.Bool
}

// Close marks the client closed and drops its idle connections.
// Callers borrowing a client from a Holder should leave closing to the holder.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.CloseIdleConnections()
	return nil
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	return c.closed.Load()
}

// guardTransport fails fast once its owning client is closed.
type guardTransport struct {
	client *Client
	next   http.RoundTripper
}

func (t *guardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.client.Closed() {
		closeRequestBody(req)
		return nil, ErrClientClosed
	}
	return t.next.RoundTrip(req)
}

func (t *guardTransport) CloseIdleConnections() {
	closeIdle(t.next)
}

// headerTransport adds default headers the request does not already carry.
type headerTransport struct {
	headers http.Header
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var clone *http.Request
	for name, values := range t.headers {
		if req.Header.Get(name) != "" {
			continue
		}
		if clone == nil {
			clone = req.Clone(req.Context())
		}
		for _, v := range values {
			clone.Header.Add(name, v)
		}
	}
	if clone == nil {
		clone = req
	}
	return t.next.RoundTrip(clone)
}

func (t *headerTransport) CloseIdleConnections() {
	closeIdle(t.next)
}

// limitTransport waits on a client-side rate limiter before each request.
type limitTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		closeRequestBody(req)
		return nil, err
	}
	return t.next.RoundTrip(req)
}

func (t *limitTransport) CloseIdleConnections() {
	closeIdle(t.next)
}

func closeIdle(rt http.RoundTripper) {
	type idleCloser interface{ CloseIdleConnections() }
	if c, ok := rt.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

// RoundTrippers must close the request body even when they fail.
func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

// GetContext issues a GET bound to ctx.
func (c *Client) GetContext(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
