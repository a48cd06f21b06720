package httpsession

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sessionhold/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("X-Test", "1")
		if v := r.Header.Get("X-Default"); v != "" {
			w.Header().Set("X-Echo-Default", v)
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseResponseFidelity(t *testing.T) {
	h := New(nil)
	body := &trackingBody{Reader: strings.NewReader("ok")}
	raw := &http.Response{
		StatusCode: 200,
		Header: http.Header{
			"X-Test":       {"1"},
			"Content-Type": {"text/plain"},
		},
		Body: body,
	}

	r, err := h.ParseResponse(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 200, r.StatusCode())
	assert.Equal(t, []byte("ok"), r.Body())
	assert.Equal(t, "1", r.Header("X-Test"))
	assert.Equal(t, "text/plain", r.ContentType())
	assert.True(t, body.closed)

	// The raw body is drained; the normalized body does not depend on it.
	rest, _ := io.ReadAll(body)
	assert.Empty(t, rest)
	assert.Equal(t, "ok", r.Text())
}

func TestParseResponseContentType(t *testing.T) {
	h := New(nil)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"with params", "application/json; charset=utf-8", "application/json"},
		{"missing", "", session.DefaultContentType},
		{"malformed", "text/;;", session.DefaultContentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &http.Response{StatusCode: 200, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(""))}
			if tt.header != "" {
				raw.Header.Set("Content-Type", tt.header)
			}
			r, err := h.ParseResponse(context.Background(), raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.ContentType())
		})
	}
}

func TestParseResponseErrors(t *testing.T) {
	h := New(nil)

	_, err := h.ParseResponse(context.Background(), nil)
	assert.Error(t, err)

	readErr := errors.New("connection reset")
	raw := &http.Response{StatusCode: 200, Body: io.NopCloser(iotestErrReader{readErr})}
	_, err = h.ParseResponse(context.Background(), raw)
	assert.ErrorIs(t, err, readErr)
}

type iotestErrReader struct{ err error }

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }

func TestEndToEndScopes(t *testing.T) {
	srv := newEchoServer(t)
	h := New(session.Config{})
	ctx := context.Background()

	var first *Client
	err := session.Use(ctx, h, func(ctx context.Context, c *Client) error {
		first = c
		again, err := h.GetSession(ctx)
		require.NoError(t, err)
		assert.Same(t, c, again)

		resp, err := c.GetContext(ctx, srv.URL)
		if err != nil {
			return err
		}
		r, err := h.ParseResponse(ctx, resp)
		if err != nil {
			return err
		}
		assert.Equal(t, 200, r.StatusCode())
		assert.Equal(t, "ok", r.Text())
		assert.Equal(t, "1", r.Header("x-test"))
		assert.Equal(t, "text/plain", r.ContentType())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, first.Closed())
	assert.Equal(t, session.Closed, h.State())

	var second *Client
	err = session.Use(ctx, h, func(_ context.Context, c *Client) error {
		second = c
		return nil
	})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestClosedClientRejectsRequests(t *testing.T) {
	srv := newEchoServer(t)
	h := New(nil)

	c, err := h.GetSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Close(context.Background()))

	_, err = c.GetContext(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestExternalCloseTriggersReallocation(t *testing.T) {
	h := New(nil)

	c, err := h.GetSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Equal(t, session.Closed, h.State())

	// Already closed by someone else: the holder must not fail.
	require.NoError(t, h.Close(context.Background()))

	fresh, err := h.GetSession(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, c, fresh)
	assert.False(t, fresh.Closed())
}

func TestUpdateConfigDoesNotTouchLiveClient(t *testing.T) {
	h := New(session.Config{KeyTimeout: "1s"})

	live, err := h.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Second, live.Timeout)

	h.UpdateConfig(session.Config{KeyTimeout: 5})
	again, err := h.GetSession(context.Background())
	require.NoError(t, err)
	assert.Same(t, live, again)
	assert.Equal(t, time.Second, live.Timeout)

	require.NoError(t, h.Close(context.Background()))
	fresh, err := h.GetSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, fresh.Timeout)
}

func TestAllocationRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  session.Config
	}{
		{"unknown key", session.Config{"tiemout": "1s"}},
		{"bad duration", session.Config{KeyTimeout: "soon"}},
		{"negative timeout", session.Config{KeyTimeout: -1}},
		{"bad proxy", session.Config{KeyProxy: "http://[::1"}},
		{"bad jar", session.Config{KeyCookieJar: "yes"}},
		{"bad headers", session.Config{KeyHeaders: []string{"X-A"}}},
		{"bad transport", session.Config{KeyTransport: "default"}},
		{"bad burst", session.Config{KeyRateBurst: 0}},
		{"http2 and h2c", session.Config{KeyHTTP2: true, KeyH2C: true}},
		{"proxy with h2c", session.Config{KeyH2C: true, KeyProxy: "http://proxy.invalid:3128"}},
		{"max idle with h2c", session.Config{KeyH2C: true, KeyMaxIdleConns: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.cfg)
			_, err := h.GetSession(context.Background())
			require.Error(t, err)
			assert.True(t, session.IsAllocationError(err))
			assert.Equal(t, session.Unallocated, h.State())
		})
	}
}

func TestDefaultHeaders(t *testing.T) {
	srv := newEchoServer(t)
	h := New(session.Config{KeyHeaders: map[string]any{"X-Default": "from-config"}})
	ctx := context.Background()

	err := session.Use(ctx, h, func(ctx context.Context, c *Client) error {
		resp, err := c.GetContext(ctx, srv.URL)
		require.NoError(t, err)
		r, err := h.ParseResponse(ctx, resp)
		require.NoError(t, err)
		assert.Equal(t, "from-config", r.Header("X-Echo-Default"))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		req.Header.Set("X-Default", "explicit")
		resp, err = c.Do(req)
		require.NoError(t, err)
		r, err = h.ParseResponse(ctx, resp)
		require.NoError(t, err)
		assert.Equal(t, "explicit", r.Header("X-Echo-Default"))
		return nil
	})
	require.NoError(t, err)
}

func TestFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		io.WriteString(w, "moved here")
	}))
	defer srv.Close()

	ctx := context.Background()
	for _, follow := range []bool{true, false} {
		h := New(session.Config{KeyFollowRedirects: follow})
		c, err := h.GetSession(ctx)
		require.NoError(t, err)

		resp, err := c.GetContext(ctx, srv.URL+"/old")
		require.NoError(t, err)
		r, err := h.ParseResponse(ctx, resp)
		require.NoError(t, err)
		if follow {
			assert.Equal(t, http.StatusOK, r.StatusCode())
		} else {
			assert.Equal(t, http.StatusFound, r.StatusCode())
		}
		require.NoError(t, h.Close(ctx))
	}
}

func TestCookieJar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			return
		}
		if c, err := r.Cookie("sid"); err == nil {
			io.WriteString(w, c.Value)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	h := New(session.Config{KeyCookieJar: true})
	c, err := h.GetSession(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	resp, err := c.GetContext(ctx, srv.URL+"/login")
	require.NoError(t, err)
	_, err = h.ParseResponse(ctx, resp)
	require.NoError(t, err)

	resp, err = c.GetContext(ctx, srv.URL+"/me")
	require.NoError(t, err)
	r, err := h.ParseResponse(ctx, resp)
	require.NoError(t, err)
	assert.Equal(t, "abc", r.Text())
}

func TestProxy(t *testing.T) {
	var seen atomic.Value
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.String())
		io.WriteString(w, "via proxy")
	}))
	defer proxy.Close()

	ctx := context.Background()
	h := New(session.Config{KeyProxy: proxy.URL})
	c, err := h.GetSession(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	resp, err := c.GetContext(ctx, "http://upstream.invalid/resource")
	require.NoError(t, err)
	r, err := h.ParseResponse(ctx, resp)
	require.NoError(t, err)
	assert.Equal(t, "via proxy", r.Text())
	assert.Equal(t, "http://upstream.invalid/resource", seen.Load())
}

func TestHTTP2OverTLS(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	ctx := context.Background()
	h := New(session.Config{KeyHTTP2: true, KeyTLSInsecure: true})
	c, err := h.GetSession(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	resp, err := c.GetContext(ctx, srv.URL)
	require.NoError(t, err)
	r, err := h.ParseResponse(ctx, resp)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/2.0", r.Text())
}

func TestH2CCleartext(t *testing.T) {
	srv := httptest.NewServer(h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	}), &http2.Server{}))
	defer srv.Close()

	ctx := context.Background()
	h := New(session.Config{KeyH2C: true, KeyIdleConnTimeout: "5s"})
	c, err := h.GetSession(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	guard, ok := c.Transport.(*guardTransport)
	require.True(t, ok)
	base, ok := guard.next.(*http2.Transport)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, base.IdleConnTimeout)

	resp, err := c.GetContext(ctx, srv.URL)
	require.NoError(t, err)
	r, err := h.ParseResponse(ctx, resp)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/2.0", r.Text())
}

type countingTransport struct {
	calls int
	next  http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return t.next.RoundTrip(req)
}

func TestCustomTransportAndRateLimit(t *testing.T) {
	srv := newEchoServer(t)
	rt := &countingTransport{next: http.DefaultTransport}

	ctx := context.Background()
	h := New(session.Config{KeyTransport: rt, KeyRateLimit: 1000, KeyRateBurst: 2})
	c, err := h.GetSession(ctx)
	require.NoError(t, err)
	defer h.Close(ctx)

	for range 3 {
		resp, err := c.GetContext(ctx, srv.URL)
		require.NoError(t, err)
		_, err = h.ParseResponse(ctx, resp)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, rt.calls)
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := newEchoServer(t)
	h := New(session.Config{KeyRateLimit: 0.001})
	c, err := h.GetSession(context.Background())
	require.NoError(t, err)
	defer h.Close(context.Background())

	// The first request consumes the only token.
	resp, err := c.GetContext(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetContext(ctx, srv.URL)
	assert.Error(t, err)
}
