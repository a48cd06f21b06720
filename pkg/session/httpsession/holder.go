// Package httpsession is the net/http backend of package session.
//
// The session is a *Client wrapping a pooling *http.Client. Configuration keys
// are listed as the Key* constants; unknown keys make allocation fail.
package httpsession

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/sessionhold/pkg/session"
)

// BackendName identifies this backend in errors, logs and metrics.
const BackendName = "http"

type backend struct{}

func (backend) Name() string { return BackendName }

func (backend) Allocate(_ context.Context, cfg session.Config) (*Client, error) {
	s, err := decodeSettings(cfg)
	if err != nil {
		return nil, err
	}
	return s.build()
}

func (backend) IsClosed(c *Client) bool {
	return c.Closed()
}

func (backend) Release(_ context.Context, c *Client) error {
	return c.Close()
}

// Holder lazily allocates a *Client and normalizes *http.Response values.
type Holder struct {
	*session.Lifecycle[*Client]
}

var _ session.Holder[*Client, *http.Response] = (*Holder)(nil)

// New returns an unallocated holder. No connection is made until GetSession.
func New(cfg session.Config, opts ...session.Option) *Holder {
	return &Holder{
		Lifecycle: session.NewLifecycle[*Client](backend{}, cfg, opts...),
	}
}

// ParseResponse buffers the body of resp, closes it and returns the normalized response.
func (h *Holder) ParseResponse(_ context.Context, resp *http.Response) (*session.Response, error) {
	if resp == nil {
		return nil, errors.New("httpsession: nil response")
	}

	var body []byte
	if resp.Body != nil {
		defer resp.Body.Close()

		var err error
		if body, err = io.ReadAll(resp.Body); err != nil {
			return nil, err
		}
	}

	r := session.NewResponse(
		resp.StatusCode,
		body,
		session.HeadersFromMap(resp.Header),
		contentType(resp.Header),
	)
	h.Observer().ResponseParsed(BackendName, r.StatusCode(), r.Len())
	return r, nil
}

// contentType returns the declared media type without parameters.
func contentType(h http.Header) string {
	raw := h.Get("Content-Type")
	if raw == "" {
		return session.DefaultContentType
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return session.DefaultContentType
	}
	return mt
}
