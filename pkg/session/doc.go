// Package session manages the lifetime of expensive transport clients.
//
// A holder owns at most one live session (an *http.Client, a *grpc.ClientConn, ...).
// The session is allocated on the first GetSession call, reused while it stays open,
// and reallocated from the stored Config once it has been closed, whether by the
// holder itself or by anything else that got hold of it.
//
//	h := httpsession.New(session.Config{"timeout": "10s"})
//	err := session.Use(ctx, h, func(ctx context.Context, c *httpsession.Client) error {
//		resp, err := c.Get("https://example.com")
//		if err != nil {
//			return err
//		}
//		r, err := h.ParseResponse(ctx, resp)
//		...
//	})
//
// Holders are not safe for concurrent use. Give each goroutine its own holder, or
// serialize access outside of it.
package session
