package httpsession

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sessionhold/pkg/session"
	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// Recognized configuration keys.
const (
	KeyTimeout         = "timeout"
	KeyProxy           = "proxy"
	KeyTLSInsecure     = "tls_insecure"
	KeyCookieJar       = "cookie_jar"
	KeyHTTP2           = "http2"
	KeyH2C             = "h2c"
	KeyMaxIdleConns    = "max_idle_conns"
	KeyIdleConnTimeout = "idle_conn_timeout"
	KeyFollowRedirects = "follow_redirects"
	KeyHeaders         = "headers"
	KeyRateLimit       = "rate_limit"
	KeyRateBurst       = "rate_burst"
	KeyTransport       = "transport"
)

var knownKeys = []string{
	KeyTimeout, KeyProxy, KeyTLSInsecure, KeyCookieJar, KeyHTTP2, KeyH2C,
	KeyMaxIdleConns, KeyIdleConnTimeout, KeyFollowRedirects, KeyHeaders,
	KeyRateLimit, KeyRateBurst, KeyTransport,
}

const (
	defaultMaxIdleConns    = 100
	defaultIdleConnTimeout = 90 * time.Second
)

// settings is the decoded form of a session.Config.
type settings struct {
	timeout         time.Duration
	proxy           *url.URL
	tlsInsecure     bool
	jar             http.CookieJar
	http2           bool
	h2c             bool
	maxIdleConns    int
	idleConnTimeout time.Duration
	followRedirects bool
	headers         http.Header
	rateLimit       float64
	rateBurst       int
	transport       http.RoundTripper
}

func decodeSettings(cfg session.Config) (*settings, error) {
	if unknown := cfg.Unknown(knownKeys...); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown option(s): %s", strings.Join(unknown, ", "))
	}

	s := &settings{
		maxIdleConns:    defaultMaxIdleConns,
		idleConnTimeout: defaultIdleConnTimeout,
		followRedirects: true,
		rateBurst:       1,
	}

	var err error
	if s.timeout, _, err = cfg.Duration(KeyTimeout); err != nil {
		return nil, err
	}
	if s.timeout < 0 {
		return nil, fmt.Errorf("%s: must not be negative", KeyTimeout)
	}

	proxy, ok, err := cfg.Str(KeyProxy)
	if err != nil {
		return nil, err
	}
	if ok && proxy != "" {
		if s.proxy, err = url.Parse(proxy); err != nil {
			return nil, fmt.Errorf("%s: %w", KeyProxy, err)
		}
	}

	if s.tlsInsecure, _, err = cfg.Bool(KeyTLSInsecure); err != nil {
		return nil, err
	}
	if s.jar, err = decodeJar(cfg[KeyCookieJar]); err != nil {
		return nil, err
	}
	if s.http2, _, err = cfg.Bool(KeyHTTP2); err != nil {
		return nil, err
	}
	if s.h2c, _, err = cfg.Bool(KeyH2C); err != nil {
		return nil, err
	}
	maxIdleConns, maxIdleSet, err := cfg.Int(KeyMaxIdleConns)
	if err != nil {
		return nil, err
	}
	if maxIdleSet {
		s.maxIdleConns = maxIdleConns
	}
	if d, ok, err := cfg.Duration(KeyIdleConnTimeout); err != nil {
		return nil, err
	} else if ok {
		s.idleConnTimeout = d
	}
	if b, ok, err := cfg.Bool(KeyFollowRedirects); err != nil {
		return nil, err
	} else if ok {
		s.followRedirects = b
	}

	headers, ok, err := cfg.StringMap(KeyHeaders)
	if err != nil {
		return nil, err
	}
	if ok && len(headers) > 0 {
		s.headers = make(http.Header, len(headers))
		for k, v := range headers {
			s.headers.Set(k, v)
		}
	}

	if s.rateLimit, _, err = cfg.Float(KeyRateLimit); err != nil {
		return nil, err
	}
	if s.rateLimit < 0 {
		return nil, fmt.Errorf("%s: must not be negative", KeyRateLimit)
	}
	if n, ok, err := cfg.Int(KeyRateBurst); err != nil {
		return nil, err
	} else if ok {
		if n < 1 {
			return nil, fmt.Errorf("%s: must be at least 1", KeyRateBurst)
		}
		s.rateBurst = n
	}

	if v, ok := cfg[KeyTransport]; ok && v != nil {
		rt, ok := v.(http.RoundTripper)
		if !ok {
			return nil, fmt.Errorf("%s: expected http.RoundTripper, got %T", KeyTransport, v)
		}
		s.transport = rt
	}

	if s.h2c {
		// h2c multiplexes over a single cleartext connection per host.
		switch {
		case s.http2:
			return nil, fmt.Errorf("%s and %s are mutually exclusive", KeyHTTP2, KeyH2C)
		case s.proxy != nil:
			return nil, fmt.Errorf("%s: not supported with %s", KeyProxy, KeyH2C)
		case maxIdleSet:
			return nil, fmt.Errorf("%s: not supported with %s", KeyMaxIdleConns, KeyH2C)
		}
	}
	return s, nil
}

func decodeJar(v any) (http.CookieJar, error) {
	switch j := v.(type) {
	case nil:
		return nil, nil
	case http.CookieJar:
		return j, nil
	case bool:
		if !j {
			return nil, nil
		}
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyCookieJar, err)
		}
		return jar, nil
	}
	return nil, fmt.Errorf("%s: expected bool or http.CookieJar, got %T", KeyCookieJar, v)
}

// baseTransport builds the pooling transport at the bottom of the chain.
func (s *settings) baseTransport() (http.RoundTripper, error) {
	if s.transport != nil {
		return s.transport, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: s.tlsInsecure,
	}

	if s.h2c {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				d := &net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}
				return d.DialContext(ctx, network, addr)
			},
			TLSClientConfig: tlsConfig,
			IdleConnTimeout: s.idleConnTimeout,
		}, nil
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        s.maxIdleConns,
		MaxIdleConnsPerHost: s.maxIdleConns,
		IdleConnTimeout:     s.idleConnTimeout,
		TLSClientConfig:     tlsConfig,
	}
	if s.proxy != nil {
		transport.Proxy = http.ProxyURL(s.proxy)
	}
	if s.http2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("%s: %w", KeyHTTP2, err)
		}
	}
	return transport, nil
}

// build assembles a Client from decoded settings.
func (s *settings) build() (*Client, error) {
	rt, err := s.baseTransport()
	if err != nil {
		return nil, err
	}
	if s.rateLimit > 0 {
		rt = &limitTransport{limiter: rate.NewLimiter(rate.Limit(s.rateLimit), s.rateBurst), next: rt}
	}
	if len(s.headers) > 0 {
		rt = &headerTransport{headers: s.headers, next: rt}
	}

	c := &Client{}
	c.Client = &http.Client{
		Transport: &guardTransport{client: c, next: rt},
		Timeout:   s.timeout,
		Jar:       s.jar,
	}
	if !s.followRedirects {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c, nil
}
