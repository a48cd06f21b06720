// Package grpcsession is the gRPC backend of package session.
// The session is a *grpc.ClientConn; raw responses are Reply values.
package grpcsession

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sessionhold/pkg/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// BackendName identifies this backend in errors, logs and metrics.
const BackendName = "grpc"

// Recognized configuration keys.
const (
	KeyTarget           = "target"
	KeyPlaintext        = "plaintext"
	KeyTLSInsecure      = "tls_insecure"
	KeyAuthority        = "authority"
	KeyUserAgent        = "user_agent"
	KeyKeepaliveTime    = "keepalive_time"
	KeyKeepaliveTimeout = "keepalive_timeout"
	KeyDialOptions      = "dial_options"
)

var knownKeys = []string{
	KeyTarget, KeyPlaintext, KeyTLSInsecure, KeyAuthority, KeyUserAgent,
	KeyKeepaliveTime, KeyKeepaliveTimeout, KeyDialOptions,
}

// Reply is the raw result of a unary call.
type Reply struct {
	Message proto.Message
	Header  metadata.MD
	Trailer metadata.MD
	Err     error
}

type backend struct{}

func (backend) Name() string { return BackendName }

func (backend) Allocate(_ context.Context, cfg session.Config) (*grpc.ClientConn, error) {
	target, opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(target, opts...)
}

func (backend) IsClosed(conn *grpc.ClientConn) bool {
	return conn.GetState() == connectivity.Shutdown
}

func (backend) Release(_ context.Context, conn *grpc.ClientConn) error {
	return conn.Close()
}

func dialOptions(cfg session.Config) (string, []grpc.DialOption, error) {
	if unknown := cfg.Unknown(knownKeys...); len(unknown) > 0 {
		return "", nil, fmt.Errorf("unknown option(s): %v", unknown)
	}

	target, ok, err := cfg.Str(KeyTarget)
	if err != nil {
		return "", nil, err
	}
	if !ok || target == "" {
		return "", nil, fmt.Errorf("%s is required", KeyTarget)
	}

	plaintext, _, err := cfg.Bool(KeyPlaintext)
	if err != nil {
		return "", nil, err
	}
	tlsInsecure, _, err := cfg.Bool(KeyTLSInsecure)
	if err != nil {
		return "", nil, err
	}

	params := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}
	if d, ok, err := cfg.Duration(KeyKeepaliveTime); err != nil {
		return "", nil, err
	} else if ok {
		params.Time = d
	}
	if d, ok, err := cfg.Duration(KeyKeepaliveTimeout); err != nil {
		return "", nil, err
	} else if ok {
		params.Timeout = d
	}

	opts := []grpc.DialOption{grpc.WithKeepaliveParams(params)}

	if plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: tlsInsecure,
		})))
	}

	if authority, ok, err := cfg.Str(KeyAuthority); err != nil {
		return "", nil, err
	} else if ok && authority != "" {
		opts = append(opts, grpc.WithAuthority(authority))
	}
	if ua, ok, err := cfg.Str(KeyUserAgent); err != nil {
		return "", nil, err
	} else if ok && ua != "" {
		opts = append(opts, grpc.WithUserAgent(ua))
	}

	if v, ok := cfg[KeyDialOptions]; ok && v != nil {
		extra, ok := v.([]grpc.DialOption)
		if !ok {
			return "", nil, fmt.Errorf("%s: expected []grpc.DialOption, got %T", KeyDialOptions, v)
		}
		opts = append(opts, extra...)
	}

	return target, opts, nil
}

// Holder lazily dials a *grpc.ClientConn and normalizes Reply values.
type Holder struct {
	*session.Lifecycle[*grpc.ClientConn]
}

var _ session.Holder[*grpc.ClientConn, *Reply] = (*Holder)(nil)

// New returns an unallocated holder.
func New(cfg session.Config, opts ...session.Option) *Holder {
	return &Holder{
		Lifecycle: session.NewLifecycle[*grpc.ClientConn](backend{}, cfg, opts...),
	}
}

// ParseResponse maps the call status onto an HTTP status and renders the
// message (or the status details on failure) as JSON.
func (h *Holder) ParseResponse(_ context.Context, reply *Reply) (*session.Response, error) {
	if reply == nil {
		return nil, errors.New("grpcsession: nil reply")
	}

	st := status.Convert(reply.Err)

	var (
		body []byte
		err  error
	)
	if reply.Message != nil {
		body, err = protojson.Marshal(reply.Message)
	} else {
		body, err = protojson.Marshal(st.Proto())
	}
	if err != nil {
		return nil, fmt.Errorf("grpcsession: failed to render body: %w", err)
	}

	headers := session.HeadersFromMap(metadata.Join(reply.Header, reply.Trailer))
	headers = append(headers,
		session.Header{Name: "grpc-status", Value: strconv.Itoa(int(st.Code()))},
		session.Header{Name: "grpc-message", Value: st.Message()},
	)

	r := session.NewResponse(HTTPStatus(st.Code()), body, headers, "application/json")
	h.Observer().ResponseParsed(BackendName, r.StatusCode(), r.Len())
	return r, nil
}

// HTTPStatus maps a gRPC status code to the HTTP status gRPC gateways use.
func HTTPStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return 200
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return 400
	case codes.DeadlineExceeded:
		return 504
	case codes.NotFound:
		return 404
	case codes.AlreadyExists, codes.Aborted:
		return 409
	case codes.PermissionDenied:
		return 403
	case codes.Unauthenticated:
		return 401
	case codes.ResourceExhausted:
		return 429
	case codes.Unimplemented:
		return 501
	case codes.Unavailable:
		return 503
	default:
		return 500
	}
}
