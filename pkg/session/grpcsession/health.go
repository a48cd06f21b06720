package grpcsession

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CheckHealth issues a grpc.health.v1 Check for service over conn.
// An empty service asks for overall server health. A reply that is not
// SERVING carries an Unavailable error next to the message.
func CheckHealth(ctx context.Context, conn *grpc.ClientConn, service string) *Reply {
	var header, trailer metadata.MD

	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(ctx,
		&grpc_health_v1.HealthCheckRequest{Service: service},
		grpc.Header(&header),
		grpc.Trailer(&trailer),
	)

	reply := &Reply{Header: header, Trailer: trailer, Err: err}
	if resp == nil {
		return reply
	}

	reply.Message = resp
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		reply.Err = status.Errorf(codes.Unavailable, "service %q is %s", service, resp.Status)
	}
	return reply
}
