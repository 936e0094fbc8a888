package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial connects to the agent on SocketPath.
func Dial(ctx context.Context) (AgentClient, *grpc.ClientConn, error) {
	return DialPath(ctx, SocketPath())
}

// DialPath connects to the agent listening on the UNIX socket at path and
// blocks until the connection is ready or ctx ends.
func DialPath(ctx context.Context, path string) (AgentClient, *grpc.ClientConn, error) {
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
	// the target is only a name; dialer always uses path
	conn, err := grpc.NewClient("passthrough:///tracewatch",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return nil, nil, err
	}
	conn.Connect()
	if err := awaitReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("agent socket %s: %w", path, err)
	}
	return NewAgentClient(conn), conn, nil
}

func awaitReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.Shutdown {
			return errors.New("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}
