// Package bridge carries protocol messages between the session controller and
// capture agents over a gRPC bidirectional stream on a unix socket.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/rbright/voicehook/internal/ipc"
	"github.com/rbright/voicehook/internal/protocol"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName  = "voicehook.bridge.v1.Bridge"
	attachMethod = "/" + serviceName + "/Attach"

	// contextIDKey is the metadata key carrying the agent's context id.
	contextIDKey = "x-voicehook-context"
)

var (
	// ErrUnknownPage is returned when sending to a context that is not attached.
	ErrUnknownPage = errors.New("page context is not attached")
	// ErrDropped is returned when a page's outbound queue is full.
	ErrDropped = errors.New("message dropped: page queue full")
	// ErrNotAttached is returned by Link.Emit while no stream is open.
	ErrNotAttached = errors.New("bridge is not attached")
)

type attachServer interface {
	Attach(grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*attachServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "voicehook/bridge/v1/bridge.proto",
}

func attachHandler(srv any, stream grpc.ServerStream) error {
	return srv.(attachServer).Attach(stream)
}

// NewServer returns a gRPC server with the hub registered.
func NewServer(hub *Hub, opts ...grpc.ServerOption) *grpc.Server {
	server := grpc.NewServer(opts...)
	server.RegisterService(&serviceDesc, hub)
	return server
}

// Serve runs the bridge server until ctx ends.
func Serve(ctx context.Context, listener net.Listener, hub *Hub) error {
	server := NewServer(hub)
	go func() {
		<-ctx.Done()
		server.Stop()
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve bridge: %w", err)
	}
	return nil
}

// Listen binds the bridge socket, replacing a stale file left by a previous owner.
// Callers must already hold the single-instance IPC socket.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure bridge socket dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale bridge socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}
	_ = os.Chmod(path, 0o600)
	return listener, nil
}

// SocketPath returns the bridge socket path, honoring an explicit override.
func SocketPath(override string) (string, error) {
	if path := strings.TrimSpace(override); path != "" {
		return path, nil
	}
	runtimeDir, err := ipc.RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "voicehook-bridge.sock"), nil
}

func encodeFrame(m protocol.Message) (*wrapperspb.BytesValue, error) {
	data, err := protocol.Marshal(m)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(data), nil
}

func contextIDFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(contextIDKey)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
