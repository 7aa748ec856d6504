package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rbright/voicehook/internal/protocol"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CommandHandler receives commands on the agent side.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd protocol.Command)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(context.Context, protocol.Command)

func (f CommandHandlerFunc) HandleCommand(ctx context.Context, cmd protocol.Command) {
	f(ctx, cmd)
}

// DetachHandler is implemented by command handlers that must release
// resources when the stream to the controller ends.
type DetachHandler interface {
	Detached()
}

// Link is the agent's connection to the controller. It reconnects until its
// context ends and keeps the same context id across reconnects.
type Link struct {
	socket       string
	id           string
	handler      CommandHandler
	logger       *slog.Logger
	readyTimeout time.Duration
	newBackOff   func() *backoff.ExponentialBackOff

	mu     sync.Mutex
	stream grpc.ClientStream
	sendMu sync.Mutex
}

// NewLink returns an unconnected link with a fresh context id.
func NewLink(socket string, handler CommandHandler, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return &Link{
		socket:       socket,
		id:           id,
		handler:      handler,
		logger:       logger.With("component", "bridge", "context_id", id),
		readyTimeout: 3 * time.Second,
		newBackOff: func() *backoff.ExponentialBackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// ID returns the context id presented to the controller.
func (l *Link) ID() string { return l.id }

// Attached reports whether a stream is currently open.
func (l *Link) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stream != nil
}

// Run attaches and re-attaches until ctx is canceled.
func (l *Link) Run(ctx context.Context) error {
	b := l.newBackOff()
	op := func() error {
		err := l.session(ctx, b.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		l.logger.Warn("bridge disconnected", "error", err.Error(), "retry_in_ms", wait.Milliseconds())
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Emit sends ev to the controller. Delivery is best-effort.
func (l *Link) Emit(_ context.Context, ev protocol.Event) error {
	frame, err := encodeFrame(ev)
	if err != nil {
		return err
	}

	l.mu.Lock()
	stream := l.stream
	l.mu.Unlock()
	if stream == nil {
		return ErrNotAttached
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if err := stream.SendMsg(frame); err != nil {
		return fmt.Errorf("send %s: %w", ev.Kind(), err)
	}
	return nil
}

func (l *Link) session(ctx context.Context, onAttached func()) error {
	conn, err := grpc.NewClient(
		"unix://"+l.socket,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("dial bridge %q: %w", l.socket, err)
	}
	defer conn.Close()

	readyCtx, cancelReady := context.WithTimeout(ctx, l.readyTimeout)
	conn.Connect()
	err = waitForReady(readyCtx, conn)
	cancelReady()
	if err != nil {
		return fmt.Errorf("wait for bridge readiness: %w", err)
	}

	streamCtx, cancel := context.WithCancel(metadata.AppendToOutgoingContext(ctx, contextIDKey, l.id))
	defer cancel()

	stream, err := conn.NewStream(streamCtx, &serviceDesc.Streams[0], attachMethod)
	if err != nil {
		return fmt.Errorf("open attach stream: %w", err)
	}
	l.setStream(stream)
	defer func() {
		l.setStream(nil)
		if d, ok := l.handler.(DetachHandler); ok {
			d.Detached()
		}
	}()

	onAttached()
	l.logger.Info("bridge attached", "socket", l.socket)

	for {
		frame := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(frame); err != nil {
			return fmt.Errorf("bridge receive: %w", err)
		}

		msg, err := protocol.Unmarshal(frame.GetValue())
		if err != nil {
			l.logger.Warn("dropping malformed message", "error", err.Error())
			continue
		}
		cmd, ok := msg.(protocol.Command)
		if !ok {
			l.logger.Warn("dropping non-command message", "kind", msg.Kind())
			continue
		}
		l.handler.HandleCommand(ctx, cmd)
	}
}

func (l *Link) setStream(stream grpc.ClientStream) {
	l.mu.Lock()
	l.stream = stream
	l.mu.Unlock()
}

// waitForReady blocks until the connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
