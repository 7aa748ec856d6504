package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/voicehook/internal/protocol"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DefaultQueueSize bounds each page's outbound command queue.
const DefaultQueueSize = 16

// Handler receives inbound traffic on the controller side.
type Handler interface {
	HandleEvent(ctx context.Context, contextID string, ev protocol.Event)
	HandleDetach(contextID string)
}

type page struct {
	id   string
	seq  uint64
	out  chan protocol.Command
	done chan struct{}
	once sync.Once
}

func (p *page) close() {
	p.once.Do(func() { close(p.done) })
}

// Hub tracks attached agents. The most recently attached page is active.
type Hub struct {
	logger    *slog.Logger
	queueSize int

	mu      sync.Mutex
	handler Handler
	pages   map[string]*page
	seq     uint64
}

// NewHub returns an empty hub. Bind must be called before serving.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger:    logger.With("component", "bridge"),
		queueSize: DefaultQueueSize,
		pages:     make(map[string]*page),
	}
}

// Bind installs the inbound handler.
func (h *Hub) Bind(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

// Active returns the most recently attached context id.
func (h *Hub) Active() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var best *page
	for _, p := range h.pages {
		if best == nil || p.seq > best.seq {
			best = p
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}

// Attached returns the number of live pages.
func (h *Hub) Attached() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pages)
}

// Send queues cmd for contextID without blocking.
func (h *Hub) Send(contextID string, cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	p := h.pages[contextID]
	h.mu.Unlock()
	if p == nil {
		return ErrUnknownPage
	}

	select {
	case <-p.done:
		return ErrUnknownPage
	default:
	}

	select {
	case p.out <- cmd:
		return nil
	default:
		h.logger.Warn("bridge queue full", "context_id", contextID, "kind", cmd.Kind())
		return ErrDropped
	}
}

// Attach serves one agent stream until it ends.
func (h *Hub) Attach(stream grpc.ServerStream) error {
	ctx := stream.Context()
	id := contextIDFrom(ctx)
	if id == "" {
		return status.Error(codes.InvalidArgument, "missing "+contextIDKey+" metadata")
	}

	p := h.register(id)
	h.logger.Info("page attached", "context_id", id)

	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		h.sendLoop(ctx, stream, p)
	}()
	defer func() {
		p.close()
		<-sendDone
		h.unregister(p)
	}()

	for {
		frame := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(frame); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			h.logger.Warn("bridge receive failed", "context_id", id, "error", err.Error())
			return err
		}

		msg, err := protocol.Unmarshal(frame.GetValue())
		if err != nil {
			h.logger.Warn("dropping malformed message", "context_id", id, "error", err.Error())
			continue
		}
		ev, ok := msg.(protocol.Event)
		if !ok {
			h.logger.Warn("dropping non-event message from page", "context_id", id, "kind", msg.Kind())
			continue
		}

		if handler := h.currentHandler(); handler != nil {
			handler.HandleEvent(ctx, id, ev)
		}
	}
}

func (h *Hub) sendLoop(ctx context.Context, stream grpc.ServerStream, p *page) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case cmd := <-p.out:
			frame, err := encodeFrame(cmd)
			if err != nil {
				h.logger.Error("encode command", "context_id", p.id, "error", err.Error())
				continue
			}
			if err := stream.SendMsg(frame); err != nil {
				h.logger.Warn("bridge send failed", "context_id", p.id, "kind", cmd.Kind(), "error", err.Error())
				return
			}
		}
	}
}

func (h *Hub) register(id string) *page {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old := h.pages[id]; old != nil {
		old.close()
	}
	h.seq++
	p := &page{
		id:   id,
		seq:  h.seq,
		out:  make(chan protocol.Command, h.queueSize),
		done: make(chan struct{}),
	}
	h.pages[id] = p
	return p
}

func (h *Hub) unregister(p *page) {
	h.mu.Lock()
	current := h.pages[p.id] == p
	if current {
		delete(h.pages, p.id)
	}
	handler := h.handler
	h.mu.Unlock()

	if !current {
		return
	}
	h.logger.Info("page detached", "context_id", p.id)
	if handler != nil {
		handler.HandleDetach(p.id)
	}
}

func (h *Hub) currentHandler() Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler
}
