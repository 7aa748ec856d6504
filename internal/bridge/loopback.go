package bridge

import (
	"context"
	"sync"

	"github.com/rbright/voicehook/internal/protocol"
)

// Loopback connects a controller and one in-process agent without a socket.
// Both directions are queued and delivered on their own goroutines.
type Loopback struct {
	id string

	mu       sync.Mutex
	handler  Handler
	agent    CommandHandler
	attached bool

	toAgent      chan protocol.Command
	toController chan protocol.Event
}

// NewLoopback returns a detached loopback for contextID.
func NewLoopback(contextID string, queueSize int) *Loopback {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Loopback{
		id:           contextID,
		toAgent:      make(chan protocol.Command, queueSize),
		toController: make(chan protocol.Event, queueSize),
	}
}

// Bind installs the controller-side handler.
func (l *Loopback) Bind(handler Handler) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// Run attaches agent and delivers queued traffic until ctx ends, then reports detach.
func (l *Loopback) Run(ctx context.Context, agent CommandHandler) {
	l.mu.Lock()
	l.agent = agent
	l.attached = true
	l.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-l.toAgent:
				agent.HandleCommand(ctx, cmd)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-l.toController:
				if handler := l.currentHandler(); handler != nil {
					handler.HandleEvent(ctx, l.id, ev)
				}
			}
		}
	}()
	wg.Wait()
	if d, ok := agent.(DetachHandler); ok {
		d.Detached()
	}

	l.mu.Lock()
	l.attached = false
	handler := l.handler
	l.mu.Unlock()
	if handler != nil {
		handler.HandleDetach(l.id)
	}
}

// Active reports the loopback's context id while attached.
func (l *Loopback) Active() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id, l.attached
}

// Send queues cmd for the agent.
func (l *Loopback) Send(contextID string, cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if id, ok := l.Active(); !ok || id != contextID {
		return ErrUnknownPage
	}
	select {
	case l.toAgent <- cmd:
		return nil
	default:
		return ErrDropped
	}
}

// Emit queues ev for the controller.
func (l *Loopback) Emit(_ context.Context, ev protocol.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if _, ok := l.Active(); !ok {
		return ErrNotAttached
	}
	select {
	case l.toController <- ev:
		return nil
	default:
		return ErrDropped
	}
}

func (l *Loopback) currentHandler() Handler {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler
}
