// Package protocol defines the closed message set exchanged between the session
// controller and capture agents.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the wire tag of one message variant.
type Kind string

const (
	KindStartRecording     Kind = "start-recording"
	KindStopRecording      Kind = "stop-recording"
	KindInjectResult       Kind = "inject-result"
	KindShowError          Kind = "show-error"
	KindStarted            Kind = "started"
	KindStoppedWithPayload Kind = "stopped-with-payload"
	KindStoppedTooShort    Kind = "stopped-too-short"
	KindCaptureError       Kind = "capture-error"
)

// ErrInvalidMessage wraps every decode and validation failure.
var ErrInvalidMessage = errors.New("invalid protocol message")

// Message is implemented by the eight protocol variants and nothing else.
type Message interface {
	Kind() Kind
	Validate() error
	sealed()
}

// Command is a message sent from the controller to a capture agent.
type Command interface {
	Message
	command()
}

// Event is a message sent from a capture agent to the controller.
type Event interface {
	Message
	event()
}

// StartRecording asks the agent to open the microphone.
type StartRecording struct {
	MinDurationSeconds float64 `json:"minDurationSeconds"`
}

// StopRecording asks the agent to finish the current capture.
type StopRecording struct{}

// InjectResult delivers recognized text to the agent's output surface.
type InjectResult struct {
	Text string `json:"text"`
}

// ShowError asks the agent to surface a failure to the user.
type ShowError struct {
	Message string `json:"message"`
}

// Started acknowledges that capture is running.
type Started struct{}

// StoppedWithPayload carries the base64 MP3 payload of a finished capture.
type StoppedWithPayload struct {
	Payload string `json:"payload"`
}

// StoppedTooShort reports a capture discarded by the minimum-duration gate.
type StoppedTooShort struct {
	Reason string `json:"reason"`
}

// CaptureError reports a device or encoding failure.
type CaptureError struct {
	Reason string `json:"reason"`
}

func (StartRecording) Kind() Kind     { return KindStartRecording }
func (StopRecording) Kind() Kind      { return KindStopRecording }
func (InjectResult) Kind() Kind       { return KindInjectResult }
func (ShowError) Kind() Kind          { return KindShowError }
func (Started) Kind() Kind            { return KindStarted }
func (StoppedWithPayload) Kind() Kind { return KindStoppedWithPayload }
func (StoppedTooShort) Kind() Kind    { return KindStoppedTooShort }
func (CaptureError) Kind() Kind       { return KindCaptureError }

func (m StartRecording) Validate() error {
	if m.MinDurationSeconds < 0 {
		return invalid(m.Kind(), "minDurationSeconds must be >= 0")
	}
	return nil
}

func (StopRecording) Validate() error { return nil }

func (m InjectResult) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return invalid(m.Kind(), "text must not be empty")
	}
	return nil
}

func (m ShowError) Validate() error {
	if strings.TrimSpace(m.Message) == "" {
		return invalid(m.Kind(), "message must not be empty")
	}
	return nil
}

func (Started) Validate() error { return nil }

func (m StoppedWithPayload) Validate() error {
	if m.Payload == "" {
		return invalid(m.Kind(), "payload must not be empty")
	}
	return nil
}

func (StoppedTooShort) Validate() error { return nil }
func (CaptureError) Validate() error    { return nil }

func (StartRecording) sealed()     {}
func (StopRecording) sealed()      {}
func (InjectResult) sealed()       {}
func (ShowError) sealed()          {}
func (Started) sealed()            {}
func (StoppedWithPayload) sealed() {}
func (StoppedTooShort) sealed()    {}
func (CaptureError) sealed()       {}

func (StartRecording) command() {}
func (StopRecording) command()  {}
func (InjectResult) command()   {}
func (ShowError) command()      {}

func (Started) event()            {}
func (StoppedWithPayload) event() {}
func (StoppedTooShort) event()    {}
func (CaptureError) event()       {}

// IsCommand reports whether m travels controller -> agent.
func IsCommand(m Message) bool {
	_, ok := m.(Command)
	return ok
}

// IsEvent reports whether m travels agent -> controller.
func IsEvent(m Message) bool {
	_, ok := m.(Event)
	return ok
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// Marshal validates m and encodes it as a {"kind","body"} envelope.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{Kind: m.Kind(), Body: body})
}

// Unmarshal decodes and validates one envelope.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", ErrInvalidMessage, err)
	}

	var m Message
	switch env.Kind {
	case KindStartRecording:
		var body StartRecording
		if err := decodeBody(env, &body); err != nil {
			return nil, err
		}
		m = body
	case KindStopRecording:
		m = StopRecording{}
	case KindInjectResult:
		var body InjectResult
		if err := decodeBody(env, &body); err != nil {
			return nil, err
		}
		m = body
	case KindShowError:
		var body ShowError
		if err := decodeBody(env, &body); err != nil {
			return nil, err
		}
		m = body
	case KindStarted:
		m = Started{}
	case KindStoppedWithPayload:
		var body StoppedWithPayload
		if err := decodeBody(env, &body); err != nil {
			return nil, err
		}
		m = body
	case KindStoppedTooShort:
		var body StoppedTooShort
		if err := decodeBody(env, &body); err != nil {
			return nil, err
		}
		m = body
	case KindCaptureError:
		var body CaptureError
		if err := decodeBody(env, &body); err != nil {
			return nil, err
		}
		m = body
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, env.Kind)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeBody(env envelope, out any) error {
	if len(env.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Body, out); err != nil {
		return fmt.Errorf("%w: decode %s body: %v", ErrInvalidMessage, env.Kind, err)
	}
	return nil
}

func invalid(kind Kind, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidMessage, kind, reason)
}
