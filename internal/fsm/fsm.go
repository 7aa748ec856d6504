// Package fsm defines the recording-session state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

const (
	// EventStart leaves idle once a start command is about to be sent.
	EventStart Event = "start"
	// EventAcknowledge confirms the capture context began recording.
	EventAcknowledge Event = "acknowledge"
	// EventStop marks a stop command as in flight.
	EventStop Event = "stop"
	// EventPayload hands an encoded payload to the dispatcher.
	EventPayload Event = "payload"
	// EventAbort ends an attempt without dispatch (too short, capture error).
	EventAbort Event = "abort"
	// EventDispatched records a successful remote transcription.
	EventDispatched Event = "dispatched"
	EventFail       Event = "fail"
	EventReset      Event = "reset"
)

// Transition returns the next state for event, or an error when the pair is not allowed.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		if !known(current) {
			return current, fmt.Errorf("unknown state %q", current)
		}
		return StateFailed, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateStarting, nil
		}
	case StateStarting:
		switch event {
		case EventAcknowledge:
			return StateRecording, nil
		case EventAbort:
			return StateIdle, nil
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateStopping, nil
		case EventPayload:
			return StateProcessing, nil
		case EventAbort:
			return StateIdle, nil
		}
	case StateStopping:
		switch event {
		case EventPayload:
			return StateProcessing, nil
		case EventAbort:
			return StateIdle, nil
		}
	case StateProcessing:
		switch event {
		case EventDispatched:
			return StateSucceeded, nil
		}
	case StateSucceeded, StateFailed:
		switch event {
		case EventReset:
			return StateIdle, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	return current, invalidTransition(current, event)
}

// Busy reports whether a session exists in state.
func Busy(state State) bool {
	return state != StateIdle
}

func known(state State) bool {
	switch state {
	case StateIdle, StateStarting, StateRecording, StateStopping, StateProcessing, StateSucceeded, StateFailed:
		return true
	default:
		return false
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
