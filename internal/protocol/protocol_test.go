package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalEveryKind(t *testing.T) {
	messages := []Message{
		StartRecording{MinDurationSeconds: 1.5},
		StopRecording{},
		InjectResult{Text: "hello"},
		ShowError{Message: "no endpoint"},
		Started{},
		StoppedWithPayload{Payload: "SUQz"},
		StoppedTooShort{Reason: "0.4s < 1s"},
		CaptureError{Reason: "permission denied"},
	}

	for _, m := range messages {
		t.Run(string(m.Kind()), func(t *testing.T) {
			data, err := Marshal(m)
			require.NoError(t, err)
			require.Contains(t, string(data), `"kind":"`+string(m.Kind())+`"`)

			got, err := Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, m, got)
		})
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"toggle-recording","body":{}}`))
	require.ErrorIs(t, err, ErrInvalidMessage)
	require.Contains(t, err.Error(), "unknown kind")
}

func TestUnmarshalRejectsMalformedInput(t *testing.T) {
	_, err := Unmarshal([]byte(`not-json`))
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Unmarshal([]byte(`{"kind":"inject-result","body":{"text":42}}`))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "negative duration", msg: StartRecording{MinDurationSeconds: -1}},
		{name: "empty text", msg: InjectResult{Text: "  "}},
		{name: "empty error message", msg: ShowError{}},
		{name: "empty payload", msg: StoppedWithPayload{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.msg.Validate(), ErrInvalidMessage)
			_, err := Marshal(tc.msg)
			require.ErrorIs(t, err, ErrInvalidMessage)
		})
	}

	_, err := Unmarshal([]byte(`{"kind":"stopped-with-payload","body":{"payload":""}}`))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestBodyOptionalForEmptyVariants(t *testing.T) {
	m, err := Unmarshal([]byte(`{"kind":"stop-recording"}`))
	require.NoError(t, err)
	require.Equal(t, StopRecording{}, m)

	m, err = Unmarshal([]byte(`{"kind":"start-recording"}`))
	require.NoError(t, err)
	require.Equal(t, StartRecording{}, m)
}

func TestDirection(t *testing.T) {
	commands := []Message{StartRecording{}, StopRecording{}, InjectResult{Text: "x"}, ShowError{Message: "x"}}
	events := []Message{Started{}, StoppedWithPayload{Payload: "x"}, StoppedTooShort{}, CaptureError{}}

	for _, m := range commands {
		require.True(t, IsCommand(m), m.Kind())
		require.False(t, IsEvent(m), m.Kind())
	}
	for _, m := range events {
		require.True(t, IsEvent(m), m.Kind())
		require.False(t, IsCommand(m), m.Kind())
	}
}

func TestMarshalNil(t *testing.T) {
	_, err := Marshal(nil)
	require.ErrorIs(t, err, ErrInvalidMessage)
}
