package session

import (
	"context"
	"testing"
	"time"

	"github.com/rbright/voicehook/internal/ipc"
	"github.com/rbright/voicehook/internal/protocol"
	"github.com/rbright/voicehook/internal/webhook"
	"github.com/stretchr/testify/require"
)

func TestHandleStatusAndToggle(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, resp.OK)
	require.Equal(t, "idle", resp.State)
	require.Equal(t, "status", resp.Message)

	resp = h.ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)
	require.Equal(t, "starting", resp.State)
	require.Equal(t, "start requested", resp.Message)
	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, "page-1", resp.Owner)

	h.ctrl.HandleEvent(context.Background(), "page-1", protocol.Started{})
	resp = h.ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)
	require.Equal(t, "stopping", resp.State)
	require.Equal(t, "stop requested", resp.Message)
}

func TestHandleToggleReportsBlockedStart(t *testing.T) {
	h := newHarness(t, nil)
	h.pages.active = ""

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.False(t, resp.OK)
	require.Equal(t, "idle", resp.State)
	require.Equal(t, ErrNoActivePage.Error(), resp.Error)
}

func TestHandleToggleWhileBusy(t *testing.T) {
	h := newHarness(t, nil, WithTimeouts(time.Second, time.Second))
	_, err := h.ctrl.Toggle(context.Background())
	require.NoError(t, err)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.True(t, resp.OK)
	require.Equal(t, "busy: starting", resp.Message)
}

func TestHandleTestConnection(t *testing.T) {
	dispatcher := &fakeDispatcher{test: webhook.ConnectionResult{Status: 401, Message: "authentication failed; check username and password"}}
	h := newHarness(t, dispatcher)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{
		Command:  "test-connection",
		URL:      "https://hooks.example.com/stt",
		Username: "ada",
		Password: "wrong",
	})
	require.False(t, resp.OK)
	require.Equal(t, 401, resp.HTTPStatus)
	require.Equal(t, "authentication failed; check username and password", resp.Error)
	require.Equal(t, []webhook.Target{{URL: "https://hooks.example.com/stt", Username: "ada", Password: "wrong"}}, dispatcher.targets)

	dispatcher.test = webhook.ConnectionResult{Success: true, Status: 200, Message: "connection successful"}
	resp = h.ctrl.Handle(context.Background(), ipc.Request{Command: "test-connection"})
	require.True(t, resp.OK)
	require.Equal(t, "connection successful", resp.Message)
}

func TestHandleUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: "explode"})
	require.False(t, resp.OK)
	require.Equal(t, "unknown command: explode", resp.Error)
}
