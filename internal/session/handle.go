package session

import (
	"context"
	"fmt"

	"github.com/rbright/voicehook/internal/fsm"
	"github.com/rbright/voicehook/internal/ipc"
)

// Handle serves IPC commands for the controller.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return statusResponse(c.Status(), "status")
	case "toggle":
		st, changed, err := c.toggle(ctx)
		if err != nil {
			resp := statusResponse(st, "")
			resp.OK = false
			resp.Error = err.Error()
			return resp
		}
		return statusResponse(st, toggleMessage(st, changed))
	case "test-connection":
		result := c.TestConnection(ctx, req.URL, req.Username, req.Password)
		resp := ipc.Response{OK: result.Success, State: string(c.State()), HTTPStatus: result.Status}
		if result.Success {
			resp.Message = result.Message
		} else {
			resp.Error = result.Message
		}
		return resp
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func statusResponse(st Status, message string) ipc.Response {
	return ipc.Response{
		OK:        true,
		State:     string(st.State),
		Message:   message,
		Error:     st.LastError,
		SessionID: st.SessionID,
		Owner:     st.Owner,
		ElapsedMS: st.Elapsed.Milliseconds(),
	}
}

func toggleMessage(st Status, changed bool) string {
	switch {
	case !changed && st.State != fsm.StateIdle:
		return "busy: " + string(st.State)
	case st.State == fsm.StateStarting:
		return "start requested"
	case st.State == fsm.StateStopping:
		return "stop requested"
	default:
		return string(st.State)
	}
}
