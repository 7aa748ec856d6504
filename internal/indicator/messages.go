package indicator

import "fmt"

// Status is one of the five badge states.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// ParseStatus validates a status name.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusIdle, StatusRecording, StatusProcessing, StatusSuccess, StatusError:
		return s, nil
	default:
		return "", fmt.Errorf("unknown indicator status %q", raw)
	}
}

// view is how one status renders on a notification backend.
type view struct {
	icon      int
	color     string
	text      string
	timeoutMS int
}

// Hyprland notify icons: 1 info, 3 error, 5 ok.
func viewFor(status Status, successMS, errorMS int) view {
	switch status {
	case StatusRecording:
		return view{icon: 1, color: "rgb(89b4fa)", text: "Recording…", timeoutMS: 300000}
	case StatusProcessing:
		return view{icon: 1, color: "rgb(cba6f7)", text: "Transcribing…", timeoutMS: 300000}
	case StatusSuccess:
		return view{icon: 5, color: "rgb(a6e3a1)", text: "Transcribed", timeoutMS: successMS}
	case StatusError:
		return view{icon: 3, color: "rgb(f38ba8)", text: "Transcription failed", timeoutMS: errorMS}
	default:
		return view{}
	}
}
