// Package doctor runs readiness diagnostics for config, endpoint, tools, and audio.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rbright/voicehook/internal/audio"
	"github.com/rbright/voicehook/internal/config"
	"github.com/rbright/voicehook/internal/hypr"
	"github.com/rbright/voicehook/internal/ipc"
	"github.com/rbright/voicehook/internal/webhook"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ConnectionTester probes the transcription endpoint.
type ConnectionTester interface {
	TestConnection(ctx context.Context, target webhook.Target) webhook.ConnectionResult
}

var selectDevice = audio.SelectDevice

// Run executes environment/config/runtime checks for a loaded config.
// A nil tester skips the endpoint probe.
func Run(ctx context.Context, loaded config.Loaded, tester ConnectionTester) Report {
	cfg := loaded.Config
	checks := []Check{configCheck(loaded)}
	for _, w := range loaded.Warnings {
		checks = append(checks, Check{Name: "config.warning", Pass: true, Message: w.Message})
	}

	checks = append(checks, checkWebhook(ctx, cfg.Webhook, tester)...)

	if _, err := ipc.RuntimeDir(); err != nil {
		checks = append(checks, Check{Name: "XDG_RUNTIME_DIR", Pass: false, Message: err.Error()})
	} else {
		checks = append(checks, Check{Name: "XDG_RUNTIME_DIR", Pass: true, Message: "runtime dir available for sockets"})
	}

	checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
		return strings.EqualFold(strings.TrimSpace(v), "wayland")
	}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

	needsHypr := cfg.Indicator.Enable && cfg.Indicator.Backend == "hypr"
	if cfg.Paste.Enable && len(cfg.PasteCmd.Argv) == 0 {
		needsHypr = true
	}
	if needsHypr {
		if err := hypr.Available(); err != nil {
			checks = append(checks, Check{Name: "hyprland", Pass: false, Message: err.Error()})
		} else {
			checks = append(checks, Check{Name: "hyprland", Pass: true, Message: "Hyprland session detected"})
		}
	}
	if cfg.Indicator.Enable && cfg.Indicator.Backend == "desktop" {
		checks = append(checks, checkBinary("busctl", "desktop notifications require busctl"))
	}

	if len(cfg.Clipboard.Argv) == 0 {
		checks = append(checks, Check{Name: "clipboard_cmd", Pass: true, Message: "unset; using the system clipboard"})
	} else {
		checks = append(checks, checkCommand(cfg.Clipboard.Argv, "clipboard_cmd"))
	}
	if cfg.Paste.Enable && len(cfg.PasteCmd.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.PasteCmd.Argv, "paste_cmd"))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg.Audio))
	return Report{Checks: checks}
}

func configCheck(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", loaded.Path)}
}

func checkWebhook(ctx context.Context, cfg config.WebhookConfig, tester ConnectionTester) []Check {
	if cfg.URL == "" {
		return []Check{{Name: "webhook.url", Pass: false, Message: "not set; recording is blocked"}}
	}
	checks := []Check{{Name: "webhook.url", Pass: true, Message: cfg.URL}}
	if tester == nil {
		return checks
	}

	result := tester.TestConnection(ctx, webhook.Target{URL: cfg.URL, Username: cfg.Username, Password: cfg.Password})
	return append(checks, Check{Name: "webhook.connection", Pass: result.Success, Message: result.Message})
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	if predicate(os.Getenv(name)) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	check := checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
	check.Name = name
	return check
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.AudioConfig) Check {
	selection, err := selectDevice(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message += " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}
