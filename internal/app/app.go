// Package app maps parsed commands onto the controller, agent, and client flows.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rbright/voicehook/internal/audio"
	"github.com/rbright/voicehook/internal/cli"
	"github.com/rbright/voicehook/internal/config"
	"github.com/rbright/voicehook/internal/doctor"
	"github.com/rbright/voicehook/internal/ipc"
	"github.com/rbright/voicehook/internal/logging"
	"github.com/rbright/voicehook/internal/version"
	"github.com/rbright/voicehook/internal/webhook"
)

const (
	forwardTimeout      = 2 * time.Second
	doctorProbeTimeout  = 5 * time.Second
	connectionTestSlack = 5 * time.Second
)

var errControllerDown = errors.New("voicehook controller is not running (start it with `voicehook serve`)")

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("voicehook"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("voicehook"))
		return 0
	}
	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		if parsed.Command != cli.CommandServe {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		// The controller re-reads config per toggle, so it starts on defaults
		// and reports the broken file when a session is attempted.
		fmt.Fprintf(r.Stderr, "warning: %v; starting with defaults\n", err)
		path, _ := config.ResolvePath(parsed.ConfigPath)
		cfgLoaded = config.Loaded{Path: path, Config: config.Default()}
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
	}

	logRuntime, err := logging.New(logName(parsed.Command), cfgLoaded.Config.Log)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}
	for _, w := range cfgLoaded.Warnings {
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}
	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded, logger)
	case cli.CommandAgent:
		return r.commandAgent(ctx, cfgLoaded.Config, logger)
	case cli.CommandToggle:
		return r.commandToggle(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandTestConnection:
		return r.commandTestConnection(ctx, parsed, cfgLoaded.Config)
	case cli.CommandDoctor:
		tester := webhook.NewClient(doctorProbeTimeout, logger)
		report := doctor.Run(ctx, cfgLoaded, tester)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func logName(cmd cli.Command) string {
	switch cmd {
	case cli.CommandServe:
		return "log"
	case cli.CommandAgent:
		return "agent"
	default:
		return "cli"
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}
	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandToggle(ctx context.Context) int {
	resp, err := forward(ctx, ipc.Request{Command: "toggle"}, forwardTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	resp, err := forward(ctx, ipc.Request{Command: "status"}, forwardTimeout)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, formatStatus(resp))
	return 0
}

func formatStatus(resp ipc.Response) string {
	state := resp.State
	if state == "" {
		state = "idle"
	}
	line := state
	if resp.SessionID != "" {
		line += " session=" + resp.SessionID
	}
	if resp.Owner != "" {
		line += " owner=" + resp.Owner
	}
	if resp.ElapsedMS > 0 {
		line += fmt.Sprintf(" elapsed=%.1fs", float64(resp.ElapsedMS)/1000)
	}
	if resp.Error != "" {
		line += "\nlast error: " + resp.Error
	}
	return line
}

func (r Runner) commandTestConnection(ctx context.Context, parsed cli.Parsed, cfg config.Config) int {
	timeout := time.Duration(cfg.Webhook.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = webhook.DefaultTimeout
	}
	req := ipc.Request{
		Command:  "test-connection",
		URL:      parsed.URL,
		Username: parsed.Username,
		Password: parsed.Password,
	}
	resp, err := forward(ctx, req, timeout+connectionTestSlack)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, resp.Message)
	return 0
}

// forward sends req to the controller. A response with OK=false becomes an error.
func forward(ctx context.Context, req ipc.Request, timeout time.Duration) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, err
	}

	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	switch {
	case ipc.IsUnavailable(err):
		return ipc.Response{}, errControllerDown
	case err != nil:
		return ipc.Response{}, fmt.Errorf("forward command %q: %w", req.Command, err)
	case !resp.OK:
		if resp.HTTPStatus > 0 {
			return resp, fmt.Errorf("%s (HTTP %d)", resp.Error, resp.HTTPStatus)
		}
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
