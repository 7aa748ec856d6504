// Package cli parses voicehook's command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandServe          Command = "serve"
	CommandAgent          Command = "agent"
	CommandToggle         Command = "toggle"
	CommandStatus         Command = "status"
	CommandTestConnection Command = "test-connection"
	CommandDevices        Command = "devices"
	CommandDoctor         Command = "doctor"
	CommandVersion        Command = "version"
	CommandHelp           Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandServe:          {},
	CommandAgent:          {},
	CommandToggle:         {},
	CommandStatus:         {},
	CommandTestConnection: {},
	CommandDevices:        {},
	CommandDoctor:         {},
	CommandVersion:        {},
	CommandHelp:           {},
}

// Parsed is the result of a successful parse.
type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool

	// test-connection overrides; empty means "use the configured value".
	URL      string
	Username string
	Password string
}

// Parse reads global flags, one command, and that command's flags.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			value, err := flagValue(args, &i, arg)
			if err != nil {
				return Parsed{}, err
			}
			parsed.ConfigPath = value
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}
			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp

			rest := args[i+1:]
			if cmd == CommandTestConnection {
				return parseTestConnection(parsed, rest)
			}
			if len(rest) > 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseTestConnection(parsed Parsed, args []string) (Parsed, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var dst *string
		switch arg {
		case "--url":
			dst = &parsed.URL
		case "--username":
			dst = &parsed.Username
		case "--password":
			dst = &parsed.Password
		default:
			return Parsed{}, fmt.Errorf("unexpected argument for test-connection: %s", arg)
		}
		value, err := flagValue(args, &i, arg)
		if err != nil {
			return Parsed{}, err
		}
		*dst = value
	}
	if parsed.URL == "" && (parsed.Username != "" || parsed.Password != "") {
		return Parsed{}, errors.New("--username/--password require --url")
	}
	return parsed, nil
}

func flagValue(args []string, i *int, name string) (string, error) {
	*i++
	if *i >= len(args) {
		return "", fmt.Errorf("%s requires a value", name)
	}
	return args[*i], nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command>

Commands:
  serve             Run the session controller (owns the toggle and bridge sockets)
  agent             Run a capture agent attached to the controller
  toggle            Start recording, or stop and transcribe when recording
  status            Print controller state, session and elapsed time
  test-connection   Probe the webhook [--url URL --username NAME --password PASS]
  devices           List available input devices
  doctor            Run configuration and environment checks
  version           Print version information
  help              Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/voicehook/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
