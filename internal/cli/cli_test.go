package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/voicehook.jsonc", "serve"})
	require.NoError(t, err)
	require.Equal(t, CommandServe, parsed.Command)
	require.Equal(t, "/tmp/voicehook.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseTestConnectionFlags(t *testing.T) {
	parsed, err := Parse([]string{"test-connection", "--url", "https://hooks.example.com", "--username", "ada", "--password", "s3cret"})
	require.NoError(t, err)
	require.Equal(t, CommandTestConnection, parsed.Command)
	require.Equal(t, "https://hooks.example.com", parsed.URL)
	require.Equal(t, "ada", parsed.Username)
	require.Equal(t, "s3cret", parsed.Password)

	parsed, err = Parse([]string{"test-connection"})
	require.NoError(t, err)
	require.Empty(t, parsed.URL)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
	}{
		{name: "help short flag", args: []string{"-h"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "help long flag", args: []string{"--help"}, wantCmd: CommandHelp, wantHelp: true},
		{name: "version flag", args: []string{"--version"}, wantCmd: CommandVersion},
		{name: "agent command", args: []string{"agent"}, wantCmd: CommandAgent},
		{name: "toggle command", args: []string{"toggle"}, wantCmd: CommandToggle},
		{name: "config after command", args: []string{"status", "--config", "/tmp/cfg"}, wantErr: "unexpected arguments after command"},
		{name: "missing config path", args: []string{"--config"}, wantErr: "requires a value"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: "unknown flag"},
		{name: "unknown command", args: []string{"bogus"}, wantErr: "unknown command"},
		{name: "extra args after command", args: []string{"doctor", "extra"}, wantErr: "unexpected arguments"},
		{name: "missing url value", args: []string{"test-connection", "--url"}, wantErr: "--url requires a value"},
		{name: "unknown test-connection flag", args: []string{"test-connection", "--token", "x"}, wantErr: "unexpected argument for test-connection"},
		{name: "credentials without url", args: []string{"test-connection", "--username", "ada"}, wantErr: "require --url"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
		})
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	text := HelpText("voicehook")
	for _, cmd := range []string{"serve", "agent", "toggle", "status", "test-connection", "devices", "doctor"} {
		require.Contains(t, text, cmd)
	}
	require.Contains(t, text, "$XDG_CONFIG_HOME/voicehook/config.jsonc")
}
