package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "non-http webhook", mutate: func(c *Config) { c.Webhook.URL = "ftp://example.com" }, wantErr: "webhook.url must be an http(s) URL"},
		{name: "garbage webhook", mutate: func(c *Config) { c.Webhook.URL = "not a url" }, wantErr: "webhook.url"},
		{name: "negative timeout", mutate: func(c *Config) { c.Webhook.TimeoutMS = -1 }, wantErr: "webhook.timeout_ms must be >= 0"},
		{name: "negative min duration", mutate: func(c *Config) { c.Capture.MinDurationSeconds = -0.1 }, wantErr: "capture.min_duration_seconds must be >= 0"},
		{name: "huge min duration", mutate: func(c *Config) { c.Capture.MinDurationSeconds = 301 }, wantErr: "capture.min_duration_seconds must be <= 300"},
		{name: "unknown backend", mutate: func(c *Config) { c.Indicator.Backend = "waybar" }, wantErr: "indicator.backend must be one of: hypr, desktop, none"},
		{name: "desktop without app name", mutate: func(c *Config) {
			c.Indicator.Backend = "desktop"
			c.Indicator.DesktopAppName = ""
		}, wantErr: "indicator.desktop_app_name must not be empty when backend=desktop"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "indicator.error_timeout_ms"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log.level"},
		{name: "zero log size", mutate: func(c *Config) { c.Log.MaxSizeMB = 0 }, wantErr: "log.max_size_mb must be >= 1"},
		{name: "paste command raw but empty argv", mutate: func(c *Config) {
			c.Paste.Enable = true
			c.PasteCmd = CommandConfig{Raw: "mycmd"}
		}, wantErr: "paste_cmd"},
		{name: "missing paste shortcut", mutate: func(c *Config) {
			c.Paste.Enable = true
			c.PasteCmd = CommandConfig{}
			c.Paste.Shortcut = ""
		}, wantErr: "paste.shortcut"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.Webhook.URL = "http://hooks.local/stt"
	cfg.Webhook.Username = "ada"
	cfg.Webhook.Password = "pw"
	cfg.Clipboard = CommandConfig{}

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "plain http")
	require.Contains(t, warnings[1].Message, "system clipboard")

	cfg.Webhook.Password = ""
	warnings, err = Validate(cfg)
	require.NoError(t, err)
	require.Contains(t, warnings[0].Message, "without basic auth")
}

func TestValidateAcceptsDefaultsWithURL(t *testing.T) {
	cfg := Default()
	cfg.Webhook.URL = "https://hooks.example.com/stt"
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Empty(t, warnings)
}
