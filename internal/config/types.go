// Package config resolves, parses, validates, and defaults voicehook configuration.
package config

// Config is the fully materialized runtime configuration.
type Config struct {
	Webhook   WebhookConfig   `key:"webhook"`
	Capture   CaptureConfig   `key:"capture"`
	Audio     AudioConfig     `key:"audio"`
	Paste     PasteConfig     `key:"paste"`
	Indicator IndicatorConfig `key:"indicator"`
	Clipboard CommandConfig   `key:"clipboard_cmd"`
	PasteCmd  CommandConfig   `key:"paste_cmd"`
	Bridge    BridgeConfig    `key:"bridge"`
	Log       LogConfig       `key:"log"`
}

// WebhookConfig is the remote transcription endpoint.
type WebhookConfig struct {
	URL       string `key:"url" validate:"omitempty,http_url"`
	Username  string `key:"username"`
	Password  string `key:"password"`
	TimeoutMS int    `key:"timeout_ms" validate:"gte=0,lte=600000"`
}

// CaptureConfig controls recording gates.
type CaptureConfig struct {
	MinDurationSeconds float64 `key:"min_duration_seconds" validate:"gte=0,lte=300"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `key:"input"`
	Fallback string `key:"fallback"`
}

// PasteConfig controls paste after text is placed on the clipboard.
type PasteConfig struct {
	Enable   bool   `key:"enable"`
	Shortcut string `key:"shortcut"`
}

// IndicatorConfig controls the status badge and audio cues.
type IndicatorConfig struct {
	Enable           bool   `key:"enable"`
	Backend          string `key:"backend" validate:"oneof=hypr desktop none"`
	DesktopAppName   string `key:"desktop_app_name" validate:"required_if=Backend desktop"`
	SoundEnable      bool   `key:"sound_enable"`
	SuccessTimeoutMS int    `key:"success_timeout_ms" validate:"gte=0"`
	ErrorTimeoutMS   int    `key:"error_timeout_ms" validate:"gte=0"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// BridgeConfig locates the controller/agent socket.
type BridgeConfig struct {
	Socket string `key:"socket"`
}

// LogConfig controls the JSONL runtime log.
type LogConfig struct {
	Level      string `key:"level" validate:"oneof=debug info warn error"`
	MaxSizeMB  int    `key:"max_size_mb" validate:"gte=1,lte=1024"`
	MaxBackups int    `key:"max_backups" validate:"gte=0,lte=100"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
