package config

// Default returns the configuration used when no file is present.
func Default() Config {
	clipboard := "wl-copy --trim-newline"

	return Config{
		Webhook: WebhookConfig{TimeoutMS: 120000},
		Capture: CaptureConfig{MinDurationSeconds: 1},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Paste: PasteConfig{Enable: true, Shortcut: "CTRL,V"},
		Indicator: IndicatorConfig{
			Enable:           true,
			Backend:          "hypr",
			DesktopAppName:   "voicehook",
			SoundEnable:      true,
			SuccessTimeoutMS: 2000,
			ErrorTimeoutMS:   3000,
		},
		Clipboard: CommandConfig{Raw: clipboard, Argv: mustParseArgv(clipboard)},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
