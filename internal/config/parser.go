package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// file mirrors the JSONC document. Pointers distinguish absent keys from zero values.
type file struct {
	Webhook *struct {
		URL       *string `json:"url"`
		Username  *string `json:"username"`
		Password  *string `json:"password"`
		TimeoutMS *int    `json:"timeout_ms"`
	} `json:"webhook"`
	Capture *struct {
		MinDurationSeconds *float64 `json:"min_duration_seconds"`
	} `json:"capture"`
	Audio *struct {
		Input    *string `json:"input"`
		Fallback *string `json:"fallback"`
	} `json:"audio"`
	Paste *struct {
		Enable   *bool   `json:"enable"`
		Shortcut *string `json:"shortcut"`
	} `json:"paste"`
	Indicator *struct {
		Enable           *bool   `json:"enable"`
		Backend          *string `json:"backend"`
		DesktopAppName   *string `json:"desktop_app_name"`
		SoundEnable      *bool   `json:"sound_enable"`
		SuccessTimeoutMS *int    `json:"success_timeout_ms"`
		ErrorTimeoutMS   *int    `json:"error_timeout_ms"`
	} `json:"indicator"`
	ClipboardCmd *string `json:"clipboard_cmd"`
	PasteCmd     *string `json:"paste_cmd"`
	Bridge       *struct {
		Socket *string `json:"socket"`
	} `json:"bridge"`
	Log *struct {
		Level      *string `json:"level"`
		MaxSizeMB  *int    `json:"max_size_mb"`
		MaxBackups *int    `json:"max_backups"`
	} `json:"log"`
}

// Parse overlays a JSONC document onto base and validates the result.
// Blank content validates and returns base unchanged.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var doc file
	if err := decoder.Decode(&doc); err != nil {
		return Config{}, nil, locateDecodeError(content, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, locateDecodeError(content, err)
	}

	cfg := base
	if err := doc.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (doc file) applyTo(cfg *Config) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}

	if w := doc.Webhook; w != nil {
		set(&cfg.Webhook.URL, w.URL)
		// Credentials are taken verbatim.
		if w.Username != nil {
			cfg.Webhook.Username = *w.Username
		}
		if w.Password != nil {
			cfg.Webhook.Password = *w.Password
		}
		if w.TimeoutMS != nil {
			cfg.Webhook.TimeoutMS = *w.TimeoutMS
		}
	}
	if c := doc.Capture; c != nil && c.MinDurationSeconds != nil {
		cfg.Capture.MinDurationSeconds = *c.MinDurationSeconds
	}
	if a := doc.Audio; a != nil {
		set(&cfg.Audio.Input, a.Input)
		set(&cfg.Audio.Fallback, a.Fallback)
	}
	if p := doc.Paste; p != nil {
		if p.Enable != nil {
			cfg.Paste.Enable = *p.Enable
		}
		set(&cfg.Paste.Shortcut, p.Shortcut)
	}
	if i := doc.Indicator; i != nil {
		if i.Enable != nil {
			cfg.Indicator.Enable = *i.Enable
		}
		if i.Backend != nil {
			cfg.Indicator.Backend = strings.ToLower(strings.TrimSpace(*i.Backend))
		}
		set(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		if i.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *i.SoundEnable
		}
		if i.SuccessTimeoutMS != nil {
			cfg.Indicator.SuccessTimeoutMS = *i.SuccessTimeoutMS
		}
		if i.ErrorTimeoutMS != nil {
			cfg.Indicator.ErrorTimeoutMS = *i.ErrorTimeoutMS
		}
	}
	if doc.ClipboardCmd != nil {
		cmd, err := parseCommand("clipboard_cmd", *doc.ClipboardCmd)
		if err != nil {
			return err
		}
		cfg.Clipboard = cmd
	}
	if doc.PasteCmd != nil {
		cmd, err := parseCommand("paste_cmd", *doc.PasteCmd)
		if err != nil {
			return err
		}
		cfg.PasteCmd = cmd
	}
	if b := doc.Bridge; b != nil {
		set(&cfg.Bridge.Socket, b.Socket)
	}
	if l := doc.Log; l != nil {
		if l.Level != nil {
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(*l.Level))
		}
		if l.MaxSizeMB != nil {
			cfg.Log.MaxSizeMB = *l.MaxSizeMB
		}
		if l.MaxBackups != nil {
			cfg.Log.MaxBackups = *l.MaxBackups
		}
	}
	return nil
}

func parseCommand(key string, raw string) (CommandConfig, error) {
	argv, err := parseArgv(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("multiple JSON values are not allowed")
	default:
		return err
	}
}

// locateDecodeError prefixes syntax and type errors with a line and column.
// normalizeJSONC preserves byte offsets, so positions refer to the original file.
func locateDecodeError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// offsetToLineCol maps a 1-based decoder offset to a line and column.
func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := min(int(offset), len(content))
	if limit == 0 {
		return 1, 1
	}
	prefix := content[:limit-1]
	line := 1 + strings.Count(prefix, "\n")
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}
