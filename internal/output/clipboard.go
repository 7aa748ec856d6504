// Package output injects transcribed text into the focused application by
// setting the clipboard and dispatching a paste.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rbright/voicehook/internal/config"
)

const (
	clipboardTimeout = 2 * time.Second
	pasteCmdTimeout  = 2 * time.Second
	shortcutTimeout  = 1200 * time.Millisecond
)

// Injector sets the clipboard and optionally pastes into the focused window.
type Injector struct {
	clipboardArgv []string
	paste         config.PasteConfig
	pasteArgv     []string
	logger        *slog.Logger

	writeSystem func(string) error
}

// NewInjector builds an injector from runtime config.
func NewInjector(cfg config.Config, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Injector{
		clipboardArgv: cfg.Clipboard.Argv,
		paste:         cfg.Paste,
		pasteArgv:     cfg.PasteCmd.Argv,
		logger:        logger.With("component", "output"),
		writeSystem:   clipboard.WriteAll,
	}
}

// Inject places text on the clipboard and pastes it when enabled. Only a
// clipboard failure is returned; a failed paste leaves the clipboard set.
func (i *Injector) Inject(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := i.setClipboard(ctx, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if !i.paste.Enable {
		return nil
	}

	var err error
	if len(i.pasteArgv) > 0 {
		pasteCtx, cancel := context.WithTimeout(ctx, pasteCmdTimeout)
		defer cancel()
		err = runWithInput(pasteCtx, i.pasteArgv, "")
	} else {
		pasteCtx, cancel := context.WithTimeout(ctx, shortcutTimeout)
		defer cancel()
		err = pasteShortcut(pasteCtx, i.paste.Shortcut)
	}
	if err != nil {
		i.logger.Error("paste dispatch failed; clipboard remains set", "error", err.Error())
	}
	return nil
}

func (i *Injector) setClipboard(ctx context.Context, text string) error {
	if len(i.clipboardArgv) == 0 {
		return i.writeSystem(text)
	}
	clipCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	return runWithInput(clipCtx, i.clipboardArgv, text)
}

// runWithInput runs argv with input on stdin.
func runWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return errors.New("command argv cannot be empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	if out, err := cmd.CombinedOutput(); err != nil {
		if detail := strings.TrimSpace(string(out)); detail != "" {
			return fmt.Errorf("run %s: %w (%s)", argv[0], err, detail)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
