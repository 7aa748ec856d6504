package output

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rbright/voicehook/internal/hypr"
)

func pasteShortcut(ctx context.Context, shortcut string) error {
	window, err := activeWindowWithRetry(ctx, 5, 10*time.Millisecond)
	if err != nil {
		return err
	}
	payload, err := shortcutPayload(shortcut, window.Address)
	if err != nil {
		return err
	}
	return hypr.SendShortcut(ctx, payload)
}

// shortcutPayload pins the shortcut to one window so focus changes cannot redirect it.
func shortcutPayload(shortcut string, address string) (string, error) {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" {
		return "", errors.New("paste shortcut cannot be empty")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("active window address is required")
	}
	return shortcut + ",address:" + address, nil
}

func activeWindowWithRetry(ctx context.Context, attempts int, delay time.Duration) (hypr.ActiveWindow, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var window hypr.ActiveWindow
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		w, err := hypr.QueryActiveWindow(ctx)
		if err != nil {
			return err
		}
		window = w
		return nil
	}, policy)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return hypr.ActiveWindow{}, ctxErr
		}
		return hypr.ActiveWindow{}, fmt.Errorf("resolve active window: %w", err)
	}
	return window, nil
}
