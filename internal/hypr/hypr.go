// Package hypr wraps the hyprctl commands voicehook needs for notifications,
// paste dispatch, and environment checks.
package hypr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNotRunning is returned by Available outside a Hyprland session.
var ErrNotRunning = errors.New("HYPRLAND_INSTANCE_SIGNATURE is not set")

// Available reports whether hyprctl can reach a running compositor.
func Available() error {
	if strings.TrimSpace(os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")) == "" {
		return ErrNotRunning
	}
	if _, err := exec.LookPath("hyprctl"); err != nil {
		return fmt.Errorf("hyprctl not found in PATH: %w", err)
	}
	return nil
}

func dispatch(ctx context.Context, args ...string) error {
	_, err := run(ctx, append([]string{"--quiet", "dispatch"}, args...)...)
	return err
}

func run(ctx context.Context, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "hyprctl", args...).CombinedOutput()
	if err == nil {
		return out, nil
	}
	if detail := strings.TrimSpace(string(out)); detail != "" {
		return nil, fmt.Errorf("hyprctl %s: %w (%s)", strings.Join(args, " "), err, detail)
	}
	return nil, fmt.Errorf("hyprctl %s: %w", strings.Join(args, " "), err)
}
