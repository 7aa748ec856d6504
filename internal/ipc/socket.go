package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAlreadyRunning is returned by Acquire when a live controller owns the socket.
var ErrAlreadyRunning = errors.New("voicehook controller already running")

var errStaleSocket = errors.New("stale socket removed")

// RuntimeDir returns $XDG_RUNTIME_DIR.
func RuntimeDir() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return runtimeDir, nil
}

// RuntimeSocketPath returns the controller's command socket path.
func RuntimeSocketPath() (string, error) {
	runtimeDir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "voicehook.sock"), nil
}

// Acquire binds path as the single-instance controller socket. A stale socket
// file is removed and rescue runs before the next attempt; a responsive owner
// yields ErrAlreadyRunning.
func Acquire(
	ctx context.Context,
	path string,
	probeTimeout time.Duration,
	retries int,
	rescue func(context.Context) error,
) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}
	if retries < 0 {
		retries = 0
	}

	var listener net.Listener
	attempt := func() error {
		l, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			listener = l
			return nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return backoff.Permanent(fmt.Errorf("listen unix %s: %w", path, err))
		}

		alive, probeErr := Probe(ctx, path, probeTimeout)
		if alive {
			return backoff.Permanent(ErrAlreadyRunning)
		}
		if probeErr != nil {
			return backoff.Permanent(fmt.Errorf("probe existing socket %s: %w", path, probeErr))
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return backoff.Permanent(fmt.Errorf("remove stale socket %s: %w", path, removeErr))
		}
		if rescue != nil {
			_ = rescue(ctx)
		}
		return errStaleSocket
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)

	if err := backoff.Retry(attempt, b); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, errStaleSocket) {
			return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, retries)
		}
		return nil, err
	}
	return listener, nil
}
