package hypr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ActiveWindow identifies the paste target.
type ActiveWindow struct {
	Address      string `json:"address"`
	Class        string `json:"class"`
	InitialClass string `json:"initialClass"`
}

// QueryActiveWindow returns the focused window; an empty address is an error.
func QueryActiveWindow(ctx context.Context) (ActiveWindow, error) {
	var window ActiveWindow
	if err := queryJSON(ctx, "activewindow", &window); err != nil {
		return ActiveWindow{}, err
	}
	window.Address = strings.TrimSpace(window.Address)
	window.Class = strings.TrimSpace(window.Class)
	window.InitialClass = strings.TrimSpace(window.InitialClass)
	if window.Address == "" {
		return ActiveWindow{}, errors.New("hyprctl activewindow returned empty address")
	}
	return window, nil
}

// QueryFocusedMonitor returns the focused monitor, or the first one when none is focused.
func QueryFocusedMonitor(ctx context.Context) (string, error) {
	var monitors []struct {
		Name    string `json:"name"`
		Focused bool   `json:"focused"`
	}
	if err := queryJSON(ctx, "monitors", &monitors); err != nil {
		return "", err
	}
	if len(monitors) == 0 {
		return "", errors.New("hyprctl monitors returned no outputs")
	}
	name := monitors[0].Name
	for _, mon := range monitors {
		if mon.Focused {
			name = mon.Name
			break
		}
	}
	return strings.TrimSpace(name), nil
}

func queryJSON(ctx context.Context, target string, out any) error {
	data, err := run(ctx, "-j", target)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode hyprctl %s json: %w", target, err)
	}
	return nil
}
