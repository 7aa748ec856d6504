package hypr

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

const defaultNotifyColor = "rgb(89b4fa)"

// SendShortcut dispatches a literal sendshortcut payload such as "CTRL,V,address:0x1".
func SendShortcut(ctx context.Context, payload string) error {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return errors.New("sendshortcut requires a non-empty payload")
	}
	return dispatch(ctx, "sendshortcut", payload)
}

// Notify shows a compositor notification. An empty color uses the default accent.
func Notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if strings.TrimSpace(color) == "" {
		color = defaultNotifyColor
	}
	return dispatch(ctx, "notify", strconv.Itoa(icon), strconv.Itoa(timeoutMS), color, text)
}

// DismissNotify dismisses every visible compositor notification.
func DismissNotify(ctx context.Context) error {
	return dispatch(ctx, "dismissnotify")
}
