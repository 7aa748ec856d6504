package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	structValid  *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		structValid = validator.New()
		structValid.RegisterTagNameFunc(func(field reflect.StructField) string {
			return field.Tag.Get("key")
		})
	})
	return structValid
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	if err := structValidator().Struct(cfg); err != nil {
		return nil, describeValidation(err)
	}

	if cfg.Paste.Enable && cfg.PasteCmd.Raw != "" && len(cfg.PasteCmd.Argv) == 0 {
		return nil, errors.New("paste_cmd is configured but empty")
	}
	if cfg.Paste.Enable && len(cfg.PasteCmd.Argv) == 0 && strings.TrimSpace(cfg.Paste.Shortcut) == "" {
		return nil, errors.New("paste.shortcut must not be empty when paste.enable=true and paste_cmd is unset")
	}

	var warnings []Warning
	if cfg.Webhook.URL == "" {
		warnings = append(warnings, Warning{Message: "webhook.url is not set; recording stays blocked until it is configured"})
	}
	hasUser, hasPass := cfg.Webhook.Username != "", cfg.Webhook.Password != ""
	if hasUser != hasPass {
		warnings = append(warnings, Warning{Message: "only one of webhook.username/webhook.password is set; requests are sent without basic auth"})
	}
	if hasUser && hasPass {
		if u, err := url.Parse(cfg.Webhook.URL); err == nil && u.Scheme == "http" {
			warnings = append(warnings, Warning{Message: "webhook credentials are sent over plain http"})
		}
	}
	if len(cfg.Clipboard.Argv) == 0 {
		warnings = append(warnings, Warning{Message: "clipboard_cmd is empty; using the system clipboard directly"})
	}
	return warnings, nil
}

// describeValidation reports the first failing field by its config key.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	key := strings.TrimPrefix(fe.Namespace(), "Config.")
	key = strings.TrimPrefix(key, ".")

	switch fe.Tag() {
	case "http_url":
		return fmt.Errorf("%s must be an http(s) URL", key)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", key, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Errorf("%s must be >= %s", key, fe.Param())
	case "lte":
		return fmt.Errorf("%s must be <= %s", key, fe.Param())
	case "required_if":
		return fmt.Errorf("%s must not be empty when %s", key, strings.Replace(strings.ToLower(fe.Param()), " ", "=", 1))
	default:
		return fmt.Errorf("%s failed %q validation", key, fe.Tag())
	}
}
