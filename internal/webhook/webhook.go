// Package webhook posts encoded audio to the transcription endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds one dispatch request.
const DefaultTimeout = 120 * time.Second

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrMissingURL is returned when no endpoint is configured.
	ErrMissingURL = errors.New("webhook URL is not configured")
	// ErrEmptyResult is returned for a well-formed response without text.
	ErrEmptyResult = errors.New("no transcription text in response")
)

// TransportError is a non-2xx response or a request that never got one (Status 0).
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status == http.StatusUnauthorized:
		return "authentication failed (HTTP 401); check webhook username and password"
	case e.Status != 0:
		return fmt.Sprintf("webhook returned HTTP %d", e.Status)
	case e.Err != nil:
		return "webhook request failed: " + e.Err.Error()
	default:
		return "webhook request failed"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is an explicit error field in an otherwise successful response.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "transcription service error: " + e.Message }

// ResponseError is a 2xx response whose body is not the expected JSON.
type ResponseError struct {
	Err error
}

func (e *ResponseError) Error() string { return "invalid webhook response: " + e.Err.Error() }
func (e *ResponseError) Unwrap() error { return e.Err }

// Target is the endpoint plus optional credentials.
type Target struct {
	URL      string
	Username string
	Password string
}

// HasAuth reports whether both credentials are present.
func (t Target) HasAuth() bool {
	return t.Username != "" && t.Password != ""
}

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Success bool
	Status  int
	Message string
}

type audioRequest struct {
	Audio     string `json:"audio"`
	Timestamp string `json:"timestamp"`
}

type testRequest struct {
	Test      bool   `json:"test"`
	Timestamp string `json:"timestamp"`
}

type transcriptionResponse struct {
	CleanedText string `json:"cleanedText"`
	Text        string `json:"text"`
	Error       any    `json:"error"`
}

// Client issues single-attempt webhook requests.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient builds a client with retries disabled.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	http := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: http, logger: logger.With("component", "webhook"), now: time.Now}
}

// Dispatch posts one base64 payload and returns the recognized text.
func (c *Client) Dispatch(ctx context.Context, target Target, audio string) (string, error) {
	resp, err := c.post(ctx, target, audioRequest{Audio: audio, Timestamp: c.timestamp()})
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", &TransportError{Status: resp.StatusCode()}
	}
	return parseTranscription(resp.Body())
}

// TestConnection posts a marker payload and reports reachability and auth.
func (c *Client) TestConnection(ctx context.Context, target Target) ConnectionResult {
	resp, err := c.post(ctx, target, testRequest{Test: true, Timestamp: c.timestamp()})
	if err != nil {
		return ConnectionResult{Message: err.Error()}
	}

	status := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return ConnectionResult{Success: true, Status: status, Message: "connection successful"}
	case status == http.StatusUnauthorized:
		return ConnectionResult{Status: status, Message: "authentication failed; check username and password"}
	default:
		return ConnectionResult{Status: status, Message: fmt.Sprintf("connection failed: %d %s", status, http.StatusText(status))}
	}
}

func (c *Client) post(ctx context.Context, target Target, body any) (*resty.Response, error) {
	url := strings.TrimSpace(target.URL)
	if url == "" {
		return nil, ErrMissingURL
	}

	req := c.http.R().SetContext(ctx).EnableTrace().SetBody(body)
	if target.HasAuth() {
		req.SetBasicAuth(target.Username, target.Password)
	}

	resp, err := req.Post(url)
	if err != nil {
		c.logger.Error("webhook request failed", "error", err.Error())
		return nil, &TransportError{Err: err}
	}

	trace := resp.Request.TraceInfo()
	c.logger.Info("webhook response",
		"status", resp.StatusCode(),
		"auth", target.HasAuth(),
		"response_bytes", len(resp.Body()),
		"dns_ms", trace.DNSLookup.Milliseconds(),
		"tcp_ms", trace.TCPConnTime.Milliseconds(),
		"tls_ms", trace.TLSHandshake.Milliseconds(),
		"ttfb_ms", trace.ServerTime.Milliseconds(),
		"total_ms", trace.TotalTime.Milliseconds(),
		"conn_reused", trace.IsConnReused,
	)
	return resp, nil
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(TimestampLayout)
}

// parseTranscription prefers cleanedText over text; a truthy error field wins over both.
func parseTranscription(body []byte) (string, error) {
	var parsed transcriptionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &ResponseError{Err: err}
	}

	if msg, ok := remoteErrorMessage(parsed.Error); ok {
		return "", &RemoteError{Message: msg}
	}

	text := parsed.CleanedText
	if text == "" {
		text = parsed.Text
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

func remoteErrorMessage(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return "error", val
	case float64:
		return fmt.Sprintf("%v", val), val != 0
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "unknown error", true
		}
		return string(raw), true
	}
}
