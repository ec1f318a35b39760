// Package outbound dispatches external_send requests to third-party
// endpoints. Live runs hit the network; preview runs never reach this
// package — the runner short-circuits before dispatch.
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/formflow/formflow/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultTimeout         = 30 * time.Second
	maxRedirects           = 10
)

// Request is one outbound HTTP call, fully resolved: no tokens or aliases
// remain in the body by the time it reaches the dispatcher.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    map[string]any
}

// Response is the decoded result of a dispatched request. Body is the parsed
// JSON payload when the response is JSON, otherwise the raw string.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       any
	DurationMs int64
}

// Dispatcher sends resolved outbound requests.
type Dispatcher interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Config tunes the HTTP dispatcher.
type Config struct {
	MaxResponseBody int64
	Timeout         time.Duration
}

// HTTPDispatcher is the production Dispatcher backed by net/http.
type HTTPDispatcher struct {
	config Config
	client *http.Client
}

// NewHTTPDispatcher creates a dispatcher with bounded response size,
// a hard timeout, and a redirect cap.
func NewHTTPDispatcher(cfg Config) *HTTPDispatcher {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &HTTPDispatcher{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Send executes the request. Non-2xx statuses are not errors here; the
// runner decides how to surface them.
func (d *HTTPDispatcher) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodPost
	}

	var bodyReader io.Reader
	if req.Body != nil && method != http.MethodGet {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "marshal request body: %s", err.Error()).WithCause(err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "build request: %s", err.Error()).WithCause(err)
	}
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "dispatch %s %s: %s", method, req.URL, err.Error()).WithCause(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, d.config.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "read response: %s", err.Error()).WithCause(err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    flattenHeaders(httpResp.Header),
		DurationMs: time.Since(start).Milliseconds(),
	}
	resp.Body = decodeBody(httpResp.Header.Get("Content-Type"), raw)
	return resp, nil
}

func validateRequest(req *Request) error {
	if req == nil || req.URL == "" {
		return schema.NewError(schema.ErrCodeValidation, "outbound request requires a url")
	}
	u, err := url.ParseRequestURI(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid outbound url %q", req.URL)
	}
	return nil
}

func decodeBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err == nil {
			return parsed
		}
	}
	return string(raw)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

var _ Dispatcher = (*HTTPDispatcher)(nil)
