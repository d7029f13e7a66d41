// Package remote implements the client ports against the meshi HTTP API and
// its live socket.
package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"resty.dev/v3"
)

// APIError is a non-2xx answer. Error returns the server's message verbatim
// so it can be alerted as is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Message }

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Options configure a remote client.
type Options struct {
	// BaseURL is the server root, e.g. http://localhost:8375.
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
	// Popup opens the provider consent URL and returns the authorization code
	// it redirected back with.
	Popup func(ctx context.Context, consentURL string) (string, error)
}

// transport owns the HTTP client and the bearer token.
type transport struct {
	client *resty.Client
	base   string
	log    *slog.Logger

	mu    sync.RWMutex
	token string
}

func newTransport(opts Options) *transport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	c := resty.New()
	c.SetBaseURL(base + "/api")
	c.SetTimeout(timeout)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &transport{client: c, base: base, log: logger}
}

func (t *transport) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *transport) setToken(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

// r starts a request carrying ctx and, when signed in, the bearer token.
func (t *transport) r(ctx context.Context) *resty.Request {
	req := t.client.R().WithContext(ctx)
	if token := t.Token(); token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// check turns a failed response into an error.
func check(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !res.IsError() {
		return nil
	}
	apiErr := &APIError{Status: res.StatusCode()}
	var body errorBody
	if jsonErr := json.Unmarshal([]byte(res.String()), &body); jsonErr == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Code = body.Code
	} else {
		apiErr.Message = http.StatusText(res.StatusCode())
	}
	return apiErr
}

func (t *transport) Close() error {
	return t.client.Close()
}
