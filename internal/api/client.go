package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/observability"
)

const (
	headerRequestID = "X-Request-ID"
	maxErrorBody    = 4 << 10
)

// Credentials supplies the bearer token and forgets it when the server rejects it.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	ClearAuth(ctx context.Context) error
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	Credentials Credentials
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// Client talks to the marketplace REST API.
type Client struct {
	base  *url.URL
	http  *http.Client
	creds Credentials
	log   *zerolog.Logger
}

// New builds a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("api base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Credentials == nil {
		return nil, errors.New("api: credentials are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Client{base: base, http: httpClient, creds: cfg.Credentials, log: logger}, nil
}

// AbsoluteURL resolves media paths the backend returns relative to the API host.
func (c *Client) AbsoluteURL(p string) string {
	if p == "" || strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	ref, err := url.Parse(p)
	if err != nil {
		return p
	}
	return c.base.ResolveReference(ref).String()
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Unwrap maps the status onto the core error taxonomy.
func (e *HTTPError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return core.ErrAuthRequired
	case e.Status == http.StatusConflict:
		return core.ErrConflict
	case e.Status >= 500:
		return core.ErrNetwork
	default:
		return core.ErrBadRequest
	}
}

type request struct {
	method      string
	endpoint    string // metrics label
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

// do sends r with bearer auth and returns the body of a 2xx response.
// A 401 clears the stored credentials before returning core.ErrAuthRequired.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, core.ErrNoToken
	}

	u := c.base.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	reqID := uuid.NewString()
	req.Header.Set(headerRequestID, reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.ObserveRequest(r.method, r.endpoint, 0, time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s %s: %w: %v", r.method, r.path, core.ErrNetwork, err)
	}
	defer resp.Body.Close()
	observability.ObserveRequest(r.method, r.endpoint, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %v", r.method, r.path, core.ErrNetwork, err)
	}

	c.log.Debug().
		Str("request_id", reqID).
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode == http.StatusUnauthorized {
		if clearErr := c.creds.ClearAuth(ctx); clearErr != nil {
			c.log.Warn().Err(clearErr).Msg("failed to clear rejected credentials")
		}
		return nil, &HTTPError{Method: r.method, Path: r.path, Status: resp.StatusCode, Detail: detailOf(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Method: r.method, Path: r.path, Status: resp.StatusCode, Detail: detailOf(body)}
	}
	return body, nil
}

// getJSON issues a GET and decodes a JSON object into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	body, err := c.do(ctx, request{method: http.MethodGet, endpoint: endpoint, path: path, query: query})
	if err != nil {
		return err
	}
	return decodeObject(body, out)
}

func decodeObject(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", core.ErrMalformedResponse, err)
	}
	return nil
}

// detailOf extracts the DRF-style {"detail": "..."} message, falling back to the raw body.
func detailOf(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if strings.HasPrefix(text, "<") {
		// HTML error pages carry nothing useful for the user
		return ""
	}
	return text
}
