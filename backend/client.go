// Package backend is the HTTP client for the business backend's session and
// onboarding APIs.
package backend

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

	apperrors "github.com/jrsteele09/go-session-reconciler/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	HeaderUserID = "X-User-ID"

	defaultTimeout  = 5 * time.Second
	maxErrorBodyLen = 4 << 10
)

// Client talks JSON to the backend.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	timeout     time.Duration
	credentials *clientcredentials.Config
	logger      zerolog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (e.g. httptest servers).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the whole-request timeout of the HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithClientCredentials authenticates every call with an OAuth2 client-credentials token.
func WithClientCredentials(cfg *clientcredentials.Config) ClientOption {
	return func(cl *Client) {
		cl.credentials = cfg
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// NewClient creates a client rooted at baseURL.
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[backend.NewClient] invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("[backend.NewClient] unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		timeout: defaultTimeout,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	base := c.httpClient
	if base == nil {
		base = &http.Client{Timeout: c.timeout}
	}
	if c.credentials != nil {
		// The token source uses the same base client for the token endpoint.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		authed := c.credentials.Client(ctx)
		authed.Timeout = base.Timeout
		base = authed
	}
	c.httpClient = base
	return c, nil
}

// Sessions returns the session API.
func (c *Client) Sessions() *SessionAPI {
	return &SessionAPI{client: c}
}

// Onboarding returns the onboarding API.
func (c *Client) Onboarding() *OnboardingAPI {
	return &OnboardingAPI{client: c}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends a JSON request and decodes a JSON response into out. body may be nil, a
// json.RawMessage, or any value encoding/json can marshal.
func (c *Client) do(ctx context.Context, method, path, userID string, body, out any) error {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		if len(b) > 0 {
			reader = bytes.NewReader(b)
		}
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return errors.Wrapf(err, "[backend %s %s] encode body", method, path)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return errors.Wrapf(err, "[backend %s %s] build request", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("backend request failed")
		return errors.Wrap(apperrors.ErrBackendFailure, fmt.Sprintf("[backend %s %s] %v", method, path, err))
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("backend request")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(apperrors.ErrBackendFailure, fmt.Sprintf("[backend %s %s] decode response: %v", method, path, err))
		}
		return nil
	}
	return statusError(method, path, resp)
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(method, path string, resp *http.Response) error {
	detail := http.StatusText(resp.StatusCode)
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil {
		if er.Error != "" {
			detail = er.Error
		} else if er.Message != "" {
			detail = er.Message
		}
	}
	msg := fmt.Sprintf("[backend %s %s] %d %s", method, path, resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(apperrors.ErrNotFound, msg)
	case resp.StatusCode == http.StatusConflict:
		return errors.Wrap(apperrors.ErrInvalidTransition, msg)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return errors.Wrap(apperrors.ErrInvalidPayload, msg)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errors.Wrap(apperrors.ErrInternal, msg)
	default:
		// 5xx, 429 and anything unexpected are worth retrying.
		return errors.Wrap(apperrors.ErrBackendFailure, msg)
	}
}
