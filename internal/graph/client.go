package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const defaultUserAgent = "hivedrive/0.1"

// maxErrorBody bounds how much of an error response is read for diagnostics.
const maxErrorBody = 64 * 1024

// Client issues single Graph API round trips. It never retries; the caller's
// dispatcher decides whether a failure is worth repeating.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string

	// preAuth is used for pre-authenticated URLs (download URLs, upload
	// sessions, copy monitors). It never follows redirects, so a 303 from a
	// copy monitor is observable.
	preAuth *http.Client
}

// NewClient creates a Graph API client.
// baseURL is typically DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	preAuth := *httpClient
	preAuth.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
		preAuth:    &preAuth,
	}
}

// request describes one Graph API call.
type request struct {
	method      string
	target      string // absolute URL, or a path appended to the base URL
	token       string // empty for pre-authenticated URLs
	body        io.Reader
	contentType string
	size        int64 // Content-Length when body is set; -1 if unknown
	header      map[string]string
	expect      []int // accepted statuses; any 2xx when empty
}

// do executes r once. A response with an unaccepted status is read, closed
// and returned as *drive.RemoteRejectedError. Transport failures are wrapped
// with the method and target. The caller closes the body on success.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	target := r.target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + target
	}

	body := r.body
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if r.body != nil && r.size >= 0 {
		req.ContentLength = r.size
	}

	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	hc := c.httpClient
	if r.token == "" {
		hc = c.preAuth
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("graph: %s %s: %w", r.method, redact(r), err)
	}

	if accepted(resp.StatusCode, r.expect) {
		c.logger.Debug("request succeeded",
			slog.String("method", r.method),
			slog.String("path", redact(r)),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	defer resp.Body.Close()

	rejected := decodeRejection(resp)

	c.logger.Debug("request rejected",
		slog.String("method", r.method),
		slog.String("path", redact(r)),
		slog.Int("status", resp.StatusCode),
		slog.String("code", rejected.Code),
	)

	return nil, rejected
}

// doJSON executes r and decodes the response body into out.
func (c *Client) doJSON(ctx context.Context, r request, what string, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &drive.DecodeError{What: what, Err: err}
	}

	return nil
}

// doDiscard executes r and drains the body so the connection can be reused.
func (c *Client) doDiscard(ctx context.Context, r request) (*http.Response, error) {
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return nil, fmt.Errorf("graph: draining %s response: %w", r.method, err)
	}

	return resp, nil
}

func accepted(status int, expect []int) bool {
	if len(expect) == 0 {
		return status >= http.StatusOK && status < http.StatusMultipleChoices
	}

	return slices.Contains(expect, status)
}

// redact returns a loggable form of the request target. Pre-authenticated
// URLs embed credentials in the query string and are reduced to their host.
func redact(r request) string {
	if r.token != "" || !strings.Contains(r.target, "://") {
		if i := strings.IndexByte(r.target, '?'); i >= 0 {
			return r.target[:i]
		}

		return r.target
	}

	rest := r.target[strings.Index(r.target, "://")+3:]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}

	return "(pre-authenticated " + rest + ")"
}

// errorEnvelope is the Graph API error body.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeRejection builds a RemoteRejectedError from a non-accepted response,
// taking the code and message from the Graph error body when present.
func decodeRejection(resp *http.Response) *drive.RemoteRejectedError {
	rejected := &drive.RemoteRejectedError{
		Status:    resp.StatusCode,
		Code:      drive.StatusCode(resp.StatusCode),
		RequestID: resp.Header.Get("request-id"),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return rejected
	}

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		rejected.Code = env.Error.Code
		rejected.Message = env.Error.Message

		return rejected
	}

	rejected.Message = strings.TrimSpace(string(body))

	return rejected
}
