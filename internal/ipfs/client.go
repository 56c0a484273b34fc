// Package ipfs is the daemon backend of drive.Drive: a content-addressed
// node reachable over a local RPC API, with several candidate endpoints and
// an explicit publish step.
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// BackendName identifies this backend in logs, metrics and drive.Info.
const BackendName = "ipfs"

// DefaultPort is the node API port used when a configured node omits one.
const DefaultPort = 9095

// apiPrefix is the path prefix of every RPC command.
const apiPrefix = "/api/v0/"

// defaultProbeTimeout bounds a single liveness probe.
const defaultProbeTimeout = 3 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 * 1024

// Client issues RPC calls against one namespace (uid) on whichever node
// address it is handed. It holds no endpoint state; the drive's Selector
// decides where calls go.
type Client struct {
	httpClient   *http.Client
	uid          string
	userAgent    string
	logger       *slog.Logger
	probeTimeout time.Duration
}

// NewClient creates a Client for the namespace uid.
func NewClient(httpClient *http.Client, uid string, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		httpClient:   httpClient,
		uid:          uid,
		userAgent:    userAgent,
		logger:       logger,
		probeTimeout: defaultProbeTimeout,
	}
}

// UID returns the namespace the client acts on.
func (c *Client) UID() string {
	return c.uid
}

// rpc describes one RPC command. uid is added to every call.
type rpc struct {
	cmd         string
	query       url.Values
	body        io.Reader
	contentType string
	noUID       bool
}

// call POSTs r to the node at addr. A transport failure is wrapped with
// drive.ErrEndpointDown; any status other than 200 becomes a
// *drive.RemoteRejectedError. The caller closes the body.
func (c *Client) call(ctx context.Context, addr string, r rpc) (*http.Response, error) {
	q := url.Values{}
	for k, v := range r.query {
		q[k] = v
	}

	if !r.noUID {
		q.Set("uid", c.uid)
	}

	u := url.URL{
		Scheme:   "http",
		Host:     addr,
		Path:     apiPrefix + r.cmd,
		RawQuery: q.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), r.body)
	if err != nil {
		return nil, fmt.Errorf("ipfs: building %s request: %w", r.cmd, err)
	}

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("rpc call",
		slog.String("cmd", r.cmd),
		slog.String("addr", addr),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A canceled caller is not evidence that the node is down.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ipfs: %s on %s: %w", r.cmd, addr, ctxErr)
		}

		return nil, fmt.Errorf("ipfs: %s on %s: %w: %w", r.cmd, addr, drive.ErrEndpointDown, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, decodeRejection(resp)
	}

	return resp, nil
}

// callJSON runs r and decodes the response into out.
func (c *Client) callJSON(ctx context.Context, addr string, r rpc, what string, out any) error {
	resp, err := c.call(ctx, addr, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &drive.DecodeError{What: what, Err: err}
	}

	return nil
}

// callDiscard runs r and drains the response.
func (c *Client) callDiscard(ctx context.Context, addr string, r rpc) error {
	resp, err := c.call(ctx, addr, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain only

	return nil
}

// Probe checks that the node at addr answers its version command. It
// implements drive.Prober.
func (c *Client) Probe(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	return c.callDiscard(ctx, addr, rpc{cmd: "version", noUID: true})
}

// errorBody is the daemon's error response.
type errorBody struct {
	Message string `json:"Message"`
	Code    int    `json:"Code"`
	Type    string `json:"Type"`
}

// decodeRejection turns a non-200 response into a *drive.RemoteRejectedError.
// The daemon reports missing paths with a 500 and a message, so those are
// additionally marked drive.ErrNotFound.
func decodeRejection(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort

	rejected := &drive.RemoteRejectedError{
		Status: resp.StatusCode,
		Code:   drive.StatusCode(resp.StatusCode),
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		rejected.Message = body.Message
		if body.Type != "" && body.Type != "error" {
			rejected.Code = body.Type
		}
	} else {
		rejected.Message = strings.TrimSpace(string(raw))
	}

	if isMissing(rejected.Message) {
		return fmt.Errorf("%w: %w", drive.ErrNotFound, rejected)
	}

	return rejected
}

func isMissing(msg string) bool {
	msg = strings.ToLower(msg)

	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no such file")
}
