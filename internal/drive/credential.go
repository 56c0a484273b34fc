package drive

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshTimeout bounds a shared refresh, which outlives the caller that
// started it.
const refreshTimeout = time.Minute

// TokenRefresher obtains a fresh access token from the backing authority.
// Defined at the consumer; internal/graph provides the OAuth2 implementation.
// Implementations should return *AuthError to carry a precise cause.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) (string, error)
}

// RefreshFunc adapts a function to TokenRefresher.
type RefreshFunc func(ctx context.Context) (string, error)

// RefreshToken calls f.
func (f RefreshFunc) RefreshToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// Credential owns one OAuth bearer token. The token is cached until a caller
// that saw an authorization failure marks it expired; the next Token call
// refreshes it. Concurrent callers share a single in-flight refresh.
type Credential struct {
	refresher TokenRefresher
	logger    *slog.Logger
	onRefresh func(err error)

	mu      sync.Mutex
	token   string
	expired bool
	closed  bool

	group singleflight.Group
}

// NewCredential creates a Credential. initial may be empty, in which case
// the first Token call refreshes.
func NewCredential(refresher TokenRefresher, initial string, logger *slog.Logger) *Credential {
	if logger == nil {
		logger = slog.Default()
	}

	return &Credential{
		refresher: refresher,
		logger:    logger,
		token:     initial,
	}
}

// OnRefresh registers a hook called after every refresh attempt with its
// outcome. Used for metrics.
func (c *Credential) OnRefresh(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onRefresh = fn
}

// Token returns a usable bearer token, refreshing first when none is cached
// or the cached one was marked expired. No partial token is ever returned.
func (c *Credential) Token(ctx context.Context) (string, error) {
	if tok, ok, err := c.cached(); err != nil || ok {
		return tok, err
	}

	ch := c.group.DoChan("refresh", func() (any, error) {
		// Another caller may have completed a refresh between our cache
		// check and joining the flight.
		if tok, ok, err := c.cached(); err != nil || ok {
			return tok, err
		}

		// Waiters other than the starter must not fail when it gives up.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		return c.refresh(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		tok, _ := res.Val.(string)

		return tok, nil
	case <-ctx.Done():
		return "", &AuthError{Cause: AuthCauseUnknown, Err: ctx.Err()}
	}
}

// MarkExpired invalidates token if it is still the cached one. Marking a
// token that has already been replaced by a refresh is a no-op, so callers
// racing on the same 401 trigger a single refresh. Idempotent.
func (c *Credential) MarkExpired(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != token || c.expired {
		return
	}

	c.expired = true
	c.logger.Debug("access token marked expired")
}

// Close drops the cached token. Token fails with ErrDriveClosed afterwards.
func (c *Credential) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.closed = true
}

func (c *Credential) cached() (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", false, ErrDriveClosed
	}

	if c.token != "" && !c.expired {
		return c.token, true, nil
	}

	return "", false, nil
}

func (c *Credential) refresh(ctx context.Context) (string, error) {
	c.logger.Info("refreshing access token")

	tok, err := c.refresher.RefreshToken(ctx)
	if err == nil && tok == "" {
		err = &AuthError{Cause: AuthCauseUnknown, Err: errors.New("authority returned an empty token")}
	}

	c.mu.Lock()
	hook := c.onRefresh

	if err == nil && !c.closed {
		c.token = tok
		c.expired = false
	}
	c.mu.Unlock()

	if hook != nil {
		hook(err)
	}

	if err != nil {
		c.logger.Warn("access token refresh failed", slog.String("error", err.Error()))

		return "", asAuthError(err)
	}

	c.logger.Debug("access token refreshed")

	return tok, nil
}

// asAuthError wraps err in an AuthError unless it already is one.
func asAuthError(err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return err
	}

	cause := AuthCauseUnknown

	var netErr net.Error
	if errors.As(err, &netErr) {
		cause = AuthCauseNetwork
	}

	return &AuthError{Cause: cause, Err: err}
}
