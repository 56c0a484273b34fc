package drive

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Class is the dispatcher's reading of one Execute outcome.
type Class int

// Outcome classes.
const (
	ClassSuccess Class = iota
	ClassAuthExpired
	ClassUnreachable
	ClassRejected
	ClassDecodeFailed
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassAuthExpired:
		return "auth_expired"
	case ClassUnreachable:
		return "unreachable"
	case ClassRejected:
		return "rejected"
	case ClassDecodeFailed:
		return "decode_failed"
	default:
		return "error"
	}
}

// Grant is what Acquire hands to Execute: a bearer token for the OAuth
// backend, a selected endpoint for the daemon backend.
type Grant struct {
	Token  string
	Target Target
}

// Authority is the per-backend half of the dispatcher. It acquires grants,
// classifies raw outcomes, and performs the state change (mark expired, mark
// unreachable) that makes a retry worthwhile.
type Authority interface {
	Acquire(ctx context.Context) (Grant, error)
	Classify(err error) Class
	// Recover reacts to a failed Execute and reports whether retrying with
	// a freshly acquired grant can help.
	Recover(g Grant, class Class) bool
}

// Publisher makes an applied mutation externally visible. Only the daemon
// backend has one.
type Publisher interface {
	Publish(ctx context.Context, g Grant) error
}

// Observer receives dispatcher outcomes. internal/metrics implements it.
type Observer interface {
	OperationDone(backend, op, outcome string, elapsed time.Duration)
	Retried(backend, class string)
}

// Dispatcher runs every drive operation through the same
// Acquire, Execute, Classify, Recover-or-surface cycle.
type Dispatcher struct {
	backend   string
	auth      Authority
	publisher Publisher
	observer  Observer
	logger    *slog.Logger
	closed    atomic.Bool

	nowFunc func() time.Time
}

// NewDispatcher creates a Dispatcher for the named backend.
func NewDispatcher(backend string, auth Authority, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		backend: backend,
		auth:    auth,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// SetPublisher installs the post-mutation publish step.
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.publisher = p
}

// SetObserver installs an outcome observer.
func (d *Dispatcher) SetObserver(o Observer) {
	d.observer = o
}

// Backend returns the backend name the dispatcher was created with.
func (d *Dispatcher) Backend() string {
	return d.backend
}

// Close makes every later Run fail with ErrDriveClosed.
func (d *Dispatcher) Close() {
	d.closed.Store(true)
}

// Run executes one logical operation. A failure the authority can recover
// from is retried exactly once with a fresh grant; a second failure of the
// same class is surfaced as AuthError or EndpointUnreachableError. All other
// failures are surfaced unchanged.
func Run[T any](ctx context.Context, d *Dispatcher, op string, exec func(ctx context.Context, g Grant) (T, error)) (T, error) {
	var zero T

	if d.closed.Load() {
		return zero, ErrDriveClosed
	}

	start := d.nowFunc()

	v, err := attempt(ctx, d, op, exec)

	d.observe(op, d.outcome(err), d.nowFunc().Sub(start))

	if err != nil {
		return zero, err
	}

	return v, nil
}

func attempt[T any](ctx context.Context, d *Dispatcher, op string, exec func(ctx context.Context, g Grant) (T, error)) (T, error) {
	var zero T

	g, err := d.auth.Acquire(ctx)
	if err != nil {
		return zero, err
	}

	v, err := exec(ctx, g)

	class := d.auth.Classify(err)
	if class == ClassSuccess {
		return v, nil
	}

	if ctx.Err() != nil || !d.auth.Recover(g, class) {
		return zero, err
	}

	d.logger.Warn("retrying operation",
		slog.String("backend", d.backend),
		slog.String("op", op),
		slog.String("class", class.String()),
		slog.String("error", err.Error()),
	)

	if d.observer != nil {
		d.observer.Retried(d.backend, class.String())
	}

	retry, err := d.auth.Acquire(ctx)
	if err != nil {
		return zero, err
	}

	v, err = exec(ctx, retry)

	second := d.auth.Classify(err)
	if second == ClassSuccess {
		return v, nil
	}

	if second != class {
		return zero, err
	}

	// Leave the authority in a state where the next call starts over.
	d.auth.Recover(retry, second)

	d.logger.Error("operation failed after retry",
		slog.String("backend", d.backend),
		slog.String("op", op),
		slog.String("class", second.String()),
	)

	return zero, escalate(second, g, retry, err)
}

// Mutate runs a state-changing operation. When a Publisher is installed, a
// successful mutation is followed by a publish step that goes through the
// same cycle; if only the publish fails the result is *NotPublishedError.
func (d *Dispatcher) Mutate(ctx context.Context, op string, exec func(ctx context.Context, g Grant) error) error {
	_, err := Run(ctx, d, op, func(ctx context.Context, g Grant) (struct{}, error) {
		return struct{}{}, exec(ctx, g)
	})
	if err != nil {
		return err
	}

	if d.publisher == nil {
		return nil
	}

	if err := d.Publish(ctx); err != nil {
		d.logger.Warn("mutation applied but not published",
			slog.String("backend", d.backend),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)

		return &NotPublishedError{Op: op, Err: err}
	}

	return nil
}

// Publish runs the publish step on its own. It is a no-op without a
// Publisher.
func (d *Dispatcher) Publish(ctx context.Context) error {
	if d.publisher == nil {
		return nil
	}

	_, err := Run(ctx, d, "publish", func(ctx context.Context, g Grant) (struct{}, error) {
		return struct{}{}, d.publisher.Publish(ctx, g)
	})

	return err
}

func (d *Dispatcher) outcome(err error) string {
	if err == nil {
		return ClassSuccess.String()
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "auth_error"
	}

	var unreachable *EndpointUnreachableError
	if errors.As(err, &unreachable) {
		return ClassUnreachable.String()
	}

	return d.auth.Classify(err).String()
}

func (d *Dispatcher) observe(op, outcome string, elapsed time.Duration) {
	level := slog.LevelDebug
	if outcome != ClassSuccess.String() {
		level = slog.LevelInfo
	}

	d.logger.Log(context.Background(), level, "operation finished",
		slog.String("backend", d.backend),
		slog.String("op", op),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)

	if d.observer != nil {
		d.observer.OperationDone(d.backend, op, outcome, elapsed)
	}
}

// escalate turns a repeated recoverable failure into its fatal form.
func escalate(class Class, first, retry Grant, err error) error {
	switch class {
	case ClassAuthExpired:
		return &AuthError{Cause: AuthCauseUnknown, Err: err}
	case ClassUnreachable:
		tried := []string{first.Target.Addr}
		if retry.Target.Addr != first.Target.Addr {
			tried = append(tried, retry.Target.Addr)
		}

		return &EndpointUnreachableError{Tried: tried, Err: err}
	default:
		return err
	}
}

// classifyCommon covers the classes every backend shares.
func classifyCommon(err error) Class {
	if err == nil {
		return ClassSuccess
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return ClassDecodeFailed
	}

	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) {
		return ClassRejected
	}

	return ClassOther
}

// OAuthAuthority adapts a Credential to the dispatcher. An authorization
// failure marks the token expired and is retried once.
type OAuthAuthority struct {
	cred *Credential
}

// NewOAuthAuthority wraps cred.
func NewOAuthAuthority(cred *Credential) *OAuthAuthority {
	return &OAuthAuthority{cred: cred}
}

// Acquire returns a grant carrying a usable bearer token.
func (a *OAuthAuthority) Acquire(ctx context.Context) (Grant, error) {
	tok, err := a.cred.Token(ctx)
	if err != nil {
		return Grant{}, err
	}

	return Grant{Token: tok}, nil
}

// Classify reads a 401 as an expired token.
func (a *OAuthAuthority) Classify(err error) Class {
	var rejected *RemoteRejectedError
	if errors.As(err, &rejected) && rejected.Status == http.StatusUnauthorized {
		return ClassAuthExpired
	}

	return classifyCommon(err)
}

// Recover marks the grant's token expired after an authorization failure.
func (a *OAuthAuthority) Recover(g Grant, class Class) bool {
	if class != ClassAuthExpired {
		return false
	}

	a.cred.MarkExpired(g.Token)

	return true
}

// EndpointAuthority adapts a Selector to the dispatcher. A connection
// failure marks the endpoint unreachable and is retried once on the next
// selection.
type EndpointAuthority struct {
	sel *Selector
}

// NewEndpointAuthority wraps sel.
func NewEndpointAuthority(sel *Selector) *EndpointAuthority {
	return &EndpointAuthority{sel: sel}
}

// Acquire returns a grant carrying the selected endpoint.
func (a *EndpointAuthority) Acquire(ctx context.Context) (Grant, error) {
	t, err := a.sel.Select(ctx)
	if err != nil {
		return Grant{}, err
	}

	return Grant{Target: t}, nil
}

// Classify reads a wrapped ErrEndpointDown as an unreachable endpoint.
func (a *EndpointAuthority) Classify(err error) Class {
	if errors.Is(err, ErrEndpointDown) {
		return ClassUnreachable
	}

	return classifyCommon(err)
}

// Recover marks the grant's endpoint unreachable after a connection failure.
func (a *EndpointAuthority) Recover(g Grant, class Class) bool {
	if class != ClassUnreachable {
		return false
	}

	a.sel.MarkUnreachable(g.Target)

	return true
}
