package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRefresher hands out tok-1, tok-2, ... and counts refreshes.
type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) RefreshToken(context.Context) (string, error) {
	n := r.calls.Add(1)
	return fmt.Sprintf("tok-%d", n), nil
}

// recordingObserver captures dispatcher outcomes.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	retries  []string
}

func (o *recordingObserver) OperationDone(_, op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.outcomes = append(o.outcomes, op+":"+outcome)
}

func (o *recordingObserver) Retried(_, class string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.retries = append(o.retries, class)
}

func newOAuthDispatcher(t *testing.T) (*Dispatcher, *countingRefresher, *recordingObserver) {
	t.Helper()

	r := &countingRefresher{}
	d := NewDispatcher("onedrive", NewOAuthAuthority(NewCredential(r, "", nil)), nil)
	obs := &recordingObserver{}
	d.SetObserver(obs)

	return d, r, obs
}

func unauthorized() error {
	return &RemoteRejectedError{Status: http.StatusUnauthorized, Code: "InvalidAuthenticationToken"}
}

func TestRun_SuccessNoRetry(t *testing.T) {
	d, r, obs := newOAuthDispatcher(t)

	got, err := Run(context.Background(), d, "stat", func(_ context.Context, g Grant) (string, error) {
		return "used " + g.Token, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "used tok-1", got)
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, []string{"stat:success"}, obs.outcomes)
	assert.Empty(t, obs.retries)
}

func TestRun_AuthExpiredRetriedOnceWithFreshToken(t *testing.T) {
	d, r, obs := newOAuthDispatcher(t)

	var tokens []string

	got, err := Run(context.Background(), d, "stat", func(_ context.Context, g Grant) (int, error) {
		tokens = append(tokens, g.Token)
		if len(tokens) == 1 {
			return 0, unauthorized()
		}

		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"tok-1", "tok-2"}, tokens)
	assert.Equal(t, int32(2), r.calls.Load())
	assert.Equal(t, []string{"auth_expired"}, obs.retries)
}

func TestRun_SecondAuthExpiredSurfacesAuthError(t *testing.T) {
	d, _, obs := newOAuthDispatcher(t)

	calls := 0

	_, err := Run(context.Background(), d, "delete", func(context.Context, Grant) (struct{}, error) {
		calls++
		return struct{}{}, unauthorized()
	})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 2, calls)
	assert.Len(t, obs.retries, 1)
	assert.Equal(t, []string{"delete:auth_error"}, obs.outcomes)
}

func TestRun_RejectedNotRetried(t *testing.T) {
	d, _, _ := newOAuthDispatcher(t)

	calls := 0

	_, err := Run(context.Background(), d, "stat", func(context.Context, Grant) (struct{}, error) {
		calls++
		return struct{}{}, &RemoteRejectedError{Status: http.StatusNotFound, Code: "itemNotFound"}
	})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestRun_DecodeFailureNotRetried(t *testing.T) {
	d, _, obs := newOAuthDispatcher(t)

	calls := 0

	_, err := Run(context.Background(), d, "list", func(context.Context, Grant) (struct{}, error) {
		calls++
		return struct{}{}, &DecodeError{What: "listing page"}
	})

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"list:decode_failed"}, obs.outcomes)
}

func TestRun_AcquireFailureIsFatal(t *testing.T) {
	cred := NewCredential(RefreshFunc(func(context.Context) (string, error) {
		return "", &AuthError{Cause: AuthCauseInvalidGrant}
	}), "", nil)
	d := NewDispatcher("onedrive", NewOAuthAuthority(cred), nil)

	_, err := Run(context.Background(), d, "stat", func(context.Context, Grant) (struct{}, error) {
		t.Fatal("execute must not run")
		return struct{}{}, nil
	})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, AuthCauseInvalidGrant, authErr.Cause)
}

func TestRun_Closed(t *testing.T) {
	d, _, _ := newOAuthDispatcher(t)
	d.Close()

	_, err := Run(context.Background(), d, "stat", func(context.Context, Grant) (struct{}, error) {
		return struct{}{}, nil
	})
	assert.ErrorIs(t, err, ErrDriveClosed)
}

func newEndpointDispatcher(t *testing.T, live ...string) (*Dispatcher, *Selector) {
	t.Helper()

	sel := NewSelector(threeNodes(), newProbeRecorder(live...), nil)
	sel.SetShuffle(nil)

	return NewDispatcher("ipfs", NewEndpointAuthority(sel), nil), sel
}

func TestRun_UnreachableFailsOver(t *testing.T) {
	d, sel := newEndpointDispatcher(t, "10.0.0.1:9095", "10.0.0.3:9095")

	var addrs []string

	_, err := Run(context.Background(), d, "ls", func(_ context.Context, g Grant) (struct{}, error) {
		addrs = append(addrs, g.Target.Addr)
		if g.Target.Addr == "10.0.0.1:9095" {
			return struct{}{}, fmt.Errorf("posting files/ls: %w", ErrEndpointDown)
		}

		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:9095", "10.0.0.3:9095"}, addrs)

	cur, ok := sel.Current()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.3:9095", cur.Addr)
}

func TestRun_SecondUnreachableSurfaces(t *testing.T) {
	d, _ := newEndpointDispatcher(t, "10.0.0.1:9095", "10.0.0.3:9095")

	calls := 0

	_, err := Run(context.Background(), d, "ls", func(context.Context, Grant) (struct{}, error) {
		calls++
		return struct{}{}, ErrEndpointDown
	})

	var unreachable *EndpointUnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Equal(t, []string{"10.0.0.1:9095", "10.0.0.3:9095"}, unreachable.Tried)
	assert.Equal(t, 2, calls)
}

func TestRun_DaemonUnauthorizedNotRetried(t *testing.T) {
	d, _ := newEndpointDispatcher(t, "10.0.0.1:9095")

	calls := 0

	_, err := Run(context.Background(), d, "ls", func(context.Context, Grant) (struct{}, error) {
		calls++
		return struct{}{}, unauthorized()
	})

	var rejected *RemoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, calls)
}

// publishFunc adapts a function to Publisher.
type publishFunc func(ctx context.Context, g Grant) error

func (f publishFunc) Publish(ctx context.Context, g Grant) error {
	return f(ctx, g)
}

func TestMutate_PublishFailureIsNotPublished(t *testing.T) {
	d, _ := newEndpointDispatcher(t, "10.0.0.1:9095")

	var published atomic.Int32

	d.SetPublisher(publishFunc(func(context.Context, Grant) error {
		published.Add(1)
		return &RemoteRejectedError{Status: http.StatusInternalServerError, Code: "http_500"}
	}))

	applied := false

	err := d.Mutate(context.Background(), "cp", func(context.Context, Grant) error {
		applied = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, applied)
	assert.ErrorIs(t, err, ErrNotPublished)
	assert.True(t, IsApplied(err))

	var notPublished *NotPublishedError
	require.ErrorAs(t, err, &notPublished)
	assert.Equal(t, "cp", notPublished.Op)
	assert.Equal(t, int32(1), published.Load())
}

func TestMutate_PrimaryFailureSkipsPublish(t *testing.T) {
	d, _ := newEndpointDispatcher(t, "10.0.0.1:9095")

	d.SetPublisher(publishFunc(func(context.Context, Grant) error {
		t.Fatal("publish must not run")
		return nil
	}))

	err := d.Mutate(context.Background(), "mv", func(context.Context, Grant) error {
		return &RemoteRejectedError{Status: http.StatusInternalServerError, Message: "file does not exist"}
	})

	require.Error(t, err)
	assert.False(t, IsApplied(err))
	assert.False(t, errors.Is(err, ErrNotPublished))
}

func TestMutate_PublishRecoversFromFailover(t *testing.T) {
	d, _ := newEndpointDispatcher(t, "10.0.0.1:9095", "10.0.0.3:9095")

	var publishAddrs []string

	d.SetPublisher(publishFunc(func(_ context.Context, g Grant) error {
		publishAddrs = append(publishAddrs, g.Target.Addr)
		if g.Target.Addr == "10.0.0.1:9095" {
			return ErrEndpointDown
		}

		return nil
	}))

	err := d.Mutate(context.Background(), "mkdir", func(context.Context, Grant) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1:9095", "10.0.0.3:9095"}, publishAddrs)
}

func TestMutate_NoPublisher(t *testing.T) {
	d, _, _ := newOAuthDispatcher(t)

	err := d.Mutate(context.Background(), "mkdir", func(context.Context, Grant) error {
		return nil
	})
	assert.NoError(t, err)
}
