package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

var _ drive.Observer = (*Recorder)(nil)

func TestOperationDone(t *testing.T) {
	r := New()

	r.OperationDone("onedrive", "stat", "success", 20*time.Millisecond)
	r.OperationDone("onedrive", "stat", "success", 30*time.Millisecond)
	r.OperationDone("ipfs", "copy", "rejected", time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(r.operationsTotal.WithLabelValues("onedrive", "stat", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.operationsTotal.WithLabelValues("ipfs", "copy", "rejected")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(r.operationDuration))
}

func TestRetriedAndHooks(t *testing.T) {
	r := New()

	r.Retried("onedrive", "auth_expired")
	r.CredentialRefreshed(nil)
	r.CredentialRefreshed(errors.New("invalid_grant"))
	r.EndpointFailover()
	r.EndpointFailover()
	r.JobPolled("pending")
	r.JobPolled("completed")

	assert.InDelta(t, 1, testutil.ToFloat64(r.retriesTotal.WithLabelValues("onedrive", "auth_expired")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.refreshesTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.refreshesTotal.WithLabelValues("failure")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.failoversTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.jobPollsTotal.WithLabelValues("pending")), 0)
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.EndpointFailover()

	assert.InDelta(t, 1, testutil.ToFloat64(a.failoversTotal), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.failoversTotal), 0)
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.OperationDone("ipfs", "mkdir", "success", time.Millisecond)

	path := filepath.Join(t.TempDir(), "textfile", "hivedrive.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `hivedrive_operations_total{backend="ipfs",op="mkdir",outcome="success"} 1`)
}

func TestDispatcherFeedsRecorder(t *testing.T) {
	r := New()

	disp := drive.NewDispatcher("onedrive", drive.NewOAuthAuthority(
		drive.NewCredential(drive.RefreshFunc(func(context.Context) (string, error) { return "tok", nil }), "", nil),
	), nil)
	disp.SetObserver(r)

	require.NoError(t, disp.Mutate(context.Background(), "mkdir", func(context.Context, drive.Grant) error { return nil }))

	assert.InDelta(t, 1, testutil.ToFloat64(r.operationsTotal.WithLabelValues("onedrive", "mkdir", "success")), 0)
}
