package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/hivedrive/internal/config"
	"github.com/tonimelisma/hivedrive/internal/drive"
	"github.com/tonimelisma/hivedrive/internal/graph"
	"github.com/tonimelisma/hivedrive/internal/ipfs"
	"github.com/tonimelisma/hivedrive/internal/journal"
	"github.com/tonimelisma/hivedrive/internal/metrics"
	"github.com/tonimelisma/hivedrive/internal/tokenfile"
)

// DriveSession is one command's view of the configured backend: the drive
// itself plus the journal and metrics attached to it.
type DriveSession struct {
	Drive   drive.Drive
	IPFS    *ipfs.Drive      // nil unless the backend is ipfs
	Journal *journal.Journal // nil when unavailable
	Metrics *metrics.Recorder

	cc *CLIContext
}

// NewDriveSession assembles the backend named in the resolved config.
func NewDriveSession(ctx context.Context, cc *CLIContext) (*DriveSession, error) {
	s := &DriveSession{
		Metrics: metrics.New(),
		cc:      cc,
	}

	httpClient := newHTTPClient(cc.Cfg.Network.ConnectTimeoutDuration())

	switch cc.Cfg.Backend {
	case config.BackendOneDrive:
		d, err := s.openOneDrive(httpClient)
		if err != nil {
			return nil, err
		}

		s.Drive = d
	case config.BackendIPFS:
		s.Drive = s.openIPFS(ctx, httpClient)
	default:
		return nil, fmt.Errorf("unknown backend %q", cc.Cfg.Backend)
	}

	return s, nil
}

func (s *DriveSession) openOneDrive(httpClient *http.Client) (*graph.Drive, error) {
	cfg := s.cc.Cfg.OneDrive
	logger := s.cc.Logger

	if _, err := tokenfile.Load(cfg.TokenFile); err != nil {
		if errors.Is(err, tokenfile.ErrNotFound) {
			return nil, errors.New("not logged in, run 'hivedrive login' first")
		}

		return nil, err
	}

	refresher := graph.NewRefresher(graph.OAuthConfig(cfg.ClientID, cfg.Tenant), cfg.TokenFile, logger)

	cred := drive.NewCredential(refresher, graph.CachedAccessToken(cfg.TokenFile), logger)
	cred.OnRefresh(s.Metrics.CredentialRefreshed)

	interval, maxWait := s.cc.Cfg.Jobs.Durations()
	poller := drive.NewPoller(interval, maxWait, logger)
	poller.OnPoll(s.Metrics.JobPolled)

	client := graph.NewClient(graph.DefaultBaseURL, httpClient, logger, s.cc.Cfg.Network.UserAgent)

	d := graph.NewDrive(client, cred, cfg.DriveID, poller, logger)
	d.Dispatcher().SetObserver(s.Metrics)

	logger.Debug("onedrive session ready", slog.String("drive_id", cfg.DriveID))

	return d, nil
}

func (s *DriveSession) openIPFS(ctx context.Context, httpClient *http.Client) *ipfs.Drive {
	cfg := s.cc.Cfg.IPFS
	logger := s.cc.Logger

	endpoints := make([]drive.Endpoint, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		endpoints = append(endpoints, drive.Endpoint{IPv4: n.IPv4, IPv6: n.IPv6, Port: n.Port})
	}

	client := ipfs.NewClient(httpClient, cfg.UID, logger, s.cc.Cfg.Network.UserAgent)

	sel := drive.NewSelector(endpoints, drive.ProbeFunc(client.Probe), logger)
	sel.OnFailover(s.Metrics.EndpointFailover)

	// A missing journal only loses crash recovery of pending publishes.
	var jr ipfs.Journal

	j, err := journal.Open(ctx, s.cc.Cfg.Journal.Path, logger)
	if err != nil {
		logger.Warn("publish journal unavailable",
			slog.String("path", s.cc.Cfg.Journal.Path),
			slog.String("error", err.Error()),
		)
	} else {
		s.Journal = j
		jr = j
	}

	d := ipfs.NewDrive(client, sel, cfg.PublishKey, jr, logger)
	d.Dispatcher().SetObserver(s.Metrics)
	s.IPFS = d

	logger.Debug("ipfs session ready",
		slog.String("uid", cfg.UID),
		slog.Int("nodes", len(endpoints)),
	)

	return d
}

// Close releases the drive and journal and writes the metrics textfile when
// one is configured.
func (s *DriveSession) Close() error {
	var errs []error

	if s.Drive != nil {
		errs = append(errs, s.Drive.Close())
	}

	if s.Journal != nil {
		errs = append(errs, s.Journal.Close())
	}

	if path := s.cc.Cfg.Metrics.Textfile; path != "" {
		if err := s.Metrics.WriteTextfile(path); err != nil {
			s.cc.Logger.Warn("writing metrics textfile failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}

	return errors.Join(errs...)
}

// newHTTPClient returns a client with a bounded connect phase and no overall
// timeout, since uploads and downloads may legitimately run long.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &http.Client{Transport: transport}
}

// withSession opens a DriveSession, runs fn and closes the session. With
// --reprobe, a run that found every endpoint unreachable is retried once
// after the selector forgets its marks.
func withSession(ctx context.Context, cc *CLIContext, fn func(s *DriveSession) error) (err error) {
	s, err := NewDriveSession(ctx, cc)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	err = fn(s)

	var unreachable *drive.EndpointUnreachableError
	if cc.Flags.Reprobe && s.IPFS != nil && errors.As(err, &unreachable) {
		cc.Logger.Warn("every endpoint unreachable, re-probing",
			slog.Int("tried", len(unreachable.Tried)),
		)

		s.IPFS.Selector().Reset()
		err = fn(s)
	}

	return err
}
