package graph

import (
	"context"
	"iter"
	"log/slog"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// Drive is the OAuth cloud backend of drive.Drive.
type Drive struct {
	client   *Client
	cred     *drive.Credential
	disp     *drive.Dispatcher
	poller   *drive.Poller
	driveID  string
	sessions drive.Sessions
	logger   *slog.Logger
}

var _ drive.Drive = (*Drive)(nil)

// NewDrive creates a Drive on driveID ("default" or an explicit drive ID).
// poller may be nil for the default polling bounds.
func NewDrive(client *Client, cred *drive.Credential, driveID string, poller *drive.Poller, logger *slog.Logger) *Drive {
	if logger == nil {
		logger = slog.Default()
	}

	if driveID == "" {
		driveID = DefaultDriveID
	}

	if poller == nil {
		poller = drive.NewPoller(0, 0, logger)
	}

	return &Drive{
		client:  client,
		cred:    cred,
		disp:    drive.NewDispatcher(BackendName, drive.NewOAuthAuthority(cred), logger),
		poller:  poller,
		driveID: driveID,
		logger:  logger,
	}
}

// Dispatcher exposes the drive's dispatcher so callers can attach an observer.
func (d *Drive) Dispatcher() *drive.Dispatcher {
	return d.disp
}

// Info returns the drive's identity and quota.
func (d *Drive) Info(ctx context.Context) (*drive.Info, error) {
	return drive.Run(ctx, d.disp, "info", func(ctx context.Context, g drive.Grant) (*drive.Info, error) {
		return d.client.DriveInfo(ctx, g.Token, d.driveID)
	})
}

// Stat returns metadata for p.
func (d *Drive) Stat(ctx context.Context, p string) (*drive.FileInfo, error) {
	clean, err := drive.CleanPath(p)
	if err != nil {
		return nil, err
	}

	return drive.Run(ctx, d.disp, "stat", func(ctx context.Context, g drive.Grant) (*drive.FileInfo, error) {
		return d.client.Stat(ctx, g.Token, d.driveID, clean)
	})
}

// List lists the children of p, following continuation links verbatim.
func (d *Drive) List(ctx context.Context, p string) iter.Seq2[drive.Entry, error] {
	clean, err := drive.CleanPath(p)
	if err != nil {
		return func(yield func(drive.Entry, error) bool) {
			yield(drive.Entry{}, err)
		}
	}

	first := ChildrenURL(d.driveID, clean)

	return drive.Paginate(ctx, func(ctx context.Context, cursor string) (drive.Page, error) {
		target := cursor
		if target == "" {
			target = first
		}

		return drive.Run(ctx, d.disp, "list", func(ctx context.Context, g drive.Grant) (drive.Page, error) {
			return d.client.ListPage(ctx, g.Token, target)
		})
	}, d.logger)
}

// MakeDir creates p. The parent must exist.
func (d *Drive) MakeDir(ctx context.Context, p string) error {
	dir, name, err := drive.SplitPath(p)
	if err != nil {
		return err
	}

	return d.disp.Mutate(ctx, "mkdir", func(ctx context.Context, g drive.Grant) error {
		return d.client.CreateFolder(ctx, g.Token, d.driveID, dir, name)
	})
}

// Move renames or relocates from to to.
func (d *Drive) Move(ctx context.Context, from, to string) error {
	src, dst, err := cleanPair(from, to)
	if err != nil {
		return err
	}

	return d.disp.Mutate(ctx, "move", func(ctx context.Context, g drive.Grant) error {
		return d.client.Move(ctx, g.Token, d.driveID, src, dst)
	})
}

// Copy duplicates from at to and waits for the server-side job to finish.
// A *drive.TimeoutError means the copy may still complete later.
func (d *Drive) Copy(ctx context.Context, from, to string) error {
	src, dst, err := cleanPair(from, to)
	if err != nil {
		return err
	}

	monitor, err := drive.Run(ctx, d.disp, "copy", func(ctx context.Context, g drive.Grant) (string, error) {
		return d.client.StartCopy(ctx, g.Token, d.driveID, src, dst)
	})
	if err != nil {
		return err
	}

	job := drive.NewJob("copy "+src, monitor)

	_, err = d.poller.Await(ctx, job, d.client.CheckCopy)

	return err
}

// Delete removes p.
func (d *Drive) Delete(ctx context.Context, p string) error {
	clean, err := drive.CleanPath(p)
	if err != nil {
		return err
	}

	if drive.IsRoot(clean) {
		return &drive.InvalidArgumentError{Arg: "path", Reason: "cannot delete the root"}
	}

	return d.disp.Mutate(ctx, "delete", func(ctx context.Context, g drive.Grant) error {
		return d.client.Delete(ctx, g.Token, d.driveID, clean)
	})
}

// Open starts a File session on p.
func (d *Drive) Open(ctx context.Context, p string, mode drive.Mode) (*drive.File, error) {
	return d.sessions.Open(ctx, contentStore{d}, p, mode, d.logger)
}

// Close drops the credential; later calls fail with drive.ErrDriveClosed.
func (d *Drive) Close() error {
	d.disp.Close()
	d.cred.Close()

	return nil
}

// contentStore moves whole-file content for File sessions.
type contentStore struct {
	d *Drive
}

func (s contentStore) Download(ctx context.Context, p string) ([]byte, error) {
	u, err := drive.Run(ctx, s.d.disp, "download", func(ctx context.Context, g drive.Grant) (string, error) {
		return s.d.client.DownloadURL(ctx, g.Token, s.d.driveID, p)
	})
	if err != nil {
		return nil, err
	}

	if u == "" {
		return []byte{}, nil
	}

	return s.d.client.FetchContent(ctx, u)
}

func (s contentStore) Upload(ctx context.Context, p string, data []byte) error {
	if len(data) <= SimpleUploadMaxSize {
		return s.d.disp.Mutate(ctx, "upload", func(ctx context.Context, g drive.Grant) error {
			return s.d.client.SimpleUpload(ctx, g.Token, s.d.driveID, p, data)
		})
	}

	uploadURL, err := drive.Run(ctx, s.d.disp, "upload", func(ctx context.Context, g drive.Grant) (string, error) {
		return s.d.client.CreateUploadSession(ctx, g.Token, s.d.driveID, p)
	})
	if err != nil {
		return err
	}

	return s.d.client.UploadChunks(ctx, uploadURL, data)
}

func cleanPair(from, to string) (string, string, error) {
	src, err := drive.CleanPath(from)
	if err != nil {
		return "", "", err
	}

	dst, err := drive.CleanPath(to)
	if err != nil {
		return "", "", err
	}

	if drive.IsRoot(src) {
		return "", "", &drive.InvalidArgumentError{Arg: "from", Reason: "cannot relocate the root"}
	}

	return src, dst, nil
}
