package ipfs

import (
	"context"
	"iter"
	"log/slog"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// Drive is the daemon backend of drive.Drive. Every call goes to the
// endpoint the Selector currently holds; mutations are followed by a
// publish of the namespace root.
type Drive struct {
	client    *Client
	sel       *drive.Selector
	disp      *drive.Dispatcher
	publisher *Publisher
	sessions  drive.Sessions
	logger    *slog.Logger
}

var _ drive.Drive = (*Drive)(nil)

// NewDrive creates a Drive. publishKey may be empty (the uid is used);
// journal may be nil.
func NewDrive(client *Client, sel *drive.Selector, publishKey string, journal Journal, logger *slog.Logger) *Drive {
	if logger == nil {
		logger = slog.Default()
	}

	pub := NewPublisher(client, publishKey, journal, logger)

	disp := drive.NewDispatcher(BackendName, drive.NewEndpointAuthority(sel), logger)
	disp.SetPublisher(pub)

	return &Drive{
		client:    client,
		sel:       sel,
		disp:      disp,
		publisher: pub,
		logger:    logger,
	}
}

// Dispatcher exposes the drive's dispatcher so callers can attach an observer.
func (d *Drive) Dispatcher() *drive.Dispatcher {
	return d.disp
}

// Selector exposes the endpoint selector so callers can force a re-probe.
func (d *Drive) Selector() *drive.Selector {
	return d.sel
}

// Info returns the namespace, the selected endpoint and the root hash.
func (d *Drive) Info(ctx context.Context) (*drive.Info, error) {
	return drive.Run(ctx, d.disp, "info", func(ctx context.Context, g drive.Grant) (*drive.Info, error) {
		hash, err := d.client.RootHash(ctx, g.Target.Addr)
		if err != nil {
			return nil, err
		}

		return &drive.Info{
			ID:        d.client.UID(),
			Backend:   BackendName,
			DriveType: "namespace",
			Endpoint:  g.Target.Addr,
			RootHash:  hash,
		}, nil
	})
}

// Stat returns metadata for p.
func (d *Drive) Stat(ctx context.Context, p string) (*drive.FileInfo, error) {
	clean, err := drive.CleanPath(p)
	if err != nil {
		return nil, err
	}

	return drive.Run(ctx, d.disp, "stat", func(ctx context.Context, g drive.Grant) (*drive.FileInfo, error) {
		fi, err := d.client.Stat(ctx, g.Target.Addr, clean)
		if err != nil {
			return nil, err
		}

		if drive.IsRoot(clean) {
			fi.Name = "/"
		}

		return fi, nil
	})
}

// List lists the children of p. The daemon answers in one page.
func (d *Drive) List(ctx context.Context, p string) iter.Seq2[drive.Entry, error] {
	clean, err := drive.CleanPath(p)
	if err != nil {
		return func(yield func(drive.Entry, error) bool) {
			yield(drive.Entry{}, err)
		}
	}

	return drive.Paginate(ctx, func(ctx context.Context, _ string) (drive.Page, error) {
		return drive.Run(ctx, d.disp, "list", func(ctx context.Context, g drive.Grant) (drive.Page, error) {
			return d.client.List(ctx, g.Target.Addr, clean)
		})
	}, d.logger)
}

// MakeDir creates p and any missing parents.
func (d *Drive) MakeDir(ctx context.Context, p string) error {
	clean, err := drive.CleanPath(p)
	if err != nil {
		return err
	}

	if drive.IsRoot(clean) {
		return &drive.InvalidArgumentError{Arg: "path", Reason: "the root already exists"}
	}

	return d.mutate(ctx, "mkdir", func(ctx context.Context, addr string) error {
		return d.client.MakeDir(ctx, addr, clean)
	})
}

// Move renames or relocates from to to.
func (d *Drive) Move(ctx context.Context, from, to string) error {
	src, dst, err := cleanPair(from, to)
	if err != nil {
		return err
	}

	return d.mutate(ctx, "move", func(ctx context.Context, addr string) error {
		return d.client.Move(ctx, addr, src, dst)
	})
}

// Copy duplicates from at to by linking the source's content hash.
func (d *Drive) Copy(ctx context.Context, from, to string) error {
	src, dst, err := cleanPair(from, to)
	if err != nil {
		return err
	}

	return d.mutate(ctx, "copy", func(ctx context.Context, addr string) error {
		st, err := d.client.Stat(ctx, addr, src)
		if err != nil {
			return err
		}

		return d.client.CopyHash(ctx, addr, st.Hash, dst)
	})
}

// Delete removes p recursively.
func (d *Drive) Delete(ctx context.Context, p string) error {
	clean, err := drive.CleanPath(p)
	if err != nil {
		return err
	}

	if drive.IsRoot(clean) {
		return &drive.InvalidArgumentError{Arg: "path", Reason: "cannot delete the root"}
	}

	return d.mutate(ctx, "delete", func(ctx context.Context, addr string) error {
		return d.client.Remove(ctx, addr, clean)
	})
}

// Open starts a File session on p.
func (d *Drive) Open(ctx context.Context, p string, mode drive.Mode) (*drive.File, error) {
	return d.sessions.Open(ctx, contentStore{d}, p, mode, d.logger)
}

// Publish republishes the namespace root, for example after an earlier
// mutation reported *drive.NotPublishedError.
func (d *Drive) Publish(ctx context.Context) error {
	return d.disp.Publish(ctx)
}

// Close makes later calls fail with drive.ErrDriveClosed.
func (d *Drive) Close() error {
	d.disp.Close()

	return nil
}

// mutate runs a state-changing call and flags the namespace pending once
// it has been applied, ahead of the dispatcher's publish step.
func (d *Drive) mutate(ctx context.Context, op string, exec func(ctx context.Context, addr string) error) error {
	return d.disp.Mutate(ctx, op, func(ctx context.Context, g drive.Grant) error {
		if err := exec(ctx, g.Target.Addr); err != nil {
			return err
		}

		d.publisher.markPending(ctx, op)

		return nil
	})
}

// contentStore moves whole-file content for File sessions.
type contentStore struct {
	d *Drive
}

func (s contentStore) Download(ctx context.Context, p string) ([]byte, error) {
	return drive.Run(ctx, s.d.disp, "download", func(ctx context.Context, g drive.Grant) ([]byte, error) {
		return s.d.client.Read(ctx, g.Target.Addr, p)
	})
}

func (s contentStore) Upload(ctx context.Context, p string, data []byte) error {
	return s.d.mutate(ctx, "upload", func(ctx context.Context, addr string) error {
		return s.d.client.Write(ctx, addr, p, data)
	})
}

func cleanPair(from, to string) (string, string, error) {
	src, err := drive.CleanPath(from)
	if err != nil {
		return "", "", err
	}

	if drive.IsRoot(src) {
		return "", "", &drive.InvalidArgumentError{Arg: "from", Reason: "cannot relocate the root"}
	}

	dst, err := drive.CleanPath(to)
	if err != nil {
		return "", "", err
	}

	if drive.IsRoot(dst) {
		return "", "", &drive.InvalidArgumentError{Arg: "to", Reason: "cannot replace the root"}
	}

	return src, dst, nil
}
