package ipfs

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// Journal persists the "applied but not published" flag of a namespace.
// internal/journal implements it.
// Clear only removes marks made at or before generation upTo, so a change
// applied while a publish is in flight stays pending.
type Journal interface {
	MarkPending(ctx context.Context, backend, namespace, op string) error
	Generation(ctx context.Context) (int64, error)
	RecordFailure(ctx context.Context, backend, namespace, msg string) error
	Clear(ctx context.Context, namespace string, upTo int64) error
}

// RootHash returns the content hash of the namespace root.
func (c *Client) RootHash(ctx context.Context, addr string) (string, error) {
	st, err := c.Stat(ctx, addr, "/")
	if err != nil {
		return "", err
	}

	return st.Hash, nil
}

// PublishName points the name key at hash.
func (c *Client) PublishName(ctx context.Context, addr, hash, key string) error {
	c.logger.Info("publishing root",
		slog.String("hash", hash),
		slog.String("key", key),
		slog.String("addr", addr),
	)

	return c.callDiscard(ctx, addr, rpc{
		cmd:   "name/publish",
		query: url.Values{"path": {"/ipfs/" + hash}, "key": {key}},
	})
}

// Publisher makes the namespace's current root the published one. It
// implements drive.Publisher.
type Publisher struct {
	client  *Client
	key     string
	journal Journal
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. An empty key publishes under the uid.
// journal may be nil.
func NewPublisher(client *Client, key string, journal Journal, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	if key == "" {
		key = client.UID()
	}

	return &Publisher{client: client, key: key, journal: journal, logger: logger}
}

// Publish resolves the root hash on the grant's node and publishes it. On
// success the namespace's pending flag is cleared, unless another mutation
// marked it after the root was resolved.
func (p *Publisher) Publish(ctx context.Context, g drive.Grant) error {
	ns := p.client.UID()

	gen, genErr := p.generation(ctx)

	hash, err := p.client.RootHash(ctx, g.Target.Addr)
	if err == nil {
		err = p.client.PublishName(ctx, g.Target.Addr, hash, p.key)
	}

	if err != nil {
		if p.journal != nil {
			if jerr := p.journal.RecordFailure(ctx, BackendName, ns, err.Error()); jerr != nil {
				p.logger.Warn("journal update failed", slog.String("error", jerr.Error()))
			}
		}

		return err
	}

	// Without a generation the flag stays set; the next publish clears it.
	if p.journal != nil && genErr == nil {
		if jerr := p.journal.Clear(ctx, ns, gen); jerr != nil {
			p.logger.Warn("journal update failed", slog.String("error", jerr.Error()))
		}
	}

	return nil
}

func (p *Publisher) generation(ctx context.Context) (int64, error) {
	if p.journal == nil {
		return 0, nil
	}

	gen, err := p.journal.Generation(ctx)
	if err != nil {
		p.logger.Warn("journal read failed", slog.String("error", err.Error()))
	}

	return gen, err
}

// markPending flags the namespace dirty after a mutation is applied and
// before its publish is attempted.
func (p *Publisher) markPending(ctx context.Context, op string) {
	if p.journal == nil {
		return
	}

	if err := p.journal.MarkPending(ctx, BackendName, p.client.UID(), op); err != nil {
		p.logger.Warn("journal update failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}
