package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/url"
	"path"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// Entry types reported by files/ls?long=true.
const (
	entryTypeFile      = 0
	entryTypeDirectory = 1
)

// lsResponse keeps Entries raw so a missing member and a null one (the
// daemon's encoding of an empty directory) can be told apart.
type lsResponse struct {
	Entries *json.RawMessage `json:"Entries"`
}

type lsEntry struct {
	Name *string `json:"Name"`
	Type int     `json:"Type"`
	Size int64   `json:"Size"`
	Hash string  `json:"Hash"`
}

// List returns the entries of directory p as a single page.
func (c *Client) List(ctx context.Context, addr, p string) (drive.Page, error) {
	var resp lsResponse

	err := c.callJSON(ctx, addr, rpc{
		cmd:   "files/ls",
		query: url.Values{"path": {p}, "long": {"true"}},
	}, "listing", &resp)
	if err != nil {
		return drive.Page{}, err
	}

	if resp.Entries == nil {
		return drive.Page{}, &drive.DecodeError{What: "listing", Err: errors.New("missing Entries")}
	}

	var raw []json.RawMessage
	if !bytes.Equal(bytes.TrimSpace(*resp.Entries), []byte("null")) {
		if err := json.Unmarshal(*resp.Entries, &raw); err != nil {
			return drive.Page{}, &drive.DecodeError{What: "listing", Err: fmt.Errorf("Entries is not an array: %w", err)}
		}
	}

	entries := make([]drive.Entry, 0, len(raw))

	for i, r := range raw {
		var e lsEntry
		if err := json.Unmarshal(r, &e); err != nil {
			return drive.Page{}, &drive.DecodeError{What: fmt.Sprintf("listing entry %d", i), Err: err}
		}

		if e.Name == nil || *e.Name == "" {
			return drive.Page{}, &drive.DecodeError{What: fmt.Sprintf("listing entry %d", i), Err: errors.New("missing Name")}
		}

		entries = append(entries, drive.Entry{
			Name:  *e.Name,
			ID:    e.Hash,
			Size:  e.Size,
			IsDir: e.Type == entryTypeDirectory,
		})
	}

	return drive.Page{Entries: entries}, nil
}

type statResponse struct {
	Hash           string `json:"Hash"`
	Size           int64  `json:"Size"`
	CumulativeSize int64  `json:"CumulativeSize"`
	Type           string `json:"Type"`
}

// Stat returns metadata for p. The content hash doubles as the item ID.
func (c *Client) Stat(ctx context.Context, addr, p string) (*drive.FileInfo, error) {
	var st statResponse

	err := c.callJSON(ctx, addr, rpc{
		cmd:   "files/stat",
		query: url.Values{"path": {p}},
	}, "stat", &st)
	if err != nil {
		return nil, err
	}

	if st.Hash == "" {
		return nil, &drive.DecodeError{What: "stat", Err: errors.New("missing Hash")}
	}

	fi := &drive.FileInfo{
		ID:       st.Hash,
		Name:     path.Base(p),
		Path:     p,
		Size:     st.Size,
		IsDir:    st.Type == "directory",
		Hash:     st.Hash,
		Children: -1,
	}

	if fi.IsDir {
		fi.Size = st.CumulativeSize
	}

	return fi, nil
}

// MakeDir creates p, including missing parents.
func (c *Client) MakeDir(ctx context.Context, addr, p string) error {
	c.logger.Info("creating directory", slog.String("path", p), slog.String("addr", addr))

	return c.callDiscard(ctx, addr, rpc{
		cmd:   "files/mkdir",
		query: url.Values{"path": {p}, "parents": {"true"}},
	})
}

// Move renames or relocates from to to.
func (c *Client) Move(ctx context.Context, addr, from, to string) error {
	c.logger.Info("moving item", slog.String("from", from), slog.String("to", to), slog.String("addr", addr))

	return c.callDiscard(ctx, addr, rpc{
		cmd:   "files/mv",
		query: url.Values{"source": {from}, "dest": {to}},
	})
}

// CopyHash links the content hash into the namespace at to.
func (c *Client) CopyHash(ctx context.Context, addr, hash, to string) error {
	c.logger.Info("copying content", slog.String("hash", hash), slog.String("to", to), slog.String("addr", addr))

	return c.callDiscard(ctx, addr, rpc{
		cmd:   "files/cp",
		query: url.Values{"source": {"/ipfs/" + hash}, "dest": {to}},
	})
}

// Remove deletes p recursively.
func (c *Client) Remove(ctx context.Context, addr, p string) error {
	c.logger.Info("removing item", slog.String("path", p), slog.String("addr", addr))

	return c.callDiscard(ctx, addr, rpc{
		cmd:   "files/rm",
		query: url.Values{"path": {p}, "recursive": {"true"}},
	})
}

// Read returns the whole content of the file at p.
func (c *Client) Read(ctx context.Context, addr, p string) ([]byte, error) {
	resp, err := c.call(ctx, addr, rpc{
		cmd:   "files/read",
		query: url.Values{"path": {p}},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipfs: reading %s: %w: %w", p, drive.ErrEndpointDown, err)
	}

	return data, nil
}

// Write replaces the content of p with data, creating the file if needed.
func (c *Client) Write(ctx context.Context, addr, p string, data []byte) error {
	c.logger.Info("writing file", slog.String("path", p), slog.Int("size", len(data)), slog.String("addr", addr))

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", path.Base(p))
	if err != nil {
		return fmt.Errorf("ipfs: building write body: %w", err)
	}

	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("ipfs: building write body: %w", err)
	}

	if err := mw.Close(); err != nil {
		return fmt.Errorf("ipfs: building write body: %w", err)
	}

	return c.callDiscard(ctx, addr, rpc{
		cmd:         "files/write",
		query:       url.Values{"path": {p}, "create": {"true"}, "truncate": {"true"}},
		body:        &body,
		contentType: mw.FormDataContentType(),
	})
}
