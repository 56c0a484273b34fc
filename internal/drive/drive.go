// Package drive is the backend-agnostic session and operation layer behind
// hivedrive. It owns the pieces every storage backend shares: credential and
// endpoint state, pagination, asynchronous job polling, the retry policy that
// decides what is recovered locally versus surfaced, and file sessions.
//
// Backends (internal/graph, internal/ipfs) supply the wire calls; this
// package decides when to call them again.
package drive

import (
	"context"
	"iter"
	"time"
)

// Drive is the vendor-neutral hierarchical storage contract. Every path is
// absolute and slash-separated ("/" is the root). Implementations are safe
// for concurrent use; the File sessions they return are not.
type Drive interface {
	// Info returns identity and capacity information for the drive.
	Info(ctx context.Context) (*Info, error)

	// Stat returns metadata for a single path.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// List returns the entries of a directory as a lazy sequence. The
	// sequence stops at the first error; it cannot be restarted once
	// partially consumed.
	List(ctx context.Context, path string) iter.Seq2[Entry, error]

	// MakeDir creates a directory.
	MakeDir(ctx context.Context, path string) error

	// Move renames or relocates a file or directory.
	Move(ctx context.Context, from, to string) error

	// Copy duplicates a file or directory.
	Copy(ctx context.Context, from, to string) error

	// Delete removes a file or directory (recursively).
	Delete(ctx context.Context, path string) error

	// Open starts a File session on path.
	Open(ctx context.Context, path string, mode Mode) (*File, error)

	// Close releases the drive's credential. Subsequent calls fail with
	// ErrDriveClosed.
	Close() error
}

// Info describes a drive.
type Info struct {
	ID         string
	Backend    string
	DriveType  string
	Owner      string
	Endpoint   string // daemon backend: currently selected endpoint
	RootHash   string // daemon backend: content hash of the namespace root
	QuotaUsed  int64
	QuotaTotal int64
}

// FileInfo is the metadata for a single path.
type FileInfo struct {
	ID       string // backend item ID or content hash
	Name     string
	Path     string
	Size     int64
	IsDir    bool
	ModTime  time.Time // zero when the backend does not report it
	ETag     string
	Hash     string
	Children int // -1 when unknown
}

// Entry is one element of a directory listing.
type Entry struct {
	Name  string
	ID    string
	Size  int64
	IsDir bool
}

// Collect drains a listing sequence into a slice. An empty directory yields
// a non-nil empty slice, distinguishable from a failed listing.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	entries := []Entry{}

	for e, err := range seq {
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}
