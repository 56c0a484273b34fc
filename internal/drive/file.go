package drive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Mode selects how a File session treats existing content.
type Mode int

// Session modes.
const (
	ModeRead   Mode = iota // existing content, read-only
	ModeWrite              // starts empty; commit replaces the remote file
	ModeAppend             // starts from existing content (if any), cursor at the end
)

func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "w"
	case ModeAppend:
		return "a"
	default:
		return "r"
	}
}

// ParseMode parses "r", "w" or "a".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "w":
		return ModeWrite, nil
	case "a":
		return ModeAppend, nil
	default:
		return ModeRead, invalidArg("mode", "must be r, w or a: "+s)
	}
}

// ContentStore moves whole-file content for a backend. Upload carries the
// backend's own commit semantics (including publish on the daemon).
type ContentStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte) error
}

// Sessions tracks the open File sessions of one drive; at most one session
// per path. The zero value is ready to use.
type Sessions struct {
	mu   sync.Mutex
	open map[string]string // path -> session ID
}

// Open starts a session on path. Read and append modes download the current
// content here; write mode does not touch the remote file until Commit.
func (s *Sessions) Open(ctx context.Context, store ContentStore, p string, mode Mode, logger *slog.Logger) (*File, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return nil, err
	}

	if IsRoot(clean) {
		return nil, invalidArg("path", "cannot open the root directory")
	}

	if mode < ModeRead || mode > ModeAppend {
		return nil, invalidArg("mode", "unknown mode")
	}

	if logger == nil {
		logger = slog.Default()
	}

	id, err := s.claim(clean)
	if err != nil {
		return nil, err
	}

	f := &File{
		ID:      id,
		path:    clean,
		mode:    mode,
		store:   store,
		logger:  logger.With(slog.String("session", id), slog.String("path", clean)),
		release: func() { s.release(clean, id) },
	}

	if err := f.load(ctx); err != nil {
		f.release()
		return nil, err
	}

	f.reset()
	f.logger.Debug("file session opened", slog.String("mode", mode.String()))

	return f, nil
}

func (s *Sessions) claim(clean string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.open[clean]; busy {
		return "", invalidArg("path", "already open in another session: "+clean)
	}

	if s.open == nil {
		s.open = make(map[string]string)
	}

	id := uuid.NewString()
	s.open[clean] = id

	return id, nil
}

func (s *Sessions) release(clean, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open[clean] == id {
		delete(s.open, clean)
	}
}

// IsOpen reports whether path has an open session.
func (s *Sessions) IsOpen(p string) bool {
	clean, err := CleanPath(p)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.open[clean]

	return ok
}

// File is an open read or write session on one remote file. Writes are
// buffered locally until Commit. A File is not safe for concurrent use.
type File struct {
	ID string

	path    string
	mode    Mode
	store   ContentStore
	logger  *slog.Logger
	release func()

	base   []byte // remote content as of Open or the last Commit
	buf    []byte
	dirty  bool
	off    int64
	closed bool
}

// Path returns the cleaned path of the session.
func (f *File) Path() string {
	return f.path
}

// Mode returns the session mode.
func (f *File) Mode() Mode {
	return f.mode
}

// Size returns the length of the session's current content.
func (f *File) Size() (int64, error) {
	if f.closed {
		return 0, ErrSessionClosed
	}

	return int64(len(f.buf)), nil
}

// Read reads from the cursor. Returns io.EOF at the end of content.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrSessionClosed
	}

	if f.off >= int64(len(f.buf)) {
		return 0, io.EOF
	}

	n := copy(p, f.buf[f.off:])
	f.off += int64(n)

	return n, nil
}

// Write writes at the cursor, growing the content as needed. Fails on a
// read-only session.
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrSessionClosed
	}

	if f.mode == ModeRead {
		return 0, invalidArg("mode", "session is read-only")
	}

	end := f.off + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}

	copy(f.buf[f.off:], p)
	f.off = end
	f.dirty = true

	return len(p), nil
}

// Seek moves the cursor. Seeking past the end is allowed; a later Write
// fills the gap with zeros.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrSessionClosed
	}

	var base int64

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.off
	case io.SeekEnd:
		base = int64(len(f.buf))
	default:
		return 0, invalidArg("whence", "unknown origin")
	}

	next := base + offset
	if next < 0 {
		return 0, invalidArg("offset", "seek before start of file")
	}

	f.off = next

	return next, nil
}

// Commit uploads the pending content. A session with nothing pending
// commits nothing; a fresh write session has the truncation pending. On the
// daemon backend the returned error may be a *NotPublishedError, in which
// case the content was still stored.
func (f *File) Commit(ctx context.Context) error {
	if f.closed {
		return ErrSessionClosed
	}

	if !f.dirty {
		return nil
	}

	f.logger.Info("committing file session", slog.Int("size", len(f.buf)))

	err := f.store.Upload(ctx, f.path, f.buf)
	if IsApplied(err) {
		f.base = append([]byte(nil), f.buf...)
		f.dirty = false
	}

	return err
}

// Discard drops uncommitted writes, including a write session's pending
// truncation, and rewinds the cursor. The remote file is untouched.
func (f *File) Discard() error {
	if f.closed {
		return ErrSessionClosed
	}

	if f.dirty {
		f.logger.Debug("discarding uncommitted writes")
	}

	f.dirty = false
	f.reset()

	return nil
}

// Close ends the session, discarding anything not committed.
func (f *File) Close() error {
	if f.closed {
		return ErrSessionClosed
	}

	if f.dirty {
		f.logger.Warn("closing file session with uncommitted changes")
	}

	f.closed = true
	f.buf = nil
	f.release()

	return nil
}

// reset puts the buffer and cursor back to the content as of Open or the
// last Commit.
func (f *File) reset() {
	f.buf = append([]byte(nil), f.base...)
	f.off = 0

	if f.mode == ModeAppend {
		f.off = int64(len(f.buf))
	}
}

// load fetches the remote content for read and append sessions.
func (f *File) load(ctx context.Context) error {
	if f.mode == ModeWrite {
		f.dirty = true
		return nil
	}

	data, err := f.store.Download(ctx, f.path)

	switch {
	case err == nil:
	case f.mode == ModeAppend && errors.Is(err, ErrNotFound):
		data = []byte{}
	default:
		return err
	}

	f.base = data

	f.logger.Debug("file content loaded", slog.Int("size", len(data)))

	return nil
}
