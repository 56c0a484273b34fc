package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/hivedrive/internal/drive"
)

// fanOutLimit bounds concurrent remote calls for multi-path commands.
const fanOutLimit = 4

func newInfoCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Display drive identity and capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				return runInfo(cmd.Context(), cc, s.Drive, cmd.OutOrStdout())
			})
		},
	}
}

func newLsCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "/"
			if len(args) > 0 {
				p = args[0]
			}

			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				return runLs(cmd.Context(), cc, s.Drive, p, cmd.OutOrStdout())
			})
		},
	}
}

func newStatCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>...",
		Short: "Display file or folder metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				return runStat(cmd.Context(), cc, s.Drive, args, cmd.OutOrStdout())
			})
		},
	}
}

func newMkdirCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				if err := s.Drive.MakeDir(cmd.Context(), args[0]); err != nil {
					return mutationError("mkdir", args[0], err)
				}

				cc.Statusf("Created %s\n", args[0])

				return nil
			})
		},
	}
}

func newMvCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Move or rename a file or folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				if err := s.Drive.Move(cmd.Context(), args[0], args[1]); err != nil {
					return mutationError("mv", args[0], err)
				}

				cc.Statusf("Moved %s -> %s\n", args[0], args[1])

				return nil
			})
		},
	}
}

func newCpCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy a file or folder on the remote side",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				start := time.Now()

				if err := s.Drive.Copy(cmd.Context(), args[0], args[1]); err != nil {
					return mutationError("cp", args[0], err)
				}

				cc.Statusf("Copied %s -> %s (%s)\n", args[0], args[1], time.Since(start).Round(time.Millisecond))

				return nil
			})
		},
	}
}

func newRmCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files or folders (folders recursively)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				return runRm(cmd.Context(), cc, s.Drive, args)
			})
		},
	}
}

func newCatCmd(cc *CLIContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a remote file to standard output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), cc, func(s *DriveSession) error {
				return runCat(cmd.Context(), s.Drive, args[0], cmd.OutOrStdout())
			})
		},
	}
}

func newPutCmd(cc *CLIContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload a local file",
		Args:  cobra.RangeArgs(1, 2),
	}

	appendMode := cmd.Flags().Bool("append", false, "append to the remote file instead of replacing it")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		local := args[0]

		remote := "/" + filepath.Base(local)
		if len(args) > 1 {
			remote = args[1]
		}

		mode := drive.ModeWrite
		if *appendMode {
			mode = drive.ModeAppend
		}

		return withSession(cmd.Context(), cc, func(s *DriveSession) error {
			return runPut(cmd.Context(), cc, s.Drive, local, remote, mode)
		})
	}

	return cmd
}

// infoJSON is the JSON schema for `info --json`.
type infoJSON struct {
	ID         string `json:"id"`
	Backend    string `json:"backend"`
	DriveType  string `json:"drive_type"`
	Owner      string `json:"owner,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	RootHash   string `json:"root_hash,omitempty"`
	QuotaUsed  int64  `json:"quota_used"`
	QuotaTotal int64  `json:"quota_total"`
}

func runInfo(ctx context.Context, cc *CLIContext, d drive.Drive, w io.Writer) error {
	info, err := d.Info(ctx)
	if err != nil {
		return fmt.Errorf("fetching drive info: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(w, infoJSON{
			ID:         info.ID,
			Backend:    info.Backend,
			DriveType:  info.DriveType,
			Owner:      info.Owner,
			Endpoint:   info.Endpoint,
			RootHash:   info.RootHash,
			QuotaUsed:  info.QuotaUsed,
			QuotaTotal: info.QuotaTotal,
		})
	}

	fmt.Fprintf(w, "Drive:    %s (%s, %s)\n", info.ID, info.Backend, info.DriveType)

	if info.Owner != "" {
		fmt.Fprintf(w, "Owner:    %s\n", info.Owner)
	}

	if info.Endpoint != "" {
		fmt.Fprintf(w, "Endpoint: %s\n", info.Endpoint)
	}

	if info.RootHash != "" {
		fmt.Fprintf(w, "Root:     %s\n", info.RootHash)
	}

	if info.QuotaTotal > 0 {
		fmt.Fprintf(w, "Quota:    %s / %s\n", formatSize(info.QuotaUsed), formatSize(info.QuotaTotal))
	}

	return nil
}

// lsJSONItem is the JSON output schema for a single entry in ls output.
type lsJSONItem struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
	ID    string `json:"id"`
}

func runLs(ctx context.Context, cc *CLIContext, d drive.Drive, p string, w io.Writer) error {
	cc.Logger.Debug("ls", slog.String("path", p))

	entries, err := drive.Collect(d.List(ctx, p))
	if err != nil {
		return fmt.Errorf("listing %q: %w", p, err)
	}

	// Folders first, then alphabetical.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}

		return entries[i].Name < entries[j].Name
	})

	if cc.Flags.JSON {
		out := make([]lsJSONItem, 0, len(entries))
		for _, e := range entries {
			out = append(out, lsJSONItem{Name: e.Name, Size: e.Size, IsDir: e.IsDir, ID: e.ID})
		}

		return printJSON(w, out)
	}

	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		name := e.Name
		if e.IsDir {
			name += "/"
		}

		rows = append(rows, []string{name, formatSize(e.Size)})
	}

	printTable(w, []string{"NAME", "SIZE"}, rows)

	return nil
}

// statJSON is the JSON schema for one path in `stat --json`.
type statJSON struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	ID       string `json:"id"`
	Size     int64  `json:"size"`
	IsDir    bool   `json:"is_dir"`
	Modified string `json:"modified,omitempty"`
	ETag     string `json:"etag,omitempty"`
	Hash     string `json:"hash,omitempty"`
	Children int    `json:"children"`
}

func runStat(ctx context.Context, cc *CLIContext, d drive.Drive, paths []string, w io.Writer) error {
	results := make([]*drive.FileInfo, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for i, p := range paths {
		g.Go(func() error {
			fi, err := d.Stat(gctx, p)
			if err != nil {
				return fmt.Errorf("stat %q: %w", p, err)
			}

			results[i] = fi

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]statJSON, 0, len(results))

		for _, fi := range results {
			sj := statJSON{
				Path: fi.Path, Name: fi.Name, ID: fi.ID, Size: fi.Size, IsDir: fi.IsDir,
				ETag: fi.ETag, Hash: fi.Hash, Children: fi.Children,
			}
			if !fi.ModTime.IsZero() {
				sj.Modified = fi.ModTime.UTC().Format(time.RFC3339)
			}

			out = append(out, sj)
		}

		return printJSON(w, out)
	}

	for i, fi := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}

		printStat(w, fi)
	}

	return nil
}

func printStat(w io.Writer, fi *drive.FileInfo) {
	kind := "file"
	if fi.IsDir {
		kind = "folder"
	}

	fmt.Fprintf(w, "Path:     %s\n", fi.Path)
	fmt.Fprintf(w, "Type:     %s\n", kind)
	fmt.Fprintf(w, "Size:     %s\n", formatSize(fi.Size))
	fmt.Fprintf(w, "Modified: %s\n", formatTime(fi.ModTime))
	fmt.Fprintf(w, "ID:       %s\n", fi.ID)

	if fi.Hash != "" {
		fmt.Fprintf(w, "Hash:     %s\n", fi.Hash)
	}

	if fi.IsDir && fi.Children >= 0 {
		fmt.Fprintf(w, "Children: %d\n", fi.Children)
	}
}

func runRm(ctx context.Context, cc *CLIContext, d drive.Drive, paths []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for _, p := range paths {
		g.Go(func() error {
			if err := d.Delete(gctx, p); err != nil {
				return mutationError("rm", p, err)
			}

			cc.Statusf("Deleted %s\n", p)

			return nil
		})
	}

	return g.Wait()
}

func runCat(ctx context.Context, d drive.Drive, p string, w io.Writer) error {
	f, err := d.Open(ctx, p, drive.ModeRead)
	if err != nil {
		return fmt.Errorf("opening %q: %w", p, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %q: %w", p, err)
	}

	return nil
}

func runPut(ctx context.Context, cc *CLIContext, d drive.Drive, local, remote string, mode drive.Mode) error {
	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", local)
	}

	cc.Logger.Debug("put",
		slog.String("local_path", local),
		slog.String("remote_path", remote),
		slog.String("mode", mode.String()),
		slog.Int64("size", fi.Size()),
	)

	f, err := d.Open(ctx, remote, mode)
	if err != nil {
		return fmt.Errorf("opening %q: %w", remote, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		return fmt.Errorf("buffering %q: %w", local, err)
	}

	if err := f.Commit(ctx); err != nil {
		return mutationError("put", remote, err)
	}

	cc.Statusf("Uploaded %s (%s)\n", remote, formatSize(fi.Size()))

	return nil
}

// mutationError adds the path and, for a change that was stored but not
// published, how to finish it.
func mutationError(op, p string, err error) error {
	var np *drive.NotPublishedError
	if errors.As(err, &np) {
		return fmt.Errorf("%s %q: change stored but not published, run 'hivedrive publish': %w", op, p, err)
	}

	return fmt.Errorf("%s %q: %w", op, p, err)
}
