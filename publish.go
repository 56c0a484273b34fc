package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hivedrive/internal/ipfs"
	"github.com/tonimelisma/hivedrive/internal/journal"
)

func newPublishCmd(cc *CLIContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish the namespace root after an interrupted change",
		Long: `Publish points the namespace name at the current root. Changes on the
ipfs backend are published automatically; use this after a change reported
"stored but not published", or after a crash left the namespace pending.`,
		Args: cobra.NoArgs,
	}

	pendingOnly := cmd.Flags().Bool("pending", false, "only list pending namespaces, do not publish")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), cc, func(s *DriveSession) error {
			if s.IPFS == nil {
				return errors.New("publish applies to the ipfs backend only")
			}

			return runPublish(cmd.Context(), cc, s.IPFS, s.Journal, *pendingOnly, cmd.OutOrStdout())
		})
	}

	return cmd
}

// pendingJSON is the JSON schema for one entry of `publish --pending --json`.
type pendingJSON struct {
	Namespace string `json:"namespace"`
	Op        string `json:"op"`
	Attempts  int    `json:"attempts"`
	MarkedAt  string `json:"marked_at"`
	LastError string `json:"last_error,omitempty"`
}

func runPublish(ctx context.Context, cc *CLIContext, d *ipfs.Drive, j *journal.Journal, pendingOnly bool, w io.Writer) error {
	var pending []journal.Entry

	if j != nil {
		entries, err := j.Pending(ctx)
		if err != nil {
			return fmt.Errorf("reading publish journal: %w", err)
		}

		pending = entries
	}

	if pendingOnly {
		return printPending(cc, pending, w)
	}

	if len(pending) == 0 {
		cc.Logger.Debug("no pending publish recorded, publishing anyway")
	}

	if err := d.Publish(ctx); err != nil {
		return fmt.Errorf("publishing namespace %s: %w", cc.Cfg.IPFS.UID, err)
	}

	cc.Statusf("Published namespace %s\n", cc.Cfg.IPFS.UID)

	return nil
}

func printPending(cc *CLIContext, pending []journal.Entry, w io.Writer) error {
	if cc.Flags.JSON {
		out := make([]pendingJSON, 0, len(pending))
		for _, e := range pending {
			out = append(out, pendingJSON{
				Namespace: e.Namespace,
				Op:        e.Op,
				Attempts:  e.Attempts,
				MarkedAt:  e.MarkedAt.UTC().Format(time.RFC3339),
				LastError: e.LastError,
			})
		}

		return printJSON(w, out)
	}

	if len(pending) == 0 {
		fmt.Fprintln(w, "Nothing pending.")

		return nil
	}

	rows := make([][]string, 0, len(pending))
	for _, e := range pending {
		rows = append(rows, []string{e.Namespace, e.Op, fmt.Sprint(e.Attempts), formatTime(e.MarkedAt), e.LastError})
	}

	printTable(w, []string{"NAMESPACE", "OP", "ATTEMPTS", "SINCE", "LAST ERROR"}, rows)

	return nil
}
