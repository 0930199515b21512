package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/restframe/internal/db"
)

func newRunsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run ledger",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(store *db.RunStore) error {
				return listRuns(cmd.Context(), cmd.OutOrStdout(), store, limit)
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its trees and skipped or flagged events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(store *db.RunStore) error {
				return showRun(cmd.Context(), cmd.OutOrStdout(), store, args[0])
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and everything recorded for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withStore(func(store *db.RunStore) error {
				if err := store.DeleteRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted run %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

// withStore opens the ledger named by --db for the duration of fn.
func (o *rootOptions) withStore(fn func(store *db.RunStore) error) error {
	if o.dbPath == "" {
		return errors.New("runs requires --db")
	}
	database, err := db.NewDB(o.dbPath)
	if err != nil {
		return fmt.Errorf("open run ledger: %w", err)
	}
	defer database.Close()
	return fn(db.NewRunStore(database))
}

func listRuns(ctx context.Context, w io.Writer, store *db.RunStore, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-36s  %-8s  %-9s  %-20s  %s\n", "RUN", "COMMAND", "STATUS", "STARTED", "OUTPUT")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-8s  %-9s  %-20s  %s\n",
			r.RunID, r.Command, r.Status, r.StartedAt.Format(time.DateTime), r.OutputPath)
	}
	return nil
}

func showRun(ctx context.Context, w io.Writer, store *db.RunStore, runID string) error {
	r, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Run:      %s\n", r.RunID)
	fmt.Fprintf(w, "Command:  %s\n", r.Command)
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
	fmt.Fprintf(w, "Input:    %s\n", r.InputPath)
	if r.AuxPath != "" {
		fmt.Fprintf(w, "Aux:      %s\n", r.AuxPath)
	}
	fmt.Fprintf(w, "Output:   %s\n", r.OutputPath)
	fmt.Fprintf(w, "Version:  %s\n", r.Version)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Format(time.DateTime))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Finished: %s (%s)\n", r.FinishedAt.Format(time.DateTime), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Config:   %s\n", r.ConfigJSON)

	trees, err := store.ListTreeRuns(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTrees (%d):\n", len(trees))
	for _, t := range trees {
		fmt.Fprintf(w, "  %s  mode=%s mB=%.2f entries=%d written=%d skipped=%d flagged=%d pool=%d\n",
			t.Tree, t.DecayMode, t.ReferenceMass, t.Entries, t.Written, t.Skipped, t.Flagged, t.PoolSize)
	}

	events, err := store.ListSkippedEvents(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nSkipped or flagged events (%d):\n", len(events))
	for _, e := range events {
		action := "skipped"
		if e.Flagged {
			action = "flagged"
		}
		fmt.Fprintf(w, "  %s entry %d (run %d, event %d) %s: %s\n",
			e.Tree, e.Entry, e.RunNumber, e.EventNumber, action, e.Reason)
	}
	return nil
}
