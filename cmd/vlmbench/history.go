package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cerebella/vlm-bench/internal/history"
)

func newHistoryCmd(st *cliState) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List recorded benchmark runs",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigInto(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistory(cmd, st, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")

	return cmd
}

func listHistory(cmd *cobra.Command, st *cliState, limit int) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("history: missing config (internal error)")
	}

	hist, err := history.Open(st.cfg.Storage.Type, st.cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer hist.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, err := hist.List(ctx, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(out, "%d  %s  %-6s  backend=%s total=%d ok=%d failed=%d concurrency=%d took=%s file=%s\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Kind,
			r.Backend,
			r.Total,
			r.Succeeded,
			r.Failed,
			r.Concurrency,
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			r.OutputFile,
		)
	}
	return nil
}
