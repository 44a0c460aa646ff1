package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cerebella/vlm-bench/internal/config"
	"github.com/cerebella/vlm-bench/internal/dataset"
	"github.com/cerebella/vlm-bench/internal/history"
	"github.com/cerebella/vlm-bench/internal/prompt"
	"github.com/cerebella/vlm-bench/internal/results"
	"github.com/cerebella/vlm-bench/internal/runner"
	"github.com/cerebella/vlm-bench/internal/vlm"
)

type runOptions struct {
	start       int
	count       int
	concurrency int
	timeout     time.Duration
	resumeFile  string
	outputDir   string
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Dispatch the benchmark batch (or resume a failed one)",
		Args:    cobra.NoArgs,
		PreRunE: loadConfigInto(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, st, &opts)
		},
	}

	cmd.Flags().IntVar(&opts.start, "start", 1, "1-indexed dataset position to start from")
	cmd.Flags().IntVar(&opts.count, "n", 0, "number of items to run (0 = all); with --resume-file, caps retried entries")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "max in-flight requests (overrides config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "per-request timeout (overrides config)")
	cmd.Flags().StringVar(&opts.resumeFile, "resume-file", "", "results file to resume; retries entries with errors in place")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "directory for results files (overrides config)")

	return cmd
}

func runBatch(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("run: nil options")
	}
	if opts.count < 0 {
		return fmt.Errorf("run: --n must be >= 0 (got %d)", opts.count)
	}

	cfg := st.cfg
	concurrency := cfg.Run.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}
	timeout := cfg.Endpoint.Timeout.Std()
	if opts.timeout > 0 {
		timeout = opts.timeout
	}
	outputDir := strings.TrimSpace(cfg.Run.OutputDir)
	if v := strings.TrimSpace(opts.outputDir); v != "" {
		outputDir = v
	}

	gen, err := vlm.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	items, err := dataset.Load(ctx, cfg.Dataset.Path)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("run: empty dataset %q", cfg.Dataset.Path)
	}

	r := runner.NewRunner(gen, runner.Config{
		Concurrency: concurrency,
		Timeout:     timeout,
	})

	if resumeFile := strings.TrimSpace(opts.resumeFile); resumeFile != "" {
		return resumeBatch(ctx, cmd, cfg, r, gen, resumeFile, items, opts.count, concurrency)
	}

	if opts.count == 1 {
		return runSingle(ctx, cmd, cfg, gen, items, opts.start)
	}

	batch, err := dataset.Slice(items, opts.start, opts.count)
	if err != nil {
		return err
	}

	tasks := make([]runner.Task, 0, len(batch))
	for _, it := range batch {
		tasks = append(tasks, runner.TaskFromItem(it, cfg.Dataset.ImageBaseURL))
	}

	startedAt := time.Now()
	entries, err := r.Run(ctx, tasks)
	if err != nil {
		return err
	}
	duration := time.Since(startedAt)

	filename := filepath.Join(outputDir, results.TimestampedFilename(startedAt))
	if err := results.Save(filename, entries); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d results to %s\n", len(entries), filename)

	return recordRun(cmd, cfg, &history.Run{
		Kind:        "run",
		Backend:     gen.Name(),
		Model:       cfg.Endpoint.Model,
		Dataset:     cfg.Dataset.Path,
		OutputFile:  filename,
		Total:       len(entries),
		Succeeded:   countSucceeded(entries),
		Failed:      countFailed(entries),
		Concurrency: concurrency,
		StartedAt:   startedAt.UTC(),
		DurationMs:  duration.Milliseconds(),
	})
}

func resumeBatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, r *runner.Runner, gen vlm.Generator, resumeFile string, items []dataset.Item, limit int, concurrency int) error {
	startedAt := time.Now()
	report, err := r.Resume(ctx, resumeFile, items, cfg.Dataset.ImageBaseURL, limit)
	if err != nil {
		return err
	}
	duration := time.Since(startedAt)

	for _, line := range report.Describe(resumeFile) {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}

	if !report.Updated {
		return nil
	}

	entries, err := results.Load(resumeFile)
	if err != nil {
		return err
	}

	return recordRun(cmd, cfg, &history.Run{
		Kind:        "resume",
		Backend:     gen.Name(),
		Model:       cfg.Endpoint.Model,
		Dataset:     cfg.Dataset.Path,
		OutputFile:  resumeFile,
		Total:       len(entries),
		Succeeded:   countSucceeded(entries),
		Failed:      countFailed(entries),
		Concurrency: concurrency,
		StartedAt:   startedAt.UTC(),
		DurationMs:  duration.Milliseconds(),
	})
}

// runSingle is the debug path: one item, prompt and raw response printed,
// nothing written.
func runSingle(ctx context.Context, cmd *cobra.Command, cfg *config.Config, gen vlm.Generator, items []dataset.Item, start int) error {
	batch, err := dataset.Slice(items, start, 1)
	if err != nil {
		return err
	}
	it := batch[0]

	text := prompt.Build(it)
	fmt.Fprintln(cmd.OutOrStdout(), text)

	raw, err := gen.Generate(ctx, dataset.ImageURL(cfg.Dataset.ImageBaseURL, it.ID), text)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Response: %s\n", raw)
	fmt.Fprintf(cmd.OutOrStdout(), "Correct answer: %s\n", it.Answer)
	return nil
}

func recordRun(cmd *cobra.Command, cfg *config.Config, run *history.Run) error {
	hist, err := history.Open(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		// History is bookkeeping; a broken store must not fail a
		// completed batch.
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: run history unavailable: %v\n", err)
		return nil
	}
	defer hist.Close()

	if err := hist.Save(cmd.Context(), run); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: record run: %v\n", err)
	}
	return nil
}

func countSucceeded(entries []results.Entry) int {
	n := 0
	for _, e := range entries {
		if !e.Failed() {
			n++
		}
	}
	return n
}

func countFailed(entries []results.Entry) int {
	n := 0
	for _, e := range entries {
		if e.Failed() {
			n++
		}
	}
	return n
}
