package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cerebella/vlm-bench/internal/dataset"
	"github.com/cerebella/vlm-bench/internal/results"
	"github.com/cerebella/vlm-bench/internal/score"
)

type scoreOptions struct {
	strategy    string
	datasetPath string
}

func newScoreCmd(st *cliState) *cobra.Command {
	var opts scoreOptions

	cmd := &cobra.Command{
		Use:     "score FILE",
		Short:   "Score a results file against the dataset",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadConfigInto(st),
		RunE: func(cmd *cobra.Command, args []string) error {
			return scoreResults(cmd, st, &opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "match strategy: exact|overlap (overrides config)")
	cmd.Flags().StringVar(&opts.datasetPath, "dataset", "", "dataset path (overrides config)")

	return cmd
}

func scoreResults(cmd *cobra.Command, st *cliState, opts *scoreOptions, inputFile string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("score: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("score: nil options")
	}

	strategy := strings.TrimSpace(opts.strategy)
	if strategy == "" {
		strategy = st.cfg.Scoring.Strategy
	}
	matcher, err := score.MatcherFor(strategy)
	if err != nil {
		return err
	}

	datasetPath := strings.TrimSpace(opts.datasetPath)
	if datasetPath == "" {
		datasetPath = st.cfg.Dataset.Path
	}

	entries, err := results.Load(inputFile)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("score: no entries in %q", inputFile)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	items, err := dataset.Load(ctx, datasetPath)
	if err != nil {
		return err
	}

	evaluated, rep := score.Evaluate(entries, items, matcher)

	out := cmd.OutOrStdout()
	score.WriteReport(out, rep)

	outputFile := results.EvaluatedFilename(inputFile)
	if err := score.SaveEvaluated(outputFile, evaluated); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSaved to %s\n", outputFile)
	return nil
}
