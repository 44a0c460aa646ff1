package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cerebella/vlm-bench/internal/dataset"
	"github.com/cerebella/vlm-bench/internal/results"
)

// ResumeReport summarizes one resume pass.
type ResumeReport struct {
	Failed  int // entries with a captured error in the input file
	Capped  int // after applying the retry limit
	Skipped int // capped ids with no matching dataset item
	Retried int // actually re-dispatched and replaced
	Updated bool
}

// Resume retries the failed entries of a previous batch output file in
// place. Limit caps how many failed entries are retried (first N in file
// order); limit <= 0 retries all. Entries whose image_num has no dataset
// item are skipped and counted. When nothing qualifies for retry, the file
// is left untouched.
func (r *Runner) Resume(ctx context.Context, path string, items []dataset.Item, imageBaseURL string, limit int) (*ResumeReport, error) {
	if r == nil {
		return nil, errors.New("runner: nil runner")
	}
	if ctx == nil {
		return nil, errors.New("runner: nil context")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("runner: empty resume path")
	}

	existing, err := results.Load(path)
	if err != nil {
		return nil, err
	}

	report := &ResumeReport{}

	var failedNums []int
	for _, e := range existing {
		if e.Failed() {
			failedNums = append(failedNums, e.ImageNum)
		}
	}
	report.Failed = len(failedNums)
	if len(failedNums) == 0 {
		return report, nil
	}

	if limit > 0 && limit < len(failedNums) {
		failedNums = failedNums[:limit]
	}
	report.Capped = len(failedNums)

	byID := dataset.IndexByID(items)
	tasks := make([]Task, 0, len(failedNums))
	for _, num := range failedNums {
		it, ok := byID[num]
		if !ok {
			report.Skipped++
			continue
		}
		tasks = append(tasks, TaskFromItem(it, imageBaseURL))
	}
	if len(tasks) == 0 {
		return report, nil
	}

	retried, err := r.Run(ctx, tasks)
	if err != nil {
		return report, err
	}
	report.Retried = len(retried)

	// Replace whole entries by image_num; failed entries are not
	// guaranteed contiguous or index-stable, so never patch by position.
	byNum := make(map[int]results.Entry, len(retried))
	for _, e := range retried {
		byNum[e.ImageNum] = e
	}
	for i := range existing {
		if e, ok := byNum[existing[i].ImageNum]; ok {
			existing[i] = e
		}
	}

	if err := results.Save(path, existing); err != nil {
		return report, err
	}
	report.Updated = true
	return report, nil
}

// Describe renders the resume report as the one-line summaries printed by
// the CLI.
func (rep *ResumeReport) Describe(path string) []string {
	if rep == nil {
		return nil
	}

	if rep.Failed == 0 {
		return []string{"No entries with errors found in the resume file."}
	}

	out := []string{fmt.Sprintf("Found %d entries with errors to retry", rep.Capped)}
	if rep.Skipped > 0 {
		out = append(out, fmt.Sprintf("Skipped %d image_nums not found in the dataset", rep.Skipped))
	}
	if rep.Retried == 0 {
		out = append(out, "No valid image_nums to retry.")
		return out
	}
	out = append(out, fmt.Sprintf("Updated %d entries in %s", rep.Retried, path))
	return out
}
