package score

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// WriteReport prints the per-partition accuracy report.
func WriteReport(w io.Writer, rep *Report) {
	if w == nil || rep == nil {
		return
	}

	fmt.Fprintf(w, "Overall Accuracy: %d/%d (%.1f%%)\n",
		rep.Overall.Correct, rep.Overall.Total, rep.Overall.Accuracy())

	fmt.Fprintf(w, "\nAccuracy by Level:\n")
	levels := make([]int, 0, len(rep.ByLevel))
	for level := range rep.ByLevel {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	for _, level := range levels {
		t := rep.ByLevel[level]
		fmt.Fprintf(w, "  Level %d: %d/%d (%.1f%%)\n", level, t.Correct, t.Total, t.Accuracy())
	}

	fmt.Fprintf(w, "\nAccuracy by Question Type:\n")
	fmt.Fprintf(w, "  Multiple Choice: %d/%d (%.1f%%)\n",
		rep.MultipleChoice.Correct, rep.MultipleChoice.Total, rep.MultipleChoice.Accuracy())
	fmt.Fprintf(w, "  Non-Multiple Choice: %d/%d (%.1f%%)\n",
		rep.NonMultipleChoice.Correct, rep.NonMultipleChoice.Total, rep.NonMultipleChoice.Accuracy())
}

// SaveEvaluated writes the annotated entries as a pretty-printed JSON array.
func SaveEvaluated(path string, evaluated []Evaluated) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("score: empty path")
	}

	b, err := json.MarshalIndent(evaluated, "", "  ")
	if err != nil {
		return fmt.Errorf("score: marshal: %w", err)
	}
	b = append(b, '\n')

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("score: write %q: %w", path, err)
	}
	return nil
}
