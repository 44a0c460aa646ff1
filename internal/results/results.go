// Package results defines the per-item outcome record and its JSON array
// file format. The file is the contract between batch runs, resume passes,
// and scoring: field names and the null raw_response on failure must stay
// stable.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Entry is the outcome of one dispatched task. Exactly one of RawResponse
// and Error is populated.
type Entry struct {
	ImageNum    int     `json:"image_num"`
	Question    string  `json:"question"`
	Expected    string  `json:"expected"`
	RawResponse *string `json:"raw_response"`
	Error       string  `json:"error,omitempty"`
}

// Failed reports whether the entry captured a dispatch failure.
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Success builds a successful entry.
func Success(imageNum int, question, expected, raw string) Entry {
	return Entry{
		ImageNum:    imageNum,
		Question:    question,
		Expected:    expected,
		RawResponse: &raw,
	}
}

// Failure builds a failed entry with the captured error message.
func Failure(imageNum int, question, expected string, err error) Entry {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Entry{
		ImageNum: imageNum,
		Question: question,
		Expected: expected,
		Error:    msg,
	}
}

// Load reads a results file (a JSON array of entries).
func Load(path string) ([]Entry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("results: empty path")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("results: read %q: %w", path, err)
	}

	var out []Entry
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("results: parse %q: %w", path, err)
	}
	return out, nil
}

// Save writes entries as a pretty-printed JSON array.
func Save(path string, entries []Entry) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("results: empty path")
	}

	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("results: marshal: %w", err)
	}
	b = append(b, '\n')

	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("results: write %q: %w", path, err)
	}
	return nil
}

// TimestampedFilename names a new batch output file.
func TimestampedFilename(t time.Time) string {
	return "results_" + t.Format("20060102_150405") + ".json"
}

// EvaluatedFilename derives the scorer output path from a results path.
func EvaluatedFilename(path string) string {
	if strings.HasSuffix(path, ".json") {
		return strings.TrimSuffix(path, ".json") + "_evaluated.json"
	}
	return path + "_evaluated.json"
}
