package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cerebella/vlm-bench/internal/results"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	dir := t.TempDir()

	datasetPath := writeFile(t, filepath.Join(dir, "test.jsonl"),
		`{"id": 1, "question": "q1", "options": ["3", "5"], "answer": "5", "level": 1}
{"id": 2, "question": "q2", "answer": "6", "level": 2}
`)

	resultsPath := filepath.Join(dir, "results_20260824_130509.json")
	entries := []results.Entry{
		results.Success(1, "q1", "5", "<answer>5</answer>"),
		results.Failure(2, "q2", "6", fmt.Errorf("timeout")),
	}
	if err := results.Save(resultsPath, entries); err != nil {
		t.Fatalf("seed results: %v", err)
	}

	out, err := execute(t, "score", resultsPath, "--dataset", datasetPath, "--strategy", "exact")
	if err != nil {
		t.Fatalf("score: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Overall Accuracy: 1/2 (50.0%)") {
		t.Fatalf("missing overall line:\n%s", out)
	}
	if !strings.Contains(out, "  Level 1: 1/1 (100.0%)") {
		t.Fatalf("missing level line:\n%s", out)
	}

	evaluatedPath := results.EvaluatedFilename(resultsPath)
	if !strings.Contains(out, "Saved to "+evaluatedPath) {
		t.Fatalf("missing saved line:\n%s", out)
	}
	if _, err := os.Stat(evaluatedPath); err != nil {
		t.Fatalf("evaluated file: %v", err)
	}
}

func TestScoreCommand_EmptyResults(t *testing.T) {
	dir := t.TempDir()
	resultsPath := writeFile(t, filepath.Join(dir, "results_empty.json"), "[]\n")

	out, err := execute(t, "score", resultsPath)
	if err == nil || !strings.Contains(err.Error(), "no entries") {
		t.Fatalf("empty results: err=%v\n%s", err, out)
	}
}

func TestHistoryCommand_Empty(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, filepath.Join(dir, "config.yaml"),
		"storage:\n  type: memory\n")

	out, err := execute(t, "history", "--config", configPath)
	if err != nil {
		t.Fatalf("history: %v\n%s", err, out)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Fatalf("output:\n%s", out)
	}
}

// runFixture stands up a fake inference endpoint and a config file pointing
// the run command's dataset and output at a temp dir.
func runFixture(t *testing.T, answer string) (configPath, outputDir string) {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ImageURL string `json:"image_url"`
			Text     string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ImageURL == "" || req.Text == "" {
			t.Errorf("incomplete request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(answer)
	}))
	t.Cleanup(ts.Close)
	t.Setenv("VLMBENCH_ENDPOINT_URL", ts.URL)

	dir := t.TempDir()
	datasetPath := writeFile(t, filepath.Join(dir, "test.jsonl"),
		`{"id": 1, "question": "q1 <image1>", "options": ["3", "5"], "answer": "5", "level": 1}
{"id": 2, "question": "q2", "answer": "6", "level": 2}
`)

	configPath = writeFile(t, filepath.Join(dir, "config.yaml"), fmt.Sprintf(
		"dataset:\n  path: %s\nrun:\n  output_dir: %s\n  concurrency: 4\nstorage:\n  type: memory\n",
		datasetPath, dir,
	))
	return configPath, dir
}

func TestRunCommand_Batch(t *testing.T) {
	configPath, outputDir := runFixture(t, "<answer>5</answer>")

	out, err := execute(t, "run", "--config", configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Saved 2 results to ") {
		t.Fatalf("missing summary line:\n%s", out)
	}

	files, err := filepath.Glob(filepath.Join(outputDir, "results_*.json"))
	if err != nil || len(files) != 1 {
		t.Fatalf("results files = %v (err=%v)", files, err)
	}

	entries, err := results.Load(files[0])
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	for i, e := range entries {
		if e.ImageNum != i+1 {
			t.Fatalf("entries[%d].ImageNum = %d", i, e.ImageNum)
		}
		if e.Failed() || e.RawResponse == nil || *e.RawResponse != "<answer>5</answer>" {
			t.Fatalf("entries[%d] = %+v", i, e)
		}
	}
}

func TestRunCommand_SingleItemDebug(t *testing.T) {
	configPath, outputDir := runFixture(t, "<answer>6</answer>")

	out, err := execute(t, "run", "--n", "1", "--start", "2", "--config", configPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}

	if !strings.Contains(out, "Answer with only a single number") {
		t.Fatalf("prompt not printed:\n%s", out)
	}
	if !strings.Contains(out, "Response: <answer>6</answer>") {
		t.Fatalf("response not printed:\n%s", out)
	}
	if !strings.Contains(out, "Correct answer: 6") {
		t.Fatalf("expected answer not printed:\n%s", out)
	}

	files, err := filepath.Glob(filepath.Join(outputDir, "results_*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("debug mode must not write results files, found %v", files)
	}
}

func TestRunCommand_RejectsNegativeCount(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, filepath.Join(dir, "config.yaml"), "")

	out, err := execute(t, "run", "--n", "-2", "--config", configPath)
	if err == nil || !strings.Contains(err.Error(), "--n must be >= 0") {
		t.Fatalf("negative count: err=%v\n%s", err, out)
	}
}
