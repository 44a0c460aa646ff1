package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cerebella/vlm-bench/internal/config"
	"github.com/cerebella/vlm-bench/internal/history"
	"github.com/cerebella/vlm-bench/internal/results"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type serverFixture struct {
	srv  *Server
	dir  string
	hist *history.Store
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	t.Setenv("VLMBENCH_DISABLE_AUTH", "true")

	dir := t.TempDir()

	datasetPath := filepath.Join(dir, "test.jsonl")
	lines := `{"id": 1, "question": "q1", "options": ["3", "5"], "answer": "5", "level": 1}
{"id": 2, "question": "q2", "answer": "6", "level": 2}
`
	if err := os.WriteFile(datasetPath, []byte(lines), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	cfg := config.Default()
	cfg.Run.OutputDir = dir
	cfg.Dataset.Path = datasetPath

	hist, err := history.NewStore(":memory:")
	if err != nil {
		t.Fatalf("history store: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	srv, err := NewServer(cfg, hist)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &serverFixture{srv: srv, dir: dir, hist: hist}
}

func (f *serverFixture) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	f.srv.router.ServeHTTP(w, req)
	return w
}

func (f *serverFixture) seedResults(t *testing.T, name string, entries []results.Entry) {
	t.Helper()
	if err := results.Save(filepath.Join(f.dir, name), entries); err != nil {
		t.Fatalf("seed results: %v", err)
	}
}

func TestNewServer_RequiresAuthConfiguration(t *testing.T) {
	t.Setenv("VLMBENCH_API_KEY", "")
	t.Setenv("VLMBENCH_DISABLE_AUTH", "")

	if _, err := NewServer(config.Default(), nil); err == nil {
		t.Fatalf("expected error without auth configuration")
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Setenv("VLMBENCH_API_KEY", "secret")

	srv, err := NewServer(config.Default(), nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestHandleListRuns(t *testing.T) {
	f := newTestServer(t)

	run := &history.Run{Kind: "run", Backend: "endpoint", Total: 10, Succeeded: 9, Failed: 1}
	if err := f.hist.Save(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	w := f.do(t, http.MethodGet, "/api/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var runs []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d", len(runs))
	}
	if runs[0]["backend"] != "endpoint" || runs[0]["total"] != float64(10) {
		t.Fatalf("runs[0] = %v", runs[0])
	}

	if w := f.do(t, http.MethodGet, "/api/runs?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func TestHandleListRuns_NoStore(t *testing.T) {
	t.Setenv("VLMBENCH_DISABLE_AUTH", "true")

	srv, err := NewServer(config.Default(), nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleListResultFiles(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodGet, "/api/results", nil)
	if w.Code != http.StatusOK || w.Body.String() != "[]" {
		t.Fatalf("empty dir: status=%d body=%s", w.Code, w.Body.String())
	}

	f.seedResults(t, "results_20260824_130509.json", nil)
	f.seedResults(t, "results_20260823_090000.json", nil)
	if err := os.WriteFile(filepath.Join(f.dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w = f.do(t, http.MethodGet, "/api/results", nil)
	var names []string
	if err := json.Unmarshal(w.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(names) != 2 || names[0] != "results_20260823_090000.json" {
		t.Fatalf("names = %v", names)
	}
}

func TestHandleGetResultFile(t *testing.T) {
	f := newTestServer(t)
	f.seedResults(t, "results_20260824_130509.json", []results.Entry{
		results.Success(1, "q1", "5", "<answer>B</answer>"),
		results.Failure(2, "q2", "6", fmt.Errorf("timeout")),
	})

	w := f.do(t, http.MethodGet, "/api/results/results_20260824_130509.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var entries []results.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || !entries[1].Failed() {
		t.Fatalf("entries = %+v", entries)
	}

	if w := f.do(t, http.MethodGet, "/api/results/missing.json", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing file status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/results/notes.txt", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-json name status = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/results/..secret.json", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("dotted name status = %d", w.Code)
	}
}

func TestHandleScore(t *testing.T) {
	f := newTestServer(t)
	f.seedResults(t, "results_20260824_130509.json", []results.Entry{
		results.Success(1, "q1", "5", "<answer>B) 5</answer>"),
		results.Success(2, "q2", "6", "<answer>7</answer>"),
		results.Failure(3, "q3", "9", fmt.Errorf("503")),
	})

	body, _ := json.Marshal(map[string]string{
		"file":     "results_20260824_130509.json",
		"strategy": "overlap",
	})
	w := f.do(t, http.MethodPost, "/api/score", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp scoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Strategy != "overlap" {
		t.Fatalf("strategy = %q", resp.Strategy)
	}
	if resp.Overall.Total != 3 || resp.Overall.Correct != 1 {
		t.Fatalf("overall = %+v", resp.Overall)
	}
	if resp.MultipleChoice.Total != 1 || resp.MultipleChoice.Correct != 1 {
		t.Fatalf("multiple choice = %+v", resp.MultipleChoice)
	}
	if lvl, ok := resp.ByLevel[1]; !ok || lvl.Correct != 1 {
		t.Fatalf("by_level = %v", resp.ByLevel)
	}

	// Unknown strategy and bad file names are client errors.
	body, _ = json.Marshal(map[string]string{"file": "results_x.json", "strategy": "fuzzy"})
	if w := f.do(t, http.MethodPost, "/api/score", body); w.Code != http.StatusBadRequest {
		t.Fatalf("bad strategy status = %d", w.Code)
	}
	body, _ = json.Marshal(map[string]string{"file": "../../etc/passwd.json"})
	if w := f.do(t, http.MethodPost, "/api/score", body); w.Code != http.StatusBadRequest {
		t.Fatalf("traversal status = %d", w.Code)
	}
	body, _ = json.Marshal(map[string]string{"file": "results_missing.json"})
	if w := f.do(t, http.MethodPost, "/api/score", body); w.Code != http.StatusNotFound {
		t.Fatalf("missing file status = %d", w.Code)
	}
}

func TestSafeResultName(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"results_20260824_130509.json", true},
		{"", false},
		{"  ", false},
		{"../escape.json", false},
		{"dir/inner.json", false},
		{"results..json", false},
		{"results.txt", false},
	}
	for _, tc := range tests {
		_, err := safeResultName(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("safeResultName(%q): err=%v, want ok=%v", tc.in, err, tc.ok)
		}
	}
}
