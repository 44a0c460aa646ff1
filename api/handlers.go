package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cerebella/vlm-bench/internal/dataset"
	"github.com/cerebella/vlm-bench/internal/results"
	"github.com/cerebella/vlm-bench/internal/score"
)

type scoreRequest struct {
	File     string `json:"file"`
	Strategy string `json:"strategy,omitempty"`
	Dataset  string `json:"dataset,omitempty"`
}

type tallyJSON struct {
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

type scoreResponse struct {
	File              string            `json:"file"`
	Strategy          string            `json:"strategy"`
	Overall           tallyJSON         `json:"overall"`
	ByLevel           map[int]tallyJSON `json:"by_level"`
	MultipleChoice    tallyJSON         `json:"multiple_choice"`
	NonMultipleChoice tallyJSON         `json:"non_multiple_choice"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.hist == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("run history not configured"))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	runs, err := s.hist.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		out = append(out, gin.H{
			"id":          r.ID,
			"kind":        r.Kind,
			"backend":     r.Backend,
			"model":       r.Model,
			"dataset":     r.Dataset,
			"output_file": r.OutputFile,
			"total":       r.Total,
			"succeeded":   r.Succeeded,
			"failed":      r.Failed,
			"concurrency": r.Concurrency,
			"started_at":  r.StartedAt.Format(time.RFC3339),
			"duration_ms": r.DurationMs,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListResultFiles(c *gin.Context) {
	dir := s.outputDir()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, []string{})
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "results_") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) handleGetResultFile(c *gin.Context) {
	name, err := safeResultName(c.Param("name"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	entries, err := results.Load(filepath.Join(s.outputDir(), name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(c, http.StatusNotFound, fmt.Errorf("result file %q not found", name))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	name, err := safeResultName(req.File)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	matcher, err := score.MatcherFor(firstNonEmpty(req.Strategy, s.config.Scoring.Strategy))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	entries, err := results.Load(filepath.Join(s.outputDir(), name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(c, http.StatusNotFound, fmt.Errorf("result file %q not found", name))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	datasetPath := firstNonEmpty(req.Dataset, s.config.Dataset.Path)
	items, err := dataset.Load(contextOrBackground(c), datasetPath)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	_, rep := score.Evaluate(entries, items, matcher)
	c.JSON(http.StatusOK, toScoreResponse(name, rep))
}

func (s *Server) outputDir() string {
	if s != nil && s.config != nil {
		if dir := strings.TrimSpace(s.config.Run.OutputDir); dir != "" {
			return dir
		}
	}
	return "."
}

// safeResultName rejects anything but a bare results file name to keep
// handlers from reading outside the output directory.
func safeResultName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("missing result file name")
	}
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid result file name %q", name)
	}
	if !strings.HasSuffix(name, ".json") {
		return "", fmt.Errorf("invalid result file name %q", name)
	}
	return name, nil
}

func toScoreResponse(file string, rep *score.Report) scoreResponse {
	out := scoreResponse{
		File:              file,
		Strategy:          rep.Strategy,
		Overall:           toTallyJSON(rep.Overall),
		ByLevel:           make(map[int]tallyJSON, len(rep.ByLevel)),
		MultipleChoice:    toTallyJSON(rep.MultipleChoice),
		NonMultipleChoice: toTallyJSON(rep.NonMultipleChoice),
	}
	for level, t := range rep.ByLevel {
		out.ByLevel[level] = toTallyJSON(*t)
	}
	return out
}

func toTallyJSON(t score.Tally) tallyJSON {
	return tallyJSON{
		Correct:  t.Correct,
		Total:    t.Total,
		Accuracy: t.Accuracy(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func contextOrBackground(c *gin.Context) context.Context {
	if c != nil && c.Request != nil && c.Request.Context() != nil {
		return c.Request.Context()
	}
	return context.Background()
}

func respondError(c *gin.Context, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}
