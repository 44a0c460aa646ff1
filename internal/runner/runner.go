// Package runner dispatches batches of inference requests under a bounded
// concurrency gate and captures per-task failures without aborting siblings.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cerebella/vlm-bench/internal/dataset"
	"github.com/cerebella/vlm-bench/internal/prompt"
	"github.com/cerebella/vlm-bench/internal/results"
	"github.com/cerebella/vlm-bench/internal/vlm"
)

// Task is one request to dispatch, derived deterministically from a dataset
// item.
type Task struct {
	ImageNum int
	Question string
	Expected string
	ImageURL string
	Prompt   string
}

// TaskFromItem builds the request task for a dataset item.
func TaskFromItem(it dataset.Item, imageBaseURL string) Task {
	return Task{
		ImageNum: it.ID,
		Question: it.Question,
		Expected: it.Answer,
		ImageURL: dataset.ImageURL(imageBaseURL, it.ID),
		Prompt:   prompt.Build(it),
	}
}

// Config defines dispatch behavior.
type Config struct {
	Concurrency int           // Max in-flight requests
	Timeout     time.Duration // Per-request timeout; zero means none
}

// Runner issues tasks against a generator with bounded parallelism.
type Runner struct {
	gen vlm.Generator
	cfg Config

	sem chan struct{}
}

// NewRunner creates a Runner with the given concurrency cap.
func NewRunner(gen vlm.Generator, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Runner{
		gen: gen,
		cfg: cfg,
		sem: make(chan struct{}, cfg.Concurrency),
	}
}

// Run dispatches every task and returns one entry per task, positioned by
// submission order regardless of completion order. A task failure is
// captured in its own entry and never cancels in-flight or queued siblings;
// Run returns only after every task has reached a terminal state.
func (r *Runner) Run(ctx context.Context, tasks []Task) ([]results.Entry, error) {
	if r == nil {
		return nil, errors.New("runner: nil runner")
	}
	if ctx == nil {
		return nil, errors.New("runner: nil context")
	}
	if r.gen == nil {
		return nil, errors.New("runner: nil generator")
	}

	out := make([]results.Entry, len(tasks))

	var wg sync.WaitGroup
	for i := range tasks {
		idx := i
		t := tasks[i]

		wg.Add(1)
		go func() {
			defer wg.Done()

			r.sem <- struct{}{}
			defer func() { <-r.sem }()

			out[idx] = r.dispatch(ctx, t)
		}()
	}
	wg.Wait()

	return out, nil
}

func (r *Runner) dispatch(ctx context.Context, t Task) results.Entry {
	reqCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	raw, err := r.gen.Generate(reqCtx, t.ImageURL, t.Prompt)
	if err != nil {
		return results.Failure(t.ImageNum, t.Question, t.Expected, err)
	}
	return results.Success(t.ImageNum, t.Question, t.Expected, raw)
}
