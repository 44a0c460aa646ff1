// Package score extracts answers from raw model responses and aggregates
// accuracy against the labeled dataset.
package score

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cerebella/vlm-bench/internal/dataset"
	"github.com/cerebella/vlm-bench/internal/results"
)

// NoAnswer is the sentinel extracted value when a response carries no
// answer tag (or the task failed outright). It always scores incorrect.
const NoAnswer = "no answer found"

var answerRe = regexp.MustCompile(`(?s)<answer>(.*?)</answer>`)

// ExtractAnswer returns the trimmed content of the first answer tag pair,
// or the NoAnswer sentinel.
func ExtractAnswer(raw *string) string {
	if raw == nil {
		return NoAnswer
	}
	m := answerRe.FindStringSubmatch(*raw)
	if m == nil {
		return NoAnswer
	}
	return strings.TrimSpace(m[1])
}

// Matcher decides whether an extracted answer matches the expected one.
type Matcher interface {
	Name() string
	Match(extracted, expected string) bool
}

// ExactMatcher requires trimmed string equality.
type ExactMatcher struct{}

// Name returns the strategy identifier.
func (ExactMatcher) Name() string { return "exact" }

// Match compares trimmed extracted and expected values.
func (ExactMatcher) Match(extracted, expected string) bool {
	return strings.TrimSpace(extracted) == strings.TrimSpace(expected)
}

// OverlapMatcher accepts a substring match in either direction. It is the
// lenient variant for datasets with multiple-choice or spacing noise.
type OverlapMatcher struct{}

// Name returns the strategy identifier.
func (OverlapMatcher) Name() string { return "overlap" }

// Match checks containment in both directions.
func (OverlapMatcher) Match(extracted, expected string) bool {
	extracted = strings.TrimSpace(extracted)
	expected = strings.TrimSpace(expected)
	if extracted == "" || expected == "" {
		return extracted == expected
	}
	return strings.Contains(expected, extracted) || strings.Contains(extracted, expected)
}

// MatcherFor returns the named match strategy.
func MatcherFor(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "exact":
		return ExactMatcher{}, nil
	case "overlap", "":
		return OverlapMatcher{}, nil
	default:
		return nil, fmt.Errorf("score: unknown strategy %q (expected exact|overlap)", name)
	}
}

// Evaluated is a result entry annotated with scoring outcome.
type Evaluated struct {
	results.Entry
	Extracted        string `json:"extracted"`
	Correct          bool   `json:"correct"`
	Level            *int   `json:"level"`
	IsMultipleChoice bool   `json:"is_multiple_choice"`
}

// Tally is a correct/total pair.
type Tally struct {
	Correct int
	Total   int
}

// Accuracy returns the tally's percentage, or 0 for an empty tally.
func (t Tally) Accuracy() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Total) * 100
}

// Report aggregates accuracy overall, by difficulty level, and by question
// type.
type Report struct {
	Overall           Tally
	ByLevel           map[int]*Tally
	MultipleChoice    Tally
	NonMultipleChoice Tally
	Strategy          string
}

// Evaluate scores every entry with the given strategy, cross-referencing
// levels and options from the dataset.
func Evaluate(entries []results.Entry, items []dataset.Item, m Matcher) ([]Evaluated, *Report) {
	if m == nil {
		m = OverlapMatcher{}
	}
	byID := dataset.IndexByID(items)

	out := make([]Evaluated, 0, len(entries))
	rep := &Report{
		ByLevel:  make(map[int]*Tally),
		Strategy: m.Name(),
	}

	for _, e := range entries {
		ev := Evaluated{Entry: e}
		ev.Extracted = ExtractAnswer(e.RawResponse)
		if ev.Extracted != NoAnswer {
			ev.Correct = m.Match(ev.Extracted, e.Expected)
		}

		if it, ok := byID[e.ImageNum]; ok {
			level := it.Level
			ev.Level = &level
			ev.IsMultipleChoice = it.MultipleChoice()
		}

		rep.Overall.Total++
		if ev.Correct {
			rep.Overall.Correct++
		}

		if ev.Level != nil {
			t := rep.ByLevel[*ev.Level]
			if t == nil {
				t = &Tally{}
				rep.ByLevel[*ev.Level] = t
			}
			t.Total++
			if ev.Correct {
				t.Correct++
			}
		}

		if ev.IsMultipleChoice {
			rep.MultipleChoice.Total++
			if ev.Correct {
				rep.MultipleChoice.Correct++
			}
		} else {
			rep.NonMultipleChoice.Total++
			if ev.Correct {
				rep.NonMultipleChoice.Correct++
			}
		}

		out = append(out, ev)
	}

	return out, rep
}
