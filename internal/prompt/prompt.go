// Package prompt renders dataset items into instruction strings for the
// vision-language model. Rendering is pure: the same item always yields the
// same string.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cerebella/vlm-bench/internal/dataset"
)

// Tag pair delimiting the model's final answer, and the thinking section
// preceding it.
const (
	AnswerOpen    = "<answer>"
	AnswerClose   = "</answer>"
	ThinkingOpen  = "<thinking>"
	ThinkingClose = "</thinking>"
)

var optionLabels = []string{"A", "B", "C", "D", "E"}

// Inline image placeholders like "<image1>" appear in question text; the
// image itself is sent separately, so the tag (and a leading newline, if
// any) is stripped.
var imageTagRe = regexp.MustCompile(`\n?<image\d+>`)

// CleanQuestion removes inline image placeholder tags.
func CleanQuestion(question string) string {
	return imageTagRe.ReplaceAllString(question, "")
}

// FormatOptions renders answer options as "A) ..., B) ...". When the options
// already are the bare label sequence, they are joined as-is.
func FormatOptions(options []string) string {
	if len(options) <= len(optionLabels) && isLabelSequence(options) {
		return strings.Join(options, ", ")
	}

	var sb strings.Builder
	for i, opt := range options {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(rune('A' + i)))
		sb.WriteString(") ")
		sb.WriteString(opt)
	}
	return sb.String()
}

func isLabelSequence(options []string) bool {
	if len(options) == 0 || len(options) > len(optionLabels) {
		return false
	}
	for i, opt := range options {
		if opt != optionLabels[i] {
			return false
		}
	}
	return true
}

// Build renders one item into its instruction string. Items with options get
// the multiple-choice template; all others get the single-number template.
func Build(it dataset.Item) string {
	question := CleanQuestion(it.Question)

	if it.MultipleChoice() {
		return fmt.Sprintf(
			"Think, and then answer. IMPORTANT: This is multiple choice. "+
				"Answer with A, B, C, D, or E (e.g. %sB%s). "+
				"Place your thinking between %s and %s tags and then "+
				"answer between %s and %s tags. %s\nOptions: %s",
			AnswerOpen, AnswerClose,
			ThinkingOpen, ThinkingClose,
			AnswerOpen, AnswerClose,
			question, FormatOptions(it.Options),
		)
	}

	return fmt.Sprintf(
		"Think, and then answer. IMPORTANT: Answer with only a single number "+
			"(e.g. %s6%s). Place your thinking between %s and %s tags and then "+
			"answer between %s and %s tags. %s",
		AnswerOpen, AnswerClose,
		ThinkingOpen, ThinkingClose,
		AnswerOpen, AnswerClose,
		question,
	)
}
