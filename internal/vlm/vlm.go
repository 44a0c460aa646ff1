// Package vlm talks to hosted vision-language-model inference backends.
package vlm

import "context"

// Generator answers one image+text prompt with the model's raw text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, imageURL string, text string) (string, error)
}
