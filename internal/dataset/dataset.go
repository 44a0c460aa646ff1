// Package dataset loads the newline-delimited JSON question file and derives
// per-item image URLs.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Item is one labeled question. Items are immutable once loaded.
type Item struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Answer   string   `json:"answer"`
	Level    int      `json:"level"`
}

// MultipleChoice reports whether the item carries answer options.
func (it Item) MultipleChoice() bool {
	return len(it.Options) > 0
}

// Load reads all items from a JSONL file.
func Load(ctx context.Context, path string) ([]Item, error) {
	if ctx == nil {
		return nil, errors.New("dataset: nil context")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("dataset: empty path")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer f.Close()

	return decodeStream(ctx, f)
}

func decodeStream(ctx context.Context, r io.Reader) ([]Item, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var out []Item
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var it Item
		if err := json.Unmarshal(line, &it); err != nil {
			return out, fmt.Errorf("dataset: parse line %d: %w", len(out)+1, err)
		}
		out = append(out, it)
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// IndexByID maps items by their 1-indexed id.
func IndexByID(items []Item) map[int]Item {
	out := make(map[int]Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out
}

// Slice returns n items starting at the 1-indexed position start.
// n <= 0 means through the end of the dataset.
func Slice(items []Item, start, n int) ([]Item, error) {
	if start < 1 || start > len(items) {
		return nil, fmt.Errorf("dataset: start must be between 1 and %d (got %d)", len(items), start)
	}

	end := len(items)
	if n > 0 {
		end = start - 1 + n
		if end > len(items) {
			end = len(items)
		}
	}
	return items[start-1 : end], nil
}

// ImageURL builds the image location for an item id.
func ImageURL(baseURL string, id int) string {
	return fmt.Sprintf("%s/%d.jpg", strings.TrimRight(strings.TrimSpace(baseURL), "/"), id)
}
