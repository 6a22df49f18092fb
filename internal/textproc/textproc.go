// Package textproc splits transcripts into chunks for the dispatcher and
// stitches the improved chunks back together.
package textproc

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/endogpt/endokit/internal/engine/batch"
)

// DefaultChunkSize is the number of characters per chunk.
const DefaultChunkSize = 2000

// ErrInvalidChunkSize is returned for a non-positive chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be at least 1")

// Chunk splits text into consecutive pieces of at most size characters.
// Characters are runes, so multi-byte text is never split mid-character.
func Chunk(text string, size int) ([]string, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}

	chunks := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[end:])
			end += w
			n++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks, nil
}

// Items wraps chunks as dispatcher items with ids "0".."n-1".
func Items(chunks []string) []batch.Item {
	items := make([]batch.Item, len(chunks))
	for i, c := range chunks {
		items[i] = batch.Item{ID: strconv.Itoa(i), Seq: i, Input: c}
	}
	return items
}

// Reassemble orders results by sequence index and joins them with newlines.
// A chunk without a successful result is replaced by its original text and
// its index is returned in fallbacks.
func Reassemble(results map[string]batch.Result, chunks []string) (text string, fallbacks []int) {
	ordered := make([]batch.Result, 0, len(chunks))
	seen := make(map[int]bool, len(chunks))
	for _, r := range results {
		if r.Seq < 0 || r.Seq >= len(chunks) {
			continue
		}
		ordered = append(ordered, r)
		seen[r.Seq] = true
	}
	for i := range chunks {
		if !seen[i] {
			ordered = append(ordered, batch.Result{Seq: i, Err: "missing"})
		}
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	parts := make([]string, len(ordered))
	for i, r := range ordered {
		if r.Failed() {
			parts[i] = chunks[r.Seq]
			fallbacks = append(fallbacks, r.Seq)
			continue
		}
		parts[i] = r.Output
	}
	return strings.Join(parts, "\n"), fallbacks
}

// ImprovedPath returns the default output path for input: the input path
// without its extension, suffixed with _improved_<timestamp>.txt.
func ImprovedPath(input string, now time.Time) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "_improved_" + now.Format("20060102_150405") + ".txt"
}
