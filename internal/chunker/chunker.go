// Package chunker splits document text into overlapping passages for
// embedding. Windows are measured in characters (Unicode code points) and
// prefer to end on a sentence terminator near the target size.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSize is the target chunk length in characters.
	DefaultSize = 1000
	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 200
	// breakWindow is how far back from a window's end a sentence terminator
	// is searched for.
	breakWindow = 100
)

// ErrInvalidConfig is returned when size and overlap do not satisfy
// 0 < overlap < size.
var ErrInvalidConfig = errors.New("chunker: invalid size/overlap")

// Chunk splits text into trimmed, non-empty chunks of at most size
// characters, each overlapping its predecessor by overlap characters.
// Every non-whitespace character of text appears in at least one chunk.
func Chunk(text string, size, overlap int) ([]string, error) {
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidConfig, size, overlap)
	}

	runes := []rune(text)
	n := len(runes)
	chunks := []string{}

	for start := 0; start < n; {
		end := start + size
		if end >= n {
			end = n
		} else {
			// A break must still advance the next window by half a stride.
			end = sentenceBreak(runes, start+overlap+(size-overlap+1)/2, end)
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == n {
			break
		}

		next := end - overlap
		if next <= start {
			return nil, fmt.Errorf("%w: no progress at offset %d", ErrInvalidConfig, start)
		}
		start = next
	}
	return chunks, nil
}

// sentenceBreak returns the offset just after the last sentence terminator
// in the final breakWindow characters before end, provided that offset is at
// least minEnd. It returns end when there is no such terminator.
func sentenceBreak(runes []rune, minEnd, end int) int {
	floor := max(end-breakWindow, minEnd-1)
	for i := end - 1; i >= floor; i-- {
		if isTerminator(runes[i]) {
			return i + 1
		}
	}
	return end
}

// isTerminator reports whether r ends a sentence.
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}
