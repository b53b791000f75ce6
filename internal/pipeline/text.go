package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// horizontalSpace matches runs of spaces and tabs.
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	// spaceAroundNewline matches a newline with spaces on either side.
	spaceAroundNewline = regexp.MustCompile(` *\n *`)
	// blankLines matches three or more consecutive newlines.
	blankLines = regexp.MustCompile(`\n{3,}`)
	// unsafeIDChars matches characters not allowed in a document id.
	unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// summarySentences is the number of leading sentences kept in a summary.
const summarySentences = 3

// fallbackDocumentID is used when a filename has no usable stem.
const fallbackDocumentID = "document"

// CleanText normalises extracted text before chunking: NUL bytes are removed,
// line endings become "\n", runs of spaces and tabs collapse to one space,
// spaces next to newlines are dropped and paragraph gaps are capped at one
// blank line.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = spaceAroundNewline.ReplaceAllString(s, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// DocumentID derives a document id from a filename: the base name without
// its extension, with every character outside [A-Za-z0-9._-] replaced by '_'.
func DocumentID(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = unsafeIDChars.ReplaceAllString(stem, "_")
	if stem == "" || stem == "." || stem == ".." {
		return fallbackDocumentID
	}
	return stem
}

// Summarize returns the first three '.'-separated sentences of text joined
// with a space and followed by "...".
func Summarize(text string) string {
	parts := strings.SplitN(text, ".", summarySentences+1)
	if len(parts) > summarySentences {
		parts = parts[:summarySentences]
	}
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ") + "..."
}

// firstSentence returns the text before the first '.', trimmed.
func firstSentence(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
