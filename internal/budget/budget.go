// Package budget keeps prompts within size limits: a hard character cutoff for
// retrieved context and token estimation with history trimming for chat
// messages. Token counts use a character heuristic, 1 token ≈ 4 characters,
// since the supported backends use different tokenizers.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	charsPerToken = 4
	// messageOverhead approximates the per-message framing most chat APIs add.
	messageOverhead = 4

	// DefaultMaxContextTokens is the input budget used when none is
	// configured. It fits 8k-context models with room for the answer.
	DefaultMaxContextTokens = 6000
)

// Truncate returns the first maxChars characters (code points) of s. It never
// splits a multi-byte character and does not look for word or sentence
// boundaries, so the same input always yields the same output.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}

// Estimate returns the approximate token count of s: its character count
// divided by four, rounded up.
func Estimate(s string) int {
	return (utf8.RuneCountInString(s) + charsPerToken - 1) / charsPerToken
}

// EstimateMessages sums Estimate over role and content plus a fixed
// per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageCost(m)
	}
	return total
}

func messageCost(m *schema.Message) int {
	return messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
}

// TrimHistory drops the oldest history messages until fixed and history
// together fit in maxTokens. Fixed messages are never dropped; when they
// alone exceed the budget the result is empty and the caller decides what to
// do. History never starts with an assistant message after trimming, so an
// answer is not kept without its question.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}
	remaining := maxTokens - EstimateMessages(fixed)
	used := EstimateMessages(history)

	start := 0
	for start < len(history) && used > remaining {
		used -= messageCost(history[start])
		start++
	}
	for start < len(history) && history[start].Role == schema.Assistant {
		start++
	}
	return history[start:]
}
