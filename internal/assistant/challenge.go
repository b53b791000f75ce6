package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/rag"
)

// challengePrompt asks for exactly one question per passage in a fixed
// three-line shape that parseChallenge understands.
const challengePrompt = `Given the document excerpt below, create one challenging question that can
only be answered from this excerpt. Reply in exactly three lines:
Q: <your question>
A: <one-line correct answer>
Justification: <brief explanation>

Excerpt:
`

// justificationFallbackChars bounds the passage text used when the model
// omits a justification line.
const justificationFallbackChars = 200

// Challenge is a comprehension question generated from one passage.
type Challenge struct {
	// Question tests understanding of the passage.
	Question string `json:"question"`
	// Answer is the expected answer.
	Answer string `json:"answer"`
	// Justification explains where the answer comes from.
	Justification string `json:"justification"`
}

// Challenges generates one Challenge per passage, in passage order. Lines the
// model leaves out fall back to text derived from the passage itself.
func (a *Assistant) Challenges(ctx context.Context, passages []string) ([]Challenge, error) {
	out := make([]Challenge, 0, len(passages))
	for i, p := range passages {
		resp, err := a.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(challengePrompt + p)})
		if err != nil {
			return nil, rag.NewError(rag.KindGenerationService, fmt.Sprintf("generate challenge %d", i+1), err)
		}
		out = append(out, parseChallenge(resp.Content, p, i))
	}
	return out, nil
}

// parseChallenge reads the Q:/A:/Justification: lines from a model reply.
// Markdown bold markers are ignored.
func parseChallenge(reply, passage string, index int) Challenge {
	c := Challenge{}
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))
		switch {
		case c.Question == "" && strings.HasPrefix(line, "Q:"):
			c.Question = strings.TrimSpace(line[len("Q:"):])
		case c.Answer == "" && strings.HasPrefix(line, "A:"):
			c.Answer = strings.TrimSpace(line[len("A:"):])
		case c.Justification == "" && strings.HasPrefix(line, "Justification:"):
			c.Justification = strings.TrimSpace(line[len("Justification:"):])
		}
	}

	if c.Question == "" {
		c.Question = fmt.Sprintf("Unparsed question for passage %d", index+1)
	}
	if c.Answer == "" {
		c.Answer = FirstSentence(passage)
	}
	if c.Justification == "" {
		c.Justification = budget.Truncate(passage, justificationFallbackChars)
	}
	return c
}

// FirstSentence returns the text of s before its first '.', trimmed.
func FirstSentence(s string) string {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
