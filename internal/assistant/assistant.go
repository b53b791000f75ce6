// Package assistant is the generation side of docqa. It turns retrieved
// document context, the user's question and recent conversation turns into a
// chat request, calls the configured chat model, and optionally records the
// exchange so later questions about the same document keep their context.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// DefaultHistoryTurns is the number of prior question/answer pairs included
// in each request.
const DefaultHistoryTurns = 3

// systemPrompt establishes the grounding rules for every answer.
const systemPrompt = `You are a careful research assistant answering questions about a single
uploaded document. You are given excerpts from that document as context.

Rules:
- Answer only from the document excerpts. Do not use outside knowledge.
- If the excerpts do not contain the answer, say that the document does not
  cover it. Do not guess.
- Keep answers concise. Quote short phrases from the excerpts when they
  support the answer.
- End with a one-line justification that names the part of the document the
  answer comes from.`

// Config holds the dependencies required to construct an Assistant.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// History is the optional conversation store used to persist and replay
	// prior turns when the caller supplies none. If nil, only caller-supplied
	// turns are used.
	History store.ConversationStore

	// HistoryTurns is the number of prior turns (question+answer pairs) to
	// include per request. Defaults to DefaultHistoryTurns if zero.
	HistoryTurns int

	// MaxContextTokens is the estimated token budget for the full input
	// (system prompt + history + context + question). History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Assistant answers questions and writes comprehension challenges using a
// chat model. It is safe for concurrent use.
type Assistant struct {
	// chatModel generates every response.
	chatModel model.BaseChatModel

	// history is the optional conversation store for multi-turn context.
	history store.ConversationStore

	// historyTurns is the number of prior turns included per request.
	historyTurns int

	// maxContextTokens is the estimated token budget for the full input.
	maxContextTokens int
}

// New constructs an Assistant from the provided Config.
func New(cfg *Config) (*Assistant, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("assistant: ChatModel must not be nil")
	}

	turns := cfg.HistoryTurns
	if turns <= 0 {
		turns = DefaultHistoryTurns
	}

	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Assistant{
		chatModel:        cfg.ChatModel,
		history:          cfg.History,
		historyTurns:     turns,
		maxContextTokens: maxCtx,
	}, nil
}

// AnswerRequest is the input to Answer.
type AnswerRequest struct {
	// DocumentID keys persisted conversation history.
	DocumentID string
	// Question is the user's question.
	Question string
	// Context is the retrieved document context.
	Context string
	// History is caller-supplied prior turns. When empty, persisted history
	// for DocumentID is used if a store is configured.
	History []rag.Turn
}

// Answer generates an answer to req.Question grounded in req.Context. A chat
// model failure or an empty response is returned as a generation service
// error. When a conversation store is configured the exchange is persisted.
func (a *Assistant) Answer(ctx context.Context, req *AnswerRequest) (string, error) {
	messages := a.buildMessages(ctx, req)

	resp, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", rag.NewError(rag.KindGenerationService, "generate answer", err)
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", rag.Errorf(rag.KindGenerationService, "chat model returned an empty answer")
	}

	// Persist the turn to the conversation store (non-fatal on error).
	if a.history != nil && req.DocumentID != "" {
		if err := a.history.AppendTurn(ctx, req.DocumentID, req.Question, answer); err != nil {
			logging.FromContext(ctx).Warn("history: failed to persist turn", slog.Any("error", err))
		}
	}

	return answer, nil
}

// buildMessages assembles [system, ...history, context, question], trimming
// history oldest-first to stay within the token budget.
func (a *Assistant) buildMessages(ctx context.Context, req *AnswerRequest) []*schema.Message {
	historyMsgs := a.historyMessages(ctx, req)

	contextMsg := schema.SystemMessage(buildContextMessage(req.Context))
	question := schema.UserMessage(req.Question)
	fixed := []*schema.Message{schema.SystemMessage(systemPrompt), contextMsg, question}

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, a.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	result := make([]*schema.Message, 0, len(fixed)+len(historyMsgs))
	result = append(result, fixed[0])
	result = append(result, historyMsgs...)
	result = append(result, contextMsg, question)
	return result
}

// historyMessages returns the most recent turns as alternating user and
// assistant messages, preferring caller-supplied turns over persisted ones.
func (a *Assistant) historyMessages(ctx context.Context, req *AnswerRequest) []*schema.Message {
	var msgs []*schema.Message

	if len(req.History) > 0 {
		turns := req.History
		if len(turns) > a.historyTurns {
			turns = turns[len(turns)-a.historyTurns:]
		}
		for _, t := range turns {
			msgs = append(msgs, schema.UserMessage(t.Question), schema.AssistantMessage(t.Answer, nil))
		}
		return msgs
	}

	if a.history == nil || req.DocumentID == "" {
		return nil
	}
	prior, err := a.history.Recent(ctx, req.DocumentID, a.historyTurns*2)
	if err != nil {
		logging.FromContext(ctx).Warn("history: failed to load prior messages", slog.Any("error", err))
		return nil
	}
	for _, m := range prior {
		switch m.Role {
		case store.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case store.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	return msgs
}

// buildContextMessage wraps the retrieved excerpts for the system message
// that precedes the question.
func buildContextMessage(excerpts string) string {
	if strings.TrimSpace(excerpts) == "" {
		return "## Document Excerpts\n\nNo relevant excerpts were found in the document."
	}
	return "## Document Excerpts\n\n" +
		"The following excerpts were retrieved from the document as the most relevant " +
		"to the question. Base your answer on them.\n\n" + excerpts
}
