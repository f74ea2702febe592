package cli

import (
	"strings"

	openrouter "github.com/revrost/go-openrouter"
	"go.uber.org/zap"
)

const (
	defaultHistoryMaxMessages = 20
	defaultHistoryMaxTokens   = 8000
)

// SessionHistory keeps the conversation of an ask session within a message
// count and a rough token budget. The leading system message is never
// trimmed.
type SessionHistory struct {
	messages    []openrouter.ChatCompletionMessage
	maxMessages int
	maxTokens   int
	logger      *zap.Logger
}

func NewSessionHistory(maxMessages, maxTokens int, logger *zap.Logger) *SessionHistory {
	if maxMessages <= 0 {
		maxMessages = defaultHistoryMaxMessages
	}
	if maxTokens <= 0 {
		maxTokens = defaultHistoryMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHistory{
		maxMessages: maxMessages,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

func (h *SessionHistory) Append(message openrouter.ChatCompletionMessage) {
	h.messages = append(h.messages, message)
	h.enforceLimits()
}

func (h *SessionHistory) GetMessages() []openrouter.ChatCompletionMessage {
	if len(h.messages) == 0 {
		return nil
	}
	out := make([]openrouter.ChatCompletionMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Reset drops the conversation and starts over from systemPrompt.
func (h *SessionHistory) Reset(systemPrompt string) {
	h.messages = []openrouter.ChatCompletionMessage{openrouter.SystemMessage(systemPrompt)}
}

func (h *SessionHistory) Len() int {
	return len(h.messages)
}

func (h *SessionHistory) TokenCount() int {
	return estimateTokens(h.messages)
}

func (h *SessionHistory) enforceLimits() {
	trimmed := false
	if h.maxMessages > 0 && len(h.messages) > h.maxMessages {
		h.messages = trimByCount(h.messages, h.maxMessages)
		trimmed = true
	}

	if h.maxTokens > 0 {
		for len(h.messages) > 1 && estimateTokens(h.messages) > h.maxTokens {
			h.messages = trimOldestNonSystem(h.messages)
			trimmed = true
		}
	}

	if trimmed {
		h.messages = dropOrphanToolMessages(h.messages)
		h.logger.Debug("session history trimmed",
			zap.Int("messages", len(h.messages)),
			zap.Int("tokens", estimateTokens(h.messages)),
		)
	}
}

func trimByCount(messages []openrouter.ChatCompletionMessage, max int) []openrouter.ChatCompletionMessage {
	if len(messages) <= max {
		return messages
	}
	if len(messages) == 0 || max <= 0 {
		return nil
	}
	if messages[0].Role == openrouter.ChatMessageRoleSystem {
		keep := max - 1
		if keep <= 0 {
			return messages[:1]
		}
		start := len(messages) - keep
		if start < 1 {
			start = 1
		}
		trimmed := make([]openrouter.ChatCompletionMessage, 0, max)
		trimmed = append(trimmed, messages[0])
		trimmed = append(trimmed, messages[start:]...)
		return trimmed
	}
	return messages[len(messages)-max:]
}

func trimOldestNonSystem(messages []openrouter.ChatCompletionMessage) []openrouter.ChatCompletionMessage {
	if len(messages) == 0 {
		return nil
	}
	if messages[0].Role == openrouter.ChatMessageRoleSystem {
		if len(messages) <= 1 {
			return messages
		}
		return append(messages[:1], messages[2:]...)
	}
	return messages[1:]
}

// dropOrphanToolMessages removes tool results whose assistant call was
// trimmed away; the API rejects them.
func dropOrphanToolMessages(messages []openrouter.ChatCompletionMessage) []openrouter.ChatCompletionMessage {
	start := 0
	if len(messages) > 0 && messages[0].Role == openrouter.ChatMessageRoleSystem {
		start = 1
	}
	end := start
	for end < len(messages) && messages[end].Role == openrouter.ChatMessageRoleTool {
		end++
	}
	if end == start {
		return messages
	}
	return append(messages[:start], messages[end:]...)
}

func estimateTokens(messages []openrouter.ChatCompletionMessage) int {
	total := 0
	for _, msg := range messages {
		total += estimateTokensForMessage(msg)
	}
	return total
}

// estimateTokensForMessage takes the larger of the word count and a four
// characters per token guess; tool payloads are JSON with few spaces.
func estimateTokensForMessage(message openrouter.ChatCompletionMessage) int {
	text := message.Content.Text
	if text == "" {
		for _, part := range message.Content.Multi {
			text += " " + part.Text
		}
	}
	for _, call := range message.ToolCalls {
		text += " " + call.Function.Arguments
	}
	return max(len(strings.Fields(text)), len(text)/4)
}
