package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pos_data_layer/internal/llm"
	"pos_data_layer/internal/pos"

	openrouter "github.com/revrost/go-openrouter"
	"go.uber.org/zap"
)

type jsonResponse struct {
	Query      string           `json:"query"`
	AnswerText string           `json:"answer_text"`
	ToolCalls  []toolCallRecord `json:"tool_calls,omitempty"`
	NextStep   string           `json:"next_step,omitempty"`
}

func (r *Runner) ask(ctx context.Context, args []string) error {
	fs := newFlagSet("ask", r.out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a := &agent{chat: r.llmClient, service: r.service, logger: r.logger}
	if !a.chat.Enabled() {
		return llm.ErrNotConfigured
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return r.runREPL(ctx, a)
	}

	history := r.newHistory(false)
	return r.handleQuery(ctx, a, query, history)
}

func (r *Runner) newHistory(interactive bool) *SessionHistory {
	history := NewSessionHistory(defaultHistoryMaxMessages, defaultHistoryMaxTokens, r.logger)
	history.Reset(llm.SystemPrompt(time.Now().UTC().Format(pos.DateLayout), interactive))
	return history
}

func (r *Runner) runREPL(ctx context.Context, a *agent) error {
	reader := bufio.NewScanner(r.in)
	history := r.newHistory(true)
	fmt.Fprintln(r.out, "POS assistant (type 'exit' to quit, /clear, /history)")

	for {
		fmt.Fprint(r.out, "> ")
		if !reader.Scan() {
			return reader.Err()
		}

		line := strings.TrimSpace(reader.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "/clear":
			history = r.newHistory(true)
			fmt.Fprintln(r.out, "History cleared.")
			continue
		case "/history":
			printHistory(r, history)
			continue
		case "exit", "quit":
			return nil
		}

		if err := r.handleQuery(ctx, a, line, history); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(r.out, "Error: %s\n", friendlyError(err))
		}
	}
}

func (r *Runner) handleQuery(ctx context.Context, a *agent, query string, history *SessionHistory) error {
	r.logger.Info("query received", zap.String("query", query), zap.Bool("json", r.options.JSON))

	resp, err := a.run(ctx, query, history)
	if err != nil {
		return err
	}
	r.logger.Info("response",
		zap.String("query", resp.Query),
		zap.String("answer", resp.AnswerText),
		zap.Int("tool_calls", len(resp.ToolCalls)),
	)

	if r.options.JSON {
		return json.NewEncoder(r.out).Encode(jsonResponse{
			Query:      resp.Query,
			AnswerText: resp.AnswerText,
			ToolCalls:  resp.ToolCalls,
			NextStep:   resp.NextStep,
		})
	}

	answer := resp.AnswerText
	if answer == "" {
		answer = "(empty response)"
	}
	fmt.Fprintf(r.out, "Answer:\n- %s\n", answer)
	if resp.NextStep != "" {
		fmt.Fprintf(r.out, "\nNext step:\n- %s\n", resp.NextStep)
	}
	return nil
}

func printHistory(r *Runner, history *SessionHistory) {
	messages := history.GetMessages()
	if len(messages) == 0 {
		fmt.Fprintln(r.out, "History is empty.")
		return
	}
	fmt.Fprintf(r.out, "History (%d messages, ~%d tokens):\n", len(messages), history.TokenCount())
	for i, msg := range messages {
		preview := messagePreview(msg)
		if preview == "" {
			preview = "(empty)"
		}
		fmt.Fprintf(r.out, "%d) %s: %s\n", i+1, msg.Role, preview)
	}
}

func messagePreview(msg openrouter.ChatCompletionMessage) string {
	text := strings.TrimSpace(msg.Content.Text)
	if text == "" {
		for _, part := range msg.Content.Multi {
			if strings.TrimSpace(part.Text) != "" {
				text = strings.TrimSpace(part.Text)
				break
			}
		}
	}
	const maxLen = 120
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
