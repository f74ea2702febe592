package cli

import (
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

const maxToolRounds = 4

type response struct {
	Query      string
	AnswerText string
	ToolCalls  []toolCallRecord
	NextStep   string
}

type toolCallRecord struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	MS   int64          `json:"ms"`
	OK   bool           `json:"ok"`
	Err  string         `json:"err,omitempty"`
}

// chatter is the part of llm.Client the agent loop needs.
type chatter interface {
	Enabled() bool
	Chat(ctx context.Context, messages []openrouter.ChatCompletionMessage, tools []openrouter.Tool) (openrouter.ChatCompletionMessage, *openrouter.Usage, error)
}

type agent struct {
	chat    chatter
	service *pos.Service
	logger  *zap.Logger
}

func (a *agent) run(ctx context.Context, query string, history *SessionHistory) (response, error) {
	if a.chat == nil || !a.chat.Enabled() {
		return response{}, llm.ErrNotConfigured
	}

	history.Append(openrouter.UserMessage(query))
	var toolCalls []toolCallRecord

	for round := 0; round < maxToolRounds; round++ {
		msg, _, err := a.chat.Chat(ctx, history.GetMessages(), llm.ToolSchemas())
		if err != nil {
			return response{}, err
		}
		a.logger.Debug("llm response",
			zap.String("content", msg.Content.Text),
			zap.Int("tool_calls", len(msg.ToolCalls)),
		)
		history.Append(msg)

		if len(msg.ToolCalls) == 0 {
			return response{
				Query:      query,
				AnswerText: strings.TrimSpace(msg.Content.Text),
				ToolCalls:  toolCalls,
			}, nil
		}

		toolMsgs, records := a.executeToolCalls(ctx, msg.ToolCalls)
		toolCalls = append(toolCalls, records...)
		for _, toolMsg := range toolMsgs {
			history.Append(toolMsg)
		}
	}

	return response{
		Query:      query,
		AnswerText: "Could not finish the request: too many tool rounds.",
		ToolCalls:  toolCalls,
		NextStep:   "Ask a narrower question, for example a single date or employee.",
	}, nil
}

// executeToolCalls answers every call. Tool failures go back to the model as
// error payloads instead of aborting the turn.
func (a *agent) executeToolCalls(ctx context.Context, calls []openrouter.ToolCall) ([]openrouter.ChatCompletionMessage, []toolCallRecord) {
	toolMessages := make([]openrouter.ChatCompletionMessage, 0, len(calls))
	records := make([]toolCallRecord, 0, len(calls))

	for _, call := range calls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				record := toolCallRecord{Name: call.Function.Name, OK: false, Err: fmt.Sprintf("invalid tool args: %v", err)}
				logToolRecord(a.logger, record)
				records = append(records, record)
				toolMessages = append(toolMessages, openrouter.ToolMessage(call.ID, toolErrorPayload(record.Err)))
				continue
			}
		}

		result, record, err := a.dispatchToolCall(ctx, call.Function.Name, args)
		records = append(records, record)
		if err != nil {
			toolMessages = append(toolMessages, openrouter.ToolMessage(call.ID, toolErrorPayload(friendlyError(err))))
			continue
		}

		payload, err := json.Marshal(result)
		if err != nil {
			toolMessages = append(toolMessages, openrouter.ToolMessage(call.ID, toolErrorPayload(err.Error())))
			continue
		}
		toolMessages = append(toolMessages, openrouter.ToolMessage(call.ID, string(payload)))
	}

	return toolMessages, records
}

func (a *agent) dispatchToolCall(ctx context.Context, name string, args map[string]any) (any, toolCallRecord, error) {
	switch name {
	case llm.ToolGetTotalSales:
		start, err := getDateArg(args, "start_date")
		if err != nil {
			return nil, failedRecord(name, args, err), err
		}
		end, err := getDateArg(args, "end_date")
		if err != nil {
			return nil, failedRecord(name, args, err), err
		}
		return trackCall(a.logger, name, args, func() (pos.SalesTotal, error) {
			return a.service.GetTotalSales(ctx, start, end).Unwrap()
		})
	case llm.ToolGetLowStockItems:
		return trackCall(a.logger, name, args, func() ([]pos.InventoryItem, error) {
			return a.service.GetLowStockItems(ctx).Unwrap()
		})
	case llm.ToolGetTransactionsByDate:
		date, err := getDateArg(args, "date")
		if err != nil {
			return nil, failedRecord(name, args, err), err
		}
		return trackCall(a.logger, name, args, func() ([]pos.Transaction, error) {
			return a.service.GetTransactionsByDate(ctx, date).Unwrap()
		})
	case llm.ToolGetTransactionsByEmployee:
		employee, _ := getStringArg(args, "employee")
		if employee == "" {
			err := fmt.Errorf("missing employee")
			return nil, failedRecord(name, args, err), err
		}
		date, _ := getStringArg(args, "date")
		return trackCall(a.logger, name, args, func() ([]pos.Transaction, error) {
			if date == "" {
				return a.service.GetTodayTransactions(ctx, employee).Unwrap()
			}
			return a.service.GetTransactionsByEmployee(ctx, employee, date).Unwrap()
		})
	case llm.ToolGetInventory:
		return trackCall(a.logger, name, args, func() ([]pos.InventoryItem, error) {
			return a.service.GetInventory(ctx).Unwrap()
		})
	case llm.ToolGetEmployees:
		return trackCall(a.logger, name, args, func() ([]pos.Employee, error) {
			return a.service.GetEmployees(ctx).Unwrap()
		})
	case llm.ToolGetActionLogs:
		limit := getIntArg(args, "limit", pos.DefaultActionLogLimit)
		return trackCall(a.logger, name, args, func() ([]pos.ActionLog, error) {
			return a.service.GetActionLogs(ctx, limit).Unwrap()
		})
	default:
		err := fmt.Errorf("unknown tool: %s", name)
		return nil, failedRecord(name, args, err), err
	}
}

func failedRecord(name string, args map[string]any, err error) toolCallRecord {
	return toolCallRecord{Name: name, Args: args, OK: false, Err: err.Error()}
}

func getDateArg(args map[string]any, key string) (string, error) {
	value, ok := getStringArg(args, key)
	if !ok || value == "" {
		return "", fmt.Errorf("missing %s", key)
	}
	if _, err := time.Parse(pos.DateLayout, value); err != nil {
		return "", fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func toolErrorPayload(message string) string {
	encoded, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, message)
	}
	return string(encoded)
}

func logToolRecord(logger *zap.Logger, record toolCallRecord) {
	logger.Info("tool call",
		zap.String("name", record.Name),
		zap.Any("args", record.Args),
		zap.Int64("ms", record.MS),
		zap.Bool("ok", record.OK),
		zap.String("err", record.Err),
	)
}
