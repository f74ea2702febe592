package llm

import (
	"context"
	"testing"

	"pos_data_layer/internal/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToolSchemas(t *testing.T) {
	tools := ToolSchemas()
	require.Len(t, tools, 7)

	names := map[string]bool{}
	for _, tool := range tools {
		require.NotNil(t, tool.Function)
		names[tool.Function.Name] = true

		params, ok := tool.Function.Parameters.(map[string]any)
		require.True(t, ok)
		require.Equal(t, "object", params["type"])
	}
	require.True(t, names[ToolGetTotalSales])
	require.True(t, names[ToolGetActionLogs])
}

func TestNewClient_DisabledWithoutKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLMModel = "openai/gpt-4o-mini"

	client := NewClient(cfg, zap.NewNop())
	require.False(t, client.Enabled())
	require.Equal(t, "openai/gpt-4o-mini", client.Model())

	_, _, err := client.Chat(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt("2025-03-09", false)
	require.Contains(t, prompt, "Today is 2025-03-09.")
	require.NotContains(t, prompt, "interactive session")
	require.Contains(t, SystemPrompt("2025-03-09", true), "interactive session")
}
