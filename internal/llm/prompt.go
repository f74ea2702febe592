package llm

import "fmt"

const systemPrompt = `You are the back-office assistant of a small shop's point-of-sale system.
Answer questions about sales, transactions, inventory, employees and the action log.
Always call a tool to get data; never invent numbers. Dates are YYYY-MM-DD.
Today is %s. Amounts are in the shop's currency; show them with two decimals.
Keep answers short and factual. If a tool returns an error, say what failed.`

const interactiveSuffix = `
This is an interactive session: earlier turns are part of the context.`

// SystemPrompt returns the instructions for a conversation held on today.
func SystemPrompt(today string, interactive bool) string {
	prompt := fmt.Sprintf(systemPrompt, today)
	if interactive {
		prompt += interactiveSuffix
	}
	return prompt
}
