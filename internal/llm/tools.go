package llm

import openrouter "github.com/revrost/go-openrouter"

// Tool names the assistant may call. All of them are read-only.
const (
	ToolGetTotalSales             = "GetTotalSales"
	ToolGetLowStockItems          = "GetLowStockItems"
	ToolGetTransactionsByDate     = "GetTransactionsByDate"
	ToolGetTransactionsByEmployee = "GetTransactionsByEmployee"
	ToolGetInventory              = "GetInventory"
	ToolGetEmployees              = "GetEmployees"
	ToolGetActionLogs             = "GetActionLogs"
)

func ToolSchemas() []openrouter.Tool {
	return []openrouter.Tool{
		function(ToolGetTotalSales,
			"Sum of transaction amounts and number of transactions for an inclusive date range. Transactions without an amount are counted but add nothing to the total.",
			map[string]any{
				"start_date": dateParam("First day of the range (YYYY-MM-DD)."),
				"end_date":   dateParam("Last day of the range (YYYY-MM-DD), inclusive."),
			},
			"start_date", "end_date",
		),
		function(ToolGetLowStockItems,
			"Inventory items with quantity below 30, lowest quantity first.",
			nil,
		),
		function(ToolGetTransactionsByDate,
			"All transactions of one day, latest time first. Returns id, date, time, employee, amount and any extra columns.",
			map[string]any{
				"date": dateParam("Day to list (YYYY-MM-DD)."),
			},
			"date",
		),
		function(ToolGetTransactionsByEmployee,
			"Transactions recorded by one employee on one day, latest time first.",
			map[string]any{
				"employee": map[string]any{
					"type":        "string",
					"description": "Employee name exactly as stored on transactions.",
				},
				"date": dateParam("Day to list (YYYY-MM-DD). Omit for today."),
			},
			"employee",
		),
		function(ToolGetInventory,
			"Every inventory item with id, name and quantity, sorted by name.",
			nil,
		),
		function(ToolGetEmployees,
			"Every employee with id, firstname and lastname, sorted by last name.",
			nil,
		),
		function(ToolGetActionLogs,
			"Most recent inventory action log entries: timestamp, type, item_name, quantity_changed, previous_quantity, remaining_quantity.",
			map[string]any{
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum entries to return (default: 100).",
				},
			},
		),
	}
}

func function(name, description string, properties map[string]any, required ...string) openrouter.Tool {
	if properties == nil {
		properties = map[string]any{}
	}
	params := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		params["required"] = required
	}

	return openrouter.Tool{
		Type: openrouter.ToolTypeFunction,
		Function: &openrouter.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

func dateParam(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"format":      "date",
		"description": description,
	}
}
