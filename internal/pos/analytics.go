package pos

import (
	"context"

	"pos_data_layer/internal/backend"

	"github.com/shopspring/decimal"
)

// GetTotalSales sums the amounts of transactions dated within [start, end].
// Rows without an amount count toward Count but add nothing to Total.
func (s *Service) GetTotalSales(ctx context.Context, start, end string) Result[SalesTotal] {
	return run(ctx, s, "get total sales", func(ctx context.Context, client backend.Backend) (SalesTotal, error) {
		var rows []struct {
			Amount decimal.NullDecimal `json:"amount"`
		}
		q := backend.From(TableTransactions).Select("amount").Gte("date", start).Lte("date", end)
		if err := client.Select(ctx, q, &rows); err != nil {
			return SalesTotal{}, err
		}

		total := decimal.Zero
		for _, r := range rows {
			if r.Amount.Valid {
				total = total.Add(r.Amount.Decimal)
			}
		}
		return SalesTotal{Total: total, Count: len(rows)}, nil
	})
}

func (s *Service) GetLowStockItems(ctx context.Context) Result[[]InventoryItem] {
	return run(ctx, s, "get low stock items", func(ctx context.Context, client backend.Backend) ([]InventoryItem, error) {
		var items []InventoryItem
		q := backend.From(TableInventory).Lt("quantity", LowStockThreshold).Asc("quantity")
		if err := client.Select(ctx, q, &items); err != nil {
			return nil, err
		}
		return items, nil
	})
}
