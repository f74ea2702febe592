package pos

import (
	"context"

	"pos_data_layer/internal/backend"
)

func (s *Service) CreateTransaction(ctx context.Context, tx Transaction) Result[[]Transaction] {
	return run(ctx, s, "create transaction", func(ctx context.Context, client backend.Backend) ([]Transaction, error) {
		var created []Transaction
		if err := client.Insert(ctx, TableTransactions, []Transaction{tx}, &created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

// GetTransactionsByDate lists the transactions of one day, latest first.
func (s *Service) GetTransactionsByDate(ctx context.Context, date string) Result[[]Transaction] {
	q := backend.From(TableTransactions).Eq("date", date).Desc("time")
	return s.listTransactions(ctx, "get transactions", q)
}

func (s *Service) GetTransactionsByEmployee(ctx context.Context, employee, date string) Result[[]Transaction] {
	q := backend.From(TableTransactions).Eq("employee", employee).Eq("date", date).Desc("time")
	return s.listTransactions(ctx, "get employee transactions", q)
}

// GetTodayTransactions is GetTransactionsByEmployee for the current UTC date.
func (s *Service) GetTodayTransactions(ctx context.Context, employee string) Result[[]Transaction] {
	return s.GetTransactionsByEmployee(ctx, employee, s.today())
}

func (s *Service) GetAllTransactions(ctx context.Context) Result[[]Transaction] {
	q := backend.From(TableTransactions).Desc("date").Desc("time")
	return s.listTransactions(ctx, "get all transactions", q)
}

func (s *Service) listTransactions(ctx context.Context, op string, q backend.Query) Result[[]Transaction] {
	return run(ctx, s, op, func(ctx context.Context, client backend.Backend) ([]Transaction, error) {
		var txs []Transaction
		if err := client.Select(ctx, q, &txs); err != nil {
			return nil, err
		}
		return txs, nil
	})
}
