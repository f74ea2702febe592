package pos

import (
	"context"

	"pos_data_layer/internal/backend"
)

// LogAction appends one entry stamped with the current local time.
func (s *Service) LogAction(ctx context.Context, actionType, itemName string, quantityChanged int, previous, remaining *int) Result[[]ActionLog] {
	entry := ActionLog{
		Timestamp:         s.timestamp(),
		Type:              actionType,
		ItemName:          itemName,
		QuantityChanged:   quantityChanged,
		PreviousQuantity:  previous,
		RemainingQuantity: remaining,
	}

	return run(ctx, s, "log action", func(ctx context.Context, client backend.Backend) ([]ActionLog, error) {
		var created []ActionLog
		if err := client.Insert(ctx, TableActionLogs, []ActionLog{entry}, &created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

func (s *Service) GetActionLogs(ctx context.Context, limit int) Result[[]ActionLog] {
	if limit <= 0 {
		limit = DefaultActionLogLimit
	}

	return run(ctx, s, "get action logs", func(ctx context.Context, client backend.Backend) ([]ActionLog, error) {
		var logs []ActionLog
		q := backend.From(TableActionLogs).Desc("timestamp").Limit(limit)
		if err := client.Select(ctx, q, &logs); err != nil {
			return nil, err
		}
		return logs, nil
	})
}

func (s *Service) ClearActionLogs(ctx context.Context) Result[Empty] {
	return run(ctx, s, "clear action logs", func(ctx context.Context, client backend.Backend) (Empty, error) {
		return Empty{}, client.DeleteAll(ctx, TableActionLogs)
	})
}
