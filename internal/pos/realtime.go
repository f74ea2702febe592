package pos

import (
	"context"

	"pos_data_layer/internal/backend"

	"go.uber.org/zap"
)

// SubscribeToTransactions calls handler for every insert, update and delete
// on the transactions table. It returns nil when the subscription could not
// be registered.
func (s *Service) SubscribeToTransactions(ctx context.Context, handler backend.ChangeHandler) backend.Subscription {
	return s.subscribe(ctx, TableTransactions, handler)
}

func (s *Service) SubscribeToInventory(ctx context.Context, handler backend.ChangeHandler) backend.Subscription {
	return s.subscribe(ctx, TableInventory, handler)
}

func (s *Service) subscribe(ctx context.Context, table string, handler backend.ChangeHandler) backend.Subscription {
	client, err := s.source.Client()
	if err != nil {
		s.logger.Error("subscribe error", zap.String("table", table), zap.Error(err))
		return nil
	}

	sub, err := client.Subscribe(ctx, table, handler)
	if err != nil {
		s.logger.Error("subscribe error", zap.String("table", table), zap.Error(err))
		return nil
	}

	s.logger.Info("subscribed", zap.String("table", table), zap.String("topic", sub.Topic()))
	return sub
}
