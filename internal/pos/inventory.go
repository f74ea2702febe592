package pos

import (
	"context"

	"pos_data_layer/internal/backend"
)

func (s *Service) GetInventory(ctx context.Context) Result[[]InventoryItem] {
	return run(ctx, s, "get inventory", func(ctx context.Context, client backend.Backend) ([]InventoryItem, error) {
		var items []InventoryItem
		if err := client.Select(ctx, backend.From(TableInventory).Asc("name"), &items); err != nil {
			return nil, err
		}
		return items, nil
	})
}

func (s *Service) CreateInventoryItem(ctx context.Context, item InventoryItem) Result[[]InventoryItem] {
	return run(ctx, s, "create inventory item", func(ctx context.Context, client backend.Backend) ([]InventoryItem, error) {
		var created []InventoryItem
		if err := client.Insert(ctx, TableInventory, []InventoryItem{item}, &created); err != nil {
			return nil, err
		}
		return created, nil
	})
}

// UpdateInventoryItem applies a partial update to the item with the given id.
func (s *Service) UpdateInventoryItem(ctx context.Context, id int64, updates Fields) Result[[]InventoryItem] {
	return run(ctx, s, "update inventory item", func(ctx context.Context, client backend.Backend) ([]InventoryItem, error) {
		var updated []InventoryItem
		filters := []backend.Filter{backend.Eq("id", id)}
		if err := client.Update(ctx, TableInventory, filters, updates, &updated); err != nil {
			return nil, err
		}
		return updated, nil
	})
}

func (s *Service) DeleteInventoryItem(ctx context.Context, id int64) Result[Empty] {
	return run(ctx, s, "delete inventory item", func(ctx context.Context, client backend.Backend) (Empty, error) {
		return Empty{}, client.Delete(ctx, TableInventory, []backend.Filter{backend.Eq("id", id)}, nil)
	})
}
