package backend

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type item struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
}

func qty(n int) *int { return &n }

func seedInventory(t *testing.T, m *Memory) {
	t.Helper()
	rows := []item{
		{Name: "Cola", Quantity: qty(5)},
		{Name: "Bread", Quantity: qty(30)},
		{Name: "Milk", Quantity: qty(29)},
		{Name: "Eggs", Quantity: qty(100)},
	}
	require.NoError(t, m.Insert(context.Background(), "inventory", rows, nil))
}

func TestMemory_InsertAssignsIDs(t *testing.T) {
	m := NewMemory()
	var out []item
	err := m.Insert(context.Background(), "inventory", []item{{Name: "a"}, {Name: "b"}}, &out)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, int64(1), out[0].ID)
	require.Equal(t, int64(2), out[1].ID)

	err = m.Insert(context.Background(), "inventory", item{ID: 10, Name: "c"}, &out)
	require.NoError(t, err)
	err = m.Insert(context.Background(), "inventory", item{Name: "d"}, &out)
	require.NoError(t, err)
	require.Equal(t, int64(11), out[0].ID)
}

func TestMemory_SelectFiltersAndOrders(t *testing.T) {
	m := NewMemory()
	seedInventory(t, m)

	var out []item
	err := m.Select(context.Background(), From("inventory").Lt("quantity", 30).Asc("quantity"), &out)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 5, *out[0].Quantity)
	require.Equal(t, 29, *out[1].Quantity)

	err = m.Select(context.Background(), From("inventory").Asc("name").Limit(2), &out)
	require.NoError(t, err)
	require.Equal(t, []string{"Bread", "Cola"}, []string{out[0].Name, out[1].Name})
}

func TestMemory_SelectMultipleOrders(t *testing.T) {
	m := NewMemory()
	rows := []map[string]any{
		{"date": "2024-01-01", "time": "09:00"},
		{"date": "2024-01-02", "time": "08:00"},
		{"date": "2024-01-01", "time": "11:00"},
	}
	require.NoError(t, m.Insert(context.Background(), "transactions", rows, nil))

	var out []map[string]any
	err := m.Select(context.Background(), From("transactions").Desc("date").Desc("time"), &out)
	require.NoError(t, err)
	require.Equal(t, "08:00", out[0]["time"])
	require.Equal(t, "11:00", out[1]["time"])
	require.Equal(t, "09:00", out[2]["time"])
}

func TestMemory_SelectProjection(t *testing.T) {
	m := NewMemory()
	seedInventory(t, m)

	var out []map[string]any
	err := m.Select(context.Background(), From("inventory").Select("name").Eq("name", "Cola"), &out)
	require.NoError(t, err)
	require.Equal(t, []map[string]any{{"name": "Cola"}}, out)
}

func TestMemory_SelectEmptyDecodesToEmptySlice(t *testing.T) {
	m := NewMemory()
	var out []item
	require.NoError(t, m.Select(context.Background(), From("inventory"), &out))
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestMemory_Single(t *testing.T) {
	m := NewMemory()
	seedInventory(t, m)

	var one item
	require.NoError(t, m.Select(context.Background(), From("inventory").Eq("name", "Milk").Single(), &one))
	require.Equal(t, "Milk", one.Name)

	err := m.Select(context.Background(), From("inventory").Eq("name", "nope").Single(), &one)
	require.ErrorIs(t, err, ErrNotSingle)

	err = m.Select(context.Background(), From("inventory").Single(), &one)
	require.ErrorIs(t, err, ErrNotSingle)
}

func TestMemory_NullsNeverMatchFilters(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Insert(context.Background(), "inventory", item{Name: "ghost"}, nil))

	var out []item
	require.NoError(t, m.Select(context.Background(), From("inventory").Lt("quantity", 30), &out))
	require.Empty(t, out)
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	m := NewMemory()
	seedInventory(t, m)

	var updated []item
	err := m.Update(context.Background(), "inventory", []Filter{Eq("id", int64(1))}, map[string]any{"quantity": 7}, &updated)
	require.NoError(t, err)
	require.Len(t, updated, 1)
	require.Equal(t, "Cola", updated[0].Name)
	require.Equal(t, 7, *updated[0].Quantity)

	var deleted []item
	require.NoError(t, m.Delete(context.Background(), "inventory", []Filter{Eq("id", 1)}, &deleted))
	require.Len(t, deleted, 1)

	var rest []item
	require.NoError(t, m.Select(context.Background(), From("inventory"), &rest))
	require.Len(t, rest, 3)
}

func TestMemory_DeleteAllTwice(t *testing.T) {
	m := NewMemory()
	seedInventory(t, m)

	for i := 0; i < 2; i++ {
		require.NoError(t, m.DeleteAll(context.Background(), "inventory"))
		var out []item
		require.NoError(t, m.Select(context.Background(), From("inventory"), &out))
		require.Empty(t, out)
	}
}

func TestMemory_RejectsBadIdentifiers(t *testing.T) {
	m := NewMemory()
	err := m.Select(context.Background(), From("inventory; drop table x"), nil)
	require.ErrorIs(t, err, ErrInvalidIdentifier)

	var idErr *IdentifierError
	require.True(t, errors.As(err, &idErr))
	require.Equal(t, "inventory; drop table x", idErr.Name)
}

func TestMemory_SubscribeDeliversChangesInOrder(t *testing.T) {
	m := NewMemory()
	got := make(chan Change, 8)

	sub, err := m.Subscribe(context.Background(), "inventory", func(c Change) { got <- c })
	require.NoError(t, err)
	require.NotEmpty(t, sub.Topic())

	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, "inventory", item{Name: "Cola", Quantity: qty(1)}, nil))
	require.NoError(t, m.Update(ctx, "inventory", []Filter{Eq("id", 1)}, map[string]any{"quantity": 2}, nil))
	require.NoError(t, m.Delete(ctx, "inventory", []Filter{Eq("id", 1)}, nil))
	require.NoError(t, m.Insert(ctx, "transactions", map[string]any{"amount": 1}, nil))

	want := []ChangeType{ChangeInsert, ChangeUpdate, ChangeDelete}
	for _, kind := range want {
		select {
		case c := <-got:
			require.Equal(t, kind, c.Type)
			require.Equal(t, "inventory", c.Table)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}

	var old item
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, m.Insert(ctx, "inventory", item{Name: "late"}, nil))
	select {
	case c := <-got:
		_ = json.Unmarshal(c.Record, &old)
		t.Fatalf("unexpected change after unsubscribe: %+v", old)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemory_UnsubscribeFromHandler(t *testing.T) {
	m := NewMemory()
	t.Cleanup(func() { _ = m.Close() })

	var calls atomic.Int64
	returned := make(chan struct{})
	var sub Subscription
	sub, err := m.Subscribe(context.Background(), "inventory", func(Change) {
		calls.Add(1)
		_ = sub.Unsubscribe()
		close(returned)
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, "inventory", item{Name: "Cola"}, nil))

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe inside the handler did not return")
	}

	require.NoError(t, m.Insert(ctx, "inventory", item{Name: "Milk"}, nil))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int64(1), calls.Load())
	require.NoError(t, sub.Unsubscribe())
}

func TestMemory_CloseFromHandler(t *testing.T) {
	m := NewMemory()
	returned := make(chan struct{})
	_, err := m.Subscribe(context.Background(), "inventory", func(Change) {
		_ = m.Close()
		close(returned)
	})
	require.NoError(t, err)

	require.NoError(t, m.Insert(context.Background(), "inventory", item{Name: "Cola"}, nil))
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Close inside the handler did not return")
	}
}

func TestMemory_Close(t *testing.T) {
	m := NewMemory()
	_, err := m.Subscribe(context.Background(), "inventory", func(Change) {})
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Probe(context.Background()), ErrClosed)
	require.ErrorIs(t, m.Insert(context.Background(), "inventory", item{Name: "x"}, nil), ErrClosed)
	require.NoError(t, m.Close())
}
