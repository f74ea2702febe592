package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/config"
	"pos_data_layer/internal/supabase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type staticSource struct {
	client backend.Backend
}

func (s staticSource) Client() (backend.Backend, error) {
	if s.client == nil {
		return nil, supabase.ErrNotInitialized
	}
	return s.client, nil
}

var fixedNow = time.Date(2025, 3, 9, 16, 5, 7, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *backend.Memory) {
	t.Helper()
	mem := backend.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })

	svc := NewService(staticSource{client: mem}, config.Default(), zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
	)
	return svc, mem
}

func seed(t *testing.T, mem *backend.Memory, table string, rows any) {
	t.Helper()
	require.NoError(t, mem.Insert(context.Background(), table, rows, nil))
}

func amount(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func intPtr(n int) *int { return &n }

func TestLogin(t *testing.T) {
	svc, mem := newTestService(t)
	seed(t, mem, TableUsers, []User{{Username: "alice", Password: "p1", Role: "cashier"}})

	res := svc.Login(context.Background(), "alice", "p1")
	require.True(t, res.Success)
	require.Equal(t, "alice", res.Data.Username)
	require.Equal(t, "cashier", res.Data.Role)
	require.NotZero(t, res.Data.ID)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.NotContains(t, string(out), "password")
	require.JSONEq(t, fmt.Sprintf(`{"success":true,"user":{"id":%d,"username":"alice","role":"cashier"}}`, res.Data.ID), string(out))

	res = svc.Login(context.Background(), "alice", "wrong")
	require.False(t, res.Success)
	require.Equal(t, "Invalid password", res.Message)
	_, err = res.Unwrap()
	require.ErrorIs(t, err, ErrInvalidPassword)

	res = svc.Login(context.Background(), "bob", "x")
	require.False(t, res.Success)
	require.Equal(t, "User not found", res.Message)
	_, err = res.Unwrap()
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogin_BcryptHash(t *testing.T) {
	svc, mem := newTestService(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	seed(t, mem, TableUsers, []User{{Username: "carol", Password: string(hash), Role: "admin"}})

	require.True(t, svc.Login(context.Background(), "carol", "s3cret").Success)
	require.Equal(t, "Invalid password", svc.Login(context.Background(), "carol", string(hash)).Message)
}

func TestCreateUser(t *testing.T) {
	cfg := config.Default()
	cfg.HashPasswords = true
	mem := backend.NewMemory()
	svc := NewService(staticSource{client: mem}, cfg, zap.NewNop())

	res := svc.CreateUser(context.Background(), "dave", "pw", "cashier")
	require.True(t, res.Success)
	require.Len(t, res.Data, 1)
	require.Empty(t, res.Data[0].Password)

	var stored []User
	require.NoError(t, mem.Select(context.Background(), backend.From(TableUsers), &stored))
	require.Len(t, stored, 1)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored[0].Password), []byte("pw")))

	require.True(t, svc.Login(context.Background(), "dave", "pw").Success)
}

func TestTransactionsOrdering(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, tm := range []string{"09:00", "11:00", "10:00"} {
		res := svc.CreateTransaction(ctx, Transaction{Date: "2025-03-09", Time: tm, Employee: "Ana", Amount: amount("5")})
		require.True(t, res.Success)
	}
	require.True(t, svc.CreateTransaction(ctx, Transaction{Date: "2025-03-08", Time: "12:00", Employee: "Ben"}).Success)

	res := svc.GetTransactionsByDate(ctx, "2025-03-09")
	require.True(t, res.Success)
	require.Len(t, res.Data, 3)
	require.Equal(t, "11:00", res.Data[0].Time)
	require.Equal(t, "10:00", res.Data[1].Time)
	require.Equal(t, "09:00", res.Data[2].Time)

	all := svc.GetAllTransactions(ctx)
	require.True(t, all.Success)
	require.Len(t, all.Data, 4)
	require.Equal(t, "2025-03-09", all.Data[0].Date)
	require.Equal(t, "11:00", all.Data[0].Time)
	require.Equal(t, "2025-03-08", all.Data[3].Date)

	byEmployee := svc.GetTransactionsByEmployee(ctx, "Ben", "2025-03-08")
	require.True(t, byEmployee.Success)
	require.Len(t, byEmployee.Data, 1)

	today := svc.GetTodayTransactions(ctx, "Ana")
	require.True(t, today.Success)
	require.Len(t, today.Data, 3)
}

func TestTransactionExtraColumns(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tx := Transaction{
		Date:     "2025-03-09",
		Time:     "08:15",
		Employee: "Ana",
		Amount:   amount("12.50"),
		Extra:    Fields{"payment_method": "cash", "items": []any{"soap"}},
	}
	created := svc.CreateTransaction(ctx, tx)
	require.True(t, created.Success)
	require.Len(t, created.Data, 1)
	require.Equal(t, "cash", created.Data[0].Extra["payment_method"])
	require.True(t, created.Data[0].Amount.Decimal.Equal(decimal.RequireFromString("12.5")))

	out, err := json.Marshal(created.Data[0])
	require.NoError(t, err)
	require.Contains(t, string(out), `"amount":12.5`)
	require.Contains(t, string(out), `"payment_method":"cash"`)
}

func TestGetTotalSales(t *testing.T) {
	svc, mem := newTestService(t)
	seed(t, mem, TableTransactions, []Transaction{
		{Date: "2025-03-01", Time: "09:00", Amount: amount("10")},
		{Date: "2025-03-02", Time: "09:00", Amount: amount("20")},
		{Date: "2025-03-03", Time: "09:00"},
		{Date: "2025-04-01", Time: "09:00", Amount: amount("99")},
	})

	res := svc.GetTotalSales(context.Background(), "2025-03-01", "2025-03-31")
	require.True(t, res.Success)
	require.True(t, res.Data.Total.Equal(decimal.NewFromInt(30)))
	require.Equal(t, 3, res.Data.Count)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"total":30,"count":3}`, string(out))
}

func TestGetLowStockItems(t *testing.T) {
	svc, mem := newTestService(t)
	seed(t, mem, TableInventory, []InventoryItem{
		{Name: "a", Quantity: 5},
		{Name: "b", Quantity: 30},
		{Name: "c", Quantity: 29},
		{Name: "d", Quantity: 100},
	})

	res := svc.GetLowStockItems(context.Background())
	require.True(t, res.Success)
	require.Len(t, res.Data, 2)
	require.Equal(t, 5, res.Data[0].Quantity)
	require.Equal(t, 29, res.Data[1].Quantity)
}

func TestInventoryCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.True(t, svc.CreateInventoryItem(ctx, InventoryItem{Name: "soap", Quantity: 10}).Success)
	created := svc.CreateInventoryItem(ctx, InventoryItem{Name: "bread", Quantity: 3, Extra: Fields{"price": 40.0}})
	require.True(t, created.Success)
	id := created.Data[0].ID

	list := svc.GetInventory(ctx)
	require.True(t, list.Success)
	require.Equal(t, "bread", list.Data[0].Name)
	require.Equal(t, 40.0, list.Data[0].Extra["price"])

	updated := svc.UpdateInventoryItem(ctx, id, Fields{"quantity": 7})
	require.True(t, updated.Success)
	require.Len(t, updated.Data, 1)
	require.Equal(t, 7, updated.Data[0].Quantity)
	require.Equal(t, "bread", updated.Data[0].Name)

	require.True(t, svc.DeleteInventoryItem(ctx, id).Success)
	list = svc.GetInventory(ctx)
	require.Len(t, list.Data, 1)
	require.Equal(t, "soap", list.Data[0].Name)
}

func TestEmployeesCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.True(t, svc.CreateEmployee(ctx, Employee{FirstName: "Zed", LastName: "Young"}).Success)
	created := svc.CreateEmployee(ctx, Employee{FirstName: "Ana", LastName: "Bautista"})
	require.True(t, created.Success)
	id := created.Data[0].ID

	list := svc.GetEmployees(ctx)
	require.True(t, list.Success)
	require.Equal(t, "Bautista", list.Data[0].LastName)

	updated := svc.UpdateEmployee(ctx, id, Fields{"lastname": "Zamora"})
	require.True(t, updated.Success)
	list = svc.GetEmployees(ctx)
	require.Equal(t, "Young", list.Data[0].LastName)
	require.Equal(t, "Zamora", list.Data[1].LastName)

	require.True(t, svc.DeleteEmployee(ctx, id).Success)
	require.Len(t, svc.GetEmployees(ctx).Data, 1)
}

func TestActionLogs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res := svc.LogAction(ctx, "restock", "soap", 5, intPtr(10), intPtr(15))
	require.True(t, res.Success)
	require.Len(t, res.Data, 1)
	// 16:05:07 UTC is 00:05:07 the next day in Manila.
	require.Equal(t, "03/10/2025, 12:05:07 AM", res.Data[0].Timestamp)
	require.Equal(t, 15, *res.Data[0].RemainingQuantity)

	res = svc.LogAction(ctx, "sale", "bread", -1, nil, nil)
	require.True(t, res.Success)
	require.Nil(t, res.Data[0].PreviousQuantity)

	logs := svc.GetActionLogs(ctx, 1)
	require.True(t, logs.Success)
	require.Len(t, logs.Data, 1)

	logs = svc.GetActionLogs(ctx, 0)
	require.Len(t, logs.Data, 2)

	for range 2 {
		cleared := svc.ClearActionLogs(ctx)
		require.True(t, cleared.Success)
		logs = svc.GetActionLogs(ctx, 0)
		require.True(t, logs.Success)
		require.Empty(t, logs.Data)
	}
}

type outcome struct {
	success bool
	message string
}

func outcomeOf[T any](r Result[T]) outcome {
	return outcome{success: r.Success, message: r.Message}
}

func TestNotInitializedFailsFast(t *testing.T) {
	provider := supabase.NewProvider(config.Default(), zap.NewNop())
	svc := NewService(provider, config.Default(), zap.NewNop())
	ctx := context.Background()

	checks := map[string]outcome{
		"login":                    outcomeOf(svc.Login(ctx, "a", "b")),
		"create user":              outcomeOf(svc.CreateUser(ctx, "a", "b", "cashier")),
		"create transaction":       outcomeOf(svc.CreateTransaction(ctx, Transaction{Date: "2025-03-09"})),
		"transactions by date":     outcomeOf(svc.GetTransactionsByDate(ctx, "2025-03-09")),
		"transactions by employee": outcomeOf(svc.GetTransactionsByEmployee(ctx, "Ana", "2025-03-09")),
		"today transactions":       outcomeOf(svc.GetTodayTransactions(ctx, "Ana")),
		"all transactions":         outcomeOf(svc.GetAllTransactions(ctx)),
		"inventory":                outcomeOf(svc.GetInventory(ctx)),
		"create inventory item":    outcomeOf(svc.CreateInventoryItem(ctx, InventoryItem{Name: "soap"})),
		"update inventory item":    outcomeOf(svc.UpdateInventoryItem(ctx, 1, Fields{"quantity": 2})),
		"delete inventory item":    outcomeOf(svc.DeleteInventoryItem(ctx, 1)),
		"employees":                outcomeOf(svc.GetEmployees(ctx)),
		"create employee":          outcomeOf(svc.CreateEmployee(ctx, Employee{FirstName: "Ana"})),
		"update employee":          outcomeOf(svc.UpdateEmployee(ctx, 1, Fields{"lastname": "Cruz"})),
		"delete employee":          outcomeOf(svc.DeleteEmployee(ctx, 1)),
		"total sales":              outcomeOf(svc.GetTotalSales(ctx, "2025-03-01", "2025-03-31")),
		"low stock":                outcomeOf(svc.GetLowStockItems(ctx)),
		"log action":               outcomeOf(svc.LogAction(ctx, "restock", "soap", 5, nil, nil)),
		"action logs":              outcomeOf(svc.GetActionLogs(ctx, 10)),
		"clear action logs":        outcomeOf(svc.ClearActionLogs(ctx)),
	}
	require.Len(t, checks, 20)
	for name, c := range checks {
		require.False(t, c.success, name)
		require.Equal(t, "backend client not initialized", c.message, name)
	}

	_, err := svc.GetInventory(ctx).Unwrap()
	require.ErrorIs(t, err, supabase.ErrNotInitialized)

	noop := func(backend.Change) {}
	require.Nil(t, svc.SubscribeToTransactions(ctx, noop))
	require.Nil(t, svc.SubscribeToInventory(ctx, noop))
}

func TestSubscribeToInventory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	changes := make(chan backend.Change, 4)
	sub := svc.SubscribeToInventory(ctx, func(c backend.Change) { changes <- c })
	require.NotNil(t, sub)

	require.True(t, svc.CreateInventoryItem(ctx, InventoryItem{Name: "soap", Quantity: 1}).Success)

	select {
	case c := <-changes:
		require.Equal(t, backend.ChangeInsert, c.Type)
		require.Equal(t, TableInventory, c.Table)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
	require.NoError(t, sub.Unsubscribe())
}

func TestSubscribeToInventory_UnsubscribeInsideHandler(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	returned := make(chan struct{})
	var sub backend.Subscription
	sub = svc.SubscribeToInventory(ctx, func(backend.Change) {
		_ = sub.Unsubscribe()
		close(returned)
	})
	require.NotNil(t, sub)

	require.True(t, svc.CreateInventoryItem(ctx, InventoryItem{Name: "soap", Quantity: 1}).Success)
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe inside the handler did not return")
	}
}

func TestResultJSON(t *testing.T) {
	boom := errors.New("boom")
	out, err := json.Marshal(fail[[]Employee](boom))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":false,"message":"boom"}`, string(out))

	_, err = fail[Empty](boom).Unwrap()
	require.ErrorIs(t, err, boom)

	out, err = json.Marshal(ok([]Employee{}))
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"data":[]}`, string(out))

	_, err = Result[Empty]{Message: "decoded"}.Unwrap()
	require.EqualError(t, err, "decoded")
}
