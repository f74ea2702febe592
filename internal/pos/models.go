package pos

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	TableUsers        = "users"
	TableTransactions = "transactions"
	TableInventory    = "inventory"
	TableEmployees    = "employees"
	TableActionLogs   = "action_logs"
)

const (
	// LowStockThreshold is the quantity below which an item counts as low stock.
	LowStockThreshold = 30
	// DefaultActionLogLimit caps GetActionLogs when no limit is given.
	DefaultActionLogLimit = 100

	DateLayout      = "2006-01-02"
	TimestampLayout = "01/02/2006, 03:04:05 PM"
)

// Fields is a free-form set of columns, used for partial updates and for
// columns a model does not know about.
type Fields map[string]any

type User struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
}

// UserInfo is what Login hands back; it never carries the password.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u UserInfo) envelopeFields() map[string]any {
	return map[string]any{"user": u}
}

type Transaction struct {
	ID       int64               `json:"id,omitempty"`
	Date     string              `json:"date"`
	Time     string              `json:"time"`
	Employee string              `json:"employee"`
	Amount   decimal.NullDecimal `json:"amount"`
	Extra    Fields              `json:"-"`
}

var transactionKeys = []string{"id", "date", "time", "employee", "amount"}

func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	fields, err := toFields(plain(t))
	if err != nil {
		return nil, err
	}
	if t.Amount.Valid {
		fields["amount"] = json.Number(t.Amount.Decimal.String())
	} else {
		fields["amount"] = nil
	}
	return mergeExtra(fields, t.Extra)
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, transactionKeys)
	if err != nil {
		return err
	}
	*t = Transaction(p)
	t.Extra = extra
	return nil
}

type InventoryItem struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Extra    Fields `json:"-"`
}

var inventoryKeys = []string{"id", "name", "quantity"}

func (i InventoryItem) MarshalJSON() ([]byte, error) {
	type plain InventoryItem
	fields, err := toFields(plain(i))
	if err != nil {
		return nil, err
	}
	return mergeExtra(fields, i.Extra)
}

func (i *InventoryItem) UnmarshalJSON(data []byte) error {
	type plain InventoryItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, inventoryKeys)
	if err != nil {
		return err
	}
	*i = InventoryItem(p)
	i.Extra = extra
	return nil
}

type Employee struct {
	ID        int64  `json:"id,omitempty"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Extra     Fields `json:"-"`
}

var employeeKeys = []string{"id", "firstname", "lastname"}

func (e Employee) MarshalJSON() ([]byte, error) {
	type plain Employee
	fields, err := toFields(plain(e))
	if err != nil {
		return nil, err
	}
	return mergeExtra(fields, e.Extra)
}

func (e *Employee) UnmarshalJSON(data []byte) error {
	type plain Employee
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := splitExtra(data, employeeKeys)
	if err != nil {
		return err
	}
	*e = Employee(p)
	e.Extra = extra
	return nil
}

type ActionLog struct {
	ID                int64  `json:"id,omitempty"`
	Timestamp         string `json:"timestamp"`
	Type              string `json:"type"`
	ItemName          string `json:"item_name"`
	QuantityChanged   int    `json:"quantity_changed"`
	PreviousQuantity  *int   `json:"previous_quantity"`
	RemainingQuantity *int   `json:"remaining_quantity"`
}

type SalesTotal struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// MarshalJSON writes the total as a JSON number.
func (s SalesTotal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total json.Number `json:"total"`
		Count int         `json:"count"`
	}{json.Number(s.Total.String()), s.Count})
}

func (s SalesTotal) envelopeFields() map[string]any {
	return map[string]any{"total": json.Number(s.Total.String()), "count": s.Count}
}

func toFields(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// mergeExtra adds extra columns to fields. Known columns win on conflict.
func mergeExtra(fields, extra Fields) ([]byte, error) {
	for k, v := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(map[string]any(fields))
}

func splitExtra(data []byte, known []string) (Fields, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode extra columns: %w", err)
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return Fields(all), nil
}
