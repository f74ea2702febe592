package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"pos_data_layer/internal/pos"

	"github.com/shopspring/decimal"
)

type command struct {
	summary string
	run     func(r *Runner, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"login":           {"Check a username and password", (*Runner).login},
	"create-user":     {"Create a user", (*Runner).createUser},
	"sale":            {"Record a transaction", (*Runner).sale},
	"transactions":    {"List transactions (-date, -employee, -today)", (*Runner).transactions},
	"inventory":       {"List inventory items", (*Runner).inventory},
	"add-item":        {"Create an inventory item", (*Runner).addItem},
	"update-item":     {"Update an inventory item", (*Runner).updateItem},
	"delete-item":     {"Delete an inventory item", (*Runner).deleteItem},
	"employees":       {"List employees", (*Runner).employees},
	"add-employee":    {"Create an employee", (*Runner).addEmployee},
	"update-employee": {"Update an employee", (*Runner).updateEmployee},
	"delete-employee": {"Delete an employee", (*Runner).deleteEmployee},
	"sales-total":     {"Sum sales between two dates", (*Runner).salesTotal},
	"low-stock":       {"List items below the low-stock threshold", (*Runner).lowStock},
	"log-action":      {"Append an action log entry", (*Runner).logAction},
	"logs":            {"List action log entries", (*Runner).logs},
	"clear-logs":      {"Delete every action log entry", (*Runner).clearLogs},
	"watch":           {"Stream changes: watch transactions|inventory", (*Runner).watch},
	"ask":             {"Ask the assistant; starts a REPL without a question", (*Runner).ask},
}

func newFlagSet(name string, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	return fs
}

func (r *Runner) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login", r.out)
	username := fs.String("username", "", "Username")
	password := fs.String("password", "", "Password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(map[string]string{"username": *username}); err != nil {
		return err
	}

	res := r.service.Login(ctx, *username, *password)
	return emit(r, res, func(w io.Writer, u pos.UserInfo) {
		fmt.Fprintf(w, "Logged in as %s (role=%s, id=%d)\n", u.Username, u.Role, u.ID)
	})
}

func (r *Runner) createUser(ctx context.Context, args []string) error {
	fs := newFlagSet("create-user", r.out)
	username := fs.String("username", "", "Username")
	password := fs.String("password", "", "Password")
	role := fs.String("role", "cashier", "Role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(map[string]string{"username": *username, "password": *password}); err != nil {
		return err
	}

	res := r.service.CreateUser(ctx, *username, *password, *role)
	return emit(r, res, func(w io.Writer, users []pos.User) {
		for _, u := range users {
			fmt.Fprintf(w, "Created user %s (role=%s, id=%d)\n", u.Username, u.Role, u.ID)
		}
	})
}

func (r *Runner) sale(ctx context.Context, args []string) error {
	now := time.Now().UTC()
	fields := fieldsFlag{}

	fs := newFlagSet("sale", r.out)
	date := fs.String("date", now.Format(pos.DateLayout), "Date (YYYY-MM-DD)")
	clock := fs.String("time", now.Format("15:04:05"), "Time (HH:MM:SS)")
	employee := fs.String("employee", "", "Employee name")
	amount := fs.String("amount", "", "Amount")
	fs.Var(&fields, "field", "Extra column as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(map[string]string{"employee": *employee}); err != nil {
		return err
	}

	tx := pos.Transaction{Date: *date, Time: *clock, Employee: *employee, Extra: fields.Fields()}
	if strings.TrimSpace(*amount) != "" {
		value, err := decimal.NewFromString(strings.TrimSpace(*amount))
		if err != nil {
			return fmt.Errorf("invalid -amount: %w", err)
		}
		tx.Amount = decimal.NewNullDecimal(value)
	}

	res := r.service.CreateTransaction(ctx, tx)
	return emit(r, res, writeTransactions)
}

func (r *Runner) transactions(ctx context.Context, args []string) error {
	fs := newFlagSet("transactions", r.out)
	date := fs.String("date", "", "Only this date (YYYY-MM-DD)")
	employee := fs.String("employee", "", "Only this employee")
	today := fs.Bool("today", false, "Today's transactions of -employee")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var res pos.Result[[]pos.Transaction]
	switch {
	case *employee != "" && (*today || *date == ""):
		res = r.service.GetTodayTransactions(ctx, *employee)
	case *employee != "":
		res = r.service.GetTransactionsByEmployee(ctx, *employee, *date)
	case *today:
		return errors.New("-today needs -employee")
	case *date != "":
		res = r.service.GetTransactionsByDate(ctx, *date)
	default:
		res = r.service.GetAllTransactions(ctx)
	}
	return emit(r, res, writeTransactions)
}

func (r *Runner) inventory(ctx context.Context, args []string) error {
	if err := newFlagSet("inventory", r.out).Parse(args); err != nil {
		return err
	}
	return emit(r, r.service.GetInventory(ctx), writeInventory)
}

func (r *Runner) addItem(ctx context.Context, args []string) error {
	fields := fieldsFlag{}
	fs := newFlagSet("add-item", r.out)
	name := fs.String("name", "", "Item name")
	quantity := fs.Int("quantity", 0, "Quantity")
	fs.Var(&fields, "field", "Extra column as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(map[string]string{"name": *name}); err != nil {
		return err
	}

	item := pos.InventoryItem{Name: *name, Quantity: *quantity, Extra: fields.Fields()}
	return emit(r, r.service.CreateInventoryItem(ctx, item), writeInventory)
}

func (r *Runner) updateItem(ctx context.Context, args []string) error {
	fields := fieldsFlag{}
	fs := newFlagSet("update-item", r.out)
	id := fs.Int64("id", 0, "Item id")
	name := fs.String("name", "", "New name")
	quantity := fs.Int("quantity", 0, "New quantity")
	fs.Var(&fields, "field", "Column to change as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	updates := fields.Fields()
	if updates == nil {
		updates = pos.Fields{}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			updates["name"] = *name
		case "quantity":
			updates["quantity"] = *quantity
		}
	})
	if *id == 0 || len(updates) == 0 {
		return errors.New("update-item needs -id and at least one field")
	}

	return emit(r, r.service.UpdateInventoryItem(ctx, *id, updates), writeInventory)
}

func (r *Runner) deleteItem(ctx context.Context, args []string) error {
	id, err := parseID("delete-item", r.out, args)
	if err != nil {
		return err
	}
	return emit(r, r.service.DeleteInventoryItem(ctx, id), writeDone)
}

func (r *Runner) employees(ctx context.Context, args []string) error {
	if err := newFlagSet("employees", r.out).Parse(args); err != nil {
		return err
	}
	return emit(r, r.service.GetEmployees(ctx), writeEmployees)
}

func (r *Runner) addEmployee(ctx context.Context, args []string) error {
	fields := fieldsFlag{}
	fs := newFlagSet("add-employee", r.out)
	first := fs.String("firstname", "", "First name")
	last := fs.String("lastname", "", "Last name")
	fs.Var(&fields, "field", "Extra column as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(map[string]string{"firstname": *first, "lastname": *last}); err != nil {
		return err
	}

	employee := pos.Employee{FirstName: *first, LastName: *last, Extra: fields.Fields()}
	return emit(r, r.service.CreateEmployee(ctx, employee), writeEmployees)
}

func (r *Runner) updateEmployee(ctx context.Context, args []string) error {
	fields := fieldsFlag{}
	fs := newFlagSet("update-employee", r.out)
	id := fs.Int64("id", 0, "Employee id")
	first := fs.String("firstname", "", "New first name")
	last := fs.String("lastname", "", "New last name")
	fs.Var(&fields, "field", "Column to change as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	updates := fields.Fields()
	if updates == nil {
		updates = pos.Fields{}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "firstname":
			updates["firstname"] = *first
		case "lastname":
			updates["lastname"] = *last
		}
	})
	if *id == 0 || len(updates) == 0 {
		return errors.New("update-employee needs -id and at least one field")
	}

	return emit(r, r.service.UpdateEmployee(ctx, *id, updates), writeEmployees)
}

func (r *Runner) deleteEmployee(ctx context.Context, args []string) error {
	id, err := parseID("delete-employee", r.out, args)
	if err != nil {
		return err
	}
	return emit(r, r.service.DeleteEmployee(ctx, id), writeDone)
}

func (r *Runner) salesTotal(ctx context.Context, args []string) error {
	today := time.Now().UTC().Format(pos.DateLayout)
	fs := newFlagSet("sales-total", r.out)
	from := fs.String("from", today, "Start date (YYYY-MM-DD), inclusive")
	to := fs.String("to", today, "End date (YYYY-MM-DD), inclusive")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res := r.service.GetTotalSales(ctx, *from, *to)
	return emit(r, res, func(w io.Writer, total pos.SalesTotal) {
		fmt.Fprintf(w, "Total: %s (%d transactions, %s to %s)\n", total.Total.StringFixed(2), total.Count, *from, *to)
	})
}

func (r *Runner) lowStock(ctx context.Context, args []string) error {
	if err := newFlagSet("low-stock", r.out).Parse(args); err != nil {
		return err
	}
	return emit(r, r.service.GetLowStockItems(ctx), writeInventory)
}

func (r *Runner) logAction(ctx context.Context, args []string) error {
	fs := newFlagSet("log-action", r.out)
	actionType := fs.String("type", "", "Action type")
	item := fs.String("item", "", "Item name")
	changed := fs.Int("change", 0, "Quantity changed")
	previous := fs.Int("previous", 0, "Quantity before the action")
	remaining := fs.Int("remaining", 0, "Quantity after the action")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(map[string]string{"type": *actionType, "item": *item}); err != nil {
		return err
	}

	var prevPtr, remainingPtr *int
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "previous":
			prevPtr = previous
		case "remaining":
			remainingPtr = remaining
		}
	})

	res := r.service.LogAction(ctx, *actionType, *item, *changed, prevPtr, remainingPtr)
	return emit(r, res, writeActionLogs)
}

func (r *Runner) logs(ctx context.Context, args []string) error {
	fs := newFlagSet("logs", r.out)
	limit := fs.Int("limit", pos.DefaultActionLogLimit, "Maximum entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return emit(r, r.service.GetActionLogs(ctx, *limit), writeActionLogs)
}

func (r *Runner) clearLogs(ctx context.Context, args []string) error {
	if err := newFlagSet("clear-logs", r.out).Parse(args); err != nil {
		return err
	}
	return emit(r, r.service.ClearActionLogs(ctx), writeDone)
}

func parseID(name string, output io.Writer, args []string) (int64, error) {
	fs := newFlagSet(name, output)
	id := fs.Int64("id", 0, "Row id")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	if *id == 0 {
		return 0, fmt.Errorf("%s needs -id", name)
	}
	return *id, nil
}

func requireFlags(values map[string]string) error {
	var missing []string
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, "-"+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
}
