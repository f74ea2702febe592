package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"pos_data_layer/internal/pos"

	"go.uber.org/zap"
)

// emit writes res as JSON or through human, and turns a failure envelope
// into ErrCommandFailed.
func emit[T any](r *Runner, res pos.Result[T], human func(io.Writer, T)) error {
	logResult(r.logger, r.options.Command, res.Success, res.Message)

	if r.options.JSON {
		if err := json.NewEncoder(r.out).Encode(res); err != nil {
			return err
		}
	} else if res.Success {
		human(r.out, res.Data)
	} else {
		fmt.Fprintf(r.out, "Error: %s\n", res.Message)
	}

	if !res.Success {
		return ErrCommandFailed
	}
	return nil
}

func logResult(logger *zap.Logger, command string, success bool, message string) {
	if success {
		logger.Info("command finished", zap.String("command", command))
		return
	}
	logger.Warn("command failed", zap.String("command", command), zap.String("message", message))
}

func writeDone(w io.Writer, _ pos.Empty) {
	fmt.Fprintln(w, "OK")
}

func writeTransactions(w io.Writer, txs []pos.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(w, "- (no transactions)")
		return
	}
	for i, tx := range txs {
		fmt.Fprintf(w, "%d) %s %s employee=%s amount=%s (id=%d)", i+1, tx.Date, tx.Time, tx.Employee, formatAmount(tx), tx.ID)
		writeExtra(w, tx.Extra)
		fmt.Fprintln(w)
	}
}

func writeInventory(w io.Writer, items []pos.InventoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "- (no items)")
		return
	}
	for i, item := range items {
		fmt.Fprintf(w, "%d) %s qty=%d (id=%d)", i+1, item.Name, item.Quantity, item.ID)
		writeExtra(w, item.Extra)
		fmt.Fprintln(w)
	}
}

func writeEmployees(w io.Writer, employees []pos.Employee) {
	if len(employees) == 0 {
		fmt.Fprintln(w, "- (no employees)")
		return
	}
	for i, e := range employees {
		fmt.Fprintf(w, "%d) %s, %s (id=%d)", i+1, e.LastName, e.FirstName, e.ID)
		writeExtra(w, e.Extra)
		fmt.Fprintln(w)
	}
}

func writeActionLogs(w io.Writer, logs []pos.ActionLog) {
	if len(logs) == 0 {
		fmt.Fprintln(w, "- (no entries)")
		return
	}
	for _, l := range logs {
		fmt.Fprintf(w, "%s  %s %s change=%d previous=%s remaining=%s\n",
			l.Timestamp, l.Type, l.ItemName, l.QuantityChanged, formatOptional(l.PreviousQuantity), formatOptional(l.RemainingQuantity))
	}
}

func writeExtra(w io.Writer, extra pos.Fields) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, extra[k]))
	}
	fmt.Fprintf(w, " [%s]", strings.Join(parts, ", "))
}

func formatAmount(tx pos.Transaction) string {
	if !tx.Amount.Valid {
		return "-"
	}
	return tx.Amount.Decimal.StringFixed(2)
}

func formatOptional(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
