package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/pos"

	"go.uber.org/zap"
)

// watch prints every change on the chosen table until ctx is cancelled.
func (r *Runner) watch(ctx context.Context, args []string) error {
	fs := newFlagSet("watch", r.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: watch transactions|inventory")
	}

	changes := make(chan backend.Change, 16)
	handler := func(c backend.Change) {
		select {
		case changes <- c:
		case <-ctx.Done():
		}
	}

	var sub backend.Subscription
	switch fs.Arg(0) {
	case pos.TableTransactions:
		sub = r.service.SubscribeToTransactions(ctx, handler)
	case pos.TableInventory:
		sub = r.service.SubscribeToInventory(ctx, handler)
	default:
		return fmt.Errorf("cannot watch %q: use transactions or inventory", fs.Arg(0))
	}
	if sub == nil {
		fmt.Fprintln(r.out, "Error: subscription failed")
		return ErrCommandFailed
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn("unsubscribe failed", zap.String("topic", sub.Topic()), zap.Error(err))
		}
	}()

	if !r.options.JSON {
		fmt.Fprintf(r.out, "Watching %s (Ctrl+C to stop)\n", fs.Arg(0))
	}

	enc := json.NewEncoder(r.out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			if r.options.JSON {
				if err := enc.Encode(c); err != nil {
					return err
				}
				continue
			}
			writeChange(r, c)
		}
	}
}

func writeChange(r *Runner, c backend.Change) {
	record := c.Record
	if c.Type == backend.ChangeDelete {
		record = c.OldRecord
	}
	if len(record) == 0 {
		record = json.RawMessage("{}")
	}
	fmt.Fprintf(r.out, "%s %s %s %s\n", c.CommitTimestamp.Format("15:04:05"), c.Type, c.Table, string(record))
}
