// Package postgres is a Backend that talks straight to the Postgres database
// behind the hosted API. Realtime changes arrive over LISTEN/NOTIFY from the
// triggers installed by the embedded migrations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pos_data_layer/internal/backend"
	"pos_data_layer/internal/postgres/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// NotifyChannel is the channel the change triggers publish on.
const NotifyChannel = "pos_changes"

var ErrNotPgxConn = errors.New("connection is not a pgx connection")

type Backend struct {
	db     *sql.DB
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*listener]struct{}
}

// Open creates a lazily connecting pool; no round trip happens here.
func Open(dsn string, logger *zap.Logger) (*Backend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return New(db, logger), nil
}

func New(db *sql.DB, logger *zap.Logger) *Backend {
	return &Backend{
		db:     db,
		logger: logger.Named("postgres"),
		subs:   map[*listener]struct{}{},
	}
}

func (b *Backend) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.UpContext(ctx, b.db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}

func (b *Backend) Select(ctx context.Context, q backend.Query, dest any) error {
	if err := q.Validate(); err != nil {
		return err
	}
	query, args, err := buildSelect(q)
	if err != nil {
		return err
	}
	rows, err := b.queryRows(ctx, query, args...)
	if err != nil {
		return err
	}
	if q.SingleRow {
		if len(rows) != 1 {
			return backend.ErrNotSingle
		}
		return backend.Decode(rows[0], dest)
	}
	return decodeRows(rows, dest)
}

func (b *Backend) Insert(ctx context.Context, table string, rows any, dest any) error {
	if !backend.ValidIdentifier(table) {
		return &backend.IdentifierError{Name: table}
	}
	input, err := toRows(rows)
	if err != nil {
		return err
	}
	query, args, err := buildInsert(table, input)
	if err != nil {
		return err
	}
	out, err := b.queryRows(ctx, query, args...)
	if err != nil {
		return err
	}
	return decodeRows(out, dest)
}

func (b *Backend) Update(ctx context.Context, table string, filters []backend.Filter, patch any, dest any) error {
	if err := backend.ValidateFilters(table, filters); err != nil {
		return err
	}
	fields, err := toRow(patch)
	if err != nil {
		return err
	}
	query, args, err := buildUpdate(table, filters, fields)
	if err != nil {
		return err
	}
	out, err := b.queryRows(ctx, query, args...)
	if err != nil {
		return err
	}
	return decodeRows(out, dest)
}

func (b *Backend) Delete(ctx context.Context, table string, filters []backend.Filter, dest any) error {
	if err := backend.ValidateFilters(table, filters); err != nil {
		return err
	}
	query, args, err := buildDelete(table, filters)
	if err != nil {
		return err
	}
	out, err := b.queryRows(ctx, query, args...)
	if err != nil {
		return err
	}
	return decodeRows(out, dest)
}

// DeleteAll issues an unconditional DELETE.
func (b *Backend) DeleteAll(ctx context.Context, table string) error {
	if !backend.ValidIdentifier(table) {
		return &backend.IdentifierError{Name: table}
	}
	if _, err := b.db.ExecContext(ctx, "DELETE FROM "+ident(table)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (b *Backend) Probe(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	subs := make([]*listener, 0, len(b.subs))
	for l := range b.subs {
		subs = append(subs, l)
	}
	b.mu.Unlock()

	for _, l := range subs {
		_ = l.Unsubscribe()
		<-l.done
	}
	return b.db.Close()
}

func (b *Backend) queryRows(ctx context.Context, query string, args ...any) ([][]byte, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, []byte(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

// Subscribe holds a dedicated connection that LISTENs for change
// notifications and forwards the ones for table.
func (b *Backend) Subscribe(ctx context.Context, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	if !backend.ValidIdentifier(table) {
		return nil, &backend.IdentifierError{Name: table}
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", table)
	}

	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	err = conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return ErrNotPgxConn
		}
		_, err := c.Conn().Exec(ctx, "LISTEN "+ident(NotifyChannel))
		return err
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	l := &listener{
		topic:   fmt.Sprintf("postgres:%s:%s", table, uuid.NewString()),
		table:   table,
		conn:    conn,
		owner:   b,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[l] = struct{}{}
	b.mu.Unlock()

	go l.run(listenCtx)
	b.logger.Info("listening", zap.String("table", table), zap.String("topic", l.topic))
	return l, nil
}

type notification struct {
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            string          `json:"type"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
}

type listener struct {
	topic   string
	table   string
	conn    *sql.Conn
	owner   *Backend
	handler backend.ChangeHandler
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (l *listener) Topic() string { return l.topic }

// Unsubscribe cancels the listen loop and returns without waiting for it, so
// it may be called from inside the handler. The loop releases the connection.
func (l *listener) Unsubscribe() error {
	l.once.Do(func() {
		l.cancel()

		l.owner.mu.Lock()
		delete(l.owner.subs, l)
		l.owner.mu.Unlock()
	})
	return nil
}

func (l *listener) run(ctx context.Context) {
	defer close(l.done)
	defer func() {
		// The interrupted connection is discarded by the pool.
		if err := l.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			l.owner.logger.Warn("listener connection close failed", zap.String("topic", l.topic), zap.Error(err))
		}
	}()

	err := l.conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return ErrNotPgxConn
		}
		for {
			n, err := c.Conn().WaitForNotification(ctx)
			if err != nil {
				return err
			}
			l.dispatch(ctx, n.Payload)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		l.owner.logger.Error("listener stopped", zap.String("topic", l.topic), zap.Error(err))
	}
}

// dispatch hands one notification payload to the handler unless the listener
// was cancelled.
func (l *listener) dispatch(ctx context.Context, payload string) {
	if ctx.Err() != nil {
		return
	}
	change, ok, err := decodeNotification(payload, l.table)
	if err != nil {
		l.owner.logger.Warn("malformed notification", zap.String("topic", l.topic), zap.Error(err))
		return
	}
	if ok {
		l.handler(change)
	}
}

func decodeNotification(payload, table string) (backend.Change, bool, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return backend.Change{}, false, err
	}
	if n.Table != table {
		return backend.Change{}, false, nil
	}
	change := backend.Change{
		Schema:          n.Schema,
		Table:           n.Table,
		Type:            backend.ChangeType(n.Type),
		CommitTimestamp: n.CommitTimestamp,
	}
	if s := strings.TrimSpace(string(n.Record)); s != "" && s != "null" {
		change.Record = n.Record
	}
	if s := strings.TrimSpace(string(n.OldRecord)); s != "" && s != "null" {
		change.OldRecord = n.OldRecord
	}
	return change, true, nil
}

func decodeRows(rows [][]byte, dest any) error {
	if dest == nil {
		return nil
	}
	parts := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		parts[i] = r
	}
	data, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return backend.Decode(data, dest)
}

func toRows(v any) ([]map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		var rows []map[string]any
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("encode rows: %w", err)
		}
		return rows, nil
	}
	r, err := toRow(v)
	if err != nil {
		return nil, err
	}
	return []map[string]any{r}, nil
}

func toRow(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var r map[string]any
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return r, nil
}
