package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memorySubscriptionBuffer = 64

type row = map[string]any

// Memory is an in-process Backend. Rows are kept as decoded JSON objects and
// every table gets a bigint-like "id" assigned on insert when missing.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]row
	nextID map[string]int64
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewMemory() *Memory {
	return &Memory{
		tables: map[string][]row{},
		nextID: map[string]int64{},
		subs:   map[string]map[*memorySubscription]struct{}{},
	}
}

func (m *Memory) Select(_ context.Context, q Query, dest any) error {
	if err := q.Validate(); err != nil {
		return err
	}
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return err
	}

	m.mu.Lock()
	var out []row
	for _, r := range m.tables[q.Table] {
		if matchesAll(r, filters) {
			out = append(out, project(r, q.Columns))
		}
	}
	m.mu.Unlock()

	sortRows(out, q.Orders)
	if q.RowLimit > 0 && len(out) > q.RowLimit {
		out = out[:q.RowLimit]
	}

	if q.SingleRow {
		if len(out) != 1 {
			return ErrNotSingle
		}
		return encodeInto(out[0], dest)
	}
	return encodeInto(out, dest)
}

func (m *Memory) Insert(_ context.Context, table string, rows any, dest any) error {
	if !ValidIdentifier(table) {
		return &IdentifierError{Name: table}
	}
	input, err := toRows(rows)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	inserted := make([]row, 0, len(input))
	changes := make([]Change, 0, len(input))
	for _, r := range input {
		if id, ok := r["id"]; !ok || id == nil {
			m.nextID[table]++
			r["id"] = float64(m.nextID[table])
		} else if n, ok := id.(float64); ok && int64(n) > m.nextID[table] {
			m.nextID[table] = int64(n)
		}
		m.tables[table] = append(m.tables[table], r)
		inserted = append(inserted, copyRow(r))
		changes = append(changes, newChange(table, ChangeInsert, r, nil))
	}
	subs := m.snapshotSubs(table)
	m.mu.Unlock()

	publish(subs, changes)
	return encodeInto(inserted, dest)
}

func (m *Memory) Update(_ context.Context, table string, filters []Filter, patch any, dest any) error {
	if err := ValidateFilters(table, filters); err != nil {
		return err
	}
	fields, err := toRow(patch)
	if err != nil {
		return err
	}
	normalized, err := normalizeFilters(filters)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var updated []row
	var changes []Change
	for _, r := range m.tables[table] {
		if !matchesAll(r, normalized) {
			continue
		}
		old := copyRow(r)
		for k, v := range fields {
			r[k] = v
		}
		updated = append(updated, copyRow(r))
		changes = append(changes, newChange(table, ChangeUpdate, r, old))
	}
	subs := m.snapshotSubs(table)
	m.mu.Unlock()

	publish(subs, changes)
	return encodeInto(updated, dest)
}

func (m *Memory) Delete(_ context.Context, table string, filters []Filter, dest any) error {
	if err := ValidateFilters(table, filters); err != nil {
		return err
	}
	normalized, err := normalizeFilters(filters)
	if err != nil {
		return err
	}
	return m.remove(table, func(r row) bool { return matchesAll(r, normalized) }, dest)
}

func (m *Memory) DeleteAll(_ context.Context, table string) error {
	if !ValidIdentifier(table) {
		return &IdentifierError{Name: table}
	}
	return m.remove(table, func(row) bool { return true }, nil)
}

func (m *Memory) remove(table string, match func(row) bool, dest any) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	kept := m.tables[table][:0]
	var deleted []row
	var changes []Change
	for _, r := range m.tables[table] {
		if match(r) {
			deleted = append(deleted, r)
			changes = append(changes, newChange(table, ChangeDelete, nil, r))
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	subs := m.snapshotSubs(table)
	m.mu.Unlock()

	publish(subs, changes)
	return encodeInto(deleted, dest)
}

func (m *Memory) Subscribe(_ context.Context, table string, handler ChangeHandler) (Subscription, error) {
	if !ValidIdentifier(table) {
		return nil, &IdentifierError{Name: table}
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", table)
	}

	sub := &memorySubscription{
		topic:   fmt.Sprintf("memory:%s:%s", table, uuid.NewString()),
		table:   table,
		owner:   m,
		handler: handler,
		queue:   make(chan Change, memorySubscriptionBuffer),
		quit:    make(chan struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.subs[table] == nil {
		m.subs[table] = map[*memorySubscription]struct{}{}
	}
	m.subs[table][sub] = struct{}{}
	go sub.run()

	return sub, nil
}

func (m *Memory) Probe(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var subs []*memorySubscription
	for _, set := range m.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	m.subs = map[string]map[*memorySubscription]struct{}{}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (m *Memory) snapshotSubs(table string) []*memorySubscription {
	set := m.subs[table]
	if len(set) == 0 {
		return nil
	}
	out := make([]*memorySubscription, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

type memorySubscription struct {
	topic   string
	table   string
	owner   *Memory
	handler ChangeHandler

	once  sync.Once
	queue chan Change
	quit  chan struct{}
}

func (s *memorySubscription) Topic() string { return s.topic }

// Unsubscribe stops delivery without waiting for a handler that is already
// running, so it may be called from inside the handler itself.
func (s *memorySubscription) Unsubscribe() error {
	s.owner.mu.Lock()
	delete(s.owner.subs[s.table], s)
	s.owner.mu.Unlock()

	s.stop()
	return nil
}

func (s *memorySubscription) stop() {
	s.once.Do(func() { close(s.quit) })
}

func (s *memorySubscription) stopped() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *memorySubscription) deliver(c Change) {
	select {
	case s.queue <- c:
	case <-s.quit:
	}
}

func (s *memorySubscription) run() {
	for {
		select {
		case <-s.quit:
			return
		case c := <-s.queue:
			if s.stopped() {
				return
			}
			s.handler(c)
		}
	}
}

func publish(subs []*memorySubscription, changes []Change) {
	for _, c := range changes {
		for _, sub := range subs {
			sub.deliver(c)
		}
	}
}

func newChange(table string, kind ChangeType, record, old row) Change {
	c := Change{
		Schema:          "public",
		Table:           table,
		Type:            kind,
		CommitTimestamp: time.Now().UTC(),
	}
	if record != nil {
		c.Record, _ = json.Marshal(record)
	}
	if old != nil {
		c.OldRecord, _ = json.Marshal(old)
	}
	return c
}

func toRows(v any) ([]row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var rows []row
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("encode rows: %w", err)
		}
		return rows, nil
	}
	r, err := toRow(v)
	if err != nil {
		return nil, err
	}
	return []row{r}, nil
}

func toRow(v any) (row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var r row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	if r == nil {
		r = row{}
	}
	return r, nil
}

func encodeInto(v any, dest any) error {
	if dest == nil {
		return nil
	}
	if rows, ok := v.([]row); ok && rows == nil {
		v = []row{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	return Decode(data, dest)
}

func copyRow(r row) row {
	out := make(row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func project(r row, columns []string) row {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		return copyRow(r)
	}
	out := make(row, len(columns))
	for _, c := range columns {
		out[c] = r[c]
	}
	return out
}

// normalizeFilters runs filter values through JSON so they compare like the
// stored rows do (numbers as float64).
func normalizeFilters(filters []Filter) ([]Filter, error) {
	out := make([]Filter, len(filters))
	for i, f := range filters {
		data, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Column, err)
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Column, err)
		}
		out[i] = Filter{Column: f.Column, Op: f.Op, Value: v}
	}
	return out, nil
}

func matchesAll(r row, filters []Filter) bool {
	for _, f := range filters {
		if !matches(r[f.Column], f) {
			return false
		}
	}
	return true
}

func matches(v any, f Filter) bool {
	if v == nil || f.Value == nil {
		return false
	}
	c, ok := compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	default:
		return false
	}
}

func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	default:
		return 0, false
	}
}

// sortRows orders like Postgres: NULLs sort as the largest value.
func sortRows(rows []row, orders []Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			c := compareForSort(rows[i][o.Column], rows[j][o.Column])
			if c == 0 {
				continue
			}
			if o.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareForSort(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
