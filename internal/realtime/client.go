// Package realtime speaks the Phoenix channel protocol used by Supabase
// Realtime: one websocket per client, one channel per table subscription.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pos_data_layer/internal/backend"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	socketPath       = "/realtime/v1/websocket"
	protocolVersion  = "1.0.0"
	defaultHeartbeat = 30 * time.Second
	defaultJoinWait  = 10 * time.Second
	writeWait        = 5 * time.Second

	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventSystem    = "system"

	phoenixTopic = "phoenix"
)

var (
	ErrClosed       = errors.New("realtime client closed")
	ErrJoinRejected = errors.New("realtime join rejected")
	ErrJoinTimeout  = errors.New("realtime join timed out")
)

type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changesPayload struct {
	Data struct {
		Schema          string          `json:"schema"`
		Table           string          `json:"table"`
		Type            string          `json:"type"`
		CommitTimestamp string          `json:"commit_timestamp"`
		Record          json.RawMessage `json:"record"`
		OldRecord       json.RawMessage `json:"old_record"`
	} `json:"data"`
}

type Client struct {
	endpoint  string
	apiKey    string
	dialer    *websocket.Dialer
	heartbeat time.Duration
	joinWait  time.Duration
	logger    *zap.Logger

	ref atomic.Uint64

	mu       sync.Mutex
	conn     *websocket.Conn
	done     chan struct{}
	closed   bool
	channels map[string]*Channel
	pending  map[string]chan reply

	writeMu sync.Mutex
}

type Option func(*Client)

func WithHeartbeat(d time.Duration) Option {
	return func(c *Client) { c.heartbeat = d }
}

func WithJoinTimeout(d time.Duration) Option {
	return func(c *Client) { c.joinWait = d }
}

// NewClient derives the websocket endpoint from the project URL
// (https→wss, http→ws). No connection is made until the first Subscribe.
func NewClient(projectURL, apiKey string, logger *zap.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(projectURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("realtime url: unsupported scheme %q", u.Scheme)
	}
	u.Path += socketPath
	q := u.Query()
	q.Set("apikey", apiKey)
	q.Set("vsn", protocolVersion)
	u.RawQuery = q.Encode()

	c := &Client{
		endpoint:  u.String(),
		apiKey:    apiKey,
		dialer:    websocket.DefaultDialer,
		heartbeat: defaultHeartbeat,
		joinWait:  defaultJoinWait,
		logger:    logger.Named("realtime"),
		channels:  map[string]*Channel{},
		pending:   map[string]chan reply{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Subscribe joins a channel listening to every change type on schema.table.
func (c *Client) Subscribe(ctx context.Context, schema, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", table)
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	ch := &Channel{
		topic:   fmt.Sprintf("realtime:pos-%s-%s", table, uuid.NewString()),
		table:   table,
		client:  c,
		handler: handler,
	}

	c.mu.Lock()
	c.channels[ch.topic] = ch
	c.mu.Unlock()

	payload := map[string]any{
		"config": map[string]any{
			"broadcast": map[string]any{"self": false},
			"presence":  map[string]any{"key": ""},
			"postgres_changes": []map[string]any{
				{"event": "*", "schema": schema, "table": table},
			},
		},
		"access_token": c.apiKey,
	}

	rep, err := c.call(ctx, ch.topic, eventJoin, payload)
	if err != nil {
		c.dropChannel(ch.topic)
		return nil, err
	}
	if rep.Status != "ok" {
		c.dropChannel(ch.topic)
		return nil, fmt.Errorf("%w: %s: %s", ErrJoinRejected, rep.Status, strings.TrimSpace(string(rep.Response)))
	}

	c.logger.Info("channel joined", zap.String("topic", ch.topic), zap.String("table", table))
	return ch, nil
}

// Close leaves nothing behind: the socket is closed and channels are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	done := c.done
	c.conn = nil
	c.channels = map[string]*Channel{}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	err := conn.Close()
	<-done
	return err
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("realtime dial: %w", err)
	}
	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)
	go c.heartbeatLoop(conn, c.done)

	c.logger.Info("socket connected")
	return nil
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

func (c *Client) send(topic, event string, payload any, ref string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime encode: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := message{Topic: topic, Event: event, Payload: raw, Ref: &ref}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("realtime write: %w", err)
	}
	return nil
}

// call sends a message and waits for the matching phx_reply.
func (c *Client) call(ctx context.Context, topic, event string, payload any) (reply, error) {
	ref := c.nextRef()
	wait := make(chan reply, 1)

	c.mu.Lock()
	c.pending[ref] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, ref)
		c.mu.Unlock()
	}()

	if err := c.send(topic, event, payload, ref); err != nil {
		return reply{}, err
	}

	timer := time.NewTimer(c.joinWait)
	defer timer.Stop()

	select {
	case rep := <-wait:
		return rep, nil
	case <-timer.C:
		return reply{}, ErrJoinTimeout
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closing := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			if !closing {
				c.logger.Error("socket read failed", zap.Error(err))
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg message) {
	switch msg.Event {
	case eventReply:
		if msg.Ref == nil {
			return
		}
		var rep reply
		if err := json.Unmarshal(msg.Payload, &rep); err != nil {
			c.logger.Warn("malformed reply", zap.String("topic", msg.Topic), zap.Error(err))
			return
		}
		c.mu.Lock()
		wait, ok := c.pending[*msg.Ref]
		c.mu.Unlock()
		if ok {
			wait <- rep
		}
	case eventChanges:
		c.mu.Lock()
		ch, ok := c.channels[msg.Topic]
		c.mu.Unlock()
		if !ok {
			return
		}
		change, err := decodeChange(msg.Payload)
		if err != nil {
			c.logger.Warn("malformed change", zap.String("topic", msg.Topic), zap.Error(err))
			return
		}
		ch.handler(change)
	case eventError, eventClose:
		c.logger.Warn("channel event", zap.String("topic", msg.Topic), zap.String("event", msg.Event))
	case eventSystem:
		c.logger.Debug("system message", zap.String("topic", msg.Topic), zap.ByteString("payload", msg.Payload))
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			current := c.conn == conn
			c.mu.Unlock()
			if !current {
				return
			}
			if err := c.send(phoenixTopic, eventHeartbeat, struct{}{}, c.nextRef()); err != nil {
				c.logger.Warn("heartbeat failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) dropChannel(topic string) {
	c.mu.Lock()
	delete(c.channels, topic)
	c.mu.Unlock()
}

func decodeChange(raw json.RawMessage) (backend.Change, error) {
	var p changesPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return backend.Change{}, err
	}
	change := backend.Change{
		Schema: p.Data.Schema,
		Table:  p.Data.Table,
		Type:   backend.ChangeType(strings.ToUpper(p.Data.Type)),
	}
	if !isNull(p.Data.Record) {
		change.Record = p.Data.Record
	}
	if !isNull(p.Data.OldRecord) {
		change.OldRecord = p.Data.OldRecord
	}
	if p.Data.CommitTimestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, p.Data.CommitTimestamp); err == nil {
			change.CommitTimestamp = ts
		}
	}
	return change, nil
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == "{}"
}

// Channel is one joined table subscription.
type Channel struct {
	topic   string
	table   string
	client  *Client
	handler backend.ChangeHandler
	once    sync.Once
}

func (ch *Channel) Topic() string { return ch.topic }

func (ch *Channel) Unsubscribe() error {
	var err error
	ch.once.Do(func() {
		ch.client.dropChannel(ch.topic)
		err = ch.client.send(ch.topic, eventLeave, struct{}{}, ch.client.nextRef())
		if errors.Is(err, ErrClosed) {
			err = nil
		}
	})
	return err
}
