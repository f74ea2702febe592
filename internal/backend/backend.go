// Package backend defines the query surface shared by every store the POS
// data layer can talk to: the hosted REST endpoint, a direct Postgres
// connection and an in-process memory store.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotSingle         = errors.New("JSON object requested, multiple (or no) rows returned")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrClosed            = errors.New("backend closed")
)

type IdentifierError struct {
	Name string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q", e.Name)
}

func (e *IdentifierError) Unwrap() error {
	return ErrInvalidIdentifier
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is the raw payload of one row change delivered to subscribers.
type Change struct {
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            ChangeType      `json:"eventType"`
	Record          json.RawMessage `json:"new,omitempty"`
	OldRecord       json.RawMessage `json:"old,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

type ChangeHandler func(Change)

type Subscription interface {
	Topic() string
	Unsubscribe() error
}

// Backend executes one remote operation per call. Row payloads are passed as
// anything encoding/json can marshal, results are decoded into dest when it
// is not nil.
type Backend interface {
	Select(ctx context.Context, q Query, dest any) error
	Insert(ctx context.Context, table string, rows any, dest any) error
	Update(ctx context.Context, table string, filters []Filter, patch any, dest any) error
	Delete(ctx context.Context, table string, filters []Filter, dest any) error
	DeleteAll(ctx context.Context, table string) error
	Subscribe(ctx context.Context, table string, handler ChangeHandler) (Subscription, error)
	Probe(ctx context.Context) error
	Close() error
}

// Decode converts a JSON document into dest. A nil dest discards it.
func Decode(data []byte, dest any) error {
	if dest == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}
