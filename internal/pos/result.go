package pos

import (
	"encoding/json"
	"errors"
)

// Result is the envelope every Service operation returns. Success carries
// Data, failure carries Message.
type Result[T any] struct {
	Success bool
	Data    T
	Message string

	err error
}

// Empty is the payload of operations that only report success.
type Empty struct{}

func ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func fail[T any](err error) Result[T] {
	return Result[T]{Message: errorMessage(err), err: err}
}

// Unwrap turns the envelope back into a value and an error. The error is
// the one the operation failed with, so errors.Is sees its sentinels.
func (r Result[T]) Unwrap() (T, error) {
	if !r.Success {
		var zero T
		if r.err != nil {
			return zero, r.err
		}
		return zero, errors.New(r.Message)
	}
	return r.Data, nil
}

// enveloped is implemented by payloads that sit in the envelope itself
// instead of under "data".
type enveloped interface {
	envelopeFields() map[string]any
}

// MarshalJSON drops data from failures so the two shapes stay distinct.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{false, r.Message})
	}
	if e, ok := any(r.Data).(enveloped); ok {
		fields := e.envelopeFields()
		fields["success"] = true
		return json.Marshal(fields)
	}
	return json.Marshal(struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}{true, r.Data})
}
