package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"pos_data_layer/internal/pos"
	"pos_data_layer/internal/postgrest"
	"pos_data_layer/internal/supabase"

	"go.uber.org/zap"
)

func trackCall[T any](logger *zap.Logger, name string, args map[string]any, fn func() (T, error)) (T, toolCallRecord, error) {
	start := time.Now()
	result, err := fn()
	record := toolCallRecord{
		Name: name,
		Args: args,
		MS:   time.Since(start).Milliseconds(),
		OK:   err == nil,
	}
	if err != nil {
		record.Err = err.Error()
	}
	logToolRecord(logger, record)
	return result, record, err
}

func friendlyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, supabase.ErrNotInitialized), errors.Is(err, supabase.ErrLibraryUnavailable):
		return "Backend is not available: check -url/-key or -db and try again."
	case errors.Is(err, postgrest.ErrUnauthorized):
		return "Access denied: the API key or row policies do not allow this."
	case errors.Is(err, postgrest.ErrRateLimited):
		return "Too many requests. Try again later."
	default:
		return err.Error()
	}
}

func getStringArg(args map[string]any, key string) (string, bool) {
	value, ok := args[key]
	if !ok || value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func getIntArg(args map[string]any, key string, fallback int) int {
	value, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return int(parsed)
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

// fieldsFlag collects repeated -field key=value pairs. Values that parse as
// JSON (numbers, booleans, null, objects) keep their type; anything else is
// a string.
type fieldsFlag struct {
	values pos.Fields
}

func (f *fieldsFlag) String() string {
	if f == nil || len(f.values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f.values[k]))
	}
	return strings.Join(parts, ",")
}

func (f *fieldsFlag) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	if f.values == nil {
		f.values = pos.Fields{}
	}

	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		f.values[key] = decoded
		return nil
	}
	f.values[key] = value
	return nil
}

// Fields returns the collected values, nil when none were given.
func (f *fieldsFlag) Fields() pos.Fields {
	if len(f.values) == 0 {
		return nil
	}
	out := make(pos.Fields, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}
