package postgrest

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pos_data_layer/internal/backend"
)

// encodeQuery renders a select in PostgREST's URL grammar, e.g.
// select=*&date=eq.2024-01-01&order=time.desc&limit=100.
func encodeQuery(q backend.Query) (url.Values, error) {
	params, err := encodeFilters(q.Filters)
	if err != nil {
		return nil, err
	}

	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ",")
	}
	params.Set("select", columns)

	if len(q.Orders) > 0 {
		parts := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			dir := "desc"
			if o.Ascending {
				dir = "asc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}

	if q.RowLimit > 0 {
		params.Set("limit", strconv.Itoa(q.RowLimit))
	}

	return params, nil
}

func encodeFilters(filters []backend.Filter) (url.Values, error) {
	params := url.Values{}
	for _, f := range filters {
		if f.Value == nil {
			switch f.Op {
			case backend.OpEq:
				params.Add(f.Column, "is.null")
			case backend.OpNeq:
				params.Add(f.Column, "not.is.null")
			default:
				return nil, fmt.Errorf("filter %s: %s against null", f.Column, f.Op)
			}
			continue
		}
		value, err := formatValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Column, err)
		}
		params.Add(f.Column, string(f.Op)+"."+value)
	}
	return params, nil
}

func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case time.Time:
		return val.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported filter value %T", v)
	}
}
