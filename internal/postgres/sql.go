package postgres

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pos_data_layer/internal/backend"

	"github.com/jackc/pgx/v5"
)

var sqlOperators = map[backend.Operator]string{
	backend.OpEq:  "=",
	backend.OpNeq: "<>",
	backend.OpLt:  "<",
	backend.OpLte: "<=",
	backend.OpGt:  ">",
	backend.OpGte: ">=",
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// whereClause renders filters starting at placeholder $start. qualifier,
// when set, prefixes every column (e.g. an UPDATE alias).
func whereClause(filters []backend.Filter, start int, qualifier string) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		col := ident(f.Column)
		if qualifier != "" {
			col = qualifier + "." + col
		}
		if f.Value == nil {
			switch f.Op {
			case backend.OpEq:
				parts = append(parts, col+" IS NULL")
			case backend.OpNeq:
				parts = append(parts, col+" IS NOT NULL")
			default:
				return "", nil, fmt.Errorf("filter %s: %s against null", f.Column, f.Op)
			}
			continue
		}
		op, ok := sqlOperators[f.Op]
		if !ok {
			return "", nil, fmt.Errorf("filter %s: unknown operator %q", f.Column, f.Op)
		}
		args = append(args, f.Value)
		parts = append(parts, fmt.Sprintf("%s %s $%d", col, op, start+len(args)-1))
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func buildSelect(q backend.Query) (string, []any, error) {
	columns := "*"
	if len(q.Columns) > 0 && !(len(q.Columns) == 1 && q.Columns[0] == "*") {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = ident(c)
		}
		columns = strings.Join(quoted, ", ")
	}

	where, args, err := whereClause(q.Filters, 1, "")
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT row_to_json(r)::text FROM (SELECT %s FROM %s%s", columns, ident(q.Table), where)
	if len(q.Orders) > 0 {
		parts := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			dir := "DESC"
			if o.Ascending {
				dir = "ASC"
			}
			parts[i] = ident(o.Column) + " " + dir
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.RowLimit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.RowLimit)
	}
	b.WriteString(") AS r")
	return b.String(), args, nil
}

// buildInsert lets Postgres coerce JSON into the table's row type, so
// omitted columns keep their defaults.
func buildInsert(table string, rows []map[string]any) (string, []any, error) {
	columns := columnUnion(rows)
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("insert %s: no columns", table)
	}
	if err := checkColumns(columns); err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return "", nil, fmt.Errorf("insert %s: %w", table, err)
	}

	list := quoteAll(columns)
	query := fmt.Sprintf(
		"WITH ins AS (INSERT INTO %[1]s (%[2]s) SELECT %[2]s FROM json_populate_recordset(NULL::%[1]s, $1::json) RETURNING *) "+
			"SELECT row_to_json(ins)::text FROM ins",
		ident(table), list,
	)
	return query, []any{string(payload)}, nil
}

func buildUpdate(table string, filters []backend.Filter, patch map[string]any) (string, []any, error) {
	columns := make([]string, 0, len(patch))
	for k := range patch {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("update %s: no columns", table)
	}
	if err := checkColumns(columns); err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return "", nil, fmt.Errorf("update %s: %w", table, err)
	}

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%[1]s = p.%[1]s", ident(c))
	}
	where, args, err := whereClause(filters, 2, "t")
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf(
		"WITH upd AS (UPDATE %[1]s AS t SET %[2]s FROM json_populate_record(NULL::%[1]s, $1::json) AS p%[3]s RETURNING t.*) "+
			"SELECT row_to_json(upd)::text FROM upd",
		ident(table), strings.Join(sets, ", "), where,
	)
	return query, append([]any{string(payload)}, args...), nil
}

func buildDelete(table string, filters []backend.Filter) (string, []any, error) {
	where, args, err := whereClause(filters, 1, "")
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf(
		"WITH del AS (DELETE FROM %s%s RETURNING *) SELECT row_to_json(del)::text FROM del",
		ident(table), where,
	)
	return query, args, nil
}

func columnUnion(rows []map[string]any) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func checkColumns(columns []string) error {
	for _, c := range columns {
		if !backend.ValidIdentifier(c) {
			return &backend.IdentifierError{Name: c}
		}
	}
	return nil
}

func quoteAll(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ", ")
}
