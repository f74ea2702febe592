package backend

import "regexp"

type Operator string

const (
	OpEq  Operator = "eq"
	OpNeq Operator = "neq"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
)

type Filter struct {
	Column string
	Op     Operator
	Value  any
}

type Order struct {
	Column    string
	Ascending bool
}

// Query describes one select against a table. Builder methods return
// copies, so a base query can be reused safely.
type Query struct {
	Table     string
	Columns   []string
	Filters   []Filter
	Orders    []Order
	RowLimit  int
	SingleRow bool
}

func From(table string) Query {
	return Query{Table: table}
}

func (q Query) Select(columns ...string) Query {
	q.Columns = append([]string(nil), columns...)
	return q
}

func (q Query) Eq(column string, value any) Query  { return q.where(column, OpEq, value) }
func (q Query) Neq(column string, value any) Query { return q.where(column, OpNeq, value) }
func (q Query) Lt(column string, value any) Query  { return q.where(column, OpLt, value) }
func (q Query) Lte(column string, value any) Query { return q.where(column, OpLte, value) }
func (q Query) Gt(column string, value any) Query  { return q.where(column, OpGt, value) }
func (q Query) Gte(column string, value any) Query { return q.where(column, OpGte, value) }

func (q Query) Asc(column string) Query  { return q.order(column, true) }
func (q Query) Desc(column string) Query { return q.order(column, false) }

func (q Query) Limit(n int) Query {
	q.RowLimit = n
	return q
}

// Single asks for exactly one row; backends fail with ErrNotSingle otherwise.
func (q Query) Single() Query {
	q.SingleRow = true
	return q
}

func (q Query) where(column string, op Operator, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Op: op, Value: value})
	return q
}

func (q Query) order(column string, ascending bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Column: column, Ascending: ascending})
	return q
}

// Eq builds a standalone equality filter for update and delete calls.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func ValidIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// Validate checks table and column names of the query.
func (q Query) Validate() error {
	names := []string{q.Table}
	names = append(names, q.Columns...)
	for _, f := range q.Filters {
		names = append(names, f.Column)
	}
	for _, o := range q.Orders {
		names = append(names, o.Column)
	}
	return validateIdentifiers(names...)
}

func ValidateFilters(table string, filters []Filter) error {
	names := []string{table}
	for _, f := range filters {
		names = append(names, f.Column)
	}
	return validateIdentifiers(names...)
}

func validateIdentifiers(names ...string) error {
	for _, name := range names {
		if !ValidIdentifier(name) {
			return &IdentifierError{Name: name}
		}
	}
	return nil
}
