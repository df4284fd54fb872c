package sqlgen

import "fmt"

// Query accumulates a WHERE clause with positional arguments for one
// resource table.
type Query struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewQuery creates a Query selecting cols from table.
func NewQuery(table, cols string) *Query {
	return &Query{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Idx returns the next available parameter index.
func (q *Query) Idx() int { return q.idx }

// Bind appends an argument and returns its placeholder.
func (q *Query) Bind(v interface{}) string {
	ph := fmt.Sprintf("$%d", q.idx)
	q.args = append(q.args, v)
	q.idx++
	return ph
}

// Add appends a WHERE clause fragment (without leading "AND"). Arguments the
// fragment refers to must already be bound.
func (q *Query) Add(clause string) {
	q.where += " AND " + clause
}

// Table returns the queried table.
func (q *Query) Table() string { return q.table }

// Where returns the accumulated WHERE clause, without the WHERE keyword.
func (q *Query) Where() string { return "1=1" + q.where }

// Args returns the bound arguments in placeholder order.
func (q *Query) Args() []interface{} { return q.args }

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *Query) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the count query SQL.
func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", q.table, q.Where())
}

// CountArgs returns the arguments for the count query.
func (q *Query) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *Query) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", q.cols, q.table, q.Where())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (search args + limit + offset).
func (q *Query) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
