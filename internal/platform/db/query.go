package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
)

// Visibility selects which rows a read sees with respect to soft deletion.
// The zero value hides deleted rows.
type Visibility struct {
	IncludeDeleted bool
	OnlyDeleted    bool
}

// VisibilityFromContext reads include_deleted and only_deleted query flags.
func VisibilityFromContext(c echo.Context) Visibility {
	inc, _ := strconv.ParseBool(c.QueryParam("include_deleted"))
	only, _ := strconv.ParseBool(c.QueryParam("only_deleted"))
	return Visibility{IncludeDeleted: inc, OnlyDeleted: only}
}

// Clause returns the predicate for deletedExpr, a boolean SQL expression that
// is true when the row counts as deleted (e.g. "(u.is_deleted OR p.is_deleted)").
// It returns "" when every row is visible.
func (v Visibility) Clause(deletedExpr string) string {
	switch {
	case v.OnlyDeleted:
		return deletedExpr
	case v.IncludeDeleted:
		return ""
	default:
		return "NOT " + deletedExpr
	}
}

// Query builds a filtered SELECT with a matching COUNT over the same FROM
// clause. Placeholders are numbered in the order filters are added.
type Query struct {
	from    string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewQuery starts a query over from (which may include joins).
func NewQuery(from, cols string) *Query {
	return &Query{from: from, cols: cols, idx: 1}
}

// Idx returns the next available parameter index.
func (q *Query) Idx() int { return q.idx }

// Add appends a raw WHERE fragment. The fragment must reference its
// arguments as $Idx(), $Idx()+1, ... taken before the call.
func (q *Query) Add(clause string, args ...interface{}) *Query {
	if clause == "" {
		return q
	}
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
	return q
}

// Eq adds column = value.
func (q *Query) Eq(column string, value interface{}) *Query {
	return q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// Gte adds column >= value.
func (q *Query) Gte(column string, value interface{}) *Query {
	return q.Add(fmt.Sprintf("%s >= $%d", column, q.idx), value)
}

// Lte adds column <= value.
func (q *Query) Lte(column string, value interface{}) *Query {
	return q.Add(fmt.Sprintf("%s <= $%d", column, q.idx), value)
}

// Contains adds a case-insensitive substring match of term against any of
// the columns. Empty terms are ignored.
func (q *Query) Contains(term string, columns ...string) *Query {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return q
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", col, q.idx)
	}
	return q.Add("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(term)+"%")
}

// Visible applies a Visibility filter.
func (q *Query) Visible(v Visibility, deletedExpr string) *Query {
	return q.Add(v.Clause(deletedExpr))
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (q *Query) OrderBy(orderBy string) *Query {
	q.orderBy = orderBy
	return q
}

// CountSQL returns the count query.
func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.from, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *Query) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query with ORDER BY and LIMIT/OFFSET placeholders.
func (q *Query) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.from, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the filter args followed by limit and offset.
func (q *Query) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// Fetch runs the count and the page query for q and scans each row.
func Fetch[T any](ctx context.Context, conn Querier, q *Query, limit, offset int, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	rows, err := conn.Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
