package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// query accumulates a SELECT with positional arguments.
type query struct {
	sb   strings.Builder
	args []any
}

func newQuery(base string, args ...any) *query {
	q := &query{args: args}
	q.sb.WriteString(base)
	return q
}

// where appends " AND <cond>" where cond holds one %d for the placeholder.
func (q *query) where(cond string, arg any) {
	q.args = append(q.args, arg)
	q.sb.WriteString(" AND ")
	q.sb.WriteString(fmt.Sprintf(cond, len(q.args)))
}

// timeRange applies opts.Since and opts.Until to column.
func (q *query) timeRange(column string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.where(column+" >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		q.where(column+" <= $%d", *opts.Until)
	}
}

// page appends ORDER BY and the LIMIT/OFFSET of opts.
func (q *query) page(orderBy string, opts domain.ListOpts) {
	q.sb.WriteString(" ORDER BY ")
	q.sb.WriteString(orderBy)
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		q.sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(q.args)))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		q.sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(q.args)))
	}
}

func (q *query) String() string {
	return q.sb.String()
}
