package store

import (
	"database/sql"
	"fmt"
)

// Rows is a lazy, forward-only cursor over a select result. Every Select
// call returns a fresh cursor; iteration never restarts.
type Rows struct {
	rows *sql.Rows
	cols []string
	cur  Row
	err  error
}

func newRows(rows *sql.Rows) (*Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("can't read result columns: %w", err)
	}
	return &Rows{rows: rows, cols: cols}, nil
}

// Columns returns the result column names in select order.
func (r *Rows) Columns() []string { return r.cols }

// Next advances to the next row, false when exhausted or failed; check Err
// after a false Next.
func (r *Rows) Next() bool {
	if !r.rows.Next() {
		r.err = r.rows.Err()
		return false
	}

	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = err
		return false
	}
	r.cur = Row{cols: r.cols, vals: vals}
	return true
}

// Row returns the current row, valid after a true Next.
func (r *Rows) Row() Row { return r.cur }

// Err returns the first iteration or scan failure, if any.
func (r *Rows) Err() error { return r.err }

// Close releases the cursor and frees the handle's connection.
func (r *Rows) Close() error { return r.rows.Close() }

// All drains the cursor into a slice and closes it.
func (r *Rows) All() ([]Row, error) {
	defer func() { _ = r.rows.Close() }()

	var res []Row
	for r.Next() {
		res = append(res, r.Row())
	}
	if r.err != nil {
		return nil, r.err
	}
	return res, nil
}

// Row is a single result row, addressable by column name and by position.
// Integer columns come back as int64, text as string, the engine's usual
// scan types.
type Row struct {
	cols []string
	vals []any
}

// Value returns the column value by name, nil for a name the result doesn't
// have (indistinguishable from a stored NULL, use Columns to tell).
func (r Row) Value(name string) any {
	for i, col := range r.cols {
		if col == name {
			return r.vals[i]
		}
	}
	return nil
}

// Index returns the column value by position.
func (r Row) Index(i int) any { return r.vals[i] }

// Len returns the number of columns in the row.
func (r Row) Len() int { return len(r.vals) }
