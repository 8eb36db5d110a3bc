package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/litebox/litebox/pkg/clause"
	"github.com/litebox/litebox/pkg/schema"
)

// CreateTable creates the table with the given column definitions, a no-op
// if the table already exists. Column order is preserved, constraints go to
// the engine verbatim.
func (h *Handle) CreateTable(table string, cols schema.Columns) error {
	if err := clause.ValidTable(table); err != nil {
		return fmt.Errorf("can't create table: %w", err)
	}
	if len(cols) == 0 {
		return fmt.Errorf("can't create table %s without columns", table)
	}

	defs := make([]string, 0, len(cols))
	for _, col := range cols {
		if err := clause.ValidIdent(col.Name); err != nil {
			return fmt.Errorf("can't create table %s: %w", table, err)
		}
		defs = append(defs, strings.TrimSpace(col.Name+" "+col.Constraint))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if err := h.exec(stmt); err != nil {
		log.Printf("[WARN] can't create table %s: %v", table, err)
		return fmt.Errorf("can't create table %s: %w", table, err)
	}
	return nil
}

// Insert adds a single row, pair order drives both the column list and the
// bound values. Returns the engine-assigned row id.
func (h *Handle) Insert(table string, vals clause.Pairs) (int64, error) {
	if err := clause.ValidTable(table); err != nil {
		return 0, fmt.Errorf("can't insert: %w", err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("can't insert into %s without values", table)
	}

	cols := make([]string, 0, len(vals))
	marks := make([]string, 0, len(vals))
	args := make([]any, 0, len(vals))
	for _, p := range vals {
		if err := clause.ValidIdent(p.Column); err != nil {
			return 0, fmt.Errorf("can't insert into %s: %w", table, err)
		}
		cols = append(cols, p.Column)
		marks = append(marks, "?")
		args = append(args, p.Value)
	}

	stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	var id int64
	err := h.inTx(func(tx *sql.Tx) error {
		res, e := tx.Exec(stmt, args...)
		if e != nil {
			return e
		}
		if id, e = res.LastInsertId(); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		log.Printf("[WARN] can't insert into %s: %v", table, err)
		return 0, fmt.Errorf("can't insert into %s: %w", table, err)
	}
	return id, nil
}

// Mod is an optional select modifier.
type Mod func(*selOpts)

type selOpts struct {
	distinct bool
	orderBy  string
	desc     bool
}

// Distinct makes the select return distinct rows only.
func Distinct() Mod { return func(o *selOpts) { o.distinct = true } }

// OrderBy sets a raw ORDER BY expression, ascending unless Desc is also
// given. The expression comes from caller code, not from criteria values,
// and is interpolated as-is.
func OrderBy(expr string) Mod { return func(o *selOpts) { o.orderBy = expr } }

// Desc flips the ordering to descending, only meaningful with OrderBy.
func Desc() Mod { return func(o *selOpts) { o.desc = true } }

// Select queries the table for rows matching the criteria, returning all
// columns when cols is empty or exactly the requested subset. Empty criteria
// select everything. The returned cursor is lazy; drain or close it before
// the next operation on this handle.
func (h *Handle) Select(table string, cols []string, cr clause.Criteria, mods ...Mod) (*Rows, error) {
	if err := clause.ValidTable(table); err != nil {
		return nil, fmt.Errorf("can't select: %w", err)
	}
	for _, col := range cols {
		if err := clause.ValidIdent(col); err != nil {
			return nil, fmt.Errorf("can't select from %s: %w", table, err)
		}
	}

	o := selOpts{}
	for _, mod := range mods {
		mod(&o)
	}

	list := "*"
	if len(cols) > 0 {
		list = strings.Join(cols, ", ")
	}
	stmt := "SELECT "
	if o.distinct {
		stmt = "SELECT DISTINCT "
	}
	stmt += list + " FROM " + table

	frag, vals, err := cr.Fragment()
	if err != nil {
		return nil, fmt.Errorf("can't select from %s: %w", table, err)
	}
	stmt += frag

	if o.orderBy != "" {
		ordering := " ASC"
		if o.desc {
			ordering = " DESC"
		}
		stmt += " ORDER BY " + o.orderBy + ordering
	}

	rows, err := h.db.Query(stmt, vals...)
	if err != nil {
		log.Printf("[WARN] can't select from %s: %v", table, err)
		return nil, fmt.Errorf("can't select from %s: %w", table, err)
	}
	return newRows(rows)
}

// Delete removes the rows matching the criteria. Criteria are required, a
// criteria-less delete would silently wipe the table; callers wanting that
// drop and recreate instead.
func (h *Handle) Delete(table string, cr clause.Criteria) error {
	if err := clause.ValidTable(table); err != nil {
		return fmt.Errorf("can't delete: %w", err)
	}
	if cr.Empty() {
		return fmt.Errorf("can't delete from %s: %w", table, ErrNoCriteria)
	}

	frag, vals, err := cr.Fragment()
	if err != nil {
		return fmt.Errorf("can't delete from %s: %w", table, err)
	}

	if err := h.exec("DELETE FROM "+table+frag, vals...); err != nil {
		log.Printf("[WARN] can't delete from %s: %v", table, err)
		return fmt.Errorf("can't delete from %s: %w", table, err)
	}
	return nil
}

// Update sets new values on the rows matching the criteria, SET values bound
// before WHERE values. Both the new values and the criteria are required.
func (h *Handle) Update(table string, set clause.Pairs, cr clause.Criteria) error {
	if err := clause.ValidTable(table); err != nil {
		return fmt.Errorf("can't update: %w", err)
	}
	if cr.Empty() {
		return fmt.Errorf("can't update %s: %w", table, ErrNoCriteria)
	}

	setFrag, setVals, err := clause.Set(set)
	if err != nil {
		return fmt.Errorf("can't update %s: %w", table, err)
	}
	whereFrag, whereVals, err := cr.Fragment()
	if err != nil {
		return fmt.Errorf("can't update %s: %w", table, err)
	}

	stmt := "UPDATE " + table + setFrag + whereFrag
	if err := h.exec(stmt, append(setVals, whereVals...)...); err != nil {
		log.Printf("[WARN] can't update %s: %v", table, err)
		return fmt.Errorf("can't update %s: %w", table, err)
	}
	return nil
}
