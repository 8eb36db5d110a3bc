// Package schema loads and models schema description documents. One document
// describes any number of databases, each holding tables with ordered column
// definitions and an optional list of auxiliary databases to attach on open.
// Documents are accepted in json, yaml or toml form; json and yaml keep the
// declaration order, toml mappings carry no order so names are sorted.
package schema

import (
	"fmt"

	"github.com/litebox/litebox/pkg/clause"
)

// reserved table-level key listing databases to attach, never a table name
const attachKey = "_attach_"

// Column is a single column definition. The constraint goes to the engine
// verbatim, an empty string means no constraint.
type Column struct {
	Name       string
	Constraint string
}

// Columns is an ordered list of column definitions.
type Columns []Column

// Names returns the column names in definition order.
func (c Columns) Names() []string {
	res := make([]string, 0, len(c))
	for _, col := range c {
		res = append(res, col.Name)
	}
	return res
}

// Table is a named table with its ordered column definitions.
type Table struct {
	Name    string
	Columns Columns
}

// Database describes a single database: its tables in declaration order plus
// the names of auxiliary databases to attach. Attach entries may carry a file
// extension, the store trims it when resolving paths and aliases.
type Database struct {
	Name   string
	Attach []string
	Tables []Table
}

// Document is an ordered set of database descriptions.
type Document []Database

// Validate checks every database, table and column name against the
// identifier allow-list and rejects duplicate names on each level.
// Constraint strings are not validated, they pass through to the engine.
func (d Document) Validate() error {
	dbSeen := map[string]struct{}{}
	for _, db := range d {
		if err := clause.ValidIdent(db.Name); err != nil {
			return fmt.Errorf("bad database name: %w", err)
		}
		if _, ok := dbSeen[db.Name]; ok {
			return fmt.Errorf("duplicate database %q", db.Name)
		}
		dbSeen[db.Name] = struct{}{}

		for _, name := range db.Attach {
			if err := clause.ValidTable(name); err != nil { // same name-or-name.ext shape
				return fmt.Errorf("bad attach entry in %q: %w", db.Name, err)
			}
		}

		tblSeen := map[string]struct{}{}
		for _, tbl := range db.Tables {
			if err := clause.ValidIdent(tbl.Name); err != nil {
				return fmt.Errorf("bad table name in %q: %w", db.Name, err)
			}
			if _, ok := tblSeen[tbl.Name]; ok {
				return fmt.Errorf("duplicate table %q in %q", tbl.Name, db.Name)
			}
			tblSeen[tbl.Name] = struct{}{}

			if err := tbl.Columns.validate(); err != nil {
				return fmt.Errorf("bad columns in %s.%s: %w", db.Name, tbl.Name, err)
			}
		}
	}
	return nil
}

func (c Columns) validate() error {
	seen := map[string]struct{}{}
	for _, col := range c {
		if err := clause.ValidIdent(col.Name); err != nil {
			return err
		}
		if _, ok := seen[col.Name]; ok {
			return fmt.Errorf("duplicate column %q", col.Name)
		}
		seen[col.Name] = struct{}{}
	}
	return nil
}

// Merge combines table-specific columns with shared defaults. On a name
// collision the table-specific definition wins; defaults the table doesn't
// define are appended in the defaults' own order.
func Merge(cols, defaults Columns) Columns {
	if len(defaults) == 0 {
		return cols
	}
	have := map[string]struct{}{}
	for _, col := range cols {
		have[col.Name] = struct{}{}
	}
	res := make(Columns, 0, len(cols)+len(defaults))
	res = append(res, cols...)
	for _, def := range defaults {
		if _, ok := have[def.Name]; ok {
			continue
		}
		res = append(res, def)
	}
	return res
}
