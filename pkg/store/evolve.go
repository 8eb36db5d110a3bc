package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-pkgz/stringutils"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/litebox/litebox/pkg/clause"
)

// Tables lists the user tables of the main database in creation order,
// engine-internal tables filtered out.
func (h *Handle) Tables() ([]string, error) {
	rows, err := h.db.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("can't list tables of %s: %w", h.name, err)
	}
	defer func() { _ = rows.Close() }()

	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("can't list tables of %s: %w", h.name, err)
		}
		res = append(res, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't list tables of %s: %w", h.name, err)
	}
	return res, nil
}

// Columns lists the column names of the table in definition order. The table
// may be qualified with an attached alias, like "aux.movies".
func (h *Handle) Columns(table string) ([]string, error) {
	if err := clause.ValidTable(table); err != nil {
		return nil, fmt.Errorf("can't list columns: %w", err)
	}

	stmt := fmt.Sprintf("PRAGMA table_info(%s)", table)
	if alias, bare, ok := strings.Cut(table, "."); ok {
		stmt = fmt.Sprintf("PRAGMA %s.table_info(%s)", alias, bare)
	}

	rows, err := h.db.Query(stmt)
	if err != nil {
		return nil, fmt.Errorf("can't list columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var res []string
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("can't list columns of %s: %w", table, err)
		}
		res = append(res, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't list columns of %s: %w", table, err)
	}
	if len(res) == 0 { // the pragma reports nothing at all for a missing table
		return nil, fmt.Errorf("no such table %s", table)
	}
	return res, nil
}

// RenameTable renames the table within its database.
func (h *Handle) RenameTable(table, newName string) error {
	if err := clause.ValidTable(table); err != nil {
		return fmt.Errorf("can't rename table: %w", err)
	}
	if err := clause.ValidIdent(newName); err != nil {
		return fmt.Errorf("can't rename table %s: %w", table, err)
	}
	if err := h.exec(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, newName)); err != nil {
		log.Printf("[WARN] can't rename table %s to %s: %v", table, newName, err)
		return fmt.Errorf("can't rename table %s to %s: %w", table, newName, err)
	}
	log.Printf("[INFO] renamed table %s to %s", table, newName)
	return nil
}

// AddColumn appends a column to the table, constraint text passed to the
// engine verbatim.
func (h *Handle) AddColumn(table, column, constraint string) error {
	if err := clause.ValidTable(table); err != nil {
		return fmt.Errorf("can't add column: %w", err)
	}
	if err := clause.ValidIdent(column); err != nil {
		return fmt.Errorf("can't add column to %s: %w", table, err)
	}
	def := strings.TrimSpace(column + " " + constraint)
	if err := h.exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def)); err != nil {
		log.Printf("[WARN] can't add column %s to %s: %v", column, table, err)
		return fmt.Errorf("can't add column %s to %s: %w", column, table, err)
	}
	log.Printf("[INFO] added column %s to table %s", column, table)
	return nil
}

// DropTable removes the table, a no-op if it doesn't exist.
func (h *Handle) DropTable(table string) error {
	if err := clause.ValidTable(table); err != nil {
		return fmt.Errorf("can't drop table: %w", err)
	}
	if err := h.exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		log.Printf("[WARN] can't drop table %s: %v", table, err)
		return fmt.Errorf("can't drop table %s: %w", table, err)
	}
	log.Printf("[INFO] dropped table %s", table)
	return nil
}

// DropDatabase closes the handle and removes the backing file. For an
// in-memory database closing is all there is to it. The handle is unusable
// afterwards either way.
func (h *Handle) DropDatabase() error {
	errs := new(multierror.Error)
	if err := h.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if h.file != "" {
		if err := os.Remove(h.file); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't remove %s: %w", h.file, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		log.Printf("[WARN] can't drop database %s: %v", h.name, err)
		return err
	}
	log.Printf("[INFO] dropped database %s", h)
	return nil
}

// DropColumn removes a column by rebuilding the table without it: data is
// copied aside, the table recreated from its original definition minus the
// dropped column, the data copied back. The whole rebuild runs in a single
// transaction and a failed foreign-key check at the end rolls everything
// back, wrapped in ErrIntegrity. Works on main-database tables only.
func (h *Handle) DropColumn(table, column string) error {
	if err := clause.ValidIdent(table); err != nil {
		return fmt.Errorf("can't drop column: %w", err)
	}
	if err := clause.ValidIdent(column); err != nil {
		return fmt.Errorf("can't drop column from %s: %w", table, err)
	}

	cols, err := h.Columns(table)
	if err != nil {
		return fmt.Errorf("can't drop column %s: %w", column, err)
	}
	if !stringutils.Contains(column, cols) {
		return fmt.Errorf("can't drop column %s from %s: %w", column, table, ErrNoColumn)
	}
	keep := stringutils.Difference(cols, []string{column})
	if len(keep) == 0 {
		return fmt.Errorf("can't drop the only column %s from %s", column, table)
	}

	create, err := h.createSQL(table)
	if err != nil {
		return fmt.Errorf("can't drop column %s: %w", column, err)
	}
	newCreate, err := cutColumnDef(create, column)
	if err != nil {
		return fmt.Errorf("can't drop column %s from %s: %w", column, table, err)
	}

	// enforcement off for the duration of the rebuild, the check at the end
	// decides. Toggling inside a transaction wouldn't take effect.
	fkOn, err := h.foreignKeysOn()
	if err != nil {
		return fmt.Errorf("can't drop column %s: %w", column, err)
	}
	if fkOn {
		if _, err := h.db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
			return fmt.Errorf("can't disable foreign keys on %s: %w", h.name, err)
		}
		defer func() {
			if _, e := h.db.Exec("PRAGMA foreign_keys = ON"); e != nil {
				log.Printf("[WARN] can't re-enable foreign keys on %s: %v", h.name, e)
			}
		}()
	}

	keepList := strings.Join(keep, ", ")
	tmp := "rebuild_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	err = h.inTx(func(tx *sql.Tx) error {
		steps := []string{
			fmt.Sprintf("CREATE TEMPORARY TABLE %s (%s)", tmp, keepList),
			fmt.Sprintf("INSERT INTO %s SELECT %s FROM %s", tmp, keepList, table),
			fmt.Sprintf("DROP TABLE %s", table),
			newCreate,
			fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", table, keepList, keepList, tmp),
			fmt.Sprintf("DROP TABLE %s", tmp),
		}
		for _, stmt := range steps {
			if _, e := tx.Exec(stmt); e != nil {
				return fmt.Errorf("rebuild failed on %q: %w", stmt, e)
			}
		}
		return checkForeignKeys(tx)
	})
	if err != nil {
		log.Printf("[WARN] can't drop column %s from %s: %v", column, table, err)
		return fmt.Errorf("can't drop column %s from %s: %w", column, table, err)
	}

	log.Printf("[INFO] dropped column %s from table %s", column, table)
	return nil
}

// foreignKeysOn reads the current state of foreign-key enforcement.
func (h *Handle) foreignKeysOn() (bool, error) {
	var on int
	if err := h.db.QueryRow("PRAGMA foreign_keys").Scan(&on); err != nil {
		return false, fmt.Errorf("can't read foreign_keys pragma: %w", err)
	}
	return on == 1, nil
}

// checkForeignKeys runs the engine's full foreign-key check inside the
// transaction and wraps any violation in ErrIntegrity.
func checkForeignKeys(tx *sql.Tx) error {
	rows, err := tx.Query("PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("can't check foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		count              int
		firstTbl, firstRef string
	)
	for rows.Next() {
		var (
			tbl, ref string
			rowid    sql.NullInt64
			fkid     int64
		)
		if err := rows.Scan(&tbl, &rowid, &ref, &fkid); err != nil {
			return fmt.Errorf("can't check foreign keys: %w", err)
		}
		if count == 0 {
			firstTbl, firstRef = tbl, ref
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("can't check foreign keys: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %d violation(s), first in %s referencing %s", ErrIntegrity, count, firstTbl, firstRef)
	}
	return nil
}
