// Package store implements connection handles over an embedded sqlite
// database: schema-driven table creation, composer-backed crud, schema
// evolution including a transactional column-drop rebuild, and multi-database
// composition (attach/detach plus bootstrap from a description document).
//
// A handle owns exactly one engine connection. Handles are not safe for
// concurrent use, callers needing concurrency use one handle per goroutine.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // sqlite driver loaded here

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"

	"github.com/litebox/litebox/pkg/clause"
)

// Memory is the reserved database name for a private in-memory database.
const Memory = ":memory:"

// sentinel errors, the failure kinds callers branch on
var (
	// ErrNoColumn reports a reference to a column the table doesn't have,
	// checked before the engine is touched.
	ErrNoColumn = errors.New("no such column")
	// ErrNoCriteria rejects a delete or update issued without criteria.
	ErrNoCriteria = errors.New("criteria required")
	// ErrIntegrity reports a failed foreign-key check after a column-drop
	// rebuild; the rebuild was rolled back.
	ErrIntegrity = errors.New("foreign keys violated")
	// ErrDegraded reports a failed rollback, the connection state is unknown.
	ErrDegraded = errors.New("degraded state")
)

// Opts configures a handle. The zero value works: current folder, "db"
// extension, nothing attached, sequential bootstrap.
type Opts struct {
	Folder      string   // folder for backing files, created if missing
	Ext         string   // backing file extension, without the dot
	Attach      []string // databases to attach on open, entries may carry the extension
	Concurrency int      // databases bootstrapped in parallel, default 1
}

func (o Opts) folder() string {
	if o.Folder == "" {
		return "."
	}
	return o.Folder
}

func (o Opts) ext() string {
	if o.Ext == "" {
		return "db"
	}
	return o.Ext
}

// base strips the extension convention off a database name, so entries like
// "movies.db" and "movies" resolve the same.
func (o Opts) base(name string) string { return strings.TrimSuffix(name, "."+o.ext()) }

// Path resolves the backing file location for a database name,
// {folder}/{name}.{ext}. It doesn't touch the filesystem.
func (o Opts) Path(name string) string {
	return filepath.Join(o.folder(), o.base(name)+"."+o.ext())
}

// Handle owns a single connection to one database and exposes crud, schema
// evolution and attach/detach on it. While a Rows cursor from Select is open
// it occupies the handle's only connection, drain or close it before the
// next operation.
type Handle struct {
	db       *sql.DB
	name     string
	file     string // empty for an in-memory database
	opts     Opts
	attached []string // aliases in attach order
}

// Open opens or creates the database name, resolved to {folder}/{name}.{ext}
// with the folder created if missing. The reserved name ":memory:" (or an
// empty name) opens a private in-memory database with no backing file. Every
// database listed in opts.Attach is attached before return. Failures are
// returned to the caller, never fatal to the process.
func Open(name string, opts Opts) (*Handle, error) {
	h := &Handle{name: name, opts: opts}

	dsn := Memory
	if name == "" {
		h.name = Memory
	}
	if name != "" && name != Memory {
		if err := clause.ValidIdent(opts.base(name)); err != nil {
			return nil, fmt.Errorf("can't open database: %w", err)
		}
		if err := os.MkdirAll(opts.folder(), 0o750); err != nil {
			return nil, fmt.Errorf("can't make folder %s: %w", opts.folder(), err)
		}
		h.file = opts.Path(name)
		dsn = h.file
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("can't open database %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // one handle owns exactly one connection
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't connect to database %s: %w", dsn, err)
	}
	h.db = db

	for _, aux := range stringutils.DeDup(opts.Attach) {
		if err := h.Attach(opts.base(aux), aux); err != nil {
			_ = h.db.Close()
			return nil, err
		}
	}

	log.Printf("[DEBUG] opened database %s", h)
	return h, nil
}

// Name returns the database name the handle was opened with.
func (h *Handle) Name() string { return h.name }

// File returns the backing file path, empty for an in-memory database.
func (h *Handle) File() string { return h.file }

func (h *Handle) String() string {
	if h.file == "" {
		return h.name
	}
	return fmt.Sprintf("%s (%s)", h.name, h.file)
}

// Close detaches all attached databases and then closes the connection, in
// that order; detaching later would have nothing to run on. Detach failures
// don't stop the close, everything is collected into the returned error.
func (h *Handle) Close() error {
	errs := new(multierror.Error)
	if len(h.attached) > 0 {
		if err := h.Detach(h.attached...); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := h.db.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("can't close database %s: %w", h.name, err))
	}
	return errs.ErrorOrNil()
}

// inTx runs fn inside a transaction scope: commit on success, rollback on
// error. A rollback that itself fails wraps ErrDegraded because the state of
// the connection can no longer be trusted.
func (h *Handle) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("can't begin transaction: %w", err)
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w: rollback failed with %v after %v", ErrDegraded, rbErr, err)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("can't commit transaction: %w", err)
	}
	return nil
}

// exec runs a single statement inside its own commit-or-rollback scope.
func (h *Handle) exec(stmt string, vals ...any) error {
	return h.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(stmt, vals...)
		return err
	})
}
