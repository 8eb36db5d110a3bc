package store

import (
	"fmt"
	"log"
	"os"

	"github.com/go-pkgz/stringutils"
	"github.com/hashicorp/go-multierror"

	"github.com/litebox/litebox/pkg/clause"
)

// Attach attaches another database under the given alias, making its tables
// reachable as "alias.table". The database name resolves through the
// handle's folder and extension the same way Open resolves its own, and
// ":memory:" attaches a fresh private in-memory database. Both the file
// location and the alias travel to the engine as bound parameters. Runs
// outside any transaction scope, the engine doesn't allow attaching inside
// one.
func (h *Handle) Attach(alias, dbName string) error {
	if err := clause.ValidIdent(alias); err != nil {
		return fmt.Errorf("can't attach database: %w", err)
	}

	target := Memory
	if dbName != Memory {
		if err := clause.ValidIdent(h.opts.base(dbName)); err != nil {
			return fmt.Errorf("can't attach database: %w", err)
		}
		if err := os.MkdirAll(h.opts.folder(), 0o750); err != nil {
			return fmt.Errorf("can't make folder %s: %w", h.opts.folder(), err)
		}
		target = h.opts.Path(dbName)
	}

	if _, err := h.db.Exec("ATTACH DATABASE ? AS ?", target, alias); err != nil {
		log.Printf("[WARN] can't attach database %s as %s: %v", target, alias, err)
		return fmt.Errorf("can't attach database %s as %s: %w", target, alias, err)
	}
	if !stringutils.Contains(alias, h.attached) {
		h.attached = append(h.attached, alias)
	}
	log.Printf("[DEBUG] attached database %s as %s", target, alias)
	return nil
}

// Detach detaches previously attached databases by alias. All aliases are
// attempted and failures collected, one refusing to detach doesn't keep the
// rest attached.
func (h *Handle) Detach(aliases ...string) error {
	errs := new(multierror.Error)
	for _, alias := range aliases {
		if _, err := h.db.Exec("DETACH DATABASE ?", alias); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("can't detach database %s: %w", alias, err))
			continue
		}
		h.attached = stringutils.Filter(h.attached, func(s string) bool { return s != alias })
		log.Printf("[DEBUG] detached database %s", alias)
	}
	return errs.ErrorOrNil()
}

// Attached returns the currently attached aliases in attach order.
func (h *Handle) Attached() []string {
	res := make([]string, len(h.attached))
	copy(res, h.attached)
	return res
}
