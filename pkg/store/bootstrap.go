package store

import (
	"fmt"
	"log"
	"sync"

	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"

	"github.com/litebox/litebox/pkg/schema"
)

// FromDescription opens every database the description names, attaches what
// each one asks for and creates its tables, default columns merged in with
// the table's own definitions winning on collision. Databases are processed
// concurrently up to opts.Concurrency. All databases and tables are
// attempted even after failures; the returned map holds every successfully
// opened handle, also when the error is not nil, and the caller owns closing
// them.
func FromDescription(doc schema.Document, defaults schema.Columns, opts Opts) (map[string]*Handle, error) {
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid description: %w", err)
	}

	size := opts.Concurrency
	if size < 1 {
		size = 1
	}

	lock := sync.Mutex{}
	res := map[string]*Handle{}

	wg := syncs.NewErrSizedGroup(size, syncs.Preemptive)
	for _, db := range doc {
		wg.Go(func() error {
			log.Printf("[INFO] connect to database %s", db.Name)
			o := opts
			o.Attach = db.Attach
			h, err := Open(db.Name, o)
			if err != nil {
				return fmt.Errorf("can't bootstrap database %s: %w", db.Name, err)
			}
			lock.Lock()
			res[db.Name] = h
			lock.Unlock()

			errs := new(multierror.Error)
			for _, tbl := range db.Tables {
				if err := h.CreateTable(tbl.Name, schema.Merge(tbl.Columns, defaults)); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("database %s: %w", db.Name, err))
				}
			}
			return errs.ErrorOrNil()
		})
	}

	return res, wg.Wait()
}

// FromDescriptionFile is FromDescription reading the description and the
// optional default columns from files, formats picked by extension. Empty
// defaultsFname means no defaults.
func FromDescriptionFile(fname, defaultsFname string, opts Opts) (map[string]*Handle, error) {
	doc, err := schema.Load(fname)
	if err != nil {
		return nil, err
	}
	var defaults schema.Columns
	if defaultsFname != "" {
		if defaults, err = schema.LoadColumns(defaultsFname); err != nil {
			return nil, err
		}
	}
	return FromDescription(doc, defaults, opts)
}
