package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/litebox/litebox/pkg/store"
)

type options struct {
	Folder      string `short:"f" long:"folder" env:"LITEBOX_FOLDER" default:"." description:"folder for database files"`
	Ext         string `short:"e" long:"ext" env:"LITEBOX_EXT" default:"db" description:"database file extension"`
	Concurrency int    `long:"concurrency" default:"4" description:"databases created in parallel"`
	Dbg         bool   `long:"dbg" description:"debug mode"`

	CreateCmd struct {
		PositionalArgs struct {
			Description string `positional-arg-name:"description" description:"description file (json, yml or toml)"`
		} `positional-args:"yes" positional-optional:"no"`
		Defaults string `short:"d" long:"defaults" description:"default columns file merged into every table"`
	} `command:"create" description:"create databases and tables from a description file"`

	TablesCmd struct {
		PositionalArgs struct {
			Database string `positional-arg-name:"database" description:"database name"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"tables" description:"list tables of a database"`

	ColumnsCmd struct {
		PositionalArgs struct {
			Database string `positional-arg-name:"database" description:"database name"`
			Table    string `positional-arg-name:"table" description:"table name"`
		} `positional-args:"yes" positional-optional:"no"`
	} `command:"columns" description:"list columns of a table"`

	DropCmd struct {
		PositionalArgs struct {
			Database string `positional-arg-name:"database" description:"database name"`
		} `positional-args:"yes" positional-optional:"no"`
		Table  string `short:"t" long:"table" description:"drop this table instead of the whole database"`
		Column string `short:"c" long:"column" description:"with --table, drop a single column"`
	} `command:"drop" description:"drop a database file, a table or a column"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	fmt.Printf("litebox %s\n", revision)

	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
	}
	setupLog(opts.Dbg)

	if err := run(p, opts); err != nil {
		log.Printf("[WARN] %v", err)
	}
}

func run(p *flags.Parser, opts options) error {
	sopts := store.Opts{Folder: opts.Folder, Ext: opts.Ext, Concurrency: opts.Concurrency}

	// create databases from a description
	if p.Active != nil && p.Command.Find("create") == p.Active {
		descFile := opts.CreateCmd.PositionalArgs.Description
		log.Printf("[INFO] create command, description=%s", descFile)
		res, err := store.FromDescriptionFile(descFile, opts.CreateCmd.Defaults, sopts)
		for _, h := range res {
			if cerr := h.Close(); cerr != nil {
				log.Printf("[WARN] %v", cerr)
			}
		}
		if err != nil {
			return fmt.Errorf("can't create from description %s: %w", descFile, err)
		}
		fmt.Printf("created %d database(s) from %s\n", len(res), descFile)
	}

	// list tables
	if p.Active != nil && p.Command.Find("tables") == p.Active {
		name := opts.TablesCmd.PositionalArgs.Database
		log.Printf("[INFO] tables command, database=%s", name)
		h, err := openExisting(name, sopts)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()
		tables, err := h.Tables()
		if err != nil {
			return fmt.Errorf("can't list tables of %s: %w", name, err)
		}
		for _, tbl := range tables {
			fmt.Println(tbl)
		}
	}

	// list columns
	if p.Active != nil && p.Command.Find("columns") == p.Active {
		name := opts.ColumnsCmd.PositionalArgs.Database
		table := opts.ColumnsCmd.PositionalArgs.Table
		log.Printf("[INFO] columns command, database=%s table=%s", name, table)
		h, err := openExisting(name, sopts)
		if err != nil {
			return err
		}
		defer func() { _ = h.Close() }()
		cols, err := h.Columns(table)
		if err != nil {
			return fmt.Errorf("can't list columns of %s.%s: %w", name, table, err)
		}
		for _, col := range cols {
			fmt.Println(col)
		}
	}

	// drop a database, a table or a column
	if p.Active != nil && p.Command.Find("drop") == p.Active {
		name := opts.DropCmd.PositionalArgs.Database
		log.Printf("[INFO] drop command, database=%s table=%q column=%q", name, opts.DropCmd.Table, opts.DropCmd.Column)
		if opts.DropCmd.Column != "" && opts.DropCmd.Table == "" {
			return fmt.Errorf("can't drop column %q without a table", opts.DropCmd.Column)
		}
		h, err := openExisting(name, sopts)
		if err != nil {
			return err
		}
		switch {
		case opts.DropCmd.Column != "":
			defer func() { _ = h.Close() }()
			if err := h.DropColumn(opts.DropCmd.Table, opts.DropCmd.Column); err != nil {
				return err
			}
			fmt.Printf("dropped column %s.%s in %s\n", opts.DropCmd.Table, opts.DropCmd.Column, name)
		case opts.DropCmd.Table != "":
			defer func() { _ = h.Close() }()
			if err := h.DropTable(opts.DropCmd.Table); err != nil {
				return err
			}
			fmt.Printf("dropped table %s in %s\n", opts.DropCmd.Table, name)
		default:
			if err := h.DropDatabase(); err != nil {
				return err
			}
			fmt.Printf("dropped database %s\n", name)
		}
	}

	return nil
}

// openExisting opens a database refusing to create one, read-side commands
// shouldn't leave empty files behind.
func openExisting(name string, sopts store.Opts) (*store.Handle, error) {
	if _, err := os.Stat(sopts.Path(name)); err != nil {
		return nil, fmt.Errorf("no such database %s: %w", name, err)
	}
	return store.Open(name, sopts)
}

func setupLog(dbg bool) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
