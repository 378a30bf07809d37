// Command novacsv imports CSV files into a database directory, builds their
// indexes and runs queries without a server.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/tuannm99/novacsv/internal"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/engine"
	"github.com/tuannm99/novacsv/internal/logger"
	"github.com/tuannm99/novacsv/internal/record"
	"github.com/tuannm99/novacsv/internal/rowstore"
)

const usage = `usage: novacsv [global flags] <command> [flags] [args]

commands:
  import <table> <file.csv>   copy a CSV file into a new table
  build <table> [column]      (re)build the indexes of a table, or add one
  drop-index <table> <column> remove a column index
  drop <table>                remove a table
  query <sql>                 run a SELECT and print JSON
  tables                      list tables
  describe <table>            print the catalog entry of a table

global flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "novacsv: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := flag.NewFlagSet("novacsv", flag.ContinueOnError)
	cfgPath := global.String("config", "", "YAML config file")
	workdir := global.StringP("workdir", "w", "", "database directory (overrides storage.workdir)")
	global.SetInterspersed(false)
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *workdir != "" {
		cfg.Storage.Workdir = *workdir
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}

	db, err := engine.Open(cfg.Storage.Workdir, cfg.EngineOptions())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "import":
		return runImport(db, cmdArgs, out)
	case "build":
		switch len(cmdArgs) {
		case 1:
			return db.BuildIndexes(cmdArgs[0])
		case 2:
			return db.BuildIndex(cmdArgs[0], cmdArgs[1])
		}
		return errors.New("usage: build <table> [column]")
	case "drop-index":
		if len(cmdArgs) != 2 {
			return errors.New("usage: drop-index <table> <column>")
		}
		return db.DropIndex(cmdArgs[0], cmdArgs[1])
	case "drop":
		if len(cmdArgs) != 1 {
			return errors.New("usage: drop <table>")
		}
		return db.DropTable(cmdArgs[0])
	case "query":
		if len(cmdArgs) == 0 {
			return errors.New("usage: query <sql>")
		}
		res, err := db.Query(strings.Join(cmdArgs, " "))
		if err != nil {
			return err
		}
		return writeJSON(out, res)
	case "tables":
		for _, t := range db.ListTables() {
			fmt.Fprintln(out, t)
		}
		return nil
	case "describe":
		if len(cmdArgs) != 1 {
			return errors.New("usage: describe <table>")
		}
		meta, err := db.Describe(cmdArgs[0])
		if err != nil {
			return err
		}
		return writeJSON(out, meta)
	}
	return errors.Errorf("unknown command %q", cmd)
}

func runImport(db *engine.Database, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	key := fs.StringP("key", "k", "", "key column")
	indexed := fs.StringSliceP("index", "i", nil, "columns to index (repeatable or comma-separated)")
	format := fs.String("format", "", "row format: csv or binary (default from config)")
	types := fs.StringSlice("types", nil, "column kinds in header order, e.g. INT32,STRING (inferred when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: import [flags] <table> <file.csv>")
	}
	table, src := fs.Arg(0), fs.Arg(1)

	opts := engine.ImportOptions{Key: *key, Indexed: *indexed, RowFormat: rowstore.Format(*format)}
	if len(*types) > 0 {
		schema, err := schemaFromTypes(src, *types)
		if err != nil {
			return err
		}
		opts.Schema = schema
	}
	meta, err := db.ImportCSV(table, src, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d rows into %s\n", meta.Rows, meta.Name)
	return nil
}

// schemaFromTypes names the columns after the CSV header of src.
func schemaFromTypes(src string, types []string) (*record.Schema, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", src)
	}
	defer f.Close()
	header, err := readHeaderLine(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", src)
	}
	if len(header) != len(types) {
		return nil, errors.Errorf("%s has %d columns, --types lists %d", src, len(header), len(types))
	}
	schema := &record.Schema{}
	for i, t := range types {
		kind, ok := codec.KindByName(strings.TrimSpace(t))
		if !ok {
			return nil, errors.Wrapf(codec.ErrUnknownKind, "%q", t)
		}
		schema.Cols = append(schema.Cols, record.Column{Name: header[i], Type: kind})
	}
	return schema, nil
}

func readHeaderLine(r io.Reader) ([]string, error) {
	header, err := csv.NewReader(r).Read()
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return header, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
