package engine

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/logger"
	"github.com/tuannm99/novacsv/internal/record"
	"github.com/tuannm99/novacsv/internal/rowstore"
	"github.com/tuannm99/novacsv/internal/sql/parser"
)

var ErrEmptyCSV = errors.New("novacsv: csv source has no header")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ImportOptions control how a CSV file becomes a table.
type ImportOptions struct {
	// Schema fixes the column kinds; nil infers them from the data.
	Schema *record.Schema
	// Key names the key column. It is always indexed.
	Key string
	// Indexed names the other columns to build indexes for.
	Indexed []string
	// RowFormat overrides the database default.
	RowFormat rowstore.Format
}

func checkIdent(what, name string) error {
	if !identRe.MatchString(name) || parser.IsKeyword(name) {
		return errors.Wrapf(ErrBadTableName, "%s %q", what, name)
	}
	return nil
}

// ImportCSV copies the CSV file at src into a new table and builds its
// indexes. The first CSV record is the header.
func (db *Database) ImportCSV(name, src string, opts ImportOptions) (*TableMeta, error) {
	if err := checkIdent("table", name); err != nil {
		return nil, err
	}
	format := opts.RowFormat
	if format == "" {
		format = db.opts.RowFormat
	}
	format, err := rowstore.ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	unlock, err := db.lockDir()
	if err != nil {
		return nil, err
	}
	defer unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	if _, ok := db.tables[strings.ToLower(name)]; ok {
		return nil, errors.Wrapf(ErrTableExists, "%q", name)
	}

	start := time.Now()
	header, err := readHeader(src)
	if err != nil {
		return nil, err
	}
	schema, err := importSchema(src, header, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	meta := &TableMeta{
		Name:      name,
		Schema:    schema,
		RowFormat: format,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if meta.Rows, err = copyRows(src, db.dataPath(meta), meta); err != nil {
		_ = os.Remove(db.dataPath(meta))
		return nil, err
	}
	if err := db.writeTableMeta(meta); err != nil {
		return nil, err
	}
	db.tables[strings.ToLower(name)] = meta

	logger.WithFields(logrus.Fields{
		"table":   name,
		"rows":    meta.Rows,
		"columns": schema.NumCols(),
		"format":  format,
		"elapsed": time.Since(start).String(),
	}).Info("engine.import")

	var cols []int
	for i, c := range meta.Schema.Cols {
		if c.IsIndexed {
			cols = append(cols, i)
		}
	}
	if err := db.buildLocked(meta, cols); err != nil {
		return meta.clone(), err
	}
	return meta.clone(), nil
}

func openCSV(src string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", src)
	}
	r := csv.NewReader(f)
	r.ReuseRecord = true
	return f, r, nil
}

func readHeader(src string) ([]string, error) {
	f, r, err := openCSV(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(ErrEmptyCSV, "%s", src)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read header of %s", src)
	}
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if err := checkIdent("column", h); err != nil {
			return nil, errors.Wrapf(err, "%s header", src)
		}
		if seen[strings.ToLower(h)] {
			return nil, errors.Wrapf(record.ErrSchemaMismatch, "%s: duplicate column %q", src, h)
		}
		seen[strings.ToLower(h)] = true
		out[i] = h
	}
	return out, nil
}

func importSchema(src string, header []string, opts ImportOptions) (record.Schema, error) {
	var schema record.Schema
	if opts.Schema != nil {
		if opts.Schema.NumCols() != len(header) {
			return schema, errors.Wrapf(record.ErrSchemaMismatch, "%s has %d columns, schema has %d",
				src, len(header), opts.Schema.NumCols())
		}
		schema.Cols = append([]record.Column(nil), opts.Schema.Cols...)
		for i, c := range schema.Cols {
			if !strings.EqualFold(c.Name, header[i]) {
				return schema, errors.Wrapf(record.ErrSchemaMismatch, "%s column %d is %q, schema says %q",
					src, i, header[i], c.Name)
			}
			if !c.Type.Valid() {
				return schema, errors.Wrapf(codec.ErrUnknownKind, "column %q", c.Name)
			}
		}
	} else {
		kinds, err := inferKinds(src, len(header))
		if err != nil {
			return schema, err
		}
		for i, h := range header {
			schema.Cols = append(schema.Cols, record.Column{Name: h, Type: kinds[i]})
		}
	}

	if opts.Key != "" {
		c, ok := schema.Col(opts.Key)
		if !ok {
			return schema, errors.Wrapf(ErrColumnNotFound, "key %q", opts.Key)
		}
		for i := range schema.Cols {
			schema.Cols[i].IsKey = false
		}
		c.IsKey = true
	}
	for _, name := range opts.Indexed {
		c, ok := schema.Col(name)
		if !ok {
			return schema, errors.Wrapf(ErrColumnNotFound, "indexed %q", name)
		}
		c.IsIndexed = true
	}
	for i := range schema.Cols {
		schema.Cols[i].IsUnique = false
		schema.Cols[i].PageCount = 0
	}
	schema.Normalize()
	return schema, nil
}

// inferOrder is the widening chain a column walks while cells fail to parse.
var inferOrder = []codec.Kind{codec.KindInt32, codec.KindInt64, codec.KindDouble, codec.KindString}

// inferKinds picks for every column the narrowest kind of inferOrder that
// parses all of its non-empty cells. Columns without values are strings.
func inferKinds(src string, n int) ([]codec.Kind, error) {
	f, r, err := openCSV(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r.FieldsPerRecord = n

	if _, err := r.Read(); err != nil {
		return nil, errors.Wrapf(err, "read header of %s", src)
	}
	level := make([]int, n)
	seen := make([]bool, n)
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", src)
		}
		for i, cell := range cells {
			if cell == "" {
				continue
			}
			seen[i] = true
			for level[i] < len(inferOrder)-1 {
				if _, err := codec.Parse(inferOrder[level[i]], cell); err == nil {
					break
				}
				level[i]++
			}
		}
	}
	out := make([]codec.Kind, n)
	for i := range out {
		if !seen[i] {
			out[i] = codec.KindString
			continue
		}
		out[i] = inferOrder[level[i]]
	}
	return out, nil
}

func copyRows(src, dst string, meta *TableMeta) (int64, error) {
	f, r, err := openCSV(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r.FieldsPerRecord = meta.Schema.NumCols()

	w, err := rowstore.Create(meta.RowFormat, dst, meta.Schema)
	if err != nil {
		return 0, err
	}
	if _, err := r.Read(); err != nil {
		_ = w.Close()
		return 0, errors.Wrapf(err, "read header of %s", src)
	}
	var rows int64
	for {
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = w.Close()
			return 0, errors.Wrapf(err, "read %s", src)
		}
		row, err := rowstore.ParseCells(meta.Schema, cells)
		if err != nil {
			line, _ := r.FieldPos(0)
			_ = w.Close()
			return 0, errors.Wrapf(err, "%s line %d", src, line)
		}
		if _, err := w.Write(row); err != nil {
			_ = w.Close()
			return 0, errors.Wrapf(err, "write %s", dst)
		}
		rows++
	}
	return rows, errors.Wrapf(w.Close(), "close %s", dst)
}
