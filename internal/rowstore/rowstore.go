// Package rowstore materializes table rows from the offsets an index yields.
// Two physical layouts exist: plain CSV, addressed by the byte offset of each
// record, and packed binary rows prefixed by their length.
package rowstore

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/record"
)

type Format string

const (
	FormatCSV    Format = "csv"
	FormatBinary Format = "binary"
)

var (
	ErrUnknownFormat = errors.New("rowstore: unknown row format")
	ErrBadOffset     = errors.New("rowstore: offset does not address a record")
	ErrTooLarge      = errors.New("rowstore: table exceeds Int32 offsets")
)

// ParseFormat accepts the config spelling of a row format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatBinary:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
}

// Ext is the data file extension of the format.
func (f Format) Ext() string {
	if f == FormatBinary {
		return ".rows"
	}
	return ".csv"
}

// Store reads the rows of one table.
type Store interface {
	ReadRecord(off int32) ([]codec.Key, error)
	Scan(fn func(off int32, row []codec.Key) error) error
	Close() error
}

// Writer appends rows to a new table data file and reports each row's offset.
type Writer interface {
	Write(row []codec.Key) (int32, error)
	Close() error
}

func Open(format Format, path string, schema record.Schema) (Store, error) {
	switch format {
	case FormatCSV:
		return openCSV(path, schema)
	case FormatBinary:
		return openBinary(path, schema)
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
}

func Create(format Format, path string, schema record.Schema) (Writer, error) {
	switch format {
	case FormatCSV:
		return createCSV(path, schema)
	case FormatBinary:
		return createBinary(path, schema)
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
}

// ParseCells converts raw CSV cells to typed values. Empty cells are NULL.
func ParseCells(schema record.Schema, cells []string) ([]codec.Key, error) {
	if len(cells) != schema.NumCols() {
		return nil, errors.Wrapf(record.ErrSchemaMismatch, "%d cells for %d columns", len(cells), schema.NumCols())
	}
	row := make([]codec.Key, len(cells))
	for i, c := range cells {
		if c == "" {
			row[i] = codec.Null
			continue
		}
		k, err := codec.Parse(schema.Cols[i].Type, c)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", schema.Cols[i].Name)
		}
		row[i] = k
	}
	return row, nil
}

// FormatCells is the inverse of ParseCells.
func FormatCells(row []codec.Key) []string {
	out := make([]string, len(row))
	for i, k := range row {
		if !k.IsNull() {
			out[i] = k.String()
		}
	}
	return out
}

func checkOffset(off int64) (int32, error) {
	if off > math.MaxInt32 {
		return 0, errors.Wrapf(ErrTooLarge, "offset %d", off)
	}
	return int32(off), nil
}
