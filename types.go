// Package novacsv is the top-level facade for the novacsv engine: static CSV
// tables with per-column binary search tree indexes and a small SELECT dialect.
package novacsv

import (
	"github.com/tuannm99/novacsv/internal/engine"
	"github.com/tuannm99/novacsv/internal/rowstore"
	"github.com/tuannm99/novacsv/internal/sql/executor"
)

type (
	Database      = engine.Database
	Options       = engine.Options
	TableMeta     = engine.TableMeta
	IndexMeta     = engine.IndexMeta
	ImportOptions = engine.ImportOptions
	Result        = executor.Result
	RowFormat     = rowstore.Format
)

const (
	RowFormatCSV    = rowstore.FormatCSV
	RowFormatBinary = rowstore.FormatBinary
)

var (
	ErrDatabaseClosed = engine.ErrDatabaseClosed
	ErrTableNotFound  = engine.ErrTableNotFound
	ErrTableExists    = engine.ErrTableExists
	ErrNotIndexed     = engine.ErrNotIndexed
)

// Open opens (or initializes) the database directory dir.
func Open(dir string, opts Options) (*Database, error) {
	return engine.Open(dir, opts)
}
