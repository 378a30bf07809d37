package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tuannm99/novacsv/internal/logger"
	"github.com/tuannm99/novacsv/internal/record"
	"github.com/tuannm99/novacsv/internal/rowstore"
	"github.com/tuannm99/novacsv/internal/sql/executor"
)

var (
	ErrDatabaseClosed = errors.New("novacsv: database is closed")
	ErrTableNotFound  = errors.New("novacsv: table not found")
	ErrTableExists    = errors.New("novacsv: table already exists")
	ErrColumnNotFound = errors.New("novacsv: column not found")
	ErrNotIndexed     = errors.New("novacsv: column is not indexed")
	ErrKeyIndex       = errors.New("novacsv: the key column index cannot be dropped")
	ErrBadTableName   = errors.New("novacsv: invalid table name")
)

const (
	DefaultPageSize   = 256
	DefaultMaxOpen    = 64
	DefaultCachePages = 1024
)

// Options tune a Database. Zero values fall back to the defaults.
type Options struct {
	PageSize int
	// MaxOpen bounds the shared index handles kept open.
	MaxOpen int
	// CachePages bounds the decoded leaf pages kept per index; negative
	// means unbounded.
	CachePages int
	RowFormat  rowstore.Format
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxOpen <= 0 {
		o.MaxOpen = DefaultMaxOpen
	}
	if o.CachePages == 0 {
		o.CachePages = DefaultCachePages
	}
	if o.RowFormat == "" {
		o.RowFormat = rowstore.FormatCSV
	}
	return o
}

// TableMeta is the persisted catalog entry of one table.
type TableMeta struct {
	Name      string          `json:"name"`
	Schema    record.Schema   `json:"schema"`
	RowFormat rowstore.Format `json:"row_format"`
	Rows      int64           `json:"rows"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (m *TableMeta) clone() *TableMeta {
	out := *m
	out.Schema.Cols = append([]record.Column(nil), m.Schema.Cols...)
	return &out
}

// Database is a directory of static tables and their column indexes:
//
//	<DataDir>/tables/<table>.meta.json
//	<DataDir>/tables/<table>.csv | <table>.rows
//	<DataDir>/indexes/<table>.<column>.index[.bin]
//	<DataDir>/LOCK
type Database struct {
	DataDir string
	opts    Options

	mu      sync.RWMutex
	tables  map[string]*TableMeta
	stores  map[string]rowstore.Store
	indexes *indexCache
	closed  bool
}

// Open loads the catalog of dataDir, creating the directory layout if needed.
func Open(dataDir string, opts Options) (*Database, error) {
	opts = opts.withDefaults()
	if _, err := rowstore.ParseFormat(string(opts.RowFormat)); err != nil {
		return nil, err
	}
	db := &Database{
		DataDir: dataDir,
		opts:    opts,
		tables:  make(map[string]*TableMeta),
		stores:  make(map[string]rowstore.Store),
		indexes: newIndexCache(opts.MaxOpen),
	}
	for _, dir := range []string{db.tableDir(), db.indexDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}

	paths, err := filepath.Glob(filepath.Join(db.tableDir(), "*.meta.json"))
	if err != nil {
		return nil, errors.Wrap(err, "list table meta")
	}
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), ".meta.json")
		meta, err := db.readTableMeta(name)
		if err != nil {
			return nil, err
		}
		db.tables[strings.ToLower(meta.Name)] = meta
	}

	logger.WithFields(logrus.Fields{
		"dir":       dataDir,
		"tables":    len(db.tables),
		"page_size": opts.PageSize,
		"format":    opts.RowFormat,
	}).Info("engine.open")
	return db, nil
}

func (db *Database) Options() Options { return db.opts }

func (db *Database) tableDir() string {
	return filepath.Join(db.DataDir, "tables")
}

func (db *Database) indexDir() string {
	return filepath.Join(db.DataDir, "indexes")
}

func (db *Database) tableMetaPath(name string) string {
	return filepath.Join(db.tableDir(), name+".meta.json")
}

func (db *Database) dataPath(meta *TableMeta) string {
	return filepath.Join(db.tableDir(), meta.Name+meta.RowFormat.Ext())
}

// writeTableMeta overwrites the meta file for a given table.
func (db *Database) writeTableMeta(meta *TableMeta) error {
	path := db.tableMetaPath(meta.Name)

	meta.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}

// readTableMeta loads table metadata from JSON file.
func (db *Database) readTableMeta(name string) (*TableMeta, error) {
	path := db.tableMetaPath(name)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	if meta.RowFormat, err = rowstore.ParseFormat(string(meta.RowFormat)); err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	for i, c := range meta.Schema.Cols {
		if !c.Type.Valid() {
			return nil, errors.Wrapf(record.ErrSchemaMismatch, "%s: column %q has kind %d", path, c.Name, c.Type)
		}
		if c.Ordinal != i {
			return nil, errors.Wrapf(record.ErrSchemaMismatch, "%s: column %q has ordinal %d at position %d", path, c.Name, c.Ordinal, i)
		}
	}
	return &meta, nil
}

func (db *Database) table(name string) (*TableMeta, error) {
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	meta, ok := db.tables[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrTableNotFound, "%q", name)
	}
	return meta, nil
}

// TableSchema returns a copy of the schema of a table. Names match
// case-insensitively.
func (db *Database) TableSchema(name string) (*record.Schema, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	meta, err := db.table(name)
	if err != nil {
		return nil, false
	}
	return &meta.clone().Schema, true
}

// Describe returns a snapshot of the catalog entry of a table.
func (db *Database) Describe(name string) (*TableMeta, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	meta, err := db.table(name)
	if err != nil {
		return nil, err
	}
	return meta.clone(), nil
}

// ListTables returns the table names in alphabetical order.
func (db *Database) ListTables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.tables))
	for _, m := range db.tables {
		out = append(out, m.Name)
	}
	sort.Strings(out)
	return out
}

// Rows returns the shared row store of a table. It stays open until the
// table is dropped or the database is closed.
func (db *Database) Rows(table string) (executor.RowReader, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	meta, err := db.table(table)
	if err != nil {
		return nil, err
	}
	return db.rowsLocked(meta)
}

func (db *Database) rowsLocked(meta *TableMeta) (rowstore.Store, error) {
	key := strings.ToLower(meta.Name)
	if st, ok := db.stores[key]; ok {
		return st, nil
	}
	st, err := rowstore.Open(meta.RowFormat, db.dataPath(meta), meta.Schema)
	if err != nil {
		return nil, err
	}
	db.stores[key] = st
	return st, nil
}

// Query parses, plans and executes one SELECT.
func (db *Database) Query(sql string) (*executor.Result, error) {
	return executor.NewExecutor(db).ExecSQL(sql)
}

// DropTable removes a table with its data file and every index.
func (db *Database) DropTable(name string) error {
	unlock, err := db.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	meta, err := db.table(name)
	if err != nil {
		return err
	}
	key := strings.ToLower(meta.Name)
	if st, ok := db.stores[key]; ok {
		_ = st.Close()
		delete(db.stores, key)
	}
	for _, c := range meta.Schema.Cols {
		if err := db.dropIndexFiles(meta, c.Name); err != nil {
			return err
		}
	}
	for _, p := range []string{db.dataPath(meta), db.tableMetaPath(meta.Name)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	delete(db.tables, key)
	logger.WithFields(logrus.Fields{"table": meta.Name}).Info("engine.table.dropped")
	return nil
}

// Close releases every row store and cached index. Index handles still held
// by callers close when they are released.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	for k, st := range db.stores {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(db.stores, k)
	}
	db.indexes.closeAll()
	return firstErr
}
