package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/tuannm99/novacsv/internal/btree"
	"github.com/tuannm99/novacsv/internal/codec"
	locking "github.com/tuannm99/novacsv/internal/lock"
	"github.com/tuannm99/novacsv/internal/logger"
	"github.com/tuannm99/novacsv/internal/record"
	"github.com/tuannm99/novacsv/pkg/cache"
)

// IndexMeta describes one built column index.
type IndexMeta struct {
	Table     string     `json:"table"`
	Column    string     `json:"column"`
	Kind      codec.Kind `json:"kind"`
	IsKey     bool       `json:"is_key"`
	IsUnique  bool       `json:"is_unique"`
	PageCount int32      `json:"page_count"`
	Built     bool       `json:"built"`
}

type cachedIndex struct {
	ix   *btree.Index
	refs *locking.Refs
}

// indexCache shares open indexes between queries. The cache holds one
// reference to every entry and each caller holds one more; a handle is closed
// by whoever drops the last reference, so eviction never closes an index that
// is still in use.
type indexCache struct {
	max int
	lru *cache.LRUManager[string, *cachedIndex]
	mu  sync.Mutex
}

func newIndexCache(max int) *indexCache {
	return &indexCache{max: max, lru: cache.NewLRUManager[string, *cachedIndex]()}
}

func indexKey(table, column string) string {
	return strings.ToLower(table + "." + column)
}

func (c *indexCache) acquire(key string, open func() (*btree.Index, error)) (*btree.Index, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.lru.Get(key); ok {
		h.refs.Acquire()
		return h.ix, c.releaser(key, h), nil
	}

	ix, err := open()
	if err != nil {
		return nil, nil, err
	}
	h := &cachedIndex{ix: ix, refs: locking.NewRefs()}
	h.refs.Acquire()
	c.lru.Put(key, h)

	for c.lru.Len() > c.max {
		old, victim, ok := c.lru.Back()
		if !ok {
			break
		}
		c.lru.Remove(old)
		c.unref(old, victim)
	}
	return ix, c.releaser(key, h), nil
}

func (c *indexCache) releaser(key string, h *cachedIndex) func() {
	var once sync.Once
	return func() {
		once.Do(func() { c.unref(key, h) })
	}
}

func (c *indexCache) unref(key string, h *cachedIndex) {
	if !h.refs.Release() {
		return
	}
	if err := h.ix.Close(); err != nil {
		logger.WithFields(logrus.Fields{"index": key, "err": err}).Warn("engine.index.close_failed")
	}
}

// invalidate drops the cached handle of key, if any.
func (c *indexCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.lru.Remove(key); ok {
		c.unref(key, h)
	}
}

func (c *indexCache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		if h, ok := c.lru.Remove(key); ok {
			c.unref(key, h)
		}
	}
}

func (c *indexCache) len() int { return c.lru.Len() }

func (db *Database) indexFileSet(table, column string) btree.FileSet {
	return btree.FileSet{Dir: db.indexDir(), Table: table, Column: column}
}

func (db *Database) lockDir() (func(), error) {
	l, err := locking.LockDir(db.DataDir)
	if err != nil {
		return nil, err
	}
	return func() { _ = l.Unlock() }, nil
}

func column(meta *TableMeta, name string) (*record.Column, error) {
	c, ok := meta.Schema.Col(name)
	if !ok {
		return nil, errors.Wrapf(ErrColumnNotFound, "%s.%s", meta.Name, name)
	}
	return c, nil
}

// OpenIndex hands out the shared index of table.column. release must be
// called exactly once when the caller is done; extra calls are ignored.
func (db *Database) OpenIndex(table, col string) (*btree.Index, func(), error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	meta, err := db.table(table)
	if err != nil {
		return nil, nil, err
	}
	c, err := column(meta, col)
	if err != nil {
		return nil, nil, err
	}
	if !c.IsIndexed {
		return nil, nil, errors.Wrapf(ErrNotIndexed, "%s.%s", meta.Name, c.Name)
	}
	fs := db.indexFileSet(meta.Name, c.Name)
	return db.indexes.acquire(indexKey(meta.Name, c.Name), func() (*btree.Index, error) {
		ix, err := btree.Open(fs)
		if err != nil {
			return nil, err
		}
		if ix.Kind() != c.Type || ix.Header().Ordinal != int32(c.Ordinal) {
			_ = ix.Close()
			return nil, errors.Wrapf(btree.ErrCorruptIndex, "%s: built for kind %s ordinal %d, column is %s ordinal %d",
				fs.TreePath(), ix.Kind(), ix.Header().Ordinal, c.Type, c.Ordinal)
		}
		ix.Items().SetCacheLimit(db.opts.CachePages)
		return ix, nil
	})
}

// ListIndexes describes every indexed column of a table.
func (db *Database) ListIndexes(table string) ([]IndexMeta, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	meta, err := db.table(table)
	if err != nil {
		return nil, err
	}
	var out []IndexMeta
	for _, c := range meta.Schema.Cols {
		if !c.IsIndexed {
			continue
		}
		out = append(out, IndexMeta{
			Table:     meta.Name,
			Column:    c.Name,
			Kind:      c.Type,
			IsKey:     c.IsKey,
			IsUnique:  c.IsUnique,
			PageCount: c.PageCount,
			Built:     btree.Exists(db.indexFileSet(meta.Name, c.Name)),
		})
	}
	return out, nil
}

// BuildIndexes rebuilds every indexed column of a table. Columns are
// independent: one failing column is reported while the others are still
// written. Catalog changes (IsUnique, PageCount) are persisted.
func (db *Database) BuildIndexes(table string) error {
	unlock, err := db.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	meta, err := db.table(table)
	if err != nil {
		return err
	}
	var cols []int
	for i, c := range meta.Schema.Cols {
		if c.IsIndexed {
			cols = append(cols, i)
		}
	}
	return db.buildLocked(meta, cols)
}

// BuildIndex marks a column indexed and builds its index.
func (db *Database) BuildIndex(table, col string) error {
	unlock, err := db.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	meta, err := db.table(table)
	if err != nil {
		return err
	}
	c, err := column(meta, col)
	if err != nil {
		return err
	}
	was := c.IsIndexed
	c.IsIndexed = true
	if err := db.buildLocked(meta, []int{c.Ordinal}); err != nil {
		c.IsIndexed = was
		return err
	}
	return nil
}

func (db *Database) buildLocked(meta *TableMeta, cols []int) error {
	if len(cols) == 0 {
		return nil
	}
	start := time.Now()
	st, err := db.rowsLocked(meta)
	if err != nil {
		return err
	}

	collectors := make(map[int]*btree.Collector, len(cols))
	failed := make(map[int]error)
	for _, i := range cols {
		collectors[i] = btree.NewCollector(meta.Schema.Cols[i].Type)
	}
	err = st.Scan(func(off int32, row []codec.Key) error {
		for _, i := range cols {
			if failed[i] != nil || row[i].IsNull() {
				continue
			}
			if err := collectors[i].Add(row[i], off); err != nil {
				failed[i] = err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "scan %s", meta.Name)
	}

	var errs error
	built := 0
	for _, i := range cols {
		c := &meta.Schema.Cols[i]
		if err := failed[i]; err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "index %s.%s", meta.Name, c.Name))
			continue
		}
		stats, err := btree.WriteIndex(db.indexFileSet(meta.Name, c.Name), collectors[i].Entries(), btree.Options{
			PageSize: db.opts.PageSize,
			Kind:     c.Type,
			Ordinal:  c.Ordinal,
			IsKey:    c.IsKey,
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		db.indexes.invalidate(indexKey(meta.Name, c.Name))
		if c.IsUnique != stats.Unique {
			logger.WithFields(logrus.Fields{
				"table":  meta.Name,
				"column": c.Name,
				"unique": stats.Unique,
			}).Info("engine.index.unique_changed")
		}
		c.IsUnique = stats.Unique
		c.PageCount = int32(stats.PageCount())
		built++
	}
	if built > 0 {
		errs = multierr.Append(errs, db.writeTableMeta(meta))
	}

	logger.WithFields(logrus.Fields{
		"table":   meta.Name,
		"columns": len(cols),
		"built":   built,
		"elapsed": time.Since(start).String(),
	}).Info("engine.build")
	return errs
}

// DropIndex removes the index files of a column and clears its index flags.
func (db *Database) DropIndex(table, col string) error {
	unlock, err := db.lockDir()
	if err != nil {
		return err
	}
	defer unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	meta, err := db.table(table)
	if err != nil {
		return err
	}
	c, err := column(meta, col)
	if err != nil {
		return err
	}
	if c.IsKey {
		return errors.Wrapf(ErrKeyIndex, "%s.%s", meta.Name, c.Name)
	}
	if !c.IsIndexed {
		return errors.Wrapf(ErrNotIndexed, "%s.%s", meta.Name, c.Name)
	}
	if err := db.dropIndexFiles(meta, c.Name); err != nil {
		return err
	}
	c.IsIndexed = false
	c.IsUnique = false
	c.PageCount = 0
	return db.writeTableMeta(meta)
}

func (db *Database) dropIndexFiles(meta *TableMeta, col string) error {
	db.indexes.invalidate(indexKey(meta.Name, col))
	return btree.DropIndex(db.indexFileSet(meta.Name, col))
}
