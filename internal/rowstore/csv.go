package rowstore

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/record"
)

type csvStore struct {
	path   string
	f      *os.File
	size   int64
	schema record.Schema
}

func openCSV(path string, schema record.Schema) (*csvStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open rows %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return &csvStore{path: path, f: f, size: st.Size(), schema: schema}, nil
}

// ReadRecord parses the single CSV record starting at byte offset off.
func (s *csvStore) ReadRecord(off int32) ([]codec.Key, error) {
	if off < 0 || int64(off) >= s.size {
		return nil, errors.Wrapf(ErrBadOffset, "%s offset %d", s.path, off)
	}
	r := csv.NewReader(io.NewSectionReader(s.f, int64(off), s.size-int64(off)))
	r.FieldsPerRecord = -1
	cells, err := r.Read()
	if err != nil {
		return nil, errors.Wrapf(ErrBadOffset, "%s offset %d: %v", s.path, off, err)
	}
	row, err := ParseCells(s.schema, cells)
	if err != nil {
		return nil, errors.Wrapf(err, "%s offset %d", s.path, off)
	}
	return row, nil
}

// Scan visits every data record; the header line is skipped.
func (s *csvStore) Scan(fn func(off int32, row []codec.Key) error) error {
	r := csv.NewReader(io.NewSectionReader(s.f, 0, s.size))
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrapf(err, "read header of %s", s.path)
	}
	for {
		start := r.InputOffset()
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", s.path)
		}
		off, err := checkOffset(start)
		if err != nil {
			return err
		}
		row, err := ParseCells(s.schema, cells)
		if err != nil {
			line, _ := r.FieldPos(0)
			return errors.Wrapf(err, "%s line %d", s.path, line)
		}
		if err := fn(off, row); err != nil {
			return err
		}
	}
}

func (s *csvStore) Close() error { return s.f.Close() }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type csvWriter struct {
	f   *os.File
	buf *bufio.Writer
	cnt *countingWriter
	w   *csv.Writer
}

func createCSV(path string, schema record.Schema) (*csvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create rows %s", path)
	}
	buf := bufio.NewWriter(f)
	cnt := &countingWriter{w: buf}
	cw := &csvWriter{f: f, buf: buf, cnt: cnt, w: csv.NewWriter(cnt)}
	if err := cw.w.Write(schema.Names()); err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "write header of %s", path)
	}
	return cw, nil
}

func (w *csvWriter) Write(row []codec.Key) (int32, error) {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return 0, err
	}
	off, err := checkOffset(w.cnt.n)
	if err != nil {
		return 0, err
	}
	if err := w.w.Write(FormatCells(row)); err != nil {
		return 0, err
	}
	return off, nil
}

func (w *csvWriter) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}
