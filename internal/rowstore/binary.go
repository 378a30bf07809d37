package rowstore

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/tuannm99/novacsv/internal/alias/bx"
	"github.com/tuannm99/novacsv/internal/codec"
	"github.com/tuannm99/novacsv/internal/record"
)

// Binary rows file: back-to-back records of [u32 length][row codec bytes].
// A row's offset is the position of its length prefix.
const lenPrefix = 4

type binaryStore struct {
	path   string
	f      *os.File
	size   int64
	schema record.Schema
}

func openBinary(path string, schema record.Schema) (*binaryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open rows %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return &binaryStore{path: path, f: f, size: st.Size(), schema: schema}, nil
}

func (s *binaryStore) ReadRecord(off int32) ([]codec.Key, error) {
	if off < 0 || int64(off)+lenPrefix > s.size {
		return nil, errors.Wrapf(ErrBadOffset, "%s offset %d", s.path, off)
	}
	var hdr [lenPrefix]byte
	if _, err := s.f.ReadAt(hdr[:], int64(off)); err != nil {
		return nil, errors.Wrapf(err, "read %s", s.path)
	}
	n := int64(bx.U32(hdr[:]))
	if int64(off)+lenPrefix+n > s.size {
		return nil, errors.Wrapf(ErrBadOffset, "%s offset %d: length %d past end of file", s.path, off, n)
	}
	body := make([]byte, n)
	if _, err := s.f.ReadAt(body, int64(off)+lenPrefix); err != nil {
		return nil, errors.Wrapf(err, "read %s", s.path)
	}
	row, err := record.DecodeRow(s.schema, body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s offset %d", s.path, off)
	}
	return row, nil
}

func (s *binaryStore) Scan(fn func(off int32, row []codec.Key) error) error {
	r := bufio.NewReader(io.NewSectionReader(s.f, 0, s.size))
	var pos int64
	var hdr [lenPrefix]byte
	for pos < s.size {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return errors.Wrapf(err, "%s: truncated record at %d", s.path, pos)
		}
		n := int64(bx.U32(hdr[:]))
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return errors.Wrapf(err, "%s: truncated record at %d", s.path, pos)
		}
		off, err := checkOffset(pos)
		if err != nil {
			return err
		}
		row, err := record.DecodeRow(s.schema, body)
		if err != nil {
			return errors.Wrapf(err, "%s offset %d", s.path, pos)
		}
		if err := fn(off, row); err != nil {
			return err
		}
		pos += lenPrefix + n
	}
	return nil
}

func (s *binaryStore) Close() error { return s.f.Close() }

type binaryWriter struct {
	f      *os.File
	buf    *bufio.Writer
	schema record.Schema
	pos    int64
}

func createBinary(path string, schema record.Schema) (*binaryWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create rows %s", path)
	}
	return &binaryWriter{f: f, buf: bufio.NewWriter(f), schema: schema}, nil
}

func (w *binaryWriter) Write(row []codec.Key) (int32, error) {
	off, err := checkOffset(w.pos)
	if err != nil {
		return 0, err
	}
	body, err := record.EncodeRow(w.schema, row)
	if err != nil {
		return 0, err
	}
	var hdr [lenPrefix]byte
	bx.PutU32(hdr[:], uint32(len(body)))
	if _, err := w.buf.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.buf.Write(body); err != nil {
		return 0, err
	}
	w.pos += lenPrefix + int64(len(body))
	return off, nil
}

func (w *binaryWriter) Close() error {
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
