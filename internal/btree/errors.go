package btree

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrCorruptIndex is returned for any structural inconsistency found while
	// loading a tree or items file. The reader never skips suspicious data.
	ErrCorruptIndex = errors.New("btree: corrupt index")

	ErrMissingChild   = errors.New("btree: node is missing a child")
	ErrUnsortedInput  = errors.New("btree: input keys are not strictly increasing")
	ErrEmptyOffsets   = errors.New("btree: key without row offsets")
	ErrBadPageSize    = errors.New("btree: page size must be at least 2")
	ErrTooManyOffsets = errors.New("btree: too many row offsets for one leaf key")
	ErrFileTooLarge   = errors.New("btree: items file exceeds Int32 offsets")
	ErrKeyKind        = errors.New("btree: key kind does not match index")
	ErrUnknownPage    = errors.New("btree: unknown items page")
)

// CorruptError pinpoints where a file failed validation.
type CorruptError struct {
	Path   string
	Offset int64
	Reason string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("btree: corrupt index %s at offset %d: %s", e.Path, e.Offset, e.Reason)
}

func (e *CorruptError) Unwrap() error { return ErrCorruptIndex }

func corrupt(path string, off int64, format string, args ...any) error {
	return errors.WithStack(&CorruptError{Path: path, Offset: off, Reason: fmt.Sprintf(format, args...)})
}
