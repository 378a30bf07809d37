package codec

import "github.com/pkg/errors"

var (
	ErrShortBuffer  = errors.New("codec: buffer underflow")
	ErrKeyTooLong   = errors.New("codec: string key longer than 255 bytes")
	ErrDecimalRange = errors.New("codec: decimal does not fit 96 bits at scale 28")
	ErrUnknownKind  = errors.New("codec: unknown kind")
	ErrCast         = errors.New("codec: invalid cast")
)
