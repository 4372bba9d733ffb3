package mp4

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// maxPrealloc caps the buffer allocated before a read.
const maxPrealloc = 64 << 10

// Cursor is a sequential big-endian reader over a seekable resource. It keeps
// its own notion of the current offset so callers can record atom positions
// without asking the underlying resource.
type Cursor struct {
	r      io.ReadSeeker
	offset int64
}

// NewCursor returns a Cursor positioned at the resource's current offset.
func NewCursor(r io.ReadSeeker) (*Cursor, error) {
	offset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.WithStack(&IOError{Op: "seek", Err: err})
	}
	return &Cursor{r: r, offset: offset}, nil
}

// Offset returns the absolute position of the next read.
func (c *Cursor) Offset() int64 {
	return c.offset
}

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(offset int64) error {
	if offset < 0 {
		return errors.WithStack(&IOError{Op: "seek", Offset: offset, Err: errors.New("negative offset")})
	}
	n, err := c.r.Seek(offset, io.SeekStart)
	if err != nil {
		return errors.WithStack(&IOError{Op: "seek", Offset: offset, Err: err})
	}
	c.offset = n
	return nil
}

// SeekForward moves the cursor count bytes past its current offset.
func (c *Cursor) SeekForward(count int64) error {
	return c.Seek(c.offset + count)
}

// ReadBytes reads exactly n bytes. A short read is reported as an *IOError
// wrapping io.EOF (nothing was left) or io.ErrUnexpectedEOF (some was). The
// buffer grows with the data read, so a bogus n from a corrupt size field
// doesn't allocate up front.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, min(n, maxPrealloc)))
	read, err := io.CopyN(buf, c.r, int64(n))
	start := c.offset
	c.offset += read
	if err != nil {
		if errors.Is(err, io.EOF) && read > 0 {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.WithStack(&IOError{Op: "read", Offset: start, Err: err})
	}
	return buf.Bytes(), nil
}

// ReadUint16 reads a big-endian uint16.
func (c *Cursor) ReadUint16() (uint16, error) {
	buf, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadUint32 reads a big-endian uint32.
func (c *Cursor) ReadUint32() (uint32, error) {
	buf, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

// isEndOfData reports whether err is a short read, as opposed to a failure of
// the underlying resource.
func isEndOfData(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
