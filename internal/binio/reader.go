package binio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const searchChunkSize = 64 * 1024

var (
	// ErrBadLength indicates a malformed 7-bit encoded string length.
	ErrBadLength = errors.New("binio: bad string length")
	// ErrEmptyPattern is returned when searching for a zero-length pattern.
	ErrEmptyPattern = errors.New("binio: empty search pattern")
)

// Reader is a forward/backward seekable cursor over r. It tracks the absolute
// position itself so callers never need to query the underlying seeker.
type Reader struct {
	r     io.ReadSeeker
	order binary.ByteOrder
	enc   Encoding
	pos   int64
	buf   [8]byte
}

// NewReader wraps r at its current position.
func NewReader(r io.ReadSeeker, order binary.ByteOrder, enc Encoding) (*Reader, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("binio: query position: %w", err)
	}
	return &Reader{r: r, order: order, enc: enc, pos: pos}, nil
}

// Position returns the absolute offset of the next byte to be read.
func (r *Reader) Position() int64 {
	return r.pos
}

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(offset int64) error {
	pos, err := r.r.Seek(offset, io.SeekStart)
	if err != nil {
		return fmt.Errorf("binio: seek to 0x%X: %w", offset, err)
	}
	r.pos = pos
	return nil
}

// Skip discards n bytes. Running past the end of the input is an error,
// unlike a plain seek.
func (r *Reader) Skip(n int) error {
	copied, err := io.CopyN(io.Discard, r.r, int64(n))
	r.pos += copied
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("binio: skip %d bytes at 0x%X: %w", n, r.pos-copied, err)
	}
	return nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := r.fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) fill(b []byte) error {
	start := r.pos
	n, err := io.ReadFull(r.r, b)
	r.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("binio: read %d bytes at 0x%X: %w", len(b), start, err)
	}
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.fill(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// ReadInt32 reads a signed 32-bit integer in the reader's byte order.
func (r *Reader) ReadInt32() (int32, error) {
	if err := r.fill(r.buf[:4]); err != nil {
		return 0, err
	}
	return int32(r.order.Uint32(r.buf[:4])), nil
}

// ReadUint64 reads an unsigned 64-bit integer in the reader's byte order.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.fill(r.buf[:8]); err != nil {
		return 0, err
	}
	return r.order.Uint64(r.buf[:8]), nil
}

// ReadInt64 reads a signed 64-bit integer in the reader's byte order.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFixedString reads a maxLength-byte slot and decodes the text before the
// first terminator. The cursor always ends at start+maxLength.
func (r *Reader) ReadFixedString(maxLength int) (string, error) {
	b, err := r.ReadBytes(maxLength)
	if err != nil {
		return "", err
	}
	return r.enc.Decode(r.enc.Terminated(b))
}

// ReadString reads a string prefixed with its byte length as a 7-bit
// encoded integer.
func (r *Reader) ReadString() (string, error) {
	n, err := r.read7BitInt()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return r.enc.Decode(b)
}

func (r *Reader) read7BitInt() (int, error) {
	var v uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			if int32(v) < 0 {
				return 0, fmt.Errorf("%w: %d", ErrBadLength, int32(v))
			}
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: more than 5 bytes at 0x%X", ErrBadLength, r.pos)
}

// FindNext searches forward from the current position for pattern. When found
// it returns the pattern's offset and leaves the cursor just past it.
// Otherwise it returns false and the cursor is at the end of the input.
func (r *Reader) FindNext(pattern []byte) (int64, bool, error) {
	if len(pattern) == 0 {
		return 0, false, ErrEmptyPattern
	}

	keep := len(pattern) - 1
	window := make([]byte, 0, searchChunkSize+keep)
	chunk := make([]byte, searchChunkSize)
	base := r.pos

	for {
		n, err := io.ReadFull(r.r, chunk)
		window = append(window, chunk[:n]...)

		if i := bytes.Index(window, pattern); i >= 0 {
			at := base + int64(i)
			if err := r.Seek(at + int64(len(pattern))); err != nil {
				return 0, false, err
			}
			return at, true, nil
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.pos = base + int64(len(window))
			return -1, false, nil
		}
		if err != nil {
			return 0, false, fmt.Errorf("binio: search at 0x%X: %w", base, err)
		}

		if len(window) > keep {
			drop := len(window) - keep
			base += int64(drop)
			window = append(window[:0], window[drop:]...)
		}
	}
}
