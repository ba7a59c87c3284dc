package binio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTooLong is returned when encoded text does not fit its fixed-width slot.
var ErrTooLong = errors.New("binio: text exceeds slot width")

// LengthError reports an encoded length that exceeds a slot.
type LengthError struct {
	Length    int
	MaxLength int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("binio: encoded length %d exceeds slot width %d", e.Length, e.MaxLength)
}

func (e *LengthError) Unwrap() error {
	return ErrTooLong
}

// Writer is the write-side counterpart of Reader.
type Writer struct {
	w     io.WriteSeeker
	order binary.ByteOrder
	enc   Encoding
	pos   int64
	buf   [8]byte
}

// NewWriter wraps w at its current position.
func NewWriter(w io.WriteSeeker, order binary.ByteOrder, enc Encoding) (*Writer, error) {
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("binio: query position: %w", err)
	}
	return &Writer{w: w, order: order, enc: enc, pos: pos}, nil
}

// Position returns the absolute offset of the next byte to be written.
func (w *Writer) Position() int64 {
	return w.pos
}

// Seek moves the cursor to an absolute offset.
func (w *Writer) Seek(offset int64) error {
	pos, err := w.w.Seek(offset, io.SeekStart)
	if err != nil {
		return fmt.Errorf("binio: seek to 0x%X: %w", offset, err)
	}
	w.pos = pos
	return nil
}

// WriteBytes writes b as-is.
func (w *Writer) WriteBytes(b []byte) error {
	n, err := w.w.Write(b)
	w.pos += int64(n)
	if err != nil {
		return fmt.Errorf("binio: write %d bytes at 0x%X: %w", len(b), w.pos-int64(n), err)
	}
	return nil
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	return w.WriteBytes(make([]byte, n))
}

// WriteInt32 writes v in the writer's byte order.
func (w *Writer) WriteInt32(v int32) error {
	w.order.PutUint32(w.buf[:4], uint32(v))
	return w.WriteBytes(w.buf[:4])
}

// WriteInt64 writes v in the writer's byte order.
func (w *Writer) WriteInt64(v int64) error {
	w.order.PutUint64(w.buf[:8], uint64(v))
	return w.WriteBytes(w.buf[:8])
}

// WriteString writes s prefixed with its encoded byte length as a 7-bit
// encoded integer.
func (w *Writer) WriteString(s string) error {
	b, err := w.enc.Encode(s)
	if err != nil {
		return err
	}
	var prefix [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(prefix[:], uint64(len(b)))
	if err := w.WriteBytes(prefix[:n]); err != nil {
		return err
	}
	return w.WriteBytes(b)
}

// WriteFixedString encodes s and writes it zero-padded to exactly maxLength
// bytes. Nothing is written when the encoded text does not fit.
func (w *Writer) WriteFixedString(s string, maxLength int) error {
	b, err := w.enc.Encode(s)
	if err != nil {
		return err
	}
	return w.WriteFixed(b, maxLength)
}

// WriteFixed writes already-encoded text zero-padded to maxLength bytes.
func (w *Writer) WriteFixed(b []byte, maxLength int) error {
	if len(b) > maxLength {
		return &LengthError{Length: len(b), MaxLength: maxLength}
	}
	slot := make([]byte, maxLength)
	copy(slot, b)
	return w.WriteBytes(slot)
}
