package cmnbin

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated indicates a block header or record ran past the end of the asset.
	ErrTruncated = errors.New("cmnbin: truncated block")
	// ErrInvalidCount indicates a negative or oversized record count.
	ErrInvalidCount = errors.New("cmnbin: invalid record count")
	// ErrOverflow indicates an encoded translation wider than its slot.
	ErrOverflow = errors.New("cmnbin: translation exceeds slot width")
	// ErrMismatch indicates edited entries that do not line up with the asset.
	ErrMismatch = errors.New("cmnbin: entries do not match asset")
)

// FormatError aborts a scan. Block is the marker offset, Offset the position
// where decoding failed.
type FormatError struct {
	Block  int64
	Offset int64
	Kind   Kind
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cmnbin: %s at 0x%08X failed at 0x%08X: %v", blockLabel(e.Kind), e.Block, e.Offset, e.Err)
}

func blockLabel(kind Kind) string {
	if kind == KindUnknown {
		return "block"
	}
	return kind.String() + " block"
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

type OverflowError struct {
	Offset    int64
	Length    int
	MaxLength int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("cmnbin: translation at 0x%08X is %d bytes, slot holds %d", e.Offset, e.Length, e.MaxLength)
}

func (e *OverflowError) Unwrap() error {
	return ErrOverflow
}

type MismatchError struct {
	Offset int64
	Reason string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("cmnbin: entry at 0x%08X does not match asset: %s", e.Offset, e.Reason)
}

func (e *MismatchError) Unwrap() error {
	return ErrMismatch
}
