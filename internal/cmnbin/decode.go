package cmnbin

import (
	"fmt"
	"math"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
)

const (
	recordHeaderSize = 16

	longHeaderSize   = 40
	longCountFields  = 2 // primary + secondary
	longCountPadding = 16

	shortHeaderSize   = 266
	shortGroups       = 2
	shortCountPadding = 12 + 16
)

// blockShape captures everything that differs between the two block layouts.
type blockShape struct {
	header  int
	groups  int
	counts  int // count fields per group, summed
	padding int // bytes between the counts and the first record
	width   int
}

func shapeFor(kind Kind, layout Layout) blockShape {
	if kind == KindLong {
		return blockShape{
			header:  longHeaderSize,
			groups:  1,
			counts:  longCountFields,
			padding: longCountPadding,
			width:   layout.LongWidth,
		}
	}
	return blockShape{
		header:  shortHeaderSize,
		groups:  shortGroups,
		counts:  1,
		padding: shortCountPadding,
		width:   layout.ShortWidth,
	}
}

// decodeBlock reads one block body. The cursor must sit right after the
// selector. Records with empty text are consumed but not returned.
func decodeBlock(r *binio.Reader, kind Kind, shape blockShape) ([]Entry, error) {
	if err := r.Skip(shape.header); err != nil {
		return nil, err
	}

	var entries []Entry
	for g := 0; g < shape.groups; g++ {
		total, err := readCount(r, shape.counts)
		if err != nil {
			return nil, err
		}
		if err := r.Skip(shape.padding); err != nil {
			return nil, err
		}

		for i := 0; i < total; i++ {
			if err := r.Skip(recordHeaderSize); err != nil {
				return nil, err
			}
			offset := r.Position()
			text, err := r.ReadFixedString(shape.width)
			if err != nil {
				return nil, err
			}
			if text == "" {
				continue
			}
			entries = append(entries, NewEntry(kind, offset, shape.width, text))
		}
	}
	return entries, nil
}

func readCount(r *binio.Reader, fields int) (int, error) {
	var total int64
	for i := 0; i < fields; i++ {
		v, err := r.ReadInt32()
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidCount, v)
		}
		total += int64(v)
	}
	if total > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, total)
	}
	return int(total), nil
}
