package cmnbin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sakimotor/TranslationFramework2/internal/binio"
)

// Block is one decoded marker occurrence.
type Block struct {
	Offset   int64 // marker position
	Selector uint64
	Kind     Kind
	Entries  []Entry
}

// Scanner walks the blocks of an asset in increasing offset order, always
// starting from the beginning of rs.
//
//	s, _ := cmnbin.NewScanner(f, layout, enc)
//	for s.Next() {
//		use(s.Block())
//	}
//	err := s.Err()
type Scanner struct {
	r      *binio.Reader
	layout Layout
	block  Block
	err    error
	done   bool
}

func NewScanner(rs io.ReadSeeker, layout Layout, enc binio.Encoding) (*Scanner, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	r, err := binio.NewReader(rs, binary.BigEndian, enc)
	if err != nil {
		return nil, err
	}
	if err := r.Seek(0); err != nil {
		return nil, err
	}
	return &Scanner{r: r, layout: layout}, nil
}

// Next advances to the next block. It returns false once no marker remains
// or decoding failed; check Err to tell the two apart.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}

	at, ok, err := s.r.FindNext(s.layout.Marker)
	if err != nil {
		return s.fail(fmt.Errorf("cmnbin: search marker: %w", err))
	}
	if !ok {
		s.done = true
		return false
	}

	selector, err := s.r.ReadUint64()
	if err != nil {
		return s.fail(s.formatError(at, KindUnknown, err))
	}
	kind := KindShort
	if selector == 0 {
		kind = KindLong
	}

	entries, err := decodeBlock(s.r, kind, shapeFor(kind, s.layout))
	if err != nil {
		return s.fail(s.formatError(at, kind, err))
	}

	s.block = Block{Offset: at, Selector: selector, Kind: kind, Entries: entries}
	return true
}

func (s *Scanner) Block() Block {
	return s.block
}

func (s *Scanner) Err() error {
	return s.err
}

func (s *Scanner) fail(err error) bool {
	s.err = err
	s.done = true
	s.block = Block{}
	return false
}

func (s *Scanner) formatError(block int64, kind Kind, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: %w", ErrTruncated, err)
	} else if !errors.Is(err, ErrInvalidCount) {
		// plain I/O failure, surfaced as is
		return fmt.Errorf("cmnbin: %s at 0x%08X: %w", blockLabel(kind), block, err)
	}
	return &FormatError{Block: block, Offset: s.r.Position(), Kind: kind, Err: err}
}

// Scan decodes every block of the asset and returns the entries in file
// order. Any decoding failure aborts the whole scan.
func Scan(rs io.ReadSeeker, layout Layout, enc binio.Encoding) ([]Entry, error) {
	s, err := NewScanner(rs, layout, enc)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0)
	for s.Next() {
		entries = append(entries, s.Block().Entries...)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ScanFile opens path read-only and scans it.
func ScanFile(path string, layout Layout, enc binio.Encoding) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	return Scan(f, layout, enc)
}
