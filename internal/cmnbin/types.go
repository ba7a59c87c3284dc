// Package cmnbin locates, decodes and patches the subtitle blocks embedded in
// cmn.bin game assets.
//
// A block starts with a 16-byte marker followed by a big-endian 8-byte
// selector. Selector 0 introduces a long-record block, anything else a
// short-record block. Each record carries one fixed-width, zero-padded text
// slot; patching rewrites slots in place so no other byte moves.
package cmnbin

import "fmt"

// Marker introduces every subtitle block.
var Marker = []byte{0x8E, 0x9A, 0x96, 0x8B, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

const (
	DefaultLongWidth  = 128
	DefaultShortWidth = 64
)

// Kind tags the record layout an entry came from. The numeric values are the
// overlay file discriminator.
type Kind int32

const (
	KindShort Kind = 0
	KindLong  Kind = 1
	// KindUnknown marks a block whose selector could not be read. It never
	// appears on an entry.
	KindUnknown Kind = -1
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindShort:
		return "short"
	case KindLong:
		return "long"
	default:
		return fmt.Sprintf("kind(%d)", int32(k))
	}
}

// Layout holds the format constants that are not fixed by the block headers.
type Layout struct {
	Marker     []byte
	LongWidth  int
	ShortWidth int
}

func DefaultLayout() Layout {
	return Layout{
		Marker:     Marker,
		LongWidth:  DefaultLongWidth,
		ShortWidth: DefaultShortWidth,
	}
}

// Width returns the slot width in bytes for records of kind k.
func (l Layout) Width(k Kind) int {
	if k == KindLong {
		return l.LongWidth
	}
	return l.ShortWidth
}

func (l Layout) Validate() error {
	if len(l.Marker) == 0 {
		return fmt.Errorf("cmnbin: layout marker is empty")
	}
	if l.LongWidth <= 0 || l.ShortWidth <= 0 {
		return fmt.Errorf("cmnbin: slot widths must be positive (long=%d short=%d)", l.LongWidth, l.ShortWidth)
	}
	return nil
}

// Entry is one translatable text slot.
type Entry struct {
	Offset      int64 // absolute position of the text slot
	Kind        Kind
	MaxLength   int    // slot width in bytes
	Original    string // text decoded from the asset
	Translation string
	Saved       string // Translation as of the last overlay save or load
}

// NewEntry creates an untranslated entry.
func NewEntry(kind Kind, offset int64, maxLength int, text string) Entry {
	return Entry{
		Offset:      offset,
		Kind:        kind,
		MaxLength:   maxLength,
		Original:    text,
		Translation: text,
		Saved:       text,
	}
}

// Changed reports an edit that has not been saved yet.
func (e Entry) Changed() bool {
	return e.Translation != e.Saved
}

// Translated reports whether the translation differs from the original text.
func (e Entry) Translated() bool {
	return e.Translation != e.Original
}
